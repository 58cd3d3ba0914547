package storage

import (
	"context"
	"time"
)

// AggregateRow is one durable hourly aggregate for an owner. The tuple
// (owner_id, owner_type, date, hour) is a natural key: at most one row
// per key, refreshed by upsert.
type AggregateRow struct {
	OwnerID   string    `json:"owner_id"`
	OwnerType string    `json:"owner_type"`
	Date      time.Time `json:"date"`
	Hour      int       `json:"hour"`

	TotalViews   int64 `json:"total_views"`
	ListingViews int64 `json:"listing_views"`
	ProfileViews int64 `json:"profile_views"`

	ImpressionsSearch   int64 `json:"impressions_search"`
	ImpressionsFeatured int64 `json:"impressions_featured"`
	ImpressionsSimilar  int64 `json:"impressions_similar"`
	TotalImpressions    int64 `json:"total_impressions"`

	LeadsCall     int64 `json:"leads_call"`
	LeadsWhatsapp int64 `json:"leads_whatsapp"`
	LeadsEmail    int64 `json:"leads_email"`
	LeadsForm     int64 `json:"leads_form"`
	TotalLeads    int64 `json:"total_leads"`

	Appointments int64 `json:"appointments"`
}

// AggregateStore is the durable aggregate table, keyed by
// owner+type+date+hour. Reads are range queries; writes are
// natural-key upserts and therefore safe to repeat.
type AggregateStore interface {
	SelectRange(ctx context.Context, ownerID, ownerType string, from, to time.Time) ([]AggregateRow, error)
	Upsert(ctx context.Context, row AggregateRow) error
	Ping(ctx context.Context) error
}

// StatsCache is the ephemeral stats tier. Implementations own TTL
// management; the engine only gets, sets, and invalidates. Get returns
// (value, found, error); callers treat any error as a miss.
type StatsCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Invalidate(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

// Config for the storage tiers.
type Config struct {
	// PostgreSQL config
	PostgresURL      string
	PostgresMaxConns int
	PostgresTimeout  time.Duration

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// Cache config
	CacheEnabled bool
	CacheTTL     map[string]time.Duration
	L1CacheSize  int // entries in the in-process LRU front
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		PostgresMaxConns: 20,
		PostgresTimeout:  10 * time.Second,
		RedisURL:         "redis://localhost:6379",
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		CacheEnabled:     true,
		CacheTTL: map[string]time.Duration{
			"stats":       5 * time.Minute,
			"attribution": 10 * time.Minute,
		},
		L1CacheSize: 512,
	}
}
