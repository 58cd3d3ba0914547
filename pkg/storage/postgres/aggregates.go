// Package postgres implements the durable aggregate store and the Redis
// stats cache backing the analytics read path.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/propsight/propsight/pkg/storage"
)

// AggregateStore reads and upserts hourly aggregate rows in PostgreSQL.
type AggregateStore struct {
	db *sql.DB
}

// NewAggregateStore opens a connection pool and returns the store.
func NewAggregateStore(config storage.Config) (*AggregateStore, error) {
	db, err := sql.Open("postgres", config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(config.PostgresMaxConns)
	db.SetMaxIdleConns(config.PostgresMaxConns / 4)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), config.PostgresTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &AggregateStore{db: db}, nil
}

// NewAggregateStoreFromDB wraps an existing database handle.
func NewAggregateStoreFromDB(db *sql.DB) *AggregateStore {
	return &AggregateStore{db: db}
}

const aggregateColumns = `
	owner_id, owner_type, date, hour,
	total_views, listing_views, profile_views,
	impressions_search, impressions_featured, impressions_similar, total_impressions,
	leads_call, leads_whatsapp, leads_email, leads_form, total_leads,
	appointments`

// SelectRange returns aggregate rows for the owner and date range,
// ordered by (date, hour). An empty ownerID selects rows across all
// owners of the given type.
func (s *AggregateStore) SelectRange(ctx context.Context, ownerID, ownerType string, from, to time.Time) ([]storage.AggregateRow, error) {
	query := `
		SELECT` + aggregateColumns + `
		FROM daily_hourly_aggregates
		WHERE owner_type = $1
		  AND date >= $2::date
		  AND date <= $3::date
		  AND ($4 = '' OR owner_id = $4)
		ORDER BY date ASC, hour ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerType, from, to, ownerID)
	if err != nil {
		return nil, fmt.Errorf("aggregate range query failed: %w", err)
	}
	defer rows.Close()

	var result []storage.AggregateRow
	for rows.Next() {
		var r storage.AggregateRow
		if err := rows.Scan(
			&r.OwnerID, &r.OwnerType, &r.Date, &r.Hour,
			&r.TotalViews, &r.ListingViews, &r.ProfileViews,
			&r.ImpressionsSearch, &r.ImpressionsFeatured, &r.ImpressionsSimilar, &r.TotalImpressions,
			&r.LeadsCall, &r.LeadsWhatsapp, &r.LeadsEmail, &r.LeadsForm, &r.TotalLeads,
			&r.Appointments,
		); err != nil {
			return nil, fmt.Errorf("aggregate row scan failed: %w", err)
		}
		result = append(result, r)
	}

	return result, rows.Err()
}

// Upsert writes one aggregate row. The (owner_id, owner_type, date,
// hour) natural key makes repeated reconciles idempotent.
func (s *AggregateStore) Upsert(ctx context.Context, row storage.AggregateRow) error {
	query := `
		INSERT INTO daily_hourly_aggregates (` + aggregateColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (owner_id, owner_type, date, hour) DO UPDATE SET
			total_views = EXCLUDED.total_views,
			listing_views = EXCLUDED.listing_views,
			profile_views = EXCLUDED.profile_views,
			impressions_search = EXCLUDED.impressions_search,
			impressions_featured = EXCLUDED.impressions_featured,
			impressions_similar = EXCLUDED.impressions_similar,
			total_impressions = EXCLUDED.total_impressions,
			leads_call = EXCLUDED.leads_call,
			leads_whatsapp = EXCLUDED.leads_whatsapp,
			leads_email = EXCLUDED.leads_email,
			leads_form = EXCLUDED.leads_form,
			total_leads = EXCLUDED.total_leads,
			appointments = EXCLUDED.appointments
	`

	_, err := s.db.ExecContext(ctx, query,
		row.OwnerID, row.OwnerType, row.Date, row.Hour,
		row.TotalViews, row.ListingViews, row.ProfileViews,
		row.ImpressionsSearch, row.ImpressionsFeatured, row.ImpressionsSimilar, row.TotalImpressions,
		row.LeadsCall, row.LeadsWhatsapp, row.LeadsEmail, row.LeadsForm, row.TotalLeads,
		row.Appointments,
	)
	if err != nil {
		return fmt.Errorf("aggregate upsert failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *AggregateStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *AggregateStore) Close() error {
	return s.db.Close()
}
