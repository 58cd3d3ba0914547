// Package storage defines the two external data tiers consulted by the
// analytics engine: the durable aggregate table and the stats cache.
//
// # Overview
//
// The engine reads precomputed hourly aggregates from PostgreSQL and
// caches assembled responses in Redis. Both tiers are treated as plain
// collaborators: the durable store is a key/value aggregate table keyed
// by (owner_id, owner_type, date, hour); the cache is get/set/invalidate
// with implementation-owned TTLs.
//
// # Consistency
//
// Durable writes are natural-key upserts, so repeated reconciles for the
// same owner and range are safe to interleave without coordination.
// Cache writes are last-write-wins and always best-effort: a cache
// failure is demoted to a miss and never fails a request.
//
// # Implementations
//
// The postgres subpackage provides the production backends:
//
//	store, err := postgres.NewAggregateStore(cfg)
//	cache, err := postgres.NewStatsCache(cfg)
package storage
