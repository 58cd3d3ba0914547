// Package api provides the HTTP REST API server for the PropSight analytics engine.
//
// # Overview
//
// This package implements the HTTP layer that exposes owner-level listing
// analytics: time-series stats, attribution quality reports, and forced
// reconciliation of the durable aggregates. Every response uses the shared
// envelope from pkg/httputil.
//
// # Architecture
//
// The API is built on gorilla/mux. Handlers parse and validate input, hand
// off to the analytics service, and map engine errors onto HTTP statuses:
//
//   - invalid ranges, periods, and metrics are 400s
//   - upstream event API outages surface as 502s
//   - everything else is a 500
//
// # API Endpoints
//
//	GET    /api/v1/analytics/stats        - Time-series stats for an owner
//	GET    /api/v1/analytics/attribution  - Attribution quality over a window
//	POST   /api/v1/analytics/reconcile    - Recompute and upsert durable aggregates
//	GET    /healthz                       - Liveness probe
//	GET    /readyz                        - Readiness probe (pings dependencies)
//	GET    /metrics                       - Prometheus metrics
//
// # Usage Example
//
//	service := analytics.NewService(source, store, cache, logger)
//	server := api.NewServer(service, logger, metrics, health)
//	http.ListenAndServe(":8080", server.Handler())
//
// Stats query (omit owner_id to aggregate across all owners of the type):
//
//	GET /api/v1/analytics/stats?owner_id=U1&owner_type=developer&period=week&metric=views
//
// Explicit range with reconcile:
//
//	GET /api/v1/analytics/stats?owner_id=U1&owner_type=developer&date_from=2024-01-01&date_to=2024-01-31&reconcile=true
//
// # Related Packages
//
//   - pkg/analytics: Tiered aggregation engine behind the handlers
//   - pkg/httputil: Response envelope and middleware stack
//   - pkg/observability: Logging, metrics, and health checks
package api
