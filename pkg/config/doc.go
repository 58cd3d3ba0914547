// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables
// with sensible defaults, then applies an optional YAML overlay named by
// PROPSIGHT_CONFIG_FILE. The overlay only overrides the keys it sets; it is
// mainly used to ship the reconciler's owner roster.
//
// # Configuration Structure
//
// Server settings:
//
//	PROPSIGHT_HOST="0.0.0.0"
//	PROPSIGHT_PORT="8080"
//	PROPSIGHT_HEALTH_PORT="9090"
//	PROPSIGHT_READ_TIMEOUT="15s"
//	PROPSIGHT_WRITE_TIMEOUT="30s"
//
// Storage settings:
//
//	PROPSIGHT_POSTGRES_URL="postgres://localhost/propsight"
//	PROPSIGHT_POSTGRES_MAX_CONNS="20"
//	PROPSIGHT_REDIS_URL="redis://localhost:6379"
//	PROPSIGHT_CACHE_ENABLED="true"
//	PROPSIGHT_CACHE_STATS_TTL="5m"
//	PROPSIGHT_CACHE_ATTRIBUTION_TTL="10m"
//
// Upstream event API settings:
//
//	PROPSIGHT_UPSTREAM_URL="https://data.mixpanel.com"
//	PROPSIGHT_UPSTREAM_API_SECRET="..."
//	PROPSIGHT_UPSTREAM_MAX_PAGES="50"
//	PROPSIGHT_UPSTREAM_PAGE_DELAY="150ms"
//
// Engine and reconciler settings:
//
//	PROPSIGHT_MAX_LOOKBACK_DAYS="60"
//	PROPSIGHT_RECONCILE_SCHEDULE="0 3 * * *"
//	PROPSIGHT_RECONCILE_LOOKBACK_DAYS="7"
//	PROPSIGHT_RECONCILE_PARALLELISM="4"
//
// Observability settings:
//
//	PROPSIGHT_LOG_LEVEL="info"  # debug, info, warn, error
//	PROPSIGHT_METRICS_ENABLED="true"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/events: Uses upstream configuration
//   - pkg/observability: Uses observability configuration
package config
