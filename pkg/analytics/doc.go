// Package analytics turns raw behavioral events into time-bucketed
// dashboard statistics for listing owners.
//
// # Overview
//
// The package has two halves. The aggregator is a pure fold: it
// classifies each event into one metric family (views, impressions,
// leads, appointments), accumulates per-bucket counters, and emits an
// ordered time series with scalar totals and derived rates. The
// service is the tiered read path around it:
//
//	cache hit      -> return cached result        (tag cached=true)
//	durable rows   -> re-bucket rows, fill cache  (tag cached=false)
//	recompute      -> fetch raw events, match owner, aggregate,
//	                  write through to cache (and durable store in
//	                  reconcile mode)
//
// # Consistency
//
// A cache-layer failure is always treated as a miss. A durable-store
// failure falls through to recompute when that tier is available.
// Partial upstream data is preferred over a hard failure once at least
// one page was read; the response carries a warning instead.
//
// # Reconcile
//
// reconcile=true bypasses both fast tiers, recomputes from raw events,
// and refreshes the durable hourly rows via natural-key upserts. It is
// the only operation that writes the durable store and is safe to run
// repeatedly.
//
// # Usage Example
//
//	svc := analytics.NewService(eventsClient, store, cache, logger)
//	res, err := svc.GetStats(ctx, analytics.StatsRequest{
//		OwnerID:   "DEV42",
//		OwnerType: "developer",
//		Metric:    analytics.MetricViews,
//		Period:    "month",
//	})
package analytics
