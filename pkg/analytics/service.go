package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/propsight/propsight/pkg/buckets"
	"github.com/propsight/propsight/pkg/events"
	"github.com/propsight/propsight/pkg/observability"
	"github.com/propsight/propsight/pkg/storage"
)

// EventSource is the upstream raw-event collaborator consumed by the
// recompute path.
type EventSource interface {
	FetchAll(ctx context.Context, start, end time.Time, names []string) (events.FetchResult, error)
}

// StatsRequest is one statistics query as received from the HTTP layer.
// Either Period or the DateFrom/DateTo pair must be set. An empty
// OwnerID aggregates across all owners of OwnerType.
type StatsRequest struct {
	OwnerID   string
	OwnerType string
	Metric    string
	Period    string
	DateFrom  string
	DateTo    string
	Reconcile bool
}

// Service orchestrates the tiered read path: cache, durable aggregates,
// then recompute from raw events. It is request-scoped and safe for
// concurrent use; requests coordinate only through the external tiers,
// whose writes are last-write-wins or natural-key upserts.
type Service struct {
	source  EventSource
	store   storage.AggregateStore
	cache   storage.StatsCache
	log     *observability.Logger
	metrics *observability.Metrics

	maxLookbackDays int
	now             func() time.Time
}

// NewService creates the tiered aggregate reader. Store and cache may
// be nil; the service then degrades to the remaining tiers.
func NewService(source EventSource, store storage.AggregateStore, cache storage.StatsCache, log *observability.Logger) *Service {
	if log == nil {
		log = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Service{
		source:          source,
		store:           store,
		cache:           cache,
		log:             log,
		maxLookbackDays: buckets.DefaultMaxLookbackDays,
		now:             time.Now,
	}
}

// SetMetrics attaches Prometheus metrics to the service.
func (s *Service) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

// SetMaxLookbackDays overrides the clamp window for explicit ranges.
func (s *Service) SetMaxLookbackDays(days int) {
	if days > 0 {
		s.maxLookbackDays = days
	}
}

// SetClock overrides the time source. Used by tests and by the
// reconciler when replaying historical windows.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// resolvedRange is the effective query window after period expansion
// and clamping.
type resolvedRange struct {
	from        time.Time
	to          time.Time
	granularity buckets.Granularity
	clamped     bool
}

func (s *Service) resolveRange(req StatsRequest) (resolvedRange, error) {
	if req.Period != "" {
		from, to, g, err := buckets.ForPeriod(req.Period, s.now())
		if err != nil {
			return resolvedRange{}, fmt.Errorf("%w: %v", buckets.ErrBadRange, err)
		}
		return resolvedRange{from: from, to: to, granularity: g}, nil
	}

	from, to, err := buckets.ParseRange(req.DateFrom, req.DateTo)
	if err != nil {
		return resolvedRange{}, err
	}

	// Granularity follows the span the caller asked for, even when the
	// effective query window is narrower after clamping.
	g := buckets.PlanRange(from, to)
	to, clamped := buckets.ClampRange(from, to, s.maxLookbackDays)

	// Query through the end of the final day.
	return resolvedRange{
		from:        from,
		to:          to.AddDate(0, 0, 1).Add(-time.Second),
		granularity: g,
		clamped:     clamped,
	}, nil
}

func cacheKey(req StatsRequest, rr resolvedRange) string {
	return fmt.Sprintf("stats:%s:%s:%s:%s:%s:%s",
		req.OwnerType, req.OwnerID, req.Metric,
		rr.from.Format(buckets.DateLayout), rr.to.Format(buckets.DateLayout),
		rr.granularity)
}

// GetStats runs the tiered read path for one request.
func (s *Service) GetStats(ctx context.Context, req StatsRequest) (Result, error) {
	if req.Metric == "" {
		req.Metric = MetricViews
	}
	if req.Metric != MetricViews && req.Metric != MetricImpressions {
		return Result{}, fmt.Errorf("%w: unknown metric %q", buckets.ErrBadRange, req.Metric)
	}

	rr, err := s.resolveRange(req)
	if err != nil {
		return Result{}, err
	}

	key := cacheKey(req, rr)
	log := s.log.WithFields(map[string]interface{}{
		"owner_id":   req.OwnerID,
		"owner_type": req.OwnerType,
		"metric":     req.Metric,
	})

	if !req.Reconcile {
		if res, ok := s.fromCache(ctx, key, log); ok {
			s.countTier("cache", "hit")
			return res, nil
		}

		if res, ok := s.fromStore(ctx, req, rr, key, log); ok {
			s.countTier("durable", "hit")
			return res, nil
		}
	}

	res, err := s.recompute(ctx, req, rr, key, log)
	if err != nil {
		s.countTier("recompute", "error")
		return Result{}, err
	}
	s.countTier("recompute", "ok")
	return res, nil
}

// fromCache attempts the cache tier. Any cache error is logged and
// treated as a miss; it never fails the request.
func (s *Service) fromCache(ctx context.Context, key string, log *observability.Logger) (Result, bool) {
	if s.cache == nil {
		return Result{}, false
	}

	data, found, err := s.cache.Get(ctx, key)
	if err != nil {
		log.WithError(err).Warn("Cache lookup failed, treating as miss")
		s.countCache("stats", false)
		return Result{}, false
	}
	if !found {
		s.countCache("stats", false)
		return Result{}, false
	}

	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		log.WithError(err).Warn("Corrupt cache entry, invalidating")
		s.cacheInvalidate(ctx, key)
		s.countCache("stats", false)
		return Result{}, false
	}

	s.countCache("stats", true)
	res.Cached = true
	return res, true
}

// fromStore attempts the durable tier. Store errors fall through to the
// recompute tier rather than failing the request.
func (s *Service) fromStore(ctx context.Context, req StatsRequest, rr resolvedRange, key string, log *observability.Logger) (Result, bool) {
	if s.store == nil {
		return Result{}, false
	}

	rows, err := s.store.SelectRange(ctx, req.OwnerID, req.OwnerType, rr.from, rr.to)
	if err != nil {
		log.WithError(err).Warn("Durable aggregate query failed, falling back to recompute")
		return Result{}, false
	}
	if len(rows) == 0 {
		return Result{}, false
	}

	start := time.Now()
	res := MergeRows(rows, rr.granularity, req.Metric)
	s.observeAggregation("durable", time.Since(start))

	s.finalize(&res, rr)
	s.cacheSet(ctx, key, res, log)
	return res, true
}

// recompute drives the full fetch/match/aggregate pipeline and writes
// back to the downstream tiers.
func (s *Service) recompute(ctx context.Context, req StatsRequest, rr resolvedRange, key string, log *observability.Logger) (Result, error) {
	fetched, err := s.source.FetchAll(ctx, rr.from, rr.to, events.AllEventNames())
	if err != nil {
		if s.metrics != nil {
			s.metrics.UpstreamErrorsTotal.Inc()
		}
		return Result{}, err
	}
	if s.metrics != nil {
		s.metrics.UpstreamPagesTotal.Add(float64(fetched.Pages))
	}

	matched, report := events.FilterByOwner(fetched.Events, req.OwnerID)
	if s.metrics != nil {
		s.metrics.AttributionGapsTotal.Add(float64(report.Gaps))
		s.metrics.EventsAggregatedTotal.Add(float64(len(matched)))
	}

	start := time.Now()
	res := Aggregate(matched, rr.granularity, req.Metric)
	s.observeAggregation("recompute", time.Since(start))

	s.finalize(&res, rr)
	if fetched.Partial {
		res.Warning = appendWarning(res.Warning, "partial upstream data, series may be incomplete")
		if s.metrics != nil {
			s.metrics.PartialResultsTotal.Inc()
		}
	}

	s.cacheSet(ctx, key, res, log)

	if req.Reconcile {
		if err := s.refreshDurable(ctx, req, matched, log); err != nil {
			s.countReconcile("error")
			res.Warning = appendWarning(res.Warning, "durable refresh incomplete")
		} else {
			s.countReconcile("ok")
		}
	}

	return res, nil
}

// refreshDurable upserts hour-level rows recomputed from raw events.
// Upserts are natural-key writes, so repeated reconciles are safe.
func (s *Service) refreshDurable(ctx context.Context, req StatsRequest, matched []events.RawEvent, log *observability.Logger) error {
	if s.store == nil {
		return nil
	}

	rows := RowsFromEvents(matched, req.OwnerID, req.OwnerType)
	var firstErr error
	for _, row := range rows {
		if err := s.store.Upsert(ctx, row); err != nil {
			log.WithError(err).Errorf("Upsert failed for %s hour %d", row.Date.Format(buckets.DateLayout), row.Hour)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.RowsUpsertedTotal.Inc()
		}
	}

	log.Infof("Reconciled %d aggregate rows", len(rows))
	return firstErr
}

// GetAttribution reports owner-match quality over a window. Gap events
// are excluded from the main series; this is the operational view onto
// how many were dropped.
func (s *Service) GetAttribution(ctx context.Context, ownerID string, dateFrom, dateTo string) (events.AttributionReport, error) {
	from, to, err := buckets.ParseRange(dateFrom, dateTo)
	if err != nil {
		return events.AttributionReport{}, err
	}
	to, clamped := buckets.ClampRange(from, to, s.maxLookbackDays)
	end := to.AddDate(0, 0, 1).Add(-time.Second)

	fetched, err := s.source.FetchAll(ctx, from, end, events.AllEventNames())
	if err != nil {
		return events.AttributionReport{}, err
	}

	_, report := events.FilterByOwner(fetched.Events, ownerID)
	report.DateFrom = from.Format(buckets.DateLayout)
	report.DateTo = to.Format(buckets.DateLayout)
	if clamped {
		report.Warning = fmt.Sprintf("date range clamped to %d days, effective range %s..%s",
			s.maxLookbackDays, report.DateFrom, report.DateTo)
	}
	return report, nil
}

// finalize stamps the effective range onto the result so callers can
// see when clamping changed the window they asked for.
func (s *Service) finalize(res *Result, rr resolvedRange) {
	res.DateFrom = rr.from.Format(buckets.DateLayout)
	res.DateTo = rr.to.Format(buckets.DateLayout)
	if rr.clamped {
		res.Warning = appendWarning(res.Warning,
			fmt.Sprintf("date range clamped to %d days, effective range %s..%s", s.maxLookbackDays, res.DateFrom, res.DateTo))
	}
}

func (s *Service) cacheSet(ctx context.Context, key string, res Result, log *observability.Logger) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data); err != nil {
		log.WithError(err).Debug("Best-effort cache write failed")
	}
}

func (s *Service) cacheInvalidate(ctx context.Context, keys ...string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		s.log.WithError(err).Debug("Cache invalidation failed")
	}
}

func (s *Service) countTier(tier, outcome string) {
	if s.metrics != nil {
		s.metrics.TierResultsTotal.WithLabelValues(tier, outcome).Inc()
	}
}

func (s *Service) countCache(kind string, hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.CacheHitsTotal.WithLabelValues(kind).Inc()
	} else {
		s.metrics.CacheMissesTotal.WithLabelValues(kind).Inc()
	}
}

func (s *Service) countReconcile(outcome string) {
	if s.metrics != nil {
		s.metrics.ReconcileRunsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) observeAggregation(path string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.AggregationDuration.WithLabelValues(path).Observe(d.Seconds())
	}
}

func appendWarning(existing, next string) string {
	if existing == "" {
		return next
	}
	return existing + "; " + next
}
