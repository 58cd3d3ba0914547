package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propsight/propsight/pkg/buckets"
	"github.com/propsight/propsight/pkg/events"
	"github.com/propsight/propsight/pkg/storage"
)

type fakeSource struct {
	result events.FetchResult
	err    error
	calls  int
}

func (f *fakeSource) FetchAll(ctx context.Context, start, end time.Time, names []string) (events.FetchResult, error) {
	f.calls++
	if f.err != nil {
		return events.FetchResult{}, f.err
	}
	return f.result, nil
}

type fakeStore struct {
	mu        sync.Mutex
	rows      []storage.AggregateRow
	selectErr error
	upsertErr error
	upserted  []storage.AggregateRow
}

func (f *fakeStore) SelectRange(ctx context.Context, ownerID, ownerType string, from, to time.Time) ([]storage.AggregateRow, error) {
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	return f.rows, nil
}

func (f *fakeStore) Upsert(ctx context.Context, row storage.AggregateRow) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, row)
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	getErr  error
	setErr  error
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.entries[key]
	return val, ok, nil
}

func (f *fakeCache) Set(ctx context.Context, key string, value []byte) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = value
	f.sets++
	return nil
}

func (f *fakeCache) Invalidate(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.entries, k)
	}
	return nil
}

func (f *fakeCache) Ping(ctx context.Context) error { return nil }

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)
	}
}

func sourceWith(evs ...events.RawEvent) *fakeSource {
	return &fakeSource{result: events.FetchResult{Events: evs, Pages: 1}}
}

func viewAt(ts time.Time) events.RawEvent {
	return events.RawEvent{
		Name:       events.EventPropertyView,
		Timestamp:  ts,
		DistinctID: "visitor-1",
		Properties: map[string]any{"lister_id": "U1"},
	}
}

func TestGetStatsRecomputePath(t *testing.T) {
	source := sourceWith(viewAt(time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC)))
	cache := newFakeCache()

	svc := NewService(source, &fakeStore{}, cache, nil)
	svc.SetClock(fixedClock())

	res, err := svc.GetStats(context.Background(), StatsRequest{
		OwnerID:   "U1",
		OwnerType: "developer",
		Metric:    MetricViews,
		Period:    "today",
	})
	require.NoError(t, err)

	require.Len(t, res.TimeSeries, 1)
	assert.Equal(t, "2024-01-01", res.TimeSeries[0].Date)
	assert.Equal(t, "10:00", res.TimeSeries[0].Label)
	assert.Equal(t, int64(1), res.TimeSeries[0].Value)
	assert.Equal(t, int64(1), res.Summary.Total)
	assert.False(t, res.Cached)
	assert.Equal(t, 1, cache.sets, "recompute should write through to cache")
}

func TestGetStatsCacheHit(t *testing.T) {
	source := sourceWith(viewAt(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)))
	cache := newFakeCache()

	svc := NewService(source, &fakeStore{}, cache, nil)
	svc.SetClock(fixedClock())

	req := StatsRequest{OwnerID: "U1", OwnerType: "developer", Period: "today"}

	first, err := svc.GetStats(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, source.calls)

	second, err := svc.GetStats(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, source.calls, "cache hit must not touch upstream")
	assert.Equal(t, first.TimeSeries, second.TimeSeries)
}

func TestGetStatsDurablePath(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{rows: []storage.AggregateRow{
		{OwnerID: "U1", OwnerType: "developer", Date: day, Hour: 10, TotalViews: 7, ListingViews: 7},
	}}
	source := &fakeSource{err: errors.New("upstream must not be called")}
	cache := newFakeCache()

	svc := NewService(source, store, cache, nil)
	svc.SetClock(fixedClock())

	res, err := svc.GetStats(context.Background(), StatsRequest{
		OwnerID:   "U1",
		OwnerType: "developer",
		Period:    "today",
	})
	require.NoError(t, err)

	assert.Equal(t, 0, source.calls)
	require.Len(t, res.TimeSeries, 1)
	assert.Equal(t, int64(7), res.TimeSeries[0].Value)
	assert.False(t, res.Cached)
	assert.Equal(t, 1, cache.sets, "durable path should refill the cache")
}

func TestGetStatsCacheErrorFallsThrough(t *testing.T) {
	// A cache layer that always errors must never fail the request.
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{rows: []storage.AggregateRow{
		{OwnerID: "U1", OwnerType: "developer", Date: day, Hour: 9, TotalViews: 2, ListingViews: 2},
	}}
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	cache.setErr = errors.New("redis down")

	svc := NewService(sourceWith(), store, cache, nil)
	svc.SetClock(fixedClock())

	res, err := svc.GetStats(context.Background(), StatsRequest{
		OwnerID:   "U1",
		OwnerType: "developer",
		Period:    "today",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Summary.Total)
}

func TestGetStatsFullFallbackChain(t *testing.T) {
	// Cache errors, durable store errors: the recompute tier still
	// answers.
	source := sourceWith(viewAt(time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)))
	store := &fakeStore{selectErr: errors.New("pg down")}
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	cache.setErr = errors.New("redis down")

	svc := NewService(source, store, cache, nil)
	svc.SetClock(fixedClock())

	res, err := svc.GetStats(context.Background(), StatsRequest{
		OwnerID:   "U1",
		OwnerType: "developer",
		Period:    "today",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Summary.Total)
	assert.Equal(t, 1, source.calls)
}

func TestGetStatsReconcileBypassesFastTiers(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{rows: []storage.AggregateRow{
		{OwnerID: "U1", OwnerType: "developer", Date: day, Hour: 10, TotalViews: 99, ListingViews: 99},
	}}
	source := sourceWith(
		viewAt(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)),
		viewAt(time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)),
	)
	cache := newFakeCache()

	svc := NewService(source, store, cache, nil)
	svc.SetClock(fixedClock())

	res, err := svc.GetStats(context.Background(), StatsRequest{
		OwnerID:   "U1",
		OwnerType: "developer",
		Period:    "today",
		Reconcile: true,
	})
	require.NoError(t, err)

	// Fresh recompute, not the stale durable row.
	assert.Equal(t, int64(2), res.Summary.Total)
	assert.Equal(t, 1, source.calls)

	// Durable rows rewritten from raw events.
	require.Len(t, store.upserted, 1)
	assert.Equal(t, int64(2), store.upserted[0].TotalViews)
	assert.Equal(t, 10, store.upserted[0].Hour)
	assert.Equal(t, "developer", store.upserted[0].OwnerType)
}

func TestGetStatsReconcileIdempotent(t *testing.T) {
	source := sourceWith(viewAt(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)))
	store := &fakeStore{}
	svc := NewService(source, store, newFakeCache(), nil)
	svc.SetClock(fixedClock())

	req := StatsRequest{OwnerID: "U1", OwnerType: "developer", Period: "today", Reconcile: true}

	first, err := svc.GetStats(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.GetStats(context.Background(), req)
	require.NoError(t, err)

	firstJSON, _ := json.Marshal(first)
	secondJSON, _ := json.Marshal(second)
	assert.Equal(t, string(firstJSON), string(secondJSON))
	assert.Len(t, store.upserted, 2, "same natural key written twice via upsert")
	assert.Equal(t, store.upserted[0], store.upserted[1])
}

func TestGetStatsExplicitRangeClamped(t *testing.T) {
	source := sourceWith()
	svc := NewService(source, &fakeStore{}, newFakeCache(), nil)
	svc.SetClock(fixedClock())
	svc.SetMaxLookbackDays(60)

	// 400-day explicit range gets clamped to the lookback window.
	res, err := svc.GetStats(context.Background(), StatsRequest{
		OwnerID:   "U1",
		OwnerType: "developer",
		DateFrom:  "2023-01-01",
		DateTo:    "2024-02-05",
	})
	require.NoError(t, err)

	assert.Equal(t, "2023-01-01", res.DateFrom)
	assert.Equal(t, "2023-03-02", res.DateTo, "end date clamped to 60 days from start")
	assert.Equal(t, "month", res.GroupBy, "granularity follows the requested span, not the clamped one")
	assert.NotEmpty(t, res.Warning)
}

func TestGetStatsBadRange(t *testing.T) {
	svc := NewService(sourceWith(), &fakeStore{}, newFakeCache(), nil)

	_, err := svc.GetStats(context.Background(), StatsRequest{
		OwnerID:  "U1",
		DateFrom: "2024-02-01",
		DateTo:   "2024-01-01",
	})
	assert.ErrorIs(t, err, buckets.ErrBadRange)

	_, err = svc.GetStats(context.Background(), StatsRequest{
		OwnerID: "U1",
		Period:  "decade",
	})
	assert.ErrorIs(t, err, buckets.ErrBadRange)

	_, err = svc.GetStats(context.Background(), StatsRequest{
		OwnerID: "U1",
		Period:  "today",
		Metric:  "bogus",
	})
	assert.ErrorIs(t, err, buckets.ErrBadRange)
}

func TestGetStatsUpstreamFailurePropagates(t *testing.T) {
	source := &fakeSource{err: events.ErrNoUpstreamData}
	svc := NewService(source, &fakeStore{}, newFakeCache(), nil)
	svc.SetClock(fixedClock())

	_, err := svc.GetStats(context.Background(), StatsRequest{
		OwnerID:   "U1",
		OwnerType: "developer",
		Period:    "today",
	})
	assert.ErrorIs(t, err, events.ErrNoUpstreamData)
}

func TestGetStatsPartialUpstreamWarns(t *testing.T) {
	source := &fakeSource{result: events.FetchResult{
		Events:  []events.RawEvent{viewAt(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))},
		Pages:   3,
		Partial: true,
	}}
	svc := NewService(source, &fakeStore{}, newFakeCache(), nil)
	svc.SetClock(fixedClock())

	res, err := svc.GetStats(context.Background(), StatsRequest{
		OwnerID:   "U1",
		OwnerType: "developer",
		Period:    "today",
	})
	require.NoError(t, err)
	assert.Contains(t, res.Warning, "partial")
	assert.Equal(t, int64(1), res.Summary.Total)
}

func TestGetStatsOwnerFiltering(t *testing.T) {
	other := events.RawEvent{
		Name:       events.EventPropertyView,
		Timestamp:  time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		DistinctID: "visitor-9",
		Properties: map[string]any{"lister_id": "SOMEONE_ELSE"},
	}
	source := sourceWith(viewAt(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)), other)

	svc := NewService(source, &fakeStore{}, newFakeCache(), nil)
	svc.SetClock(fixedClock())

	res, err := svc.GetStats(context.Background(), StatsRequest{
		OwnerID:   "U1",
		OwnerType: "developer",
		Period:    "today",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Summary.Total, "foreign events must be excluded")
}

func TestGetAttribution(t *testing.T) {
	gap := events.RawEvent{
		Name:      events.EventLeadCall,
		Timestamp: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}
	source := sourceWith(viewAt(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)), gap)

	svc := NewService(source, &fakeStore{}, newFakeCache(), nil)
	svc.SetClock(fixedClock())

	report, err := svc.GetAttribution(context.Background(), "U1", "2024-01-01", "2024-01-01")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 1, report.Gaps)
	assert.Equal(t, "2024-01-01", report.DateFrom)
	assert.Equal(t, "2024-01-01", report.DateTo)
	assert.Empty(t, report.Warning)
}

func TestGetAttributionClampedRangeWarns(t *testing.T) {
	svc := NewService(sourceWith(), &fakeStore{}, newFakeCache(), nil)
	svc.SetClock(fixedClock())
	svc.SetMaxLookbackDays(60)

	report, err := svc.GetAttribution(context.Background(), "U1", "2023-01-01", "2024-02-05")
	require.NoError(t, err)
	assert.Equal(t, "2023-01-01", report.DateFrom)
	assert.Equal(t, "2023-03-02", report.DateTo, "end date clamped to 60 days from start")
	assert.Contains(t, report.Warning, "clamped")
}
