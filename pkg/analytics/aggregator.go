package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/propsight/propsight/pkg/buckets"
	"github.com/propsight/propsight/pkg/events"
	"github.com/propsight/propsight/pkg/storage"
)

// Metric families selectable in a stats request.
const (
	MetricViews       = "views"
	MetricImpressions = "impressions"
)

// TimeSeriesPoint is one bucket of the response series.
type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// Summary holds the scalar totals and derived rates computed once over
// the whole result, never per bucket.
type Summary struct {
	Total      int64   `json:"total"`
	Average    float64 `json:"average"`
	DataPoints int     `json:"dataPoints"`

	TotalViews       int64 `json:"totalViews"`
	ListingViews     int64 `json:"listingViews"`
	ProfileViews     int64 `json:"profileViews"`
	TotalImpressions int64 `json:"totalImpressions"`
	TotalLeads       int64 `json:"totalLeads"`
	Appointments     int64 `json:"appointments"`
	UniqueViewers    int64 `json:"uniqueViewers"`

	LeadConversionRate float64 `json:"leadConversionRate"`
	AppointmentRate    float64 `json:"appointmentRate"`
}

// Result is the assembled response for one aggregation pass.
type Result struct {
	GroupBy    string            `json:"groupBy"`
	TimeSeries []TimeSeriesPoint `json:"timeSeries"`
	Summary    Summary           `json:"summary"`
	Breakdown  map[string]int64  `json:"eventTypeBreakdown,omitempty"`
	Cached     bool              `json:"cached"`
	Warning    string            `json:"warning,omitempty"`
	DateFrom   string            `json:"date_from,omitempty"`
	DateTo     string            `json:"date_to,omitempty"`
}

// counters are the per-bucket and whole-pass metric counters. A
// view-family event increments both its specific counter and the
// generic total; impressions and leads behave the same way.
type counters struct {
	totalViews   int64
	listingViews int64
	profileViews int64

	impressionsSearch   int64
	impressionsFeatured int64
	impressionsSimilar  int64
	totalImpressions    int64

	leadsCall     int64
	leadsWhatsapp int64
	leadsEmail    int64
	leadsForm     int64
	totalLeads    int64

	appointments int64
}

// add classifies an event name into exactly one metric family.
// Unknown names are ignored.
func (c *counters) add(name string) bool {
	switch name {
	case events.EventPropertyView:
		c.listingViews++
		c.totalViews++
	case events.EventProfileView:
		c.profileViews++
		c.totalViews++
	case events.EventImpressionSearch:
		c.impressionsSearch++
		c.totalImpressions++
	case events.EventImpressionFeature:
		c.impressionsFeatured++
		c.totalImpressions++
	case events.EventImpressionSimilar:
		c.impressionsSimilar++
		c.totalImpressions++
	case events.EventLeadCall:
		c.leadsCall++
		c.totalLeads++
	case events.EventLeadWhatsapp:
		c.leadsWhatsapp++
		c.totalLeads++
	case events.EventLeadEmail:
		c.leadsEmail++
		c.totalLeads++
	case events.EventLeadForm:
		c.leadsForm++
		c.totalLeads++
	case events.EventAppointment:
		c.appointments++
	default:
		return false
	}
	return true
}

// addRow folds a durable aggregate row into the counters.
func (c *counters) addRow(r storage.AggregateRow) {
	c.totalViews += r.TotalViews
	c.listingViews += r.ListingViews
	c.profileViews += r.ProfileViews
	c.impressionsSearch += r.ImpressionsSearch
	c.impressionsFeatured += r.ImpressionsFeatured
	c.impressionsSimilar += r.ImpressionsSimilar
	c.totalImpressions += r.TotalImpressions
	c.leadsCall += r.LeadsCall
	c.leadsWhatsapp += r.LeadsWhatsapp
	c.leadsEmail += r.LeadsEmail
	c.leadsForm += r.LeadsForm
	c.totalLeads += r.TotalLeads
	c.appointments += r.Appointments
}

// valueFor returns the counter reported as the series value for the
// requested metric family.
func (c *counters) valueFor(metric string) int64 {
	if metric == MetricImpressions {
		return c.totalImpressions
	}
	return c.totalViews
}

type bucketAcc struct {
	bucket buckets.Bucket
	counts counters
}

// Aggregate folds matched events into per-bucket counters at the given
// granularity and assembles the ordered series for the requested
// metric. The pass is request-scoped pure data transformation: no
// state survives it.
func Aggregate(evs []events.RawEvent, g buckets.Granularity, metric string) Result {
	totals := counters{}
	perBucket := make(map[string]*bucketAcc)
	viewers := make(map[string]struct{})
	breakdown := make(map[string]int64)

	for _, e := range evs {
		if !totals.add(e.Name) {
			continue
		}

		b := buckets.Resolve(e.Timestamp, g)
		acc, ok := perBucket[b.Key]
		if !ok {
			acc = &bucketAcc{bucket: b}
			perBucket[b.Key] = acc
		}
		acc.counts.add(e.Name)
		breakdown[e.Name]++

		if (e.Name == events.EventPropertyView || e.Name == events.EventProfileView) && e.VisitorID() != "" {
			viewers[e.VisitorID()] = struct{}{}
		}
	}

	return assemble(totals, perBucket, breakdown, g, metric, int64(len(viewers)))
}

// MergeRows re-buckets durable aggregate rows into the response shape.
// Each row already is an hour bucket, so this is a relabeling pass
// rather than a full aggregation; unique-viewer counts are not
// recoverable from rows and stay zero.
func MergeRows(rows []storage.AggregateRow, g buckets.Granularity, metric string) Result {
	totals := counters{}
	perBucket := make(map[string]*bucketAcc)
	breakdown := make(map[string]int64)

	for _, r := range rows {
		ts := time.Date(r.Date.Year(), r.Date.Month(), r.Date.Day(), r.Hour, 0, 0, 0, time.UTC)
		b := buckets.Resolve(ts, g)
		acc, ok := perBucket[b.Key]
		if !ok {
			acc = &bucketAcc{bucket: b}
			perBucket[b.Key] = acc
		}

		acc.counts.addRow(r)
		totals.addRow(r)
	}

	return assemble(totals, perBucket, breakdown, g, metric, 0)
}

func assemble(totals counters, perBucket map[string]*bucketAcc, breakdown map[string]int64, g buckets.Granularity, metric string, uniqueViewers int64) Result {
	keys := make([]string, 0, len(perBucket))
	for k := range perBucket {
		keys = append(keys, k)
	}
	// Bucket keys sort lexicographically in chronological order for
	// every granularity by construction.
	sort.Strings(keys)

	series := make([]TimeSeriesPoint, 0, len(keys))
	var total int64
	for _, k := range keys {
		acc := perBucket[k]
		value := acc.counts.valueFor(metric)
		total += value
		series = append(series, TimeSeriesPoint{
			Date:  bucketDate(acc.bucket),
			Label: acc.bucket.Label,
			Value: value,
		})
	}

	summary := Summary{
		Total:            total,
		Average:          safeAverage(total, len(series)),
		DataPoints:       len(series),
		TotalViews:       totals.totalViews,
		ListingViews:     totals.listingViews,
		ProfileViews:     totals.profileViews,
		TotalImpressions: totals.totalImpressions,
		TotalLeads:       totals.totalLeads,
		Appointments:     totals.appointments,
		UniqueViewers:    uniqueViewers,

		LeadConversionRate: rate(totals.totalLeads, totals.totalViews),
		AppointmentRate:    rate(totals.appointments, totals.totalLeads),
	}

	if len(breakdown) == 0 {
		breakdown = nil
	}

	return Result{
		GroupBy:    g.String(),
		TimeSeries: series,
		Summary:    summary,
		Breakdown:  breakdown,
	}
}

func bucketDate(b buckets.Bucket) string {
	if b.Granularity == buckets.Month {
		return b.Date.Format("2006-01")
	}
	return b.Date.Format(buckets.DateLayout)
}

// safeAverage is 0 when the series is empty; never NaN or Inf.
func safeAverage(total int64, points int) float64 {
	if points == 0 {
		return 0
	}
	return round2(float64(total) / float64(points))
}

// rate is numerator/denominator*100 rounded to 2 decimals, defined as
// 0 when the denominator is 0.
func rate(numerator, denominator int64) float64 {
	if denominator == 0 {
		return 0
	}
	return round2(float64(numerator) / float64(denominator) * 100)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// RowsFromEvents folds matched events into hour-level aggregate rows
// for the durable store. Used by reconcile mode; row ordering follows
// the natural key so repeated runs produce identical writes.
func RowsFromEvents(evs []events.RawEvent, ownerID, ownerType string) []storage.AggregateRow {
	type rowKey struct {
		date string
		hour int
	}

	acc := make(map[rowKey]*counters)
	dates := make(map[rowKey]time.Time)

	for _, e := range evs {
		ts := e.Timestamp.UTC()
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		k := rowKey{date: day.Format(buckets.DateLayout), hour: ts.Hour()}

		c, ok := acc[k]
		if !ok {
			c = &counters{}
		}
		// Unknown event names must not leave an all-zero row behind.
		if !c.add(e.Name) {
			continue
		}
		if !ok {
			acc[k] = c
			dates[k] = day
		}
	}

	keys := make([]rowKey, 0, len(acc))
	for k := range acc {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		return keys[i].hour < keys[j].hour
	})

	rows := make([]storage.AggregateRow, 0, len(keys))
	for _, k := range keys {
		c := acc[k]
		rows = append(rows, storage.AggregateRow{
			OwnerID:             ownerID,
			OwnerType:           ownerType,
			Date:                dates[k],
			Hour:                k.hour,
			TotalViews:          c.totalViews,
			ListingViews:        c.listingViews,
			ProfileViews:        c.profileViews,
			ImpressionsSearch:   c.impressionsSearch,
			ImpressionsFeatured: c.impressionsFeatured,
			ImpressionsSimilar:  c.impressionsSimilar,
			TotalImpressions:    c.totalImpressions,
			LeadsCall:           c.leadsCall,
			LeadsWhatsapp:       c.leadsWhatsapp,
			LeadsEmail:          c.leadsEmail,
			LeadsForm:           c.leadsForm,
			TotalLeads:          c.totalLeads,
			Appointments:        c.appointments,
		})
	}

	return rows
}
