package events

import (
	"strconv"
	"strings"
)

// ownerProperties are the candidate attribution fields checked in
// priority order. Raw events originate from several producers that
// historically used inconsistent field names; this list is the single
// point that absorbs that inconsistency.
var ownerProperties = []string{
	"lister_id",
	"developer_id",
	"agent_id",
	"agency_id",
	"owner_id",
	"user_id",
}

// MatchesOwner reports whether an event belongs to the given owner.
// An empty ownerID matches unconditionally (all-owners aggregation).
// Otherwise the candidate properties are compared case-insensitively
// in order, falling back to the event's visitor identifiers. An event
// with no owner-identifying field never matches a specific owner; that
// is a data-quality condition, not an error.
func MatchesOwner(e RawEvent, ownerID string) bool {
	if ownerID == "" {
		return true
	}

	for _, field := range ownerProperties {
		if v, ok := propertyString(e.Properties, field); ok {
			if strings.EqualFold(v, ownerID) {
				return true
			}
		}
	}

	// Last resort: the weak visitor identifiers.
	if strings.EqualFold(e.DistinctID, ownerID) || strings.EqualFold(e.PersonID, ownerID) {
		return true
	}
	return false
}

// HasOwnerField reports whether an event carries any recognizable
// owner-identifying property at all.
func HasOwnerField(e RawEvent) bool {
	for _, field := range ownerProperties {
		if _, ok := propertyString(e.Properties, field); ok {
			return true
		}
	}
	return false
}

// propertyString coerces an open-bag property value to a string. The
// upstream source emits owner ids as strings or JSON numbers depending
// on the producer.
func propertyString(props map[string]any, key string) (string, bool) {
	v, ok := props[key]
	if !ok || v == nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		if val == "" {
			return "", false
		}
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	default:
		return "", false
	}
}

// AttributionReport summarizes owner matching over one scan. Gap
// events carry no owner field at all; unmatched events carry one that
// names a different owner. DateFrom/DateTo hold the effective window
// actually scanned when the report covers a date-range query.
type AttributionReport struct {
	Scanned   int    `json:"scanned"`
	Matched   int    `json:"matched"`
	Unmatched int    `json:"unmatched"`
	Gaps      int    `json:"gaps"`
	DateFrom  string `json:"dateFrom,omitempty"`
	DateTo    string `json:"dateTo,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

// FilterByOwner returns the events attributed to ownerID along with a
// diagnostic report. Gap events are excluded silently from the matched
// set but counted for operational visibility.
func FilterByOwner(evs []RawEvent, ownerID string) ([]RawEvent, AttributionReport) {
	report := AttributionReport{Scanned: len(evs)}
	matched := make([]RawEvent, 0, len(evs))

	for _, e := range evs {
		if MatchesOwner(e, ownerID) {
			matched = append(matched, e)
			report.Matched++
			continue
		}
		if HasOwnerField(e) || e.VisitorID() != "" {
			report.Unmatched++
		} else {
			report.Gaps++
		}
	}

	return matched, report
}
