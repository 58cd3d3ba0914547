// Package events retrieves raw behavioral events from the upstream
// tracking source and attributes them to listing owners.
package events

import "time"

// Event name vocabulary reported by the upstream source.
const (
	EventPropertyView      = "property_view"
	EventProfileView       = "profile_view"
	EventImpressionSearch  = "impression_search"
	EventImpressionFeature = "impression_featured"
	EventImpressionSimilar = "impression_similar"
	EventLeadCall          = "lead_call"
	EventLeadWhatsapp      = "lead_whatsapp"
	EventLeadEmail         = "lead_email"
	EventLeadForm          = "lead_form"
	EventAppointment       = "appointment_booked"
)

// AllEventNames returns the full vocabulary, suitable for an
// unfiltered upstream query.
func AllEventNames() []string {
	return []string{
		EventPropertyView,
		EventProfileView,
		EventImpressionSearch,
		EventImpressionFeature,
		EventImpressionSimilar,
		EventLeadCall,
		EventLeadWhatsapp,
		EventLeadEmail,
		EventLeadForm,
		EventAppointment,
	}
}

// RawEvent is one behavioral occurrence as reported by the upstream
// source. Events are immutable once fetched; the engine never writes
// them back.
type RawEvent struct {
	Name       string         `json:"event"`
	Timestamp  time.Time      `json:"timestamp"`
	DistinctID string         `json:"distinct_id"`
	PersonID   string         `json:"person_id,omitempty"`
	Properties map[string]any `json:"properties"`
}

// VisitorID returns the best available weak visitor identifier.
func (e RawEvent) VisitorID() string {
	if e.DistinctID != "" {
		return e.DistinctID
	}
	return e.PersonID
}

// Page is one page of events from the upstream query endpoint.
type Page struct {
	Events     []RawEvent `json:"events"`
	NextCursor string     `json:"next_cursor"`
	HasMore    bool       `json:"has_more"`
}

// FetchResult is the accumulated outcome of a pagination loop.
// Partial is set when at least one page succeeded but a later page
// failed; callers prefer partial data over a hard failure.
type FetchResult struct {
	Events  []RawEvent
	Pages   int
	Partial bool
}
