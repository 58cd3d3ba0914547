package api

// ReconcileRequest asks for an owner's aggregates to be recomputed from
// raw events and written back to the durable store.
type ReconcileRequest struct {
	OwnerID   string `json:"owner_id"`
	OwnerType string `json:"owner_type"`
	DateFrom  string `json:"date_from,omitempty"`
	DateTo    string `json:"date_to,omitempty"`
	Period    string `json:"period,omitempty"`
}

// ReconcileResponse reports the outcome of a reconcile run.
type ReconcileResponse struct {
	OwnerID    string `json:"owner_id"`
	OwnerType  string `json:"owner_type"`
	DateFrom   string `json:"date_from"`
	DateTo     string `json:"date_to"`
	DataPoints int    `json:"data_points"`
	Total      int64  `json:"total"`
	Warning    string `json:"warning,omitempty"`
}
