package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/propsight/propsight/pkg/analytics"
	"github.com/propsight/propsight/pkg/buckets"
	"github.com/propsight/propsight/pkg/events"
	"github.com/propsight/propsight/pkg/httputil"
	"github.com/propsight/propsight/pkg/observability"
)

// StatsService is the analytics engine surface the API depends on.
type StatsService interface {
	GetStats(ctx context.Context, req analytics.StatsRequest) (analytics.Result, error)
	GetAttribution(ctx context.Context, ownerID, dateFrom, dateTo string) (events.AttributionReport, error)
}

// Server represents our API server
type Server struct {
	service StatsService
	router  *mux.Router
	log     *observability.Logger
	metrics *observability.Metrics
	health  *observability.HealthChecker
}

// NewServer creates a new API server
func NewServer(service StatsService, log *observability.Logger, metrics *observability.Metrics, health *observability.HealthChecker) *Server {
	if log == nil {
		log = observability.NewLogger(observability.InfoLevel, nil)
	}
	s := &Server{
		service: service,
		router:  mux.NewRouter(),
		log:     log,
		metrics: metrics,
		health:  health,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// Analytics routes
	s.router.HandleFunc("/api/v1/analytics/stats", s.getStats).Methods("GET")
	s.router.HandleFunc("/api/v1/analytics/attribution", s.getAttribution).Methods("GET")
	s.router.HandleFunc("/api/v1/analytics/reconcile", s.postReconcile).Methods("POST")

	// Health and metrics routes
	if s.health != nil {
		s.router.HandleFunc("/healthz", s.health.Liveness).Methods("GET")
		s.router.HandleFunc("/readyz", s.health.Readiness).Methods("GET")
	}
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
}

// Handler returns the router wrapped in the standard middleware stack.
func (s *Server) Handler() http.Handler {
	return httputil.Chain(
		httputil.RequestIDMiddleware(s.log),
		httputil.LoggingMiddleware(s.log, s.metrics),
		httputil.RecoveryMiddleware(s.log),
		httputil.CORSMiddleware([]string{"*"}),
		httputil.MaxBytesMiddleware(1<<20),
	)(s.router)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// getStats handles GET /api/v1/analytics/stats
// Query params:
//   - owner_id: account whose events to aggregate; empty aggregates
//     across all owners of owner_type
//   - owner_type: lister, developer, agent, agency (required)
//   - metric: views or impressions - default: views
//   - period: today, week, month, year (mutually exclusive with dates)
//   - date_from, date_to: explicit range (YYYY-MM-DD)
//   - reconcile: bypass fast tiers and rewrite durable aggregates
func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	ownerID := httputil.ParseQueryString(r, "owner_id", "")
	ownerType := httputil.ParseQueryString(r, "owner_type", "")
	if !httputil.RequireNonEmpty(w, ownerType, "owner_type") {
		return
	}
	if !httputil.RequireOneOf(w, ownerType, "owner_type", "lister", "developer", "agent", "agency") {
		return
	}

	reconcile, err := httputil.ParseQueryBool(r, "reconcile", false)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	req := analytics.StatsRequest{
		OwnerID:   ownerID,
		OwnerType: ownerType,
		Metric:    httputil.ParseQueryString(r, "metric", ""),
		Period:    httputil.ParseQueryString(r, "period", ""),
		DateFrom:  httputil.ParseQueryString(r, "date_from", ""),
		DateTo:    httputil.ParseQueryString(r, "date_to", ""),
		Reconcile: reconcile,
	}

	ctx := observability.WithOwnerID(r.Context(), ownerID)
	result, err := s.service.GetStats(ctx, req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if result.Warning != "" {
		httputil.WriteSuccessWarning(w, result, result.Warning)
		return
	}
	httputil.WriteSuccess(w, result)
}

// getAttribution handles GET /api/v1/analytics/attribution
// Reports how many upstream events in the window could be attributed to
// the owner, and how many carried no attribution fields at all. An
// empty owner_id reports attribution quality across all owners.
func (s *Server) getAttribution(w http.ResponseWriter, r *http.Request) {
	ownerID := httputil.ParseQueryString(r, "owner_id", "")
	dateFrom := httputil.ParseQueryString(r, "date_from", "")
	dateTo := httputil.ParseQueryString(r, "date_to", "")
	if !httputil.RequireNonEmpty(w, dateFrom, "date_from") {
		return
	}
	if !httputil.RequireNonEmpty(w, dateTo, "date_to") {
		return
	}

	ctx := observability.WithOwnerID(r.Context(), ownerID)
	report, err := s.service.GetAttribution(ctx, ownerID, dateFrom, dateTo)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if report.Warning != "" {
		httputil.WriteSuccessWarning(w, report, report.Warning)
		return
	}
	httputil.WriteSuccess(w, report)
}

// postReconcile handles POST /api/v1/analytics/reconcile
// Forces a recompute from raw events and writes the hourly aggregates
// back to the durable store. Safe to repeat; writes are upserts.
func (s *Server) postReconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.OwnerID, "owner_id") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.OwnerType, "owner_type") {
		return
	}

	ctx := observability.WithOwnerID(r.Context(), req.OwnerID)
	result, err := s.service.GetStats(ctx, analytics.StatsRequest{
		OwnerID:   req.OwnerID,
		OwnerType: req.OwnerType,
		Period:    req.Period,
		DateFrom:  req.DateFrom,
		DateTo:    req.DateTo,
		Reconcile: true,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, ReconcileResponse{
		OwnerID:    req.OwnerID,
		OwnerType:  req.OwnerType,
		DateFrom:   result.DateFrom,
		DateTo:     result.DateTo,
		DataPoints: result.Summary.DataPoints,
		Total:      result.Summary.Total,
		Warning:    result.Warning,
	})
}

// writeServiceError maps engine errors onto HTTP statuses. Bad input is
// the caller's fault, upstream outages are a gateway problem, anything
// else is ours.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, buckets.ErrBadRange):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, events.ErrNoUpstreamData):
		observability.FromContext(r.Context()).WithError(err).Error("upstream event API unavailable")
		httputil.WriteBadGateway(w, "upstream event data unavailable")
	default:
		observability.FromContext(r.Context()).WithError(err).Error("stats request failed")
		httputil.WriteInternalError(w, err)
	}
}
