package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger is any dependency that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker probes the engine's external dependencies.
type HealthChecker struct {
	deps map[string]Pinger
}

// NewHealthChecker creates a health checker over named dependencies.
// A nil Pinger is skipped, so optional tiers can be passed through.
func NewHealthChecker(deps map[string]Pinger) *HealthChecker {
	return &HealthChecker{deps: deps}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Liveness always returns 200 while the process is serving.
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now().UTC(),
	})
}

// Readiness checks all dependencies. The cache tier degrading does not
// make the engine unready, because every cache failure is a miss.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}

// Check pings every registered dependency.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Dependencies: make(map[string]DependencyStatus),
	}

	for name, dep := range h.deps {
		if dep == nil {
			continue
		}

		start := time.Now()
		err := dep.Ping(ctx)
		latency := time.Since(start).Milliseconds()

		if err != nil {
			status.Dependencies[name] = DependencyStatus{
				Status:    StatusUnhealthy,
				Message:   err.Error(),
				LatencyMS: latency,
			}
			// The cache is optional; anything else failing is fatal.
			if name == "cache" {
				if status.Status == StatusHealthy {
					status.Status = StatusDegraded
				}
			} else {
				status.Status = StatusUnhealthy
			}
			continue
		}

		status.Dependencies[name] = DependencyStatus{
			Status:    StatusHealthy,
			LatencyMS: latency,
		}
	}

	return status
}
