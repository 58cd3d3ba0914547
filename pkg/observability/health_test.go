package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(ctx context.Context) error {
	return f.err
}

func TestCheckAllHealthy(t *testing.T) {
	h := NewHealthChecker(map[string]Pinger{
		"postgres": &fakePinger{},
		"cache":    &fakePinger{},
	})

	status := h.Check(context.Background())
	if status.Status != StatusHealthy {
		t.Errorf("expected %s, got %s", StatusHealthy, status.Status)
	}
	if len(status.Dependencies) != 2 {
		t.Errorf("expected 2 dependencies, got %d", len(status.Dependencies))
	}
	for name, dep := range status.Dependencies {
		if dep.Status != StatusHealthy {
			t.Errorf("dependency %s: expected %s, got %s", name, StatusHealthy, dep.Status)
		}
	}
}

func TestCheckCacheFailureDegrades(t *testing.T) {
	h := NewHealthChecker(map[string]Pinger{
		"postgres": &fakePinger{},
		"cache":    &fakePinger{err: errors.New("connection refused")},
	})

	status := h.Check(context.Background())
	if status.Status != StatusDegraded {
		t.Errorf("expected %s, got %s", StatusDegraded, status.Status)
	}
	if status.Dependencies["cache"].Status != StatusUnhealthy {
		t.Errorf("expected cache marked %s, got %s", StatusUnhealthy, status.Dependencies["cache"].Status)
	}
	if status.Dependencies["cache"].Message == "" {
		t.Error("expected cache failure message to be recorded")
	}
}

func TestCheckStoreFailureUnhealthy(t *testing.T) {
	h := NewHealthChecker(map[string]Pinger{
		"postgres": &fakePinger{err: errors.New("no reachable servers")},
		"cache":    &fakePinger{},
	})

	status := h.Check(context.Background())
	if status.Status != StatusUnhealthy {
		t.Errorf("expected %s, got %s", StatusUnhealthy, status.Status)
	}
}

func TestCheckSkipsNilDependency(t *testing.T) {
	h := NewHealthChecker(map[string]Pinger{
		"postgres": &fakePinger{},
		"cache":    nil,
	})

	status := h.Check(context.Background())
	if status.Status != StatusHealthy {
		t.Errorf("expected %s, got %s", StatusHealthy, status.Status)
	}
	if _, ok := status.Dependencies["cache"]; ok {
		t.Error("nil dependency should not be reported")
	}
}

func TestLivenessAlwaysOK(t *testing.T) {
	h := NewHealthChecker(map[string]Pinger{
		"postgres": &fakePinger{err: errors.New("down")},
	})

	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadinessUnhealthyReturns503(t *testing.T) {
	h := NewHealthChecker(map[string]Pinger{
		"postgres": &fakePinger{err: errors.New("down")},
	})

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}

	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if status.Status != StatusUnhealthy {
		t.Errorf("expected %s, got %s", StatusUnhealthy, status.Status)
	}
}

func TestReadinessDegradedStillReady(t *testing.T) {
	h := NewHealthChecker(map[string]Pinger{
		"postgres": &fakePinger{},
		"cache":    &fakePinger{err: errors.New("down")},
	})

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
