package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/version"
)

var testBuild = version.Build{Version: "v1.0.0", Commit: "abc", Date: "2024-03-15"}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return response
}

func TestHealthHandler(t *testing.T) {
	handler := NewHandler(testBuild)
	handler.RegisterChecker("postgres", NewFuncChecker("postgres", func(context.Context) error { return nil }))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	response := decode(t, w)
	if response.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", response.Status)
	}
	if response.Build.Version != "v1.0.0" {
		t.Errorf("expected version v1.0.0, got %s", response.Build.Version)
	}
	if len(response.Checks) != 1 {
		t.Errorf("expected 1 check, got %d", len(response.Checks))
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	handler := NewHandler(testBuild)
	handler.RegisterChecker("postgres", NewFuncChecker("postgres", func(context.Context) error {
		return errors.New("connection refused")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
	response := decode(t, w)
	if response.Checks["postgres"].Message != "connection refused" {
		t.Errorf("unexpected check %+v", response.Checks["postgres"])
	}
}

func TestHealthHandler_DegradedStaysServing(t *testing.T) {
	handler := NewHandler(testBuild)
	handler.RegisterChecker("outbox", NewOutboxChecker(&stubStats{stats: domain.OutboxStats{PendingCount: 50}}, 10, 0))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("degraded must keep 200, got %d", w.Code)
	}
	if response := decode(t, w); response.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %s", response.Status)
	}

	ready := httptest.NewRecorder()
	handler.ReadinessHandler(ready, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if ready.Code != http.StatusOK {
		t.Fatalf("degraded must stay ready, got %d", ready.Code)
	}
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("expected body 'ok', got %s", w.Body.String())
	}
}

func TestReadinessHandler_NotReady(t *testing.T) {
	handler := NewHandler(testBuild)
	handler.RegisterChecker("kafka", NewFuncChecker("kafka", func(context.Context) error { return errors.New("no brokers") }))

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
	if w.Body.String() != "not ready" {
		t.Errorf("expected body 'not ready', got %s", w.Body.String())
	}
}

func TestFuncChecker_ReceivesDeadline(t *testing.T) {
	handler := NewHandler(testBuild)
	var hadDeadline bool
	handler.RegisterChecker("db", NewFuncChecker("db", func(ctx context.Context) error {
		_, hadDeadline = ctx.Deadline()
		return nil
	}))
	handler.Run(context.Background())
	if !hadDeadline {
		t.Fatal("checks must run under a timeout")
	}
}

func TestOutboxChecker(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		repo *stubStats
		want Status
	}{
		{name: "empty", repo: &stubStats{}, want: StatusHealthy},
		{name: "backlog over limit", repo: &stubStats{stats: domain.OutboxStats{PendingCount: 11, OldestPendingAt: now}}, want: StatusDegraded},
		{name: "stale message", repo: &stubStats{stats: domain.OutboxStats{PendingCount: 1, OldestPendingAt: now.Add(-10 * time.Minute)}}, want: StatusDegraded},
		{name: "fresh message", repo: &stubStats{stats: domain.OutboxStats{PendingCount: 1, OldestPendingAt: now.Add(-time.Second)}}, want: StatusHealthy},
		{name: "stats error", repo: &stubStats{err: errors.New("db down")}, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewOutboxChecker(tt.repo, 10, 5*time.Minute)
			checker.now = func() time.Time { return now }
			if got := checker.Check(context.Background()); got.Status != tt.want {
				t.Fatalf("expected %s, got %s (%s)", tt.want, got.Status, got.Message)
			}
		})
	}
}

type stubStats struct {
	domain.OutboxRepository
	stats domain.OutboxStats
	err   error
}

func (s *stubStats) Stats(context.Context) (domain.OutboxStats, error) {
	return s.stats, s.err
}
