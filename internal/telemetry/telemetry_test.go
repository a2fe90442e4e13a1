package telemetry

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.MealMutation("add_meal", nil)
	m.SaveConflict()
	m.UpstreamCall("lookup", errors.New("boom"))
	m.Export("pdf")

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.MealMutation("add_meal", nil)
	m.MealMutation("add_meal", nil)
	m.MealMutation("add_meal", errors.New("conflict"))
	m.SaveConflict()

	if got := testutil.ToFloat64(m.mealMutations.WithLabelValues("add_meal", "ok")); got != 2 {
		t.Errorf("expected 2 successful mutations, got %v", got)
	}
	if got := testutil.ToFloat64(m.mealMutations.WithLabelValues("add_meal", "error")); got != 1 {
		t.Errorf("expected 1 failed mutation, got %v", got)
	}
	if got := testutil.ToFloat64(m.saveConflicts); got != 1 {
		t.Errorf("expected 1 conflict, got %v", got)
	}
}

func TestMiddlewareUsesPattern(t *testing.T) {
	m := New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/meal-plans/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	h := m.Middleware(mux)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/meal-plans/123", nil))

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "GET /v1/meal-plans/{id}", "404"))
	if got != 1 {
		t.Errorf("expected one request recorded under the route pattern, got %v", got)
	}

	w = httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "mealplanner_http_requests_total") {
		t.Error("expected exposition to contain the request counter")
	}
}
