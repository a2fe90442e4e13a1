// Package telemetry holds the Prometheus collectors of the API.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every recorder becomes a no-op.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	mealMutations *prometheus.CounterVec
	saveConflicts prometheus.Counter
	upstreamCalls *prometheus.CounterVec
	exports       *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealplanner",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mealplanner",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		mealMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealplanner",
			Name:      "meal_plan_mutations_total",
			Help:      "Meal plan mutations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		saveConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mealplanner",
			Name:      "meal_plan_save_conflicts_total",
			Help:      "Optimistic concurrency conflicts while saving a meal plan.",
		}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealplanner",
			Name:      "recipe_source_calls_total",
			Help:      "Calls to the external recipe database by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealplanner",
			Name:      "grocery_exports_total",
			Help:      "Grocery list exports by format.",
		}, []string{"format"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.mealMutations,
		m.saveConflicts,
		m.upstreamCalls,
		m.exports,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) MealMutation(operation string, err error) {
	if m == nil {
		return
	}
	m.mealMutations.WithLabelValues(operation, outcome(err)).Inc()
}

func (m *Metrics) SaveConflict() {
	if m == nil {
		return
	}
	m.saveConflicts.Inc()
}

func (m *Metrics) UpstreamCall(endpoint string, err error) {
	if m == nil {
		return
	}
	m.upstreamCalls.WithLabelValues(endpoint, outcome(err)).Inc()
}

func (m *Metrics) Export(format string) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(format).Inc()
}

// Middleware records every request. Routes are the matched ServeMux pattern so
// path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(r.Method, route, rec.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
