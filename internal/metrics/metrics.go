// Package metrics exposes authentication, authorization and HTTP metrics in
// Prometheus format. Collectors live on a private registry so tests and
// multiple servers in one process do not collide.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-admin-auth/internal/rbac"
)

const namespace = "admin_auth"

// Login and refresh outcomes.
const (
	OutcomeSuccess      = "success"
	OutcomeInvalid      = "invalid_credentials"
	OutcomeForbidden    = "forbidden"
	OutcomeRateLimited  = "rate_limited"
	OutcomeUnauthorized = "unauthorized"
	OutcomeError        = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	authentications *prometheus.CounterVec
	decisions       *prometheus.CounterVec
	logins          *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	limiterErrors   *prometheus.CounterVec

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		authentications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authentications_total",
			Help:      "Bearer token authentications by result.",
		}, []string{"result"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_decisions_total",
			Help:      "Authorization decisions by action, resource and decision.",
		}, []string{"action", "resource", "decision"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Refresh token exchanges by outcome.",
		}, []string{"outcome"}),
		limiterErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limiter_errors_total",
			Help:      "Rate limiter backend errors; the request was let through.",
		}, []string{"scope"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.authentications,
		m.decisions,
		m.logins,
		m.refreshes,
		m.limiterErrors,
		m.httpInFlight,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveAuthentication(ok bool) {
	result := "rejected"
	if ok {
		result = "accepted"
	}
	m.authentications.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDecision(action rbac.Action, resource string, allowed bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.decisions.WithLabelValues(string(action), resourceLabel(resource), decision).Inc()
}

func (m *Metrics) ObserveLogin(outcome string) {
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRefresh(outcome string) {
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveLimiterError(scope string) {
	m.limiterErrors.WithLabelValues(scope).Inc()
}

// Instrument records request count, latency and in-flight requests. Routes
// are labelled by their chi pattern so path parameters do not explode
// cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := strconv.Itoa(sw.code)

		m.httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

// Only the base resource is used as a label; field names come from callers.
func resourceLabel(resource string) string {
	base, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(resource)), ".")
	if base == "" {
		return "unknown"
	}
	return base
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
