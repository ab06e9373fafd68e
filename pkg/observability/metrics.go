package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Decision outcomes recorded by the group gate
const (
	OutcomeAdmit        = "admit"
	OutcomeDeny         = "deny"
	OutcomeUndetermined = "undetermined"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal     *prometheus.CounterVec
	AuthzOwnershipChecks    *prometheus.HistogramVec
	DirectoryRequestsTotal  *prometheus.CounterVec
	DirectoryRequestSeconds *prometheus.HistogramVec

	// Store metrics
	StoreOperationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jds_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jds_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jds_authz_decisions_total",
				Help: "Group gate decisions by outcome",
			},
			[]string{"operation", "outcome", "reason"},
		),
		AuthzOwnershipChecks: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jds_authz_ownership_checks",
				Help:    "Number of group ownership lookups per decision",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
			},
			[]string{"operation"},
		),
		DirectoryRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jds_directory_requests_total",
				Help: "Directory API calls by operation and result",
			},
			[]string{"operation", "result"},
		),
		DirectoryRequestSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jds_directory_request_duration_seconds",
				Help:    "Directory API call duration in seconds, including paging",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jds_todo_store_operations_total",
				Help: "To-do store operations by backend, operation and result",
			},
			[]string{"backend", "operation", "result"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.AuthzOwnershipChecks,
		m.DirectoryRequestsTotal,
		m.DirectoryRequestSeconds,
		m.StoreOperationsTotal,
	)

	return m
}

// RecordDecision counts one group gate decision
func (m *Metrics) RecordDecision(operation, outcome, reason string, ownershipChecks int) {
	if m == nil {
		return
	}
	m.AuthzDecisionsTotal.WithLabelValues(operation, outcome, reason).Inc()
	if outcome != OutcomeUndetermined {
		m.AuthzOwnershipChecks.WithLabelValues(operation).Observe(float64(ownershipChecks))
	}
}

// ObserveDirectoryRequest records one directory call
func (m *Metrics) ObserveDirectoryRequest(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.DirectoryRequestsTotal.WithLabelValues(operation, result).Inc()
	m.DirectoryRequestSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordStoreOperation counts one to-do store operation
func (m *Metrics) RecordStoreOperation(backend, operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StoreOperationsTotal.WithLabelValues(backend, operation, result).Inc()
}

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// The route label uses the mux path template so IDs do not explode cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(router *mux.Router, gatherer prometheus.Gatherer) {
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
