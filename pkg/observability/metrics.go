package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Loader field metrics
	ValidationFailuresTotal *prometheus.CounterVec
	FieldWritesTotal        *prometheus.CounterVec
	ProjectionsTotal        *prometheus.CounterVec
	ProjectionRetryDepth    prometheus.Gauge

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge
	DBWaitCount        prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labrinth_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "labrinth_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		ValidationFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labrinth_loader_field_validation_failures_total",
				Help: "Rejected field values by field name",
			},
			[]string{"field"},
		),
		FieldWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labrinth_version_field_writes_total",
				Help: "Version field set operations by result",
			},
			[]string{"result"},
		),
		ProjectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labrinth_facet_projections_total",
				Help: "Facet document projections by result",
			},
			[]string{"result"},
		),
		ProjectionRetryDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "labrinth_facet_projection_retry_depth",
				Help: "Projects waiting for a projection retry",
			},
		),

		DBConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "labrinth_db_connections_open",
				Help: "Number of open database connections",
			},
		),
		DBConnectionsInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "labrinth_db_connections_in_use",
				Help: "Number of database connections in use",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "labrinth_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "labrinth_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ValidationFailuresTotal,
		m.FieldWritesTotal,
		m.ProjectionsTotal,
		m.ProjectionRetryDepth,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
		m.DBWaitCount,
	)

	return m
}

// RecordValidationFailure counts one rejected field
func (m *Metrics) RecordValidationFailure(field string) {
	if m == nil {
		return
	}
	m.ValidationFailuresTotal.WithLabelValues(field).Inc()
}

// RecordFieldWrite counts one set_fields call by result
func (m *Metrics) RecordFieldWrite(result string) {
	if m == nil {
		return
	}
	m.FieldWritesTotal.WithLabelValues(result).Inc()
}

// RecordProjection counts one projection attempt by result
func (m *Metrics) RecordProjection(result string) {
	if m == nil {
		return
	}
	m.ProjectionsTotal.WithLabelValues(result).Inc()
}

// SetProjectionRetryDepth reports the retry queue length
func (m *Metrics) SetProjectionRetryDepth(n int64) {
	if m == nil {
		return
	}
	m.ProjectionRetryDepth.Set(float64(n))
}

// RecordDBStats copies connection pool statistics into the gauges
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBWaitCount.Set(float64(stats.WaitCount))
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments requests, labelled by route template so
// ids in paths do not explode cardinality
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
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
func RegisterMetricsEndpoint(router *mux.Router, registry *prometheus.Registry) {
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
