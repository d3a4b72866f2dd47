// Package metrics holds the prometheus collectors exported on /metrics
package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Executor collects per-attempt backend metrics
type Executor struct {
	Attempts  *prometheus.CounterVec
	Latency   *prometheus.HistogramVec
	Backoff   *prometheus.HistogramVec
	Exhausted *prometheus.CounterVec
}

// NewExecutor registers the executor collectors on reg
func NewExecutor(namespace string, reg prometheus.Registerer) *Executor {
	f := promauto.With(reg)
	return &Executor{
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_attempts_total",
			Help:      "Backend attempts by operation and outcome (ok or failure kind).",
		}, []string{"operation", "outcome"}),
		Latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_attempt_duration_seconds",
			Help:      "Duration of a single backend attempt including sanitizing and validation.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation"}),
		Backoff: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_backoff_seconds",
			Help:      "Backoff delay waited before a retry.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}, []string{"operation"}),
		Exhausted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_retries_exhausted_total",
			Help:      "Calls that failed after using the whole attempt budget.",
		}, []string{"operation"}),
	}
}

// ObserveAttempt records one attempt. A nil receiver is a no-op.
func (m *Executor) ObserveAttempt(operation, outcome string, latency, backoff time.Duration) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(operation, outcome).Inc()
	m.Latency.WithLabelValues(operation).Observe(latency.Seconds())
	if backoff > 0 {
		m.Backoff.WithLabelValues(operation).Observe(backoff.Seconds())
	}
}

// ObserveExhausted counts a call that ran out of attempts
func (m *Executor) ObserveExhausted(operation string) {
	if m == nil {
		return
	}
	m.Exhausted.WithLabelValues(operation).Inc()
}

// HTTP collects request metrics for the API server
type HTTP struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewHTTP registers the HTTP collectors on reg
func NewHTTP(namespace string, reg prometheus.Registerer) *HTTP {
	f := promauto.With(reg)
	return &HTTP{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Middleware records every request under route
func (m *HTTP) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		m.Requests.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		m.Duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
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

// Database exports sql.DBStats gauges for the attempt journal
type Database struct {
	open     prometheus.Gauge
	inUse    prometheus.Gauge
	idle     prometheus.Gauge
	waitTime prometheus.Gauge
}

// NewDatabase registers the connection pool gauges on reg
func NewDatabase(namespace string, reg prometheus.Registerer) *Database {
	f := promauto.With(reg)
	gauge := func(name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Subsystem: "db", Name: name, Help: help})
	}
	return &Database{
		open:     gauge("open_connections", "Established connections, in use and idle."),
		inUse:    gauge("in_use_connections", "Connections currently in use."),
		idle:     gauge("idle_connections", "Idle connections."),
		waitTime: gauge("wait_duration_seconds", "Total time blocked waiting for a connection."),
	}
}

// UpdateDBStats copies the pool stats of db into the gauges
func (m *Database) UpdateDBStats(db *sql.DB) {
	s := db.Stats()
	m.open.Set(float64(s.OpenConnections))
	m.inUse.Set(float64(s.InUse))
	m.idle.Set(float64(s.Idle))
	m.waitTime.Set(s.WaitDuration.Seconds())
}
