package observability

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Every recording method is safe on a
// nil receiver so engines can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Ledger metrics
	ConsumeTotal       *prometheus.CounterVec
	TicketsIssuedTotal prometheus.Counter

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec

	// Mail metrics
	MailSentTotal *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotr_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quotr_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ConsumeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotr_quota_consume_total",
				Help: "Quota consume attempts by result",
			},
			[]string{"result"},
		),
		TicketsIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quotr_tickets_issued_total",
				Help: "Total number of tickets issued",
			},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotr_authz_decisions_total",
				Help: "Authorization decisions by action and outcome",
			},
			[]string{"action", "decision"},
		),

		MailSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotr_mail_sent_total",
				Help: "Mail deliveries by kind and result",
			},
			[]string{"kind", "result"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotr_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotr_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ConsumeTotal,
		m.TicketsIssuedTotal,
		m.AuthzDecisionsTotal,
		m.MailSentTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// RegisterDBStats exposes connection pool statistics for db.
func (m *Metrics) RegisterDBStats(db *sql.DB, name string) {
	if m == nil {
		return
	}
	m.registry.MustRegister(collectors.NewDBStatsCollector(db, name))
}

func (m *Metrics) RecordDecision(action string, allowed bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.AuthzDecisionsTotal.WithLabelValues(action, decision).Inc()
}

// RecordConsume counts a consume attempt; result is ok, exhausted, or error.
func (m *Metrics) RecordConsume(result string) {
	if m == nil {
		return
	}
	m.ConsumeTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordTicketIssued() {
	if m == nil {
		return
	}
	m.TicketsIssuedTotal.Inc()
}

// RecordMail counts a delivery; kind is invitation or ticket, result is ok
// or error.
func (m *Metrics) RecordMail(kind, result string) {
	if m == nil {
		return
	}
	m.MailSentTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
