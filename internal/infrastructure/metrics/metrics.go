package metrics

import (
	"crm-schema-migrator/internal/domain"
	"crm-schema-migrator/internal/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSuccess = "success"
	resultError   = "error"
	resultHit     = "hit"
	resultMiss    = "miss"
)

// Recorder is everything the service reports
type Recorder interface {
	ports.MigrationMetrics
	RecordHTTPRequest(method, route string, status int, seconds float64)
}

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Migration Metrics
	MigrationOutcomesTotal    *prometheus.CounterVec
	MigrationRateLimitedTotal *prometheus.CounterVec

	// Token Metrics
	TokenRefreshesTotal *prometheus.CounterVec

	// Catalog Metrics
	CatalogLookupsTotal *prometheus.CounterVec

	// HTTP Request Metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MigrationOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_migration_property_outcomes_total",
				Help: "Total number of migration candidates per outcome",
			},
			[]string{"object_type", "outcome"}, // created, already_exists, failed
		),
		MigrationRateLimitedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_migration_rate_limited_total",
				Help: "Total number of 429 answers received while creating properties",
			},
			[]string{"object_type"},
		),
		TokenRefreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_token_refreshes_total",
				Help: "Total number of refresh-token exchanges",
			},
			[]string{"result"}, // success, error
		),
		CatalogLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_catalog_lookups_total",
				Help: "Total number of property catalog lookups",
			},
			[]string{"result"}, // hit, miss
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// RecordOutcome records the final bucket of one migration candidate
func (m *Metrics) RecordOutcome(objectType string, outcome domain.Outcome) {
	m.MigrationOutcomesTotal.WithLabelValues(objectType, string(outcome)).Inc()
}

// RecordRateLimited records a 429 answer during property creation
func (m *Metrics) RecordRateLimited(objectType string) {
	m.MigrationRateLimitedTotal.WithLabelValues(objectType).Inc()
}

// RecordTokenRefresh records token refresh attempt
func (m *Metrics) RecordTokenRefresh(success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.TokenRefreshesTotal.WithLabelValues(result).Inc()
}

// RecordCatalogLookup records whether a catalog read was served from cache
func (m *Metrics) RecordCatalogLookup(hit bool) {
	result := resultHit
	if !hit {
		result = resultMiss
	}
	m.CatalogLookupsTotal.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records one served request
func (m *Metrics) RecordHTTPRequest(method, route string, status int, seconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, statusLabel(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
