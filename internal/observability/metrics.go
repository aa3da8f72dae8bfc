package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the agent's Prometheus metrics.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	CredentialReloads  *prometheus.CounterVec
	CredentialPresent  prometheus.Gauge
	MissingCredentials prometheus.Counter
	RateLimitedTotal   *prometheus.CounterVec
	TokenErrors        *prometheus.CounterVec
}

// NewMetrics creates and registers all agent metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentauth_proxy_requests_total",
			Help: "Total requests forwarded to the server.",
		}, []string{"method", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentauth_proxy_request_duration_seconds",
			Help:    "Upstream request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		CredentialReloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentauth_credential_reloads_total",
			Help: "Credential file reloads by scheme and outcome.",
		}, []string{"scheme", "status"}),
		CredentialPresent: f.NewGauge(prometheus.GaugeOpts{
			Name: "agentauth_credential_present",
			Help: "1 when a usable credential is loaded, 0 otherwise.",
		}),
		MissingCredentials: f.NewCounter(prometheus.CounterOpts{
			Name: "agentauth_proxy_missing_credential_total",
			Help: "Requests rejected because no credential was configured.",
		}),
		RateLimitedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentauth_proxy_rate_limited_total",
			Help: "Requests rejected by rate limiting.",
		}, []string{"host"}),
		TokenErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentauth_token_errors_total",
			Help: "Failures obtaining a token for an outgoing request.",
		}, []string{"credential_type"}),
	}
}

// RecordRequest records one forwarded request. Safe on a nil receiver.
func (m *Metrics) RecordRequest(method string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(seconds)
}

// RecordReload records a credential reload and updates the presence gauge.
func (m *Metrics) RecordReload(scheme string, ok, present bool) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "error"
	}
	m.CredentialReloads.WithLabelValues(scheme, status).Inc()
	if present {
		m.CredentialPresent.Set(1)
	} else {
		m.CredentialPresent.Set(0)
	}
}
