// Package metrics holds the prometheus counters of the authorization server.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "auth"

// Metrics groups the server's counters.
type Metrics struct {
	registry *prometheus.Registry

	tokensIssued      *prometheus.CounterVec
	exchangeFailures  *prometheus.CounterVec
	introspections    *prometheus.CounterVec
	otpVerifications  *prometheus.CounterVec
	rateLimitRejected *prometheus.CounterVec
}

// New registers the counters on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Access tokens issued, by grant type.",
		}, []string{"grant_type"}),
		exchangeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_exchange_failures_total",
			Help:      "Rejected token requests, by grant type and OAuth error code.",
		}, []string{"grant_type", "error"}),
		introspections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "introspections_total",
			Help:      "Token introspections, by result.",
		}, []string{"active"}),
		otpVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_verifications_total",
			Help:      "OTP and email token verifications, by outcome.",
		}, []string{"outcome"}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by a rate limiter, by endpoint.",
		}, []string{"endpoint"}),
	}
	m.registry.MustRegister(
		m.tokensIssued,
		m.exchangeFailures,
		m.introspections,
		m.otpVerifications,
		m.rateLimitRejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) TokenIssued(grantType string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(grantType).Inc()
}

func (m *Metrics) ExchangeFailed(grantType, code string) {
	if m == nil {
		return
	}
	m.exchangeFailures.WithLabelValues(grantType, code).Inc()
}

func (m *Metrics) Introspected(active bool) {
	if m == nil {
		return
	}
	label := "false"
	if active {
		label = "true"
	}
	m.introspections.WithLabelValues(label).Inc()
}

func (m *Metrics) OTPVerified(outcome string) {
	if m == nil {
		return
	}
	m.otpVerifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RateLimited(endpoint string) {
	if m == nil {
		return
	}
	m.rateLimitRejected.WithLabelValues(endpoint).Inc()
}
