package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-auth-core/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := metrics.New()
	m.TokenIssued("authorization_code")
	m.TokenIssued("authorization_code")
	m.ExchangeFailed("authorization_code", "invalid_grant")
	m.Introspected(true)
	m.Introspected(false)
	m.OTPVerified("valid")
	m.RateLimited("otp_send")

	n, err := testutil.GatherAndCount(m.Registry(), "auth_tokens_issued_total")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `auth_tokens_issued_total{grant_type="authorization_code"} 2`)
	require.Contains(t, rec.Body.String(), `auth_introspections_total{active="false"} 1`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	require.NotPanics(t, func() {
		m.TokenIssued("refresh_token")
		m.ExchangeFailed("refresh_token", "invalid_grant")
		m.Introspected(true)
		m.OTPVerified("invalid")
		m.RateLimited("magic_link_send")
	})
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
