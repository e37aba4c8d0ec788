package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())

	m.ObserveProxy("GET", 200, 10*time.Millisecond)
	m.ObserveProxy("GET", 200, 20*time.Millisecond)
	m.ObserveProxy("POST", 0, time.Millisecond)
	m.IncAppError("network", "NETWORK_TIMEOUT")
	m.IncRateLimited("/api/auth/login")
	m.IncAuthFailure("expired")

	require.Equal(t, 2.0, testutil.ToFloat64(m.proxyRequests.WithLabelValues("GET", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.proxyRequests.WithLabelValues("POST", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.appErrors.WithLabelValues("network", "NETWORK_TIMEOUT")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.rateLimited.WithLabelValues("/api/auth/login")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.authFailures.WithLabelValues("expired")))
}

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveProxy("GET", 500, time.Second)
		m.IncAppError("server", "SERVER_INTERNAL")
		m.IncRateLimited("/x")
		m.IncAuthFailure("no_token")
	})
}
