package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-taskboard/internal/metrics"
)

func TestMemoryLimiter_Window(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter()
	l.now = func() time.Time { return now }

	ctx := context.Background()
	require.True(t, l.Allow(ctx, "k", 2, time.Minute))
	require.True(t, l.Allow(ctx, "k", 2, time.Minute))
	require.False(t, l.Allow(ctx, "k", 2, time.Minute))
	require.True(t, l.Allow(ctx, "other", 2, time.Minute))

	now = now.Add(time.Minute)
	require.True(t, l.Allow(ctx, "k", 2, time.Minute))
}

func TestRateLimit_Returns429(t *testing.T) {
	reg := prometheus.NewRegistry()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Chain(ok, RateLimit(NewMemoryLimiter(), ClientIP, 2, time.Minute, metrics.New(reg)))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, makeReq("/api/auth/login"))
		codes = append(codes, rr.Code)

		if rr.Code == http.StatusTooManyRequests {
			body := decodeFailure(t, rr)
			require.Equal(t, "Too many requests", body.Message)
			require.Equal(t, "60", rr.Header().Get("Retry-After"))
		}
	}

	require.Equal(t, []int{200, 200, 429}, codes)
	require.Equal(t, 1, testutil.CollectAndCount(reg, "taskboard_gateway_rate_limited_total"))
}

func TestRateLimit_EmptyKeyAndNilLimiter(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	h := Chain(ok, RateLimit(NewMemoryLimiter(), func(*http.Request) string { return "" }, 1, time.Minute, nil))
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, makeReq("/x"))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	h = Chain(ok, RateLimit(nil, ClientIP, 1, time.Minute, nil))
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, makeReq("/x"))
		require.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestClientIP_IgnoresForwardedHeader(t *testing.T) {
	req := makeReq("/")
	require.Equal(t, "127.0.0.1", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "10.0.0.1, 192.168.0.1")
	require.Equal(t, "127.0.0.1", ClientIP(req))

	req = makeReq("/")
	req.RemoteAddr = "weird"
	require.Equal(t, "weird", ClientIP(req))
}

func TestForwardedClientIP(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.1.0.0/16", "127.0.0.1"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		trusted bool
		remote  string
		xff     string
		want    string
	}{
		{name: "no trusted proxies", remote: "127.0.0.1:5000", xff: "1.2.3.4", want: "127.0.0.1"},
		{name: "untrusted peer header ignored", trusted: true, remote: "203.0.113.9:5000", xff: "1.2.3.4", want: "203.0.113.9"},
		{name: "trusted peer", trusted: true, remote: "127.0.0.1:5000", xff: "1.2.3.4", want: "1.2.3.4"},
		{name: "rightmost untrusted hop", trusted: true, remote: "127.0.0.1:5000", xff: "6.6.6.6, 1.2.3.4, 10.1.2.3", want: "1.2.3.4"},
		{name: "garbage hop", trusted: true, remote: "127.0.0.1:5000", xff: "1.2.3.4, nope", want: "127.0.0.1"},
		{name: "empty header", trusted: true, remote: "127.0.0.1:5000", want: "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var list []netip.Prefix
			if tt.trusted {
				list = trusted
			}

			req := makeReq("/api/auth/login")
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			require.Equal(t, tt.want, ForwardedClientIP(list)(req))
		})
	}
}

func TestParseTrustedProxies_Invalid(t *testing.T) {
	_, err := ParseTrustedProxies([]string{"10.0.0.0/99"})
	require.Error(t, err)

	_, err = ParseTrustedProxies([]string{"proxy.local"})
	require.Error(t, err)
}

func TestRateLimit_SpoofedForwardedForDoesNotResetLimit(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Chain(ok, RateLimit(NewMemoryLimiter(), ForwardedClientIP(nil), 2, time.Minute, nil))

	codes := make([]int, 0, 10)
	for i := 0; i < 10; i++ {
		req := makeReq("/api/auth/login")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}

	require.Equal(t, []int{200, 200, 429, 429, 429, 429, 429, 429, 429, 429}, codes)
}

func TestRedisLimiter_FailOpen(t *testing.T) {
	// Порт заведомо закрыт: Redis недоступен, лимитер обязан пропускать.
	l, err := NewRedisLimiterFromURL("redis://127.0.0.1:1/0")
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 3; i++ {
		require.True(t, l.Allow(context.Background(), "k", 1, time.Minute))
	}
	require.Error(t, l.Ping(context.Background()))
}

func TestRedisLimiter_BadURL(t *testing.T) {
	_, err := NewRedisLimiterFromURL("http://nope")
	require.Error(t, err)
}

func TestRedisLimiter_NilIsAllowAll(t *testing.T) {
	var l *RedisLimiter
	require.True(t, l.Allow(context.Background(), "k", 1, time.Minute))
	require.NoError(t, l.Ping(context.Background()))
	require.NoError(t, l.Close())
}

// Интеграционный прогон против живого Redis: TEST_REDIS_URL=redis://localhost:6379/15.
func TestRedisLimiter_Live(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	l, err := NewRedisLimiterFromURL(url)
	require.NoError(t, err)
	defer l.Close()

	key := "live-" + time.Now().Format(time.RFC3339Nano)
	require.True(t, l.Allow(context.Background(), key, 2, time.Minute))
	require.True(t, l.Allow(context.Background(), key, 2, time.Minute))
	require.False(t, l.Allow(context.Background(), key, 2, time.Minute))
}
