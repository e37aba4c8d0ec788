// metrics - Prometheus-коллекторы шлюза.
// Все методы безопасны для nil-получателя: компоненты, собранные без метрик
// (тесты, CLI), просто ничего не пишут.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "taskboard_gateway"

type Metrics struct {
	proxyRequests *prometheus.CounterVec
	proxyDuration *prometheus.HistogramVec
	appErrors     *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
	authFailures  *prometheus.CounterVec
}

// New регистрирует коллекторы в reg. Для /metrics процесса - prometheus.DefaultRegisterer,
// в тестах - prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		proxyRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_requests_total",
			Help:      "Backend calls made by the proxy forwarder, by method and status.",
		}, []string{"method", "status"}),
		proxyDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proxy_request_duration_seconds",
			Help:      "Backend call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		appErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "app_errors_total",
			Help:      "Classified errors by type and code.",
		}, []string{"type", "code"}),
		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"path"}),
		authFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected authentication attempts by reason.",
		}, []string{"reason"}),
	}
}

// ObserveProxy фиксирует один вызов бэкенда. status=0 - сетевой сбой.
func (m *Metrics) ObserveProxy(method string, status int, dur time.Duration) {
	if m == nil {
		return
	}

	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}

	m.proxyRequests.WithLabelValues(method, label).Inc()
	m.proxyDuration.WithLabelValues(method).Observe(dur.Seconds())
}

func (m *Metrics) IncAppError(typ, code string) {
	if m == nil {
		return
	}
	m.appErrors.WithLabelValues(typ, code).Inc()
}

func (m *Metrics) IncRateLimited(path string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(path).Inc()
}

func (m *Metrics) IncAuthFailure(reason string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(reason).Inc()
}
