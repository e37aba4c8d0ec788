package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	apierrors "github.com/pribylovaa/go-taskboard/internal/errors"
	"github.com/pribylovaa/go-taskboard/internal/metrics"
)

const MessageTooManyRequests = "Too many requests"

// Limiter решает, пропускать ли очередной запрос с ключом key.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) bool
}

// MemoryLimiter - фиксированное окно в памяти процесса.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rateBucket
	now     func() time.Time
}

type rateBucket struct {
	count     int
	windowEnd time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{buckets: make(map[string]*rateBucket), now: time.Now}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || !now.Before(b.windowEnd) {
		l.sweep(now)
		l.buckets[key] = &rateBucket{count: 1, windowEnd: now.Add(window)}
		return true
	}
	if b.count >= limit {
		return false
	}

	b.count++
	return true
}

// sweep убирает истёкшие окна, чтобы карта не росла бесконечно.
func (l *MemoryLimiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if !now.Before(b.windowEnd) {
			delete(l.buckets, k)
		}
	}
}

// RateLimit отклоняет запросы сверх limit за window с ответом 429.
// Пустой ключ или nil limiter - пропуск без учёта.
func RateLimit(limiter Limiter, keyFn func(*http.Request) string, limit int, window time.Duration, m *metrics.Metrics) Middleware {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 || window <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(r.Context(), r.URL.Path+"|"+key, limit, window) {
				m.IncRateLimited(r.URL.Path)
				w.Header().Set("Retry-After", retryAfter(window))
				apierrors.WriteError(w, r, http.StatusTooManyRequests, MessageTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func retryAfter(window time.Duration) string {
	secs := int(window.Seconds())
	if secs < 1 {
		secs = 1
	}

	return strconv.Itoa(secs)
}

// ClientIP - адрес соединения (RemoteAddr без порта). Заголовкам клиента
// не доверяет: их может подставить кто угодно.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ParseTrustedProxies разбирает список адресов и CIDR доверенных прокси.
func ParseTrustedProxies(list []string) ([]netip.Prefix, error) {
	const op = "middleware.ParseTrustedProxies"

	out := make([]netip.Prefix, 0, len(list))
	for _, raw := range list {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			out = append(out, p.Masked())
			continue
		}

		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return out, nil
}

// ForwardedClientIP - ключ лимита за балансировщиком. X-Forwarded-For
// учитывается, только если соединение пришло от доверенного прокси;
// берётся крайний справа адрес, не принадлежащий доверенным.
// Пустой trusted - то же, что ClientIP.
func ForwardedClientIP(trusted []netip.Prefix) func(*http.Request) string {
	isTrusted := func(s string) bool {
		addr, err := netip.ParseAddr(strings.TrimSpace(s))
		if err != nil {
			return false
		}
		addr = addr.Unmap()
		for _, p := range trusted {
			if p.Contains(addr) {
				return true
			}
		}
		return false
	}

	return func(r *http.Request) string {
		remote := ClientIP(r)
		if len(trusted) == 0 || !isTrusted(remote) {
			return remote
		}

		hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if _, err := netip.ParseAddr(hop); err != nil {
				// Мусор в цепочке: дальше неё доверять нельзя.
				return remote
			}
			if !isTrusted(hop) {
				return hop
			}
		}

		return remote
	}
}
