package proxy

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	logctx "github.com/pribylovaa/go-taskboard/internal/pkg/log"
)

// RoundTripperFunc - адаптер функции к http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// WithMetadata добавляет в исходящий запрос:
//   - X-Request-Id (из контекста, см. WithRequestID);
//   - User-Agent (если передан).
//
// Authorization здесь не трогаем: токен передаётся явно через Request.Token.
func WithMetadata(next http.RoundTripper, userAgent string) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}

	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		rid := RequestIDFrom(r.Context())
		if rid == "" && userAgent == "" {
			return next.RoundTrip(r)
		}

		r = r.Clone(r.Context())
		if rid != "" {
			r.Header.Set("X-Request-Id", rid)
		}
		if userAgent != "" {
			r.Header.Set("User-Agent", userAgent)
		}

		return next.RoundTrip(r)
	})
}

// WithLogging пишет одну запись "backend" на исходящий вызов:
// method, target, status (или err), dur. Тела и заголовки не логируются.
func WithLogging(next http.RoundTripper, base *slog.Logger) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}

	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		start := time.Now()

		l := base
		if l == nil {
			l = logctx.From(r.Context())
		}

		rid := r.Header.Get("X-Request-Id")
		if rid == "" {
			rid = uuid.NewString()
			r = r.Clone(r.Context())
			r.Header.Set("X-Request-Id", rid)
		}

		l = l.With(
			slog.String("request_id", rid),
			slog.String("method", r.Method),
			slog.String("target", r.URL.Path),
		)

		resp, err := next.RoundTrip(r)

		status := "error"
		if err == nil {
			status = strconv.Itoa(resp.StatusCode)
		}
		l.LogAttrs(r.Context(), slog.LevelInfo, "backend",
			slog.String("status", status),
			slog.Duration("dur", time.Since(start)),
		)

		return resp, err
	})
}
