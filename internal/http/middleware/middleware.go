// middleware - net/http-обёртки шлюза: восстановление после panic,
// X-Request-Id, журнал запросов, дедлайн, аутентификация и rate limit.
package middleware

import "net/http"

type Middleware func(http.Handler) http.Handler

// Chain: первый в списке - самый внешний.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}

	return h
}
