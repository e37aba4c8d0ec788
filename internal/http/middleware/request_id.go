package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-taskboard/internal/proxy"
)

const (
	HeaderRequestID = "X-Request-Id"

	// maxRequestIDLen - более длинный входящий id заменяется своим,
	// чтобы не тащить произвольный мусор в логи и к бэкенду.
	maxRequestIDLen = 128
)

// RequestID берёт входящий X-Request-Id или выдаёт uuid, возвращает его
// клиенту и кладёт в запрос и контекст: оттуда его читают
// errors.WriteError и транспорт форвардера.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if id == "" || len(id) > maxRequestIDLen {
				id = uuid.NewString()
				r.Header.Set(HeaderRequestID, id)
			}
			w.Header().Set(HeaderRequestID, id)

			next.ServeHTTP(w, r.WithContext(proxy.WithRequestID(r.Context(), id)))
		})
	}
}
