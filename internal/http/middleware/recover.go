package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	apierrors "github.com/pribylovaa/go-taskboard/internal/errors"
	logctx "github.com/pribylovaa/go-taskboard/internal/pkg/log"
)

// Recover превращает panic обработчика в 500 с общим сообщением.
// Причина и стек пишутся только в лог; http.ErrAbortHandler пробрасывается.
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				logctx.From(r.Context()).LogAttrs(r.Context(), slog.LevelError, "panic",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Any("reason", rec),
					slog.String("stack", string(debug.Stack())),
				)
				apierrors.WriteError(w, r, http.StatusInternalServerError, apierrors.MessageInternal)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
