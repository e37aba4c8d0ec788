package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/pribylovaa/go-taskboard/internal/errors"
	"github.com/pribylovaa/go-taskboard/internal/http/middleware"
	logctx "github.com/pribylovaa/go-taskboard/internal/pkg/log"
	"github.com/pribylovaa/go-taskboard/internal/proxy"
	"github.com/pribylovaa/go-taskboard/internal/tokens"
)

// maxRequestBody - предел тела запроса браузера.
const maxRequestBody = 1 << 20

var errInvalidBody = errors.New("request body is not valid JSON")

// RouteConfig - поведение маршрута поверх proxy.Config.
type RouteConfig struct {
	RequireAuth bool
	// LogContext - имя маршрута в логах и AppError.Context.Component.
	LogContext string
	// DefaultErrorMessage - единственное, что клиент увидит при сбое.
	DefaultErrorMessage string
}

// Route строит обработчик:
//  1. при RequireAuth - аутентификация, отказ отдаётся как есть;
//  2. тело читается только если pc.IncludeBody и метод не GET;
//  3. параметры пути chi подставляются в шаблон;
//  4. вызов бэкенда с токеном запроса;
//  5. статус и тело бэкенда - без изменений;
//  6. любой сбой - 500 с DefaultErrorMessage, детали только в лог.
func (h *Handlers) Route(rc RouteConfig, pc proxy.Config) http.HandlerFunc {
	if rc.DefaultErrorMessage == "" {
		rc.DefaultErrorMessage = apierrors.MessageInternal
	}

	serve := func(w http.ResponseWriter, r *http.Request, id *tokens.Payload) {
		resp, err := h.forward(r, pc, middleware.TokenFrom(r.Context()))
		if err != nil {
			h.fail(w, r, rc, id, err)
			return
		}

		h.observe(r, rc, id, resp)
		writeRaw(w, resp.Status, resp.Data)
	}

	if rc.RequireAuth {
		return h.auth.RequireAuth(serve).ServeHTTP
	}

	return func(w http.ResponseWriter, r *http.Request) {
		serve(w, r, nil)
	}
}

func (h *Handlers) forward(r *http.Request, pc proxy.Config, token string) (*proxy.Response, error) {
	const op = "handlers.forward"

	method := pc.Method
	if method == "" {
		method = r.Method
	}

	var body json.RawMessage
	if pc.IncludeBody && method != http.MethodGet {
		b, err := readJSONBody(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		body = b
	}

	return h.fwd.Forward(r.Context(), pc.URL, proxy.Request{
		Method: method,
		Body:   body,
		Token:  token,
		Params: routeParams(r),
		Query:  r.URL.Query(),
	})
}

func readJSONBody(r *http.Request) (json.RawMessage, error) {
	if r.Body == nil {
		return nil, nil
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, errInvalidBody
	}

	return raw, nil
}

// routeParams - параметры пути из маршрута chi.
func routeParams(r *http.Request) map[string]string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || len(rctx.URLParams.Keys) == 0 {
		return nil
	}

	out := make(map[string]string, len(rctx.URLParams.Keys))
	for i, k := range rctx.URLParams.Keys {
		if k == "*" || i >= len(rctx.URLParams.Values) {
			continue
		}
		out[k] = rctx.URLParams.Values[i]
	}

	return out
}

func errorContext(r *http.Request, rc RouteConfig, id *tokens.Payload) apierrors.ErrorContext {
	ec := apierrors.ErrorContext{
		URL:       r.URL.Path,
		Method:    r.Method,
		Component: rc.LogContext,
	}
	if id != nil {
		ec.Identity = id.SubjectID
	}

	return ec
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, rc RouteConfig, id *tokens.Payload, err error) {
	ctx := r.Context()

	logctx.From(ctx).LogAttrs(ctx, slog.LevelError, "route_failed",
		slog.String("route", rc.LogContext),
		slog.String("err", err.Error()),
	)
	h.classifier.ClassifyFromAPIResponse(ctx, apierrors.FromError(err), errorContext(r, rc, id))

	apierrors.WriteError(w, r, http.StatusInternalServerError, rc.DefaultErrorMessage)
}

// observe классифицирует серверные ответы бэкенда: клиенту они уходят
// без изменений, но попадают в лог, метрики и очередь ошибок.
func (h *Handlers) observe(r *http.Request, rc RouteConfig, id *tokens.Payload, resp *proxy.Response) {
	if resp.Status < http.StatusInternalServerError {
		return
	}

	h.classifier.ClassifyFromAPIResponse(r.Context(), apierrors.RawFailure{
		Status:  resp.Status,
		Message: backendMessage(resp.Data),
	}, errorContext(r, rc, id))
}

func backendMessage(data []byte) string {
	var env struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if len(data) == 0 || json.Unmarshal(data, &env) != nil {
		return ""
	}
	if env.Message != "" {
		return env.Message
	}

	return env.Error
}
