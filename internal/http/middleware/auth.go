package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/pribylovaa/go-taskboard/internal/errors"
	"github.com/pribylovaa/go-taskboard/internal/metrics"
	logctx "github.com/pribylovaa/go-taskboard/internal/pkg/log"
	"github.com/pribylovaa/go-taskboard/internal/pkg/redact"
	"github.com/pribylovaa/go-taskboard/internal/tokens"
)

// Причины отказа - уходят клиенту в message.
const (
	ReasonNoToken        = "Authentication required"
	ReasonInvalidToken   = "Invalid token"
	ReasonInvalidPayload = "Invalid token payload"
	ReasonExpired        = "Token expired"
)

// Verifier - проверка подписи токена (tokens.Codec).
type Verifier interface {
	Verify(token string) (*tokens.Payload, error)
}

// Verdict - решение аутентификации. При Success заполнен Identity,
// иначе Reason и Status.
type Verdict struct {
	Success  bool
	Identity *tokens.Payload
	Reason   string
	Status   int
}

func fail(reason string) Verdict {
	return Verdict{Reason: reason, Status: http.StatusUnauthorized}
}

// IdentityHandler - обработчик, которому нужна проверенная личность.
type IdentityHandler func(w http.ResponseWriter, r *http.Request, id *tokens.Payload)

type Authenticator struct {
	verifier Verifier
	cookie   string
	metrics  *metrics.Metrics
}

func NewAuthenticator(v Verifier, accessCookie string, m *metrics.Metrics) *Authenticator {
	if accessCookie == "" {
		accessCookie = "accessToken"
	}

	return &Authenticator{verifier: v, cookie: accessCookie, metrics: m}
}

// Authenticate извлекает токен (cookie, затем Authorization: Bearer)
// и проверяет его. Любой отказ - 401.
func (a *Authenticator) Authenticate(r *http.Request) Verdict {
	raw := a.extract(r)
	if raw == "" {
		a.metrics.IncAuthFailure("no_token")
		return fail(ReasonNoToken)
	}

	id, err := a.verifier.Verify(raw)
	switch {
	case errors.Is(err, tokens.ErrTokenExpired):
		// Подпись к этому моменту уже проверена: смотрим claims, чтобы
		// неполный токен получил свою причину независимо от срока.
		if p := tokens.DecodePayloadUnsafe(raw); !p.Complete() {
			a.metrics.IncAuthFailure("invalid_payload")
			return fail(ReasonInvalidPayload)
		}
		a.metrics.IncAuthFailure("expired")
		return fail(ReasonExpired)
	case err != nil:
		a.metrics.IncAuthFailure("invalid_token")
		return fail(ReasonInvalidToken)
	}

	if !id.Complete() {
		a.metrics.IncAuthFailure("invalid_payload")
		return fail(ReasonInvalidPayload)
	}

	return Verdict{Success: true, Identity: id, Status: http.StatusOK}
}

func (a *Authenticator) extract(r *http.Request) string {
	return AccessToken(r, a.cookie)
}

// AccessToken достаёт access-токен: сначала непустая cookie с именем cookie,
// затем заголовок Authorization: Bearer.
func AccessToken(r *http.Request, cookie string) string {
	if c, err := r.Cookie(cookie); err == nil && c.Value != "" {
		return c.Value
	}

	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(h string) string {
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}

	return strings.TrimSpace(h[len(prefix):])
}

// RequireAuth - обёртка для защищённых маршрутов. При отказе отвечает
// {success:false, message:reason} и next не вызывается.
func (a *Authenticator) RequireAuth(next IdentityHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := a.Authenticate(r)
		if !v.Success {
			logctx.From(r.Context()).Debug("auth_rejected",
				slog.String("path", r.URL.Path),
				slog.String("reason", v.Reason),
			)
			apierrors.WriteError(w, r, v.Status, v.Reason)
			return
		}

		ctx := context.WithValue(r.Context(), ctxIdentity, v.Identity)
		ctx = context.WithValue(ctx, ctxToken, a.extract(r))
		ctx = logctx.With(ctx,
			slog.String("user_id", v.Identity.SubjectID),
			slog.String("email", redact.Email(v.Identity.Email)),
		)

		next(w, r.WithContext(ctx), v.Identity)
	})
}

type ctxKey string

const (
	ctxIdentity ctxKey = "identity"
	ctxToken    ctxKey = "access_token"
)

// IdentityFrom - личность, проверенная RequireAuth.
func IdentityFrom(ctx context.Context) (*tokens.Payload, bool) {
	id, ok := ctx.Value(ctxIdentity).(*tokens.Payload)
	return id, ok && id != nil
}

// TokenFrom - сырой access-токен запроса; его форвардер передаёт бэкенду.
func TokenFrom(ctx context.Context) string {
	tok, _ := ctx.Value(ctxToken).(string)
	return tok
}
