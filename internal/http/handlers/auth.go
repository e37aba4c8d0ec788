package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/pribylovaa/go-taskboard/internal/errors"
	"github.com/pribylovaa/go-taskboard/internal/http/middleware"
	logctx "github.com/pribylovaa/go-taskboard/internal/pkg/log"
	"github.com/pribylovaa/go-taskboard/internal/proxy"
)

// tokenPair - токены в ответе бэкенда. Встречаются на верхнем уровне,
// в data или в tokens.
type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func extractTokens(data []byte) tokenPair {
	var env struct {
		tokenPair
		Data   *tokenPair `json:"data"`
		Tokens *tokenPair `json:"tokens"`
	}
	if len(data) == 0 || json.Unmarshal(data, &env) != nil {
		return tokenPair{}
	}

	out := env.tokenPair
	for _, nested := range []*tokenPair{env.Data, env.Tokens} {
		if nested == nil {
			continue
		}
		if out.AccessToken == "" {
			out.AccessToken = nested.AccessToken
		}
		if out.RefreshToken == "" {
			out.RefreshToken = nested.RefreshToken
		}
	}

	return out
}

// Login - POST /api/auth/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	h.issueTokens(w, r, RouteConfig{LogContext: "auth.login", DefaultErrorMessage: "Login failed"},
		proxy.Config{Method: http.MethodPost, URL: "/auth/login", IncludeBody: true})
}

// Register - POST /api/auth/register.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	h.issueTokens(w, r, RouteConfig{LogContext: "auth.register", DefaultErrorMessage: "Registration failed"},
		proxy.Config{Method: http.MethodPost, URL: "/auth/register", IncludeBody: true})
}

// Refresh - POST /api/auth/refresh. Браузер тела обычно не шлёт:
// тогда refresh-токен берётся из cookie.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	rc := RouteConfig{LogContext: "auth.refresh", DefaultErrorMessage: "Token refresh failed"}
	pc := proxy.Config{Method: http.MethodPost, URL: "/auth/refresh", IncludeBody: true}

	body, err := readJSONBody(r)
	if err != nil {
		h.fail(w, r, rc, nil, err)
		return
	}
	if len(body) == 0 {
		c, cerr := r.Cookie(h.cookies.RefreshName)
		if cerr != nil || c.Value == "" {
			apierrors.WriteError(w, r, http.StatusUnauthorized, "Refresh token required")
			return
		}
		body, _ = json.Marshal(map[string]string{"refreshToken": c.Value})
	}

	resp, err := h.fwd.Forward(r.Context(), pc.URL, proxy.Request{Method: pc.Method, Body: body})
	if err != nil {
		h.fail(w, r, rc, nil, err)
		return
	}

	h.finishTokens(w, r, resp)
}

func (h *Handlers) issueTokens(w http.ResponseWriter, r *http.Request, rc RouteConfig, pc proxy.Config) {
	resp, err := h.forward(r, pc, "")
	if err != nil {
		h.fail(w, r, rc, nil, err)
		return
	}

	h.observe(r, rc, nil, resp)
	h.finishTokens(w, r, resp)
}

// finishTokens ставит cookie при успешном ответе и отдаёт тело как есть.
func (h *Handlers) finishTokens(w http.ResponseWriter, r *http.Request, resp *proxy.Response) {
	if resp.OK {
		pair := extractTokens(resp.Data)
		if pair.AccessToken != "" {
			h.setCookie(w, h.cookies.AccessName, pair.AccessToken, h.cookies.AccessTTL)
		}
		if pair.RefreshToken != "" {
			h.setCookie(w, h.cookies.RefreshName, pair.RefreshToken, h.cookies.RefreshTTL)
		}
		if pair.AccessToken == "" {
			logctx.From(r.Context()).Warn("auth_response_without_tokens",
				slog.String("path", r.URL.Path),
				slog.Int("status", resp.Status),
			)
		}
	}

	writeRaw(w, resp.Status, resp.Data)
}

// Logout - POST /api/auth/logout. Cookie очищаются всегда,
// даже если бэкенд недоступен: сессия браузера должна закончиться.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := middleware.AccessToken(r, h.cookies.AccessName)

	var body json.RawMessage
	if c, err := r.Cookie(h.cookies.RefreshName); err == nil && c.Value != "" {
		body, _ = json.Marshal(map[string]string{"refreshToken": c.Value})
	}

	resp, err := h.fwd.Forward(ctx, "/auth/logout", proxy.Request{
		Method: http.MethodPost,
		Body:   body,
		Token:  token,
	})

	h.clearCookies(w)

	if err != nil {
		logctx.From(ctx).Warn("logout_backend_failed", slog.String("err", err.Error()))
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out"})
		return
	}

	writeRaw(w, resp.Status, resp.Data)
}

// Me - GET /api/auth/me.
func (h *Handlers) Me() http.HandlerFunc {
	return h.Route(RouteConfig{
		RequireAuth:         true,
		LogContext:          "auth.me",
		DefaultErrorMessage: "Failed to fetch user",
	}, proxy.Config{Method: http.MethodGet, URL: "/auth/me"})
}

func (h *Handlers) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearCookies(w http.ResponseWriter) {
	for _, name := range []string{h.cookies.AccessName, h.cookies.RefreshName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   h.cookies.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
