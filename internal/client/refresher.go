package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apierrors "github.com/pribylovaa/go-taskboard/internal/errors"
)

// Refresher обменивает refresh-токен на новую пару.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// HTTPRefresher - POST {refreshToken} на эндпойнт обновления шлюза.
type HTTPRefresher struct {
	url    string
	client *http.Client
}

func NewHTTPRefresher(baseURL string, client *http.Client) *HTTPRefresher {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPRefresher{
		url:    strings.TrimRight(baseURL, "/") + RefreshPath,
		client: client,
	}
}

func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	const op = "client.HTTPRefresher.Refresh"

	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return Tokens{}, fmt.Errorf("%s: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return Tokens{}, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Tokens{}, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Tokens{}, fmt.Errorf("%s: read: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Tokens{}, fmt.Errorf("%s: %w", op, statusError(resp.StatusCode, raw))
	}

	t := parseTokens(raw)
	if t.Access == "" {
		return Tokens{}, fmt.Errorf("%s: response carries no access token", op)
	}

	return t, nil
}

// parseTokens ищет токены на верхнем уровне ответа, в data или в tokens.
func parseTokens(raw []byte) Tokens {
	var env struct {
		Tokens
		Data   *Tokens `json:"data"`
		Nested *Tokens `json:"tokens"`
	}
	if json.Unmarshal(raw, &env) != nil {
		return Tokens{}
	}

	out := env.Tokens
	for _, n := range []*Tokens{env.Data, env.Nested} {
		if n == nil {
			continue
		}
		if out.Access == "" {
			out.Access = n.Access
		}
		if out.Refresh == "" {
			out.Refresh = n.Refresh
		}
	}

	return out
}

// statusError - не-2xx ответ в виде StatusError с сообщением из тела.
func statusError(status int, raw []byte) *apierrors.StatusError {
	var env struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	_ = json.Unmarshal(raw, &env)

	return &apierrors.StatusError{Status: status, Code: env.Code, Message: env.Message}
}
