// client - HTTP-клиент шлюза для CLI и интеграций.
//
// Каждый вызов проходит: Guard (упреждающее обновление токена) → запрос →
// одно реактивное обновление и повтор на 401 → Retry вокруг временных сбоев.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apierrors "github.com/pribylovaa/go-taskboard/internal/errors"
)

type Client struct {
	baseURL    string
	http       *http.Client
	store      TokenStore
	guard      *Guard
	classifier *apierrors.Classifier
	retry      RetryOptions
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func WithClassifier(c *apierrors.Classifier) Option {
	return func(cl *Client) {
		if c != nil {
			cl.classifier = c
		}
	}
}

func WithRetry(o RetryOptions) Option {
	return func(cl *Client) { cl.retry = o }
}

// WithGuard подменяет Guard (по умолчанию - HTTPRefresher на тот же шлюз).
func WithGuard(g *Guard) Option {
	return func(cl *Client) {
		if g != nil {
			cl.guard = g
		}
	}
}

func New(baseURL string, store TokenStore, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		store:   store,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.classifier == nil {
		c.classifier = apierrors.NewClassifier()
	}
	if c.guard == nil {
		c.guard = NewGuard(store, NewHTTPRefresher(c.baseURL, c.http))
	}

	return c
}

// Do выполняет запрос и декодирует JSON-ответ в out (если out != nil).
// body: nil, []byte/json.RawMessage (как есть) или значение для json.Marshal.
//
// Неидемпотентные методы (POST, PATCH) не повторяются.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	const op = "client.Do"

	payload, err := encodeBody(body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	opts := c.retry
	opts.Component = method + " " + path
	if !idempotent(method) {
		opts.MaxAttempts = 1
	}

	// Реактивное обновление - одно на весь вызов Do, а не на каждую попытку.
	refreshed := false
	data, err := Retry(ctx, c.classifier, opts, func(ctx context.Context) ([]byte, error) {
		return c.attempt(ctx, method, path, payload, &refreshed)
	})
	if err != nil {
		return err
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}

	return nil
}

// attempt - одна попытка. На 401 токен обновляется, только если это ещё
// не делалось в рамках вызова (*refreshed); повторный 401 завершает сессию.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, refreshed *bool) ([]byte, error) {
	if _, err := c.guard.Ensure(ctx, path); err != nil {
		return nil, err
	}

	t, err := c.store.Get(ctx)
	if err != nil {
		return nil, err
	}

	status, data, err := c.send(ctx, method, path, payload, t.Access)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized && !IsAuthPath(path) {
		switch {
		case *refreshed:
			_ = c.store.Clear(ctx)
			return nil, ErrAuthExpired
		case t.Refresh == "":
			return nil, statusError(status, data)
		}
		*refreshed = true

		if _, err := c.guard.RefreshNow(ctx); err != nil {
			return nil, err
		}

		t, err = c.store.Get(ctx)
		if err != nil {
			return nil, err
		}

		status, data, err = c.send(ctx, method, path, payload, t.Access)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized {
			_ = c.store.Clear(ctx)
			return nil, ErrAuthExpired
		}
	}

	if status < 200 || status > 299 {
		return nil, statusError(status, data)
	}

	return data, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, access string) (int, []byte, error) {
	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return 0, nil, err
	}

	return resp.StatusCode, bytes.TrimSpace(data), nil
}

// Login сохраняет выданную пару токенов и возвращает тело ответа.
func (c *Client) Login(ctx context.Context, email, password string) (json.RawMessage, error) {
	const op = "client.Login"

	status, data, err := c.send(ctx, http.MethodPost, "/api/auth/login", mustJSON(map[string]string{
		"email":    email,
		"password": password,
	}), "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("%s: %w", op, statusError(status, data))
	}

	t := parseTokens(data)
	if t.Access == "" {
		return nil, fmt.Errorf("%s: response carries no access token", op)
	}
	if err := c.store.Set(ctx, t); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return data, nil
}

// Logout уведомляет шлюз и очищает хранилище в любом случае.
// Ошибка шлюза возвращается, но токены уже удалены.
func (c *Client) Logout(ctx context.Context) error {
	const op = "client.Logout"

	t, err := c.store.Get(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var sendErr error
	if !t.Empty() {
		var payload []byte
		if t.Refresh != "" {
			payload = mustJSON(map[string]string{"refreshToken": t.Refresh})
		}
		status, data, err := c.send(ctx, http.MethodPost, "/api/auth/logout", payload, t.Access)
		switch {
		case err != nil:
			sendErr = err
		case status < 200 || status > 299:
			sendErr = statusError(status, data)
		}
	}

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, errors.Join(err, sendErr))
	}
	if sendErr != nil {
		return fmt.Errorf("%s: %w", op, sendErr)
	}

	return nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return b, nil
	case []byte:
		return b, nil
	default:
		return json.Marshal(b)
	}
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	}

	return false
}
