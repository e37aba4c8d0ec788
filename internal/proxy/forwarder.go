// proxy - пересылка запросов браузера на бэкенд.
//
// Форвардер не интерпретирует ответы бэкенда: статус и JSON-тело
// возвращаются как есть. Ошибкой считаются только сбой транспорта
// и тело, которое не является JSON.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pribylovaa/go-taskboard/internal/metrics"
)

// maxResponseBytes - верхняя граница читаемого тела ответа бэкенда.
const maxResponseBytes = 10 << 20

// Request - параметры одного вызова бэкенда.
type Request struct {
	Method string
	// Body пересылается без изменений (кроме GET/HEAD).
	Body   json.RawMessage
	Token  string
	Params map[string]string
	Query  url.Values
}

// Response - ответ бэкенда без изменений. Data == nil для пустого тела.
type Response struct {
	Data   json.RawMessage
	Status int
	OK     bool
}

// Error - обобщённая ошибка прокси с исходной причиной.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: proxy error: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Forwarder struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	metrics *metrics.Metrics
}

type Option func(*Forwarder)

// WithHTTPClient подменяет клиент (транспорт с логированием и метаданными
// собирается в main).
func WithHTTPClient(c *http.Client) Option {
	return func(f *Forwarder) {
		if c != nil {
			f.client = c
		}
	}
}

// WithTimeout навешивает дедлайн на вызов, если у контекста его ещё нет.
func WithTimeout(d time.Duration) Option {
	return func(f *Forwarder) { f.timeout = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Forwarder) { f.metrics = m }
}

func NewForwarder(baseURL string, opts ...Option) *Forwarder {
	f := &Forwarder{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Forward подставляет параметры в tmpl и выполняет запрос к бэкенду.
//
// Заголовки: Content-Type: application/json всегда,
// Authorization: Bearer <token> - если токен передан.
func (f *Forwarder) Forward(ctx context.Context, tmpl string, req Request) (*Response, error) {
	const op = "proxy.Forward"

	path, err := ResolveTemplate(tmpl, req.Params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	target := f.baseURL + path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if hasBody(method) && len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	if f.timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, f.timeout)
			defer cancel()
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		f.metrics.ObserveProxy(method, 0, time.Since(start))
		return nil, &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	f.metrics.ObserveProxy(method, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}

	out := &Response{
		Status: resp.StatusCode,
		OK:     resp.StatusCode >= 200 && resp.StatusCode <= 299,
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return out, nil
	}
	if !json.Valid(raw) {
		return nil, &Error{Op: op, Err: fmt.Errorf("backend returned non-JSON body (status %d)", resp.StatusCode)}
	}
	out.Data = raw

	return out, nil
}

func hasBody(method string) bool {
	return method != http.MethodGet && method != http.MethodHead
}
