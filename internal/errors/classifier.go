package errors

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-taskboard/internal/metrics"
	logctx "github.com/pribylovaa/go-taskboard/internal/pkg/log"
)

const (
	DefaultBaseDelay = time.Second
	DefaultMaxDelay  = 30 * time.Second
)

// Classifier - единственная точка, где сырые сбои становятся AppError.
// Создаётся один раз на процесс и передаётся зависимостью.
type Classifier struct {
	log     *slog.Logger
	queue   *Queue
	metrics *metrics.Metrics
	verbose bool
	online  func() bool
	now     func() time.Time
}

type Option func(*Classifier)

func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.log = l
		}
	}
}

func WithQueue(q *Queue) Option {
	return func(c *Classifier) {
		if q != nil {
			c.queue = q
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Classifier) { c.metrics = m }
}

// WithVerbose включает запись сырых деталей в лог (не-prod окружения).
func WithVerbose(v bool) Option {
	return func(c *Classifier) { c.verbose = v }
}

// WithConnectivity задаёт пробу «есть ли сеть» для различения
// NETWORK_OFFLINE и NETWORK_UNREACHABLE.
func WithConnectivity(online func() bool) Option {
	return func(c *Classifier) {
		if online != nil {
			c.online = online
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		queue:  NewQueue(DefaultQueueCapacity),
		online: func() bool { return true },
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Queue - очередь классифицированных ошибок для пакетной отправки.
func (c *Classifier) Queue() *Queue { return c.queue }

// Classify строит AppError по подсказанным типу и серьёзности.
// Пустой typ - unknown, пустая sev - medium.
func (c *Classifier) Classify(ctx context.Context, raw RawFailure, typ Type, sev Severity, ectx ErrorContext) *AppError {
	if typ == "" {
		typ = TypeUnknown
	}
	if sev == "" {
		sev = SeverityMedium
	}

	code := c.codeFor(raw, typ)
	e := &AppError{
		ID:        uuid.NewString(),
		Type:      typ,
		Severity:  sev,
		Code:      code,
		Message:   MessageFor(code),
		Status:    raw.Status,
		Timestamp: c.now().UTC(),
		Context:   ectx,
		Details:   raw.Message,
	}

	c.record(ctx, e)
	return e
}

// ClassifyFromAPIResponse выводит тип и серьёзность из HTTP-статуса:
//   - >=500 - server/high;
//   - 401, 403 - authentication/medium;
//   - 400, 422 - validation/low;
//   - 404 - client/low;
//   - статуса нет, сбой сетевой - network/medium;
//   - прочее - unknown/medium.
func (c *Classifier) ClassifyFromAPIResponse(ctx context.Context, raw RawFailure, ectx ErrorContext) *AppError {
	typ, sev := hintsFromStatus(raw)
	return c.Classify(ctx, raw, typ, sev, ectx)
}

func hintsFromStatus(raw RawFailure) (Type, Severity) {
	switch s := raw.Status; {
	case s >= 500:
		return TypeServer, SeverityHigh
	case s == http.StatusUnauthorized, s == http.StatusForbidden:
		return TypeAuthentication, SeverityMedium
	case s == http.StatusBadRequest, s == http.StatusUnprocessableEntity:
		return TypeValidation, SeverityLow
	case s == http.StatusNotFound:
		return TypeClient, SeverityLow
	case s == 0 && (raw.Network || raw.Timeout || raw.Offline):
		return TypeNetwork, SeverityMedium
	default:
		return TypeUnknown, SeverityMedium
	}
}

func (c *Classifier) codeFor(raw RawFailure, typ Type) Code {
	// Сырой код, уже принадлежащий этому типу, сохраняем как есть.
	if known := Code(raw.Code); known != "" {
		if t, ok := known.Type(); ok && t == typ {
			return known
		}
	}

	msg := strings.ToLower(raw.Message)

	switch typ {
	case TypeNetwork:
		switch {
		case raw.Timeout || strings.Contains(msg, "timeout"):
			return CodeNetworkTimeout
		case raw.Offline || !c.online():
			return CodeNetworkOffline
		default:
			return CodeNetworkUnreachable
		}

	case TypeAuthentication:
		switch {
		case raw.Status == http.StatusUnauthorized:
			return CodeAuthTokenExpired
		case strings.Contains(msg, "invalid"), strings.Contains(msg, "credentials"):
			return CodeAuthInvalidCredentials
		default:
			return CodeAuthRequired
		}

	case TypeValidation:
		switch {
		case strings.Contains(msg, "required"):
			return CodeValidationRequired
		case strings.Contains(msg, "format"):
			return CodeValidationInvalidFormat
		case strings.Contains(msg, "too long"):
			return CodeValidationTooLong
		case strings.Contains(msg, "too short"):
			return CodeValidationTooShort
		default:
			return CodeValidationRequired
		}

	case TypeServer:
		switch {
		case raw.Status == http.StatusServiceUnavailable:
			return CodeServerUnavailable
		case raw.Status == http.StatusGatewayTimeout:
			return CodeServerTimeout
		default:
			return CodeServerInternal
		}

	case TypeClient:
		switch raw.Status {
		case http.StatusNotFound:
			return CodeClientNotFound
		case http.StatusForbidden:
			return CodeClientForbidden
		default:
			return CodeClientBadRequest
		}

	default:
		return CodeUnknown
	}
}

func (c *Classifier) record(ctx context.Context, e *AppError) {
	if ctx == nil {
		ctx = context.Background()
	}

	l := c.log
	if l == nil {
		l = logctx.From(ctx)
	}

	attrs := []slog.Attr{
		slog.String("error_id", e.ID),
		slog.String("type", string(e.Type)),
		slog.String("severity", string(e.Severity)),
		slog.String("code", string(e.Code)),
	}
	if e.Status != 0 {
		attrs = append(attrs, slog.Int("status", e.Status))
	}
	if e.Context.URL != "" {
		attrs = append(attrs, slog.String("url", e.Context.URL))
	}
	if e.Context.Method != "" {
		attrs = append(attrs, slog.String("method", e.Context.Method))
	}
	if e.Context.Component != "" {
		attrs = append(attrs, slog.String("component", e.Context.Component))
	}
	if e.Context.Identity != "" {
		attrs = append(attrs, slog.String("identity", e.Context.Identity))
	}
	if c.verbose && e.Details != "" {
		attrs = append(attrs, slog.String("details", e.Details))
	}

	l.LogAttrs(ctx, levelFor(e.Severity), "app_error", attrs...)

	c.metrics.IncAppError(string(e.Type), string(e.Code))
	c.queue.Push(*e)
}

func levelFor(s Severity) slog.Level {
	switch s {
	case SeverityCritical, SeverityHigh:
		return slog.LevelError
	case SeverityMedium:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// IsRetryable - повторять имеет смысл только сетевые и серверные сбои
// (и таймауты с любым типом).
func IsRetryable(e *AppError) bool {
	if e == nil {
		return false
	}

	switch e.Type {
	case TypeNetwork, TypeServer:
		return true
	}

	return e.Code == CodeServerTimeout || e.Code == CodeNetworkTimeout
}

// RetryDelay - задержка перед попыткой attempt+1: 0 для неповторяемых,
// иначе 1s, 2s, 4s, ... с потолком 30s.
func RetryDelay(e *AppError, attempt int) time.Duration {
	if !IsRetryable(e) {
		return 0
	}

	return Backoff(attempt, DefaultBaseDelay, DefaultMaxDelay)
}

// Backoff - min(base·2^(attempt-1), maxDelay). attempt < 1 считается первой попыткой.
func Backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	shift := attempt - 1
	if shift > 30 {
		return maxDelay
	}

	d := base << shift
	if d <= 0 || d > maxDelay {
		return maxDelay
	}

	return d
}

// FromError нормализует ошибку Go в RawFailure.
func FromError(err error) RawFailure {
	if err == nil {
		return RawFailure{}
	}

	raw := RawFailure{Message: err.Error()}

	var se *StatusError
	if stderrors.As(err, &se) {
		raw.Status = se.Status
		raw.Code = se.Code
		if se.Message != "" {
			raw.Message = se.Message
		}
		return raw
	}

	var ae *AppError
	if stderrors.As(err, &ae) {
		raw.Status = ae.Status
		raw.Code = string(ae.Code)
		raw.Network = ae.Type == TypeNetwork
		raw.Timeout = ae.Code == CodeNetworkTimeout
		raw.Offline = ae.Code == CodeNetworkOffline
		return raw
	}

	// Отмена вызывающим - не сбой сети: повторять нечего.
	if stderrors.Is(err, context.Canceled) {
		return raw
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		raw.Network = true
		raw.Timeout = true
		return raw
	}

	if stderrors.Is(err, syscall.ENETUNREACH) {
		raw.Network = true
		raw.Offline = true
		return raw
	}

	var ne net.Error
	if stderrors.As(err, &ne) {
		raw.Network = true
		raw.Timeout = ne.Timeout()
		return raw
	}

	if stderrors.Is(err, syscall.ECONNREFUSED) || stderrors.Is(err, syscall.ECONNRESET) {
		raw.Network = true
	}

	return raw
}
