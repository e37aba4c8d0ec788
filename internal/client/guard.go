package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	apierrors "github.com/pribylovaa/go-taskboard/internal/errors"
	logctx "github.com/pribylovaa/go-taskboard/internal/pkg/log"
	"github.com/pribylovaa/go-taskboard/internal/tokens"
)

const (
	// DefaultRefreshThreshold - access-токен обновляется, если ему осталось меньше.
	DefaultRefreshThreshold = 5 * time.Minute

	RefreshPath = "/api/auth/refresh"

	MessageAuthExpired = "Authentication expired. Please login again."
)

// ErrAuthExpired - сессию продлить не удалось, токены очищены.
// Вызывающая сторона должна отправить пользователя на вход.
var ErrAuthExpired = errors.New(MessageAuthExpired)

// AuthOutcome - результат проверки/продления сессии.
type AuthOutcome int

const (
	// Authenticated - можно выполнять запрос.
	Authenticated AuthOutcome = iota
	// Expired - бэкенд отверг refresh-токен.
	Expired
	// Failed - обновление не удалось по иной причине (сеть, хранилище).
	Failed
)

func (o AuthOutcome) String() string {
	switch o {
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	default:
		return "failed"
	}
}

// Guard продлевает сессию до истечения access-токена и после 401.
// Одновременные обновления одним refresh-токеном сливаются в один обмен.
type Guard struct {
	store     TokenStore
	refresher Refresher
	threshold time.Duration
	timeout   time.Duration
	now       func() time.Time
	group     singleflight.Group
}

type GuardOption func(*Guard)

func WithThreshold(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.threshold = d
		}
	}
}

func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithRefreshTimeout - дедлайн общего обмена (не зависит от отмены
// контекста отдельного вызывающего).
func WithRefreshTimeout(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func NewGuard(store TokenStore, refresher Refresher, opts ...GuardOption) *Guard {
	g := &Guard{
		store:     store,
		refresher: refresher,
		threshold: DefaultRefreshThreshold,
		timeout:   15 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}

	return g
}

// sessionPaths - эндпойнты, которые сами выдают или гасят токены.
// Они не проходят через Guard, иначе обновление запускало бы само себя.
// Остальные /api/auth/* (например, /api/auth/me) - обычные защищённые запросы.
var sessionPaths = map[string]struct{}{
	"/api/auth/login":    {},
	"/api/auth/register": {},
	"/api/auth/refresh":  {},
	"/api/auth/logout":   {},
}

func IsAuthPath(path string) bool {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	_, ok := sessionPaths[strings.TrimRight(path, "/")]
	return ok
}

// Ensure проверяет токен перед запросом к path и при необходимости
// обновляет его. Без refresh-токена запрос выполняется как есть.
func (g *Guard) Ensure(ctx context.Context, path string) (AuthOutcome, error) {
	if IsAuthPath(path) {
		return Authenticated, nil
	}

	t, err := g.store.Get(ctx)
	if err != nil {
		return Failed, err
	}
	if t.Refresh == "" || !g.needsRefresh(t.Access) {
		return Authenticated, nil
	}

	return g.refresh(ctx, t.Refresh)
}

// RefreshNow - реактивное обновление после 401.
func (g *Guard) RefreshNow(ctx context.Context) (AuthOutcome, error) {
	t, err := g.store.Get(ctx)
	if err != nil {
		return Failed, err
	}
	if t.Refresh == "" {
		_ = g.store.Clear(ctx)
		return Expired, ErrAuthExpired
	}

	return g.refresh(ctx, t.Refresh)
}

func (g *Guard) needsRefresh(access string) bool {
	if access == "" {
		return true
	}

	p := tokens.DecodePayloadUnsafe(access)
	if p == nil {
		return true
	}
	if p.ExpiresAt.IsZero() {
		return false
	}

	return p.ExpiresAt.Sub(g.now()) < g.threshold
}

func (g *Guard) refresh(ctx context.Context, refreshToken string) (AuthOutcome, error) {
	_, err, _ := g.group.Do(refreshToken, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()

		// Пока ждали своей очереди, пару мог уже сменить другой вызов.
		if cur, err := g.store.Get(rctx); err == nil && cur.Refresh != "" &&
			cur.Refresh != refreshToken && !g.needsRefresh(cur.Access) {
			return cur, nil
		}

		next, err := g.refresher.Refresh(rctx, refreshToken)
		if err != nil {
			_ = g.store.Clear(rctx)
			return nil, err
		}
		if next.Refresh == "" {
			next.Refresh = refreshToken
		}
		if err := g.store.Set(rctx, next); err != nil {
			return nil, err
		}

		return next, nil
	})
	if err == nil {
		return Authenticated, nil
	}

	outcome := Failed
	if isRejection(err) {
		outcome = Expired
	}

	logctx.From(ctx).Warn("token_refresh_failed",
		slog.String("outcome", outcome.String()),
		slog.String("err", err.Error()),
	)

	return outcome, ErrAuthExpired
}

// isRejection - бэкенд явно отказал в обмене (а не сеть/таймаут).
func isRejection(err error) bool {
	var se *apierrors.StatusError
	if !errors.As(err, &se) {
		return false
	}

	switch se.Status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}

	return false
}
