// handlers - обработчики маршрутов шлюза. Каждый маршрут описывается
// декларативно (RouteConfig + proxy.Config) и сводится к вызову бэкенда
// через форвардер с прозрачной передачей статуса и тела.
package handlers

import (
	"context"
	"net/http"
	"time"

	apierrors "github.com/pribylovaa/go-taskboard/internal/errors"
	"github.com/pribylovaa/go-taskboard/internal/http/middleware"
	"github.com/pribylovaa/go-taskboard/internal/proxy"
)

// Forwarder - то, что обработчикам нужно от proxy.Forwarder.
type Forwarder interface {
	Forward(ctx context.Context, tmpl string, req proxy.Request) (*proxy.Response, error)
}

// CookieConfig - параметры cookie с токенами.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	// Secure - выключается только в локальном окружении.
	Secure bool
}

func (c CookieConfig) withDefaults() CookieConfig {
	if c.AccessName == "" {
		c.AccessName = "accessToken"
	}
	if c.RefreshName == "" {
		c.RefreshName = "refreshToken"
	}
	if c.AccessTTL <= 0 {
		c.AccessTTL = 15 * time.Minute
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = 7 * 24 * time.Hour
	}

	return c
}

// Handlers агрегирует зависимости обработчиков.
type Handlers struct {
	fwd        Forwarder
	auth       *middleware.Authenticator
	cookies    CookieConfig
	classifier *apierrors.Classifier
}

func New(fwd Forwarder, auth *middleware.Authenticator, cookies CookieConfig, classifier *apierrors.Classifier) *Handlers {
	if classifier == nil {
		classifier = apierrors.NewClassifier()
	}

	return &Handlers{
		fwd:        fwd,
		auth:       auth,
		cookies:    cookies.withDefaults(),
		classifier: classifier,
	}
}

// writeRaw отдаёт ответ бэкенда как есть.
func writeRaw(w http.ResponseWriter, status int, data []byte) {
	if len(data) > 0 {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	if len(data) > 0 {
		_, _ = w.Write(data)
	}
}
