package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/go-taskboard/internal/http/handlers"
	"github.com/pribylovaa/go-taskboard/internal/http/middleware"
	"github.com/pribylovaa/go-taskboard/internal/metrics"
	"github.com/pribylovaa/go-taskboard/internal/proxy"
)

// Options - параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	BasePath string // например, "/api"; если пустой - роуты регистрируются на корне.

	// Лимит на login/register/refresh. Limiter == nil - без ограничений.
	Limiter    middleware.Limiter
	RateLimit  int
	RateWindow time.Duration
	// ClientKey - ключ лимита; nil - адрес соединения (middleware.ClientIP).
	ClientKey  func(*http.Request) string
	Metrics    *metrics.Metrics
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(h *handlers.Handlers, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // ловим паники
		middleware.RequestID(),          // X-Request-Id до логирования
		middleware.Logging(opts.Logger), // request-scoped логгер в контексте
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout))
	}

	key := opts.ClientKey
	if key == nil {
		key = middleware.ClientIP
	}
	limit := middleware.RateLimit(opts.Limiter, key, opts.RateLimit, opts.RateWindow, opts.Metrics)

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, limit)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h, limit)
	return root
}

// registerRoutes - единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, limit middleware.Middleware) {
	// auth
	r.With(limit).Post("/auth/login", h.Login)
	r.With(limit).Post("/auth/register", h.Register)
	r.With(limit).Post("/auth/refresh", h.Refresh)
	r.Post("/auth/logout", h.Logout)
	r.Get("/auth/me", h.Me())

	// dashboard
	r.Get("/dashboard/stats", h.Route(handlers.RouteConfig{
		RequireAuth:         true,
		LogContext:          "dashboard.stats",
		DefaultErrorMessage: "Failed to fetch dashboard stats",
	}, proxy.Config{Method: http.MethodGet, URL: "/dashboard/stats"}))

	// projects
	projects := h.CRUD("projects", "/projects")
	r.Get("/projects", projects.List)
	r.Post("/projects", projects.Create)
	r.Get("/projects/{id}", projects.Get)
	r.Put("/projects/{id}", projects.Update)
	r.Patch("/projects/{id}", projects.Patch)
	r.Delete("/projects/{id}", projects.Delete)

	r.Get("/projects/{id}/tasks", h.Route(handlers.RouteConfig{
		RequireAuth:         true,
		LogContext:          "projects.tasks",
		DefaultErrorMessage: "Failed to fetch tasks",
	}, proxy.Config{Method: http.MethodGet, URL: "/projects/{id}/tasks"}))
	r.Post("/projects/{id}/tasks", h.Route(handlers.RouteConfig{
		RequireAuth:         true,
		LogContext:          "projects.tasks.create",
		DefaultErrorMessage: "Failed to create tasks",
	}, proxy.Config{Method: http.MethodPost, URL: "/projects/{id}/tasks", IncludeBody: true}))

	// tasks
	tasks := h.CRUD("tasks", "/tasks")
	r.Get("/tasks", tasks.List)
	r.Post("/tasks", tasks.Create)
	r.Get("/tasks/{id}", tasks.Get)
	r.Put("/tasks/{id}", tasks.Update)
	r.Patch("/tasks/{id}", tasks.Patch)
	r.Delete("/tasks/{id}", tasks.Delete)

	// notifications
	notifications := h.CRUD("notifications", "/notifications")
	r.Get("/notifications", notifications.List)
	r.Delete("/notifications/{id}", notifications.Delete)
	r.Patch("/notifications/{id}/read", h.Route(handlers.RouteConfig{
		RequireAuth:         true,
		LogContext:          "notifications.read",
		DefaultErrorMessage: "Failed to update notifications",
	}, proxy.Config{Method: http.MethodPatch, URL: "/notifications/{id}/read"}))
	r.Post("/notifications/read-all", h.Route(handlers.RouteConfig{
		RequireAuth:         true,
		LogContext:          "notifications.read_all",
		DefaultErrorMessage: "Failed to update notifications",
	}, proxy.Config{Method: http.MethodPost, URL: "/notifications/read-all"}))

	// profile
	r.Get("/profile", h.Route(handlers.RouteConfig{
		RequireAuth:         true,
		LogContext:          "profile.get",
		DefaultErrorMessage: "Failed to fetch profile",
	}, proxy.Config{Method: http.MethodGet, URL: "/profile"}))
	r.Put("/profile", h.Route(handlers.RouteConfig{
		RequireAuth:         true,
		LogContext:          "profile.update",
		DefaultErrorMessage: "Failed to update profile",
	}, proxy.Config{Method: http.MethodPut, URL: "/profile", IncludeBody: true}))
	r.Put("/profile/password", h.Route(handlers.RouteConfig{
		RequireAuth:         true,
		LogContext:          "profile.password",
		DefaultErrorMessage: "Failed to change password",
	}, proxy.Config{Method: http.MethodPut, URL: "/profile/password", IncludeBody: true}))
}
