package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/go-taskboard/internal/config"
	apierrors "github.com/pribylovaa/go-taskboard/internal/errors"
	gwhttp "github.com/pribylovaa/go-taskboard/internal/http"
	"github.com/pribylovaa/go-taskboard/internal/http/handlers"
	"github.com/pribylovaa/go-taskboard/internal/http/middleware"
	"github.com/pribylovaa/go-taskboard/internal/metrics"
	"github.com/pribylovaa/go-taskboard/internal/proxy"
	"github.com/pribylovaa/go-taskboard/internal/tokens"
)

const userAgent = "taskboard-gateway"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting taskboard-gateway", "env", cfg.Env, "backend", cfg.Backend.BaseURL)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	m := metrics.New(prometheus.DefaultRegisterer)

	classifier := apierrors.NewClassifier(
		apierrors.WithLogger(log),
		apierrors.WithMetrics(m),
		apierrors.WithVerbose(cfg.VerboseErrors()),
	)

	var sink apierrors.Sink = apierrors.NewLogSink(log)
	if cfg.Errors.ReportURL != "" {
		sink = apierrors.NewHTTPSink(cfg.Errors.ReportURL, &http.Client{Timeout: 10 * time.Second})
	}
	reporter := apierrors.NewReporter(classifier.Queue(), sink, cfg.Errors.FlushInterval, log)
	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		reporter.Run(rootCtx)
	}()

	backendClient := &http.Client{
		Transport: proxy.WithLogging(proxy.WithMetadata(http.DefaultTransport, userAgent), log),
	}
	fwd := proxy.NewForwarder(cfg.Backend.BaseURL,
		proxy.WithHTTPClient(backendClient),
		proxy.WithTimeout(cfg.Backend.Timeout),
		proxy.WithMetrics(m),
	)

	codec := tokens.NewCodec(cfg.Auth.JWTSecret, tokens.WithIssuer(cfg.Auth.Issuer))
	auth := middleware.NewAuthenticator(codec, cfg.Auth.AccessCookie, m)

	h := handlers.New(fwd, auth, handlers.CookieConfig{
		AccessName:  cfg.Auth.AccessCookie,
		RefreshName: cfg.Auth.RefreshCookie,
		AccessTTL:   cfg.Auth.AccessTTL,
		RefreshTTL:  cfg.Auth.RefreshTTL,
		Secure:      cfg.SecureCookies(),
	}, classifier)

	var (
		limiter middleware.Limiter
		redisRL *middleware.RedisLimiter
	)
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RedisURL != "" {
			rl, err := middleware.NewRedisLimiterFromURL(cfg.RateLimit.RedisURL)
			if err != nil {
				log.Error("ratelimit_init_failed", slog.String("err", err.Error()))
				os.Exit(1)
			}
			redisRL = rl
			limiter = rl
			log.Info("ratelimit_redis_enabled")
		} else {
			limiter = middleware.NewMemoryLimiter()
			log.Info("ratelimit_memory_enabled")
		}
	}

	trusted, err := middleware.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		log.Error("trusted_proxies_invalid", slog.String("err", err.Error()))
		os.Exit(1)
	}

	defer func() {
		if cerr := redisRL.Close(); cerr != nil {
			log.Warn("redis_close_failed", slog.String("err", cerr.Error()))
		}
	}()

	apiHandler := gwhttp.NewRouter(h, gwhttp.Options{
		Logger:     log,
		Timeout:    cfg.Timeouts.Service,
		BasePath:   "/api",
		Limiter:    limiter,
		RateLimit:  cfg.RateLimit.Limit,
		RateWindow: cfg.RateLimit.Window,
		ClientKey:  middleware.ForwardedClientIP(trusted),
		Metrics:    m,
	})

	var ready int32 // 0 - not ready; 1 - ready

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&ready) != 1 {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		// Redis недоступен - лимитер пропускает запросы, но это стоит видеть.
		if err := redisRL.Ping(r.Context()); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.Handle("/", apiHandler)

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		log.Error("http_listen_failed", slog.String("addr", httpAddr), slog.String("err", err.Error()))
		os.Exit(1)
	}

	log.Info("http_listen_start", slog.String("addr", httpAddr))

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)
	log.Info("gateway_ready")

	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_incomplete", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}

	// Reporter делает финальный сброс очереди после отмены rootCtx.
	rootCancel()
	<-reporterDone

	log.Info("service_stopped")
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case config.EnvLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case config.EnvDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case config.EnvProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
