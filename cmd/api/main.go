// Package main is the entrypoint for the relink API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/relink/relink/internal/aggregator"
	"github.com/relink/relink/internal/cache"
	"github.com/relink/relink/internal/config"
	"github.com/relink/relink/internal/handler"
	"github.com/relink/relink/internal/metrics"
	"github.com/relink/relink/internal/middleware"
	"github.com/relink/relink/internal/recorder"
	"github.com/relink/relink/internal/resolver"
	"github.com/relink/relink/internal/server"
	"github.com/relink/relink/internal/service"
	"github.com/relink/relink/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	st, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("connected to database")

	ca, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer ca.Close()
	logger.Info("connected to Redis")

	recorderMetrics := metrics.NewInMemory()
	events := store.NewClickEventStore(st)

	// Resolver for the redirect hot path.
	res := resolver.New(st, ca, cfg.ResolveTimeout, logger, recorderMetrics)

	// Click pipeline: publisher on the request path, worker draining the
	// stream into Postgres.
	publisher := recorder.NewPublisher(ca.Client(), logger, recorderMetrics)
	publisher.SetStreamMaxLen(cfg.RecorderStreamMaxLen)
	publisher.SetPublishBudget(cfg.RecorderPublishBudget)

	worker := recorder.NewWorker(ca.Client(), events, st, logger, recorder.NewConsumerID(), recorderMetrics)
	worker.SetBatchSize(cfg.RecorderBatchSize)
	worker.SetBlockTimeout(cfg.RecorderBlockTimeout)
	worker.SetMaxRetries(cfg.RecorderMaxRetries)

	linkService := service.NewLinkService(st, ca, cfg.BaseURL, logger, recorderMetrics)
	agg := aggregator.New(events, st)

	healthHandler := handler.NewHealthHandler(st, ca)
	linkHandler := handler.NewLinkHandler(linkService, logger)
	redirectHandler := handler.NewRedirectHandler(res, publisher, logger)
	statsHandler := handler.NewStatsHandler(agg, st, logger)

	r := setupRouter(healthHandler, linkHandler, redirectHandler, statsHandler, st, ca, cfg, logger)

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// The worker drains in-flight batches on shutdown, after the HTTP
	// listener stops producing new clicks.
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	go func() {
		if err := worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("click worker exited", "error", err)
		}
	}()
	srv.OnShutdown("click-worker", worker.Shutdown)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	healthHandler *handler.HealthHandler,
	linkHandler *handler.LinkHandler,
	redirectHandler *handler.RedirectHandler,
	statsHandler *handler.StatsHandler,
	st *store.Store,
	ca *cache.Cache,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)

	authCfg := middleware.AuthConfig{
		Logger: logger,
		Keys:   st,
	}

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:  logger,
		Cache:   ca,
		Enabled: cfg.RateLimitRedirectEnabled,
		RPS:     cfg.RateLimitRedirectRPS,
		Burst:   cfg.RateLimitRedirectBurst,
	}

	// Management API, authenticated by API key.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(authCfg))

		r.Route("/links", func(r chi.Router) {
			r.Get("/", linkHandler.List)
			r.Post("/", linkHandler.Create)
			r.Get("/{id}", linkHandler.Get)
			r.Patch("/{id}", linkHandler.Update)
			r.Delete("/{id}", linkHandler.Delete)
		})

		r.Route("/stats", func(r chi.Router) {
			r.Get("/links/{shortCode}/timeseries", statsHandler.LinkTimeSeries)
			r.Get("/links/{shortCode}/breakdown", statsHandler.LinkBreakdown)
			r.Get("/owner/timeseries", statsHandler.OwnerTimeSeries)
			r.Get("/owner/breakdown", statsHandler.OwnerBreakdown)
			r.With(middleware.RequireAdmin).Get("/system", statsHandler.SystemTotals)
		})
	})

	// Public redirect endpoint with IP rate limiting, no auth.
	r.With(middleware.RateLimitIP(rateLimitCfg)).Get("/r/{shortCode}", redirectHandler.Redirect)

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
