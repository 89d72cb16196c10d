// Package main is the entrypoint for the pulsetrack API server.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pulsetrack/pulsetrack/internal/analytics"
	"github.com/pulsetrack/pulsetrack/internal/auth"
	"github.com/pulsetrack/pulsetrack/internal/cache"
	"github.com/pulsetrack/pulsetrack/internal/config"
	"github.com/pulsetrack/pulsetrack/internal/handler"
	"github.com/pulsetrack/pulsetrack/internal/metrics"
	"github.com/pulsetrack/pulsetrack/internal/middleware"
	"github.com/pulsetrack/pulsetrack/internal/presence"
	"github.com/pulsetrack/pulsetrack/internal/repository"
	"github.com/pulsetrack/pulsetrack/internal/server"
	"github.com/pulsetrack/pulsetrack/internal/service"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		repo.Close()
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewPrometheus()
	if err := recorder.Register(registry); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	// Presence is process-local; each instance reports its own visitors.
	connected := presence.NewRegistry()
	connected.OnChange(recorder.SetActiveConnections)

	// Services
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		logger.Error("failed to initialize token service", "error", err)
		os.Exit(1)
	}
	argon := auth.DefaultArgon2Params
	argon.Time = cfg.Argon2Time
	argon.Memory = cfg.Argon2Memory
	argon.Threads = cfg.Argon2Threads

	pipeline := analytics.NewPipeline(repo, logger, recorder)
	dashboardService := service.NewDashboardService(repo, cacheClient, connected, cfg.DashboardCacheTTL, logger, recorder)
	adminService := service.NewAdminService(repo, auth.NewPasswordHasher(argon), tokens, logger)

	// Handlers
	ingestHandler := handler.NewIngestHandler(pipeline, connected, handler.IngestConfig{
		ReadLimit:   cfg.WSReadLimit,
		PongWait:    cfg.WSPongWait,
		PingPeriod:  cfg.WSPingPeriod,
		WriteWait:   cfg.WSWriteWait,
		CheckOrigin: cfg.WSCheckOrigin,
	}, logger, recorder)

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	router := handler.NewRouter(handler.RouterConfig{
		Logger:    logger,
		Root:      handler.New(cfg.Version),
		Health:    handler.NewHealthHandler(repo, cacheClient).WithConnections(ingestHandler.OpenConnections),
		Metrics:   handler.NewMetricsHandler(registry),
		Ingest:    ingestHandler,
		Users:     handler.NewUserHandler(repo, logger),
		Dashboard: handler.NewDashboardHandler(dashboardService, logger, cfg.QueryTimeout),
		Admin:     handler.NewAdminHandler(adminService, logger),
		Tokens:    tokens,
		ConnectLimit: middleware.RateLimitConfig{
			Logger:  logger,
			Enabled: cfg.RateLimitConnectEnabled,
			Name:    "connect",
			Check: func(ctx context.Context, ip string) (*cache.RateLimitResult, error) {
				return cacheClient.CheckConnectRateLimit(ctx, ip, cfg.RateLimitConnectRPS, cfg.RateLimitConnectBurst)
			},
			OnLimited: func(*http.Request) { recorder.IncConnection(metrics.ConnRateLimited) },
		},
		LoginLimit: middleware.RateLimitConfig{
			Logger:  logger,
			Enabled: cfg.RateLimitLoginEnabled,
			Name:    "login",
			Check: func(ctx context.Context, ip string) (*cache.RateLimitResult, error) {
				return cacheClient.CheckLoginRateLimit(ctx, ip, cfg.RateLimitLoginPerMinute, cfg.RateLimitLoginBurst)
			},
		},
		CORS:        corsCfg,
		Security:    middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()},
		MaxBodySize: cfg.MaxRequestBodySize,
	})

	srv := server.New(router, server.Options{
		Port:              cfg.AppPort,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ShutdownTimeout:   cfg.ShutdownTimeout,
	}, logger)

	// Registered first, stopped last.
	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(context.Context) error {
		return cacheClient.Close()
	})
	srv.OnHijackedShutdown(ingestHandler.Shutdown)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"version", cfg.Version,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
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
