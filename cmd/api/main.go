// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/templates/erp-backend/internal/admin"
	"github.com/carterperez-dev/templates/erp-backend/internal/auth"
	"github.com/carterperez-dev/templates/erp-backend/internal/cleanup"
	"github.com/carterperez-dev/templates/erp-backend/internal/config"
	"github.com/carterperez-dev/templates/erp-backend/internal/core"
	"github.com/carterperez-dev/templates/erp-backend/internal/hashing"
	"github.com/carterperez-dev/templates/erp-backend/internal/health"
	"github.com/carterperez-dev/templates/erp-backend/internal/metrics"
	"github.com/carterperez-dev/templates/erp-backend/internal/middleware"
	"github.com/carterperez-dev/templates/erp-backend/internal/password"
	"github.com/carterperez-dev/templates/erp-backend/internal/permission"
	"github.com/carterperez-dev/templates/erp-backend/internal/server"
	"github.com/carterperez-dev/templates/erp-backend/internal/user"
)

const (
	drainDelay = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	envPath := flag.String("env", ".env", "path to .env file")
	flag.Parse()

	if err := run(*configPath, *envPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath, envPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	if err := config.LoadDotEnv(envPath); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		if telErr != nil {
			logger.Warn("failed to initialize telemetry", "error", telErr)
		} else {
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	recorder := metrics.NewNoop()
	var metricsProvider *metrics.Provider
	if cfg.Metrics.Enabled {
		metricsProvider, err = metrics.NewProvider()
		if err != nil {
			return err
		}
		recorder, err = metrics.NewRecorder(metricsProvider.MeterProvider(), cfg.Metrics.Namespace)
		if err != nil {
			return err
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		logger.Info("database migrations applied")
	}

	redis, err := core.NewRedis(ctx, cfg.Redis)
	switch {
	case errors.Is(err, core.ErrRedisUnavailable):
		logger.Warn("redis unreachable, rate limiting and sweep locks run locally", "error", err)
	case err != nil:
		return err
	default:
		logger.Info("redis connected", "pool_size", cfg.Redis.PoolSize)
	}

	hashPool, err := hashing.NewFromConfig(cfg.Password, cfg.App.Environment)
	if err != nil {
		return err
	}
	logger.Info("password hashing initialized",
		"algorithm", hashPool.Algorithm(),
		"workers", cfg.Password.HashWorkers,
	)

	jwtManager, err := auth.NewJWTManager(cfg.Auth)
	if err != nil {
		return err
	}

	permCache := permission.NewCache(
		permission.NewRepository(db.DB),
		cfg.Auth.PermissionCacheTTL,
	)
	if err := permCache.Refresh(ctx); err != nil {
		logger.Warn("permission cache warmup failed", "error", err)
	}

	policy := password.NewEngine(
		cfg.Password,
		cfg.Auth.StoreTimeout,
		hashPool,
		password.NewHistoryRepository(db.DB),
	)

	userSvc := user.NewService(user.NewRepository(db.DB))

	authRepo := auth.NewRepository(db.DB)
	authSvc := auth.NewService(auth.ServiceDeps{
		Repo:         authRepo,
		JWT:          jwtManager,
		Users:        userSvc,
		Hasher:       hashPool,
		Policy:       policy,
		Permissions:  permCache,
		Metrics:      recorder,
		StoreTimeout: cfg.Auth.StoreTimeout,
		Logger:       logger,
	})
	authHandler := auth.NewHandler(authSvc)

	scheduler := cleanup.New(cleanup.Deps{
		Tokens:      authRepo,
		History:     policy,
		Permissions: permCache,
		Redis:       redis.Client,
		Metrics:     recorder,
		Logger:      logger,
		Config:      cfg.Cleanup,
	})

	healthHandler := health.NewHandler(
		health.Dependency{Name: "database", Checker: db},
		health.Dependency{Name: "redis", Checker: redis, Optional: true},
	)

	adminHandler := admin.NewHandler(admin.HandlerConfig{
		DBStats:    db.Stats,
		RedisStats: redis.PoolStats,
		AuthSvc:    authSvc,
		UserSvc:    userSvc,
		Cleaner:    scheduler,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(logger))
	if metricsProvider != nil {
		router.Use(metrics.HTTPMiddleware(metricsProvider.MeterProvider(), cfg.Metrics.Namespace))
	}
	router.Use(middleware.SecurityHeaders(cfg.App.Environment == "production"))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)
	if metricsProvider != nil {
		router.Handle("/metrics", metricsProvider.Handler())
	}

	credentialLimiter := middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
		Limit: middleware.PerWindow(
			cfg.RateLimit.Requests,
			cfg.RateLimit.Burst,
			cfg.RateLimit.Window,
		),
		KeyFunc:  middleware.KeyByIPAndPath,
		FailOpen: true,
	}).Handler

	authenticator := middleware.Authenticator(authSvc)

	router.Route("/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r, authenticator, credentialLimiter)
		adminHandler.RegisterRoutes(r, authenticator)
	})

	errChan := make(chan error, 2)
	go func() {
		errChan <- srv.Start()
	}()

	if cfg.Cleanup.Enabled {
		go func() {
			if err := scheduler.Run(ctx); err != nil {
				errChan <- err
			}
		}()
	}

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if metricsProvider != nil {
		if err := metricsProvider.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics shutdown error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
