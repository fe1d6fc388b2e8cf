// AngelaMos | 2026
// container.go

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/templates/erp-backend/internal/auth"
	"github.com/carterperez-dev/templates/erp-backend/internal/cleanup"
	"github.com/carterperez-dev/templates/erp-backend/internal/config"
	"github.com/carterperez-dev/templates/erp-backend/internal/core"
	"github.com/carterperez-dev/templates/erp-backend/internal/hashing"
	"github.com/carterperez-dev/templates/erp-backend/internal/password"
	"github.com/carterperez-dev/templates/erp-backend/internal/permission"
	"github.com/carterperez-dev/templates/erp-backend/internal/user"
)

// container holds what a single CLI invocation needs. Services are only
// built when the command uses them.
type container struct {
	logger    *slog.Logger
	db        *core.Database
	redis     *core.Redis
	authSvc   *auth.Service
	scheduler *cleanup.Scheduler
}

func newContainer(ctx context.Context, configPath, envPath string, withServices bool) (*container, error) {
	if err := config.LoadDotEnv(envPath); err != nil {
		return nil, err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	c := &container{logger: logger, db: db}
	if !withServices {
		return c, nil
	}

	if err := c.buildServices(ctx, cfg); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

func (c *container) buildServices(ctx context.Context, cfg *config.Config) error {
	var lockClient redis.Cmdable
	rdb, err := core.NewRedis(ctx, cfg.Redis)
	switch {
	case errors.Is(err, core.ErrRedisUnavailable):
		c.logger.Warn("redis unreachable, sweeping without a lock", "error", err)
		c.redis = rdb
	case err != nil:
		return err
	default:
		c.redis = rdb
		lockClient = rdb.Client
	}

	hashPool, err := hashing.NewFromConfig(cfg.Password, cfg.App.Environment)
	if err != nil {
		return err
	}

	jwtManager, err := auth.NewJWTManager(cfg.Auth)
	if err != nil {
		return err
	}

	permCache := permission.NewCache(permission.NewRepository(c.db.DB), cfg.Auth.PermissionCacheTTL)
	policy := password.NewEngine(
		cfg.Password,
		cfg.Auth.StoreTimeout,
		hashPool,
		password.NewHistoryRepository(c.db.DB),
	)
	authRepo := auth.NewRepository(c.db.DB)

	c.authSvc = auth.NewService(auth.ServiceDeps{
		Repo:         authRepo,
		JWT:          jwtManager,
		Users:        user.NewService(user.NewRepository(c.db.DB)),
		Hasher:       hashPool,
		Policy:       policy,
		Permissions:  permCache,
		StoreTimeout: cfg.Auth.StoreTimeout,
		Logger:       c.logger,
	})

	c.scheduler = cleanup.New(cleanup.Deps{
		Tokens:  authRepo,
		History: policy,
		Redis:   lockClient,
		Logger:  c.logger,
		Config:  cfg.Cleanup,
	})

	return nil
}

func (c *container) Close() {
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.Warn("redis close error", "error", err)
		}
	}
	if err := c.db.Close(); err != nil {
		c.logger.Warn("database close error", "error", err)
	}
}
