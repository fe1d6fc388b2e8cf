// AngelaMos | 2026
// scheduler.go

package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/carterperez-dev/templates/erp-backend/internal/config"
	"github.com/carterperez-dev/templates/erp-backend/internal/core"
	"github.com/carterperez-dev/templates/erp-backend/internal/metrics"
)

const (
	TargetRefreshTokens   = "refresh_tokens"
	TargetPasswordHistory = "password_history"

	lockPrefix = "cleanup:"
)

type TokenStore interface {
	DeleteStale(ctx context.Context, now, revokedBefore time.Time) (int64, error)
	CountStale(ctx context.Context, now, revokedBefore time.Time) (int64, error)
}

type HistoryPruner interface {
	PruneHistory(ctx context.Context, cutoff time.Time) (int64, error)
	CountPrunable(ctx context.Context, cutoff time.Time) (int64, error)
}

type PermissionRefresher interface {
	Refresh(ctx context.Context) error
}

type Deps struct {
	Tokens      TokenStore
	History     HistoryPruner
	Permissions PermissionRefresher
	// Redis is optional. Without it every instance sweeps on its own
	// schedule, which is safe because sweeps are idempotent.
	Redis   redis.Cmdable
	Metrics metrics.Recorder
	Logger  *slog.Logger
	Config  config.CleanupConfig
}

// Scheduler periodically deletes stale refresh tokens and password history
// and reloads the permission cache.
type Scheduler struct {
	tokens  TokenStore
	history HistoryPruner
	perms   PermissionRefresher
	redis   redis.Cmdable
	metrics metrics.Recorder
	logger  *slog.Logger
	cfg     config.CleanupConfig
	now     func() time.Time
}

func New(deps Deps) *Scheduler {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Scheduler{
		tokens:  deps.Tokens,
		history: deps.History,
		perms:   deps.Permissions,
		redis:   deps.Redis,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		cfg:     deps.Config,
		now:     time.Now,
	}
}

// Result describes one sweep of one target.
type Result struct {
	Target  string `json:"target"`
	Count   int64  `json:"count"`
	DryRun  bool   `json:"dry_run"`
	Skipped bool   `json:"skipped"`
}

type Report struct {
	RefreshTokens   Result    `json:"refresh_tokens"`
	PasswordHistory Result    `json:"password_history"`
	StartedAt       time.Time `json:"started_at"`
	Duration        string    `json:"duration"`
}

// Run blocks until ctx is canceled, sweeping each target once at start and
// then on its own interval. Sweep failures are logged and retried on the
// next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("cleanup scheduler started",
		"refresh_token_interval", s.cfg.RefreshTokenInterval,
		"password_history_interval", s.cfg.PasswordHistoryInterval,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.loop(ctx, s.cfg.RefreshTokenInterval, func(ctx context.Context) {
			if _, err := s.SweepRefreshTokens(ctx, false); err != nil {
				s.logger.ErrorContext(ctx, "refresh token sweep failed", "error", err)
			}
			if err := s.refreshPermissions(ctx); err != nil {
				s.logger.WarnContext(ctx, "permission cache refresh failed", "error", err)
			}
		})
		return nil
	})

	g.Go(func() error {
		s.loop(ctx, s.cfg.PasswordHistoryInterval, func(ctx context.Context) {
			if _, err := s.SweepPasswordHistory(ctx, false); err != nil {
				s.logger.ErrorContext(ctx, "password history sweep failed", "error", err)
			}
		})
		return nil
	})

	err := g.Wait()
	s.logger.Info("cleanup scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	run := func() {
		tickCtx, cancel := s.sweepCtx(ctx)
		tick(tickCtx)
		cancel()
	}

	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// RunOnce sweeps both targets immediately. With dryRun set nothing is
// deleted and the counts are what a real sweep would remove.
func (s *Scheduler) RunOnce(ctx context.Context, dryRun bool) (*Report, error) {
	ctx, cancel := s.sweepCtx(ctx)
	defer cancel()

	report := &Report{StartedAt: s.now()}

	var errs []error

	tokens, err := s.SweepRefreshTokens(ctx, dryRun)
	if err != nil {
		errs = append(errs, err)
	}
	report.RefreshTokens = tokens

	history, err := s.SweepPasswordHistory(ctx, dryRun)
	if err != nil {
		errs = append(errs, err)
	}
	report.PasswordHistory = history

	if !dryRun {
		if err := s.refreshPermissions(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	report.Duration = s.now().Sub(report.StartedAt).String()

	return report, errors.Join(errs...)
}

// SweepRefreshTokens removes records that expired, or that were revoked
// longer ago than the retention window.
func (s *Scheduler) SweepRefreshTokens(ctx context.Context, dryRun bool) (Result, error) {
	now := s.now()
	revokedBefore := now.Add(-s.cfg.RevokedRetention)

	return s.sweep(ctx, TargetRefreshTokens, dryRun,
		func(ctx context.Context) (int64, error) {
			return s.tokens.CountStale(ctx, now, revokedBefore)
		},
		func(ctx context.Context) (int64, error) {
			return s.tokens.DeleteStale(ctx, now, revokedBefore)
		},
	)
}

// SweepPasswordHistory removes history entries older than the retention
// window regardless of the per-user limit.
func (s *Scheduler) SweepPasswordHistory(ctx context.Context, dryRun bool) (Result, error) {
	cutoff := s.now().Add(-s.cfg.HistoryRetention)

	return s.sweep(ctx, TargetPasswordHistory, dryRun,
		func(ctx context.Context) (int64, error) {
			return s.history.CountPrunable(ctx, cutoff)
		},
		func(ctx context.Context) (int64, error) {
			return s.history.PruneHistory(ctx, cutoff)
		},
	)
}

func (s *Scheduler) sweep(
	ctx context.Context,
	target string,
	dryRun bool,
	count, remove func(context.Context) (int64, error),
) (Result, error) {
	result := Result{Target: target, DryRun: dryRun}

	if dryRun {
		n, err := count(ctx)
		if err != nil {
			return result, fmt.Errorf("count %s: %w", target, err)
		}
		result.Count = n
		return result, nil
	}

	release, err := s.acquire(ctx, target)
	if err != nil {
		if errors.Is(err, core.ErrLockHeld) {
			s.logger.DebugContext(ctx, "sweep skipped, another instance holds the lock", "target", target)
			result.Skipped = true
			return result, nil
		}
		s.logger.WarnContext(ctx, "sweep lock unavailable, sweeping without it",
			"target", target,
			"error", err,
		)
	}
	if release != nil {
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.WarnContext(ctx, "sweep lock release failed", "target", target, "error", err)
			}
		}()
	}

	start := s.now()
	n, err := remove(ctx)
	if err != nil {
		return result, fmt.Errorf("sweep %s: %w", target, err)
	}
	result.Count = n

	s.metrics.RecordSweep(ctx, target, n)
	s.logger.InfoContext(ctx, "sweep completed",
		"target", target,
		"deleted", n,
		"duration", s.now().Sub(start),
	)

	return result, nil
}

func (s *Scheduler) acquire(ctx context.Context, target string) (func(context.Context) error, error) {
	if s.redis == nil {
		return nil, nil
	}
	return core.NewLock(s.redis, lockPrefix+target, s.cfg.LockTTL).Acquire(ctx)
}

func (s *Scheduler) refreshPermissions(ctx context.Context) error {
	if s.perms == nil {
		return nil
	}
	if err := s.perms.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh permissions: %w", err)
	}
	return nil
}

func (s *Scheduler) sweepCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.SweepTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.SweepTimeout)
}
