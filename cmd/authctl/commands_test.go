// AngelaMos | 2026
// commands_test.go

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/erp-backend/internal/cleanup"
	"github.com/carterperez-dev/templates/erp-backend/internal/core"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubCleaner struct {
	report *cleanup.Report
	err    error
}

func (s stubCleaner) RunOnce(context.Context, bool) (*cleanup.Report, error) {
	return s.report, s.err
}

type stubResetter struct {
	err error
}

func (s stubResetter) ResetPassword(context.Context, string) (string, error) {
	return "Tmp!Passw0rd-abc", s.err
}

type stubMigrator struct {
	called bool
}

func (s *stubMigrator) Migrate(context.Context) error {
	s.called = true
	return nil
}

func report(dryRun bool) *cleanup.Report {
	return &cleanup.Report{
		RefreshTokens:   cleanup.Result{Target: cleanup.TargetRefreshTokens, Count: 12, DryRun: dryRun},
		PasswordHistory: cleanup.Result{Target: cleanup.TargetPasswordHistory, Count: 3, DryRun: dryRun},
	}
}

func TestRunCleanup(t *testing.T) {
	ctx := context.Background()

	t.Run("text-output", func(t *testing.T) {
		var out bytes.Buffer
		err := RunCleanup(ctx, stubCleaner{report: report(false)}, discard, &out, false, "text")

		require.NoError(t, err)
		assert.Contains(t, out.String(), "refresh_tokens: Deleted 12 row(s)")
		assert.Contains(t, out.String(), "password_history: Deleted 3 row(s)")
	})

	t.Run("dry-run-json", func(t *testing.T) {
		var out bytes.Buffer
		err := RunCleanup(ctx, stubCleaner{report: report(true)}, discard, &out, true, "json")

		require.NoError(t, err)
		assert.Contains(t, out.String(), `"count": 12`)
		assert.Contains(t, out.String(), `"dry_run": true`)
	})

	t.Run("skipped", func(t *testing.T) {
		r := report(false)
		r.PasswordHistory.Skipped = true

		var out bytes.Buffer
		require.NoError(t, RunCleanup(ctx, stubCleaner{report: r}, discard, &out, false, "text"))
		assert.Contains(t, out.String(), "password_history: skipped")
	})

	t.Run("partial-failure-prints-report", func(t *testing.T) {
		var out bytes.Buffer
		err := RunCleanup(ctx,
			stubCleaner{report: report(false), err: errors.New("sweep password_history: timeout")},
			discard, &out, false, "text")

		require.Error(t, err)
		assert.Contains(t, out.String(), "refresh_tokens: Deleted 12 row(s)")
	})

	t.Run("invalid-format", func(t *testing.T) {
		err := RunCleanup(ctx, stubCleaner{}, discard, &bytes.Buffer{}, false, "yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "format must be")
	})
}

func TestRunResetPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("text-output", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, RunResetPassword(ctx, stubResetter{}, discard, &out, "u1", "text"))
		assert.Contains(t, out.String(), "Temporary password for u1: Tmp!Passw0rd-abc")
	})

	t.Run("json-output", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, RunResetPassword(ctx, stubResetter{}, discard, &out, "u1", "json"))
		assert.Contains(t, out.String(), `"temporary_password": "Tmp!Passw0rd-abc"`)
	})

	t.Run("unknown-user", func(t *testing.T) {
		err := RunResetPassword(ctx, stubResetter{err: core.ErrNotFound}, discard, &bytes.Buffer{}, "nope", "text")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestRunMigrate(t *testing.T) {
	m := &stubMigrator{}
	var out bytes.Buffer

	require.NoError(t, RunMigrate(context.Background(), m, discard, &out))
	assert.True(t, m.called)
	assert.Contains(t, out.String(), "Migrations applied")
}

func TestRunGenSecret(t *testing.T) {
	t.Run("default-length", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, RunGenSecret(&out, 48))
		assert.Len(t, strings.TrimSpace(out.String()), 64)
	})

	t.Run("too-short", func(t *testing.T) {
		err := RunGenSecret(&bytes.Buffer{}, 16)
		require.Error(t, err)
	})
}
