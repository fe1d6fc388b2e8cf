// AngelaMos | 2026
// commands.go

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/carterperez-dev/templates/erp-backend/internal/cleanup"
	"github.com/carterperez-dev/templates/erp-backend/internal/core"
)

const minSecretBytes = 32

type Migrator interface {
	Migrate(ctx context.Context) error
}

type Cleaner interface {
	RunOnce(ctx context.Context, dryRun bool) (*cleanup.Report, error)
}

type PasswordResetter interface {
	ResetPassword(ctx context.Context, userID string) (string, error)
}

func RunMigrate(ctx context.Context, m Migrator, logger *slog.Logger, w io.Writer) error {
	logger.Info("applying migrations")

	if err := m.Migrate(ctx); err != nil {
		return err
	}

	fmt.Fprintln(w, "Migrations applied")
	return nil
}

// RunCleanup sweeps both targets once. A partial failure still prints the
// report before returning the error.
func RunCleanup(
	ctx context.Context,
	c Cleaner,
	logger *slog.Logger,
	w io.Writer,
	dryRun bool,
	format string,
) error {
	if err := checkFormat(format); err != nil {
		return err
	}

	logger.Info("running cleanup", slog.Bool("dry_run", dryRun))

	report, runErr := c.RunOnce(ctx, dryRun)
	if report != nil {
		if err := writeReport(w, report, format); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("cleanup: %w", runErr)
	}

	return nil
}

func writeReport(w io.Writer, report *cleanup.Report, format string) error {
	if format == "json" {
		return writeJSON(w, report)
	}

	verb := "Deleted"
	if report.RefreshTokens.DryRun {
		verb = "Would delete"
	}

	for _, res := range []cleanup.Result{report.RefreshTokens, report.PasswordHistory} {
		if res.Skipped {
			fmt.Fprintf(w, "%s: skipped, another instance is sweeping\n", res.Target)
			continue
		}
		fmt.Fprintf(w, "%s: %s %d row(s)\n", res.Target, verb, res.Count)
	}

	return nil
}

func RunResetPassword(
	ctx context.Context,
	r PasswordResetter,
	logger *slog.Logger,
	w io.Writer,
	userID string,
	format string,
) error {
	if err := checkFormat(format); err != nil {
		return err
	}

	temp, err := r.ResetPassword(ctx, userID)
	if err != nil {
		return fmt.Errorf("reset password for %s: %w", userID, err)
	}

	logger.Info("password reset", slog.String("user_id", userID))

	if format == "json" {
		return writeJSON(w, map[string]string{
			"user_id":            userID,
			"temporary_password": temp,
		})
	}

	fmt.Fprintf(w, "Temporary password for %s: %s\n", userID, temp)
	fmt.Fprintln(w, "The user must change it at next login. All sessions were ended.")
	return nil
}

func RunGenSecret(w io.Writer, n int) error {
	if n < minSecretBytes {
		return fmt.Errorf("bytes must be at least %d, got %d", minSecretBytes, n)
	}

	secret, err := core.GenerateSecureToken(n)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, secret)
	return nil
}

func checkFormat(format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("format must be 'text' or 'json', got %q", format)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
