// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "authctl",
		Usage: "Operational tasks for the ERP credential store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
			},
			&cli.StringFlag{
				Name:  "env",
				Value: ".env",
				Usage: "Path to .env file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Apply pending database migrations",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					c, err := newContainer(ctx, cmd.String("config"), cmd.String("env"), false)
					if err != nil {
						return err
					}
					defer c.Close()

					return RunMigrate(ctx, c.db, c.logger, os.Stdout)
				},
			},
			{
				Name:  "cleanup",
				Usage: "Delete stale refresh tokens and expired password history",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "dry-run",
						Aliases: []string{"n"},
						Usage:   "Report what would be deleted without deleting",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					c, err := newContainer(ctx, cmd.String("config"), cmd.String("env"), true)
					if err != nil {
						return err
					}
					defer c.Close()

					return RunCleanup(ctx, c.scheduler, c.logger, os.Stdout,
						cmd.Bool("dry-run"),
						cmd.String("format"),
					)
				},
			},
			{
				Name:  "reset-password",
				Usage: "Issue a temporary password and end every session of a user",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "user-id",
						Aliases:  []string{"u"},
						Required: true,
						Usage:    "User ID (UUID)",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					c, err := newContainer(ctx, cmd.String("config"), cmd.String("env"), true)
					if err != nil {
						return err
					}
					defer c.Close()

					return RunResetPassword(ctx, c.authSvc, c.logger, os.Stdout,
						cmd.String("user-id"),
						cmd.String("format"),
					)
				},
			},
			{
				Name:  "gen-secret",
				Usage: "Print a random secret suitable for ACCESS_TOKEN_SECRET or REFRESH_TOKEN_SECRET",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "bytes",
						Aliases: []string{"b"},
						Value:   48,
						Usage:   "Random bytes before encoding",
					},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					return RunGenSecret(os.Stdout, int(cmd.Int("bytes")))
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("authctl error", "error", err)
		os.Exit(1)
	}
}
