package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/streakbot/habit-streak-bot/pkg/logger"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSchema(cmd.Context(), opts, func(ctx context.Context, s schema) error {
				if err := s.Migrate(ctx); err != nil {
					return err
				}
				return printStatus(ctx, cmd.OutOrStdout(), s)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the latest applied migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSchema(cmd.Context(), opts, func(ctx context.Context, s schema) error {
				if err := s.Rollback(ctx); err != nil {
					return err
				}
				return printStatus(ctx, cmd.OutOrStdout(), s)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSchema(cmd.Context(), opts, func(ctx context.Context, s schema) error {
				return printStatus(ctx, cmd.OutOrStdout(), s)
			})
		},
	})

	return cmd
}

// withSchema opens the configured store without touching its schema and
// hands the migrator to fn.
func withSchema(ctx context.Context, opts *rootOptions, fn func(context.Context, schema) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	log, logCloser, err := logger.New(logger.Options{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logCloser.Close()

	store, s, err := openStore(ctx, cfg.Database, log, true)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(ctx, s)
}

func printStatus(ctx context.Context, w io.Writer, s schema) error {
	status, err := s.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED AT")
	for _, m := range status {
		applied := "pending"
		if m.Applied {
			applied = m.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", m.Version, m.Name, applied)
	}
	return tw.Flush()
}
