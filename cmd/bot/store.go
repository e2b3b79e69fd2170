package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streakbot/habit-streak-bot/config"
	"github.com/streakbot/habit-streak-bot/internal/domain/habit"
	"github.com/streakbot/habit-streak-bot/internal/infrastructure/persistence/postgres"
	"github.com/streakbot/habit-streak-bot/internal/infrastructure/persistence/sqlite"
)

// migrationStatus is one row of `migrate status`, shared by both drivers.
type migrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// schema is the migration surface of a storage driver.
type schema interface {
	Migrate(ctx context.Context) error
	Rollback(ctx context.Context) error
	Status(ctx context.Context) ([]migrationStatus, error)
}

// openStore opens the configured store. With manageSchema the schema is left
// alone and returned for the migrate command; otherwise it is brought up to
// date before the store is returned.
func openStore(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger, manageSchema bool) (habit.Store, schema, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pgCfg := postgres.DefaultConfig(cfg.URL)
		pgCfg.MaxConns = int32(cfg.MaxConns)
		pgCfg.MinConns = int32(cfg.MinConns)
		pgCfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pgCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

		conn, err := postgres.NewConnection(ctx, pgCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}

		s := pgSchema{postgres.NewMigrator(conn)}
		if !manageSchema {
			if err := s.Migrate(ctx); err != nil {
				conn.Close()
				return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			logMigrations(ctx, log, s)
		}
		return postgres.NewHabitRepository(conn), s, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, sqlite.Config{
			Path:           cfg.Path,
			BusyTimeout:    cfg.BusyTimeout,
			SkipMigrations: manageSchema,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		return store, sqliteSchema{sqlite.NewMigrator(store)}, nil

	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func logMigrations(ctx context.Context, log *slog.Logger, s schema) {
	status, err := s.Status(ctx)
	if err != nil {
		log.Warn("failed to get migration status", "error", err)
		return
	}
	applied := 0
	for _, m := range status {
		if m.Applied {
			applied++
		}
	}
	log.Info("migrations completed", "applied", applied, "total", len(status))
}

type pgSchema struct{ m *postgres.Migrator }

func (s pgSchema) Migrate(ctx context.Context) error  { return s.m.Migrate(ctx) }
func (s pgSchema) Rollback(ctx context.Context) error { return s.m.Rollback(ctx) }

func (s pgSchema) Status(ctx context.Context) ([]migrationStatus, error) {
	list, err := s.m.Status(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]migrationStatus, 0, len(list))
	for _, m := range list {
		out = append(out, migrationStatus{Version: m.Version, Name: m.Name, Applied: m.IsApplied, AppliedAt: m.AppliedAt})
	}
	return out, nil
}

type sqliteSchema struct{ m *sqlite.Migrator }

func (s sqliteSchema) Migrate(ctx context.Context) error  { return s.m.Migrate(ctx) }
func (s sqliteSchema) Rollback(ctx context.Context) error { return s.m.Rollback(ctx) }

func (s sqliteSchema) Status(ctx context.Context) ([]migrationStatus, error) {
	list, err := s.m.Status(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]migrationStatus, 0, len(list))
	for _, m := range list {
		out = append(out, migrationStatus{Version: m.Version, Name: m.Name, Applied: m.IsApplied, AppliedAt: m.AppliedAt})
	}
	return out, nil
}
