package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/astrolabe-io/astrolabe/internal/storage"
	"github.com/astrolabe-io/astrolabe/migrations"
)

const pingTimeout = 10 * time.Second

type (
	// MigrationRunner defines the interface for running database migrations.
	MigrationRunner interface {
		// Up applies all pending migrations.
		Up() error

		// Down rolls back the last migration.
		Down() error

		// Status shows the current migration status.
		Status() error

		// Version shows the current migration version.
		Version() error

		// Drop drops all tables (destructive operation).
		Drop() error

		// Close closes any open connections.
		Close() error
	}

	// migrationRunner implements MigrationRunner using golang-migrate.
	migrationRunner struct {
		config  *Config
		set     *migrations.Set
		migrate *migrate.Migrate
		db      *sql.DB
		out     io.Writer
		logger  *slog.Logger
	}

	// migrateLogger adapts slog to migrate.Logger.
	migrateLogger struct {
		logger *slog.Logger
	}
)

var _ migrate.Logger = (*migrateLogger)(nil)

// NewMigrationRunner creates a new migration runner with the given configuration.
// Status and version output is written to out.
func NewMigrationRunner(ctx context.Context, cfg *Config, out io.Writer, logger *slog.Logger) (MigrationRunner, error) {
	logger.Info("Initializing migration runner", slog.String("config", cfg.String()))

	db, err := sql.Open("postgres", cfg.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	var fsys fs.FS
	if cfg.MigrationsPath != "" {
		fsys = os.DirFS(cfg.MigrationsPath)
	}

	set := migrations.New(fsys)

	m, err := storage.NewMigrator(ctx, db, set, cfg.MigrationTable)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	m.Log = &migrateLogger{logger: logger}

	logger.Info("Migration runner initialized",
		slog.Int("available_version", set.MaxVersion()))

	return &migrationRunner{
		config:  cfg,
		set:     set,
		migrate: m,
		db:      db,
		out:     out,
		logger:  logger,
	}, nil
}

// Up applies all pending migrations.
func (r *migrationRunner) Up() error {
	r.logger.Info("Starting migration up")

	err := r.migrate.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		r.logger.Info("No new migrations to apply")
	} else {
		r.logger.Info("All migrations applied successfully")
	}

	return nil
}

// Down rolls back the last migration.
func (r *migrationRunner) Down() error {
	r.logger.Info("Starting migration down")

	err := r.migrate.Steps(-1)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("migration down failed: %w", err)
	}

	if err != nil {
		r.logger.Info("No migrations to roll back")
	} else {
		r.logger.Info("Last migration rolled back successfully")
	}

	return nil
}

// Status shows the current version and how many migrations are pending.
func (r *migrationRunner) Status() error {
	available := r.set.MaxVersion()

	ver, dirty, err := r.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			_, _ = fmt.Fprintf(r.out, "Migration Status: No migrations applied yet (%d pending)\n", available)

			return nil
		}

		return fmt.Errorf("failed to get migration version: %w", err)
	}

	status := "clean"
	if dirty {
		status = "dirty (needs manual intervention)"
	}

	_, _ = fmt.Fprintf(r.out, "Migration Status: Version %d (%s)\n", ver, status)

	pending := available - int(ver) //nolint:gosec // versions are three-digit sequence numbers
	if pending > 0 {
		_, _ = fmt.Fprintf(r.out, "Pending migrations: %d (latest available: %d)\n", pending, available)
	} else {
		_, _ = fmt.Fprintln(r.out, "Pending migrations: 0")
	}

	return nil
}

// Version shows the current migration version.
func (r *migrationRunner) Version() error {
	ver, dirty, err := r.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			_, _ = fmt.Fprintln(r.out, "Current Version: No migrations applied")

			return nil
		}

		return fmt.Errorf("failed to get migration version: %w", err)
	}

	dirtyNote := ""
	if dirty {
		dirtyNote = " (dirty)"
	}

	_, _ = fmt.Fprintf(r.out, "Current Version: %d%s\n", ver, dirtyNote)

	return nil
}

// Drop drops all tables (destructive operation).
func (r *migrationRunner) Drop() error {
	r.logger.Warn("Dropping all tables")

	if err := r.migrate.Drop(); err != nil {
		return fmt.Errorf("drop operation failed: %w", err)
	}

	r.logger.Info("All tables dropped successfully")

	return nil
}

// Close releases the migrator connection and then the pool.
func (r *migrationRunner) Close() error {
	var errs []error

	if r.migrate != nil {
		sourceErr, dbErr := r.migrate.Close()
		if sourceErr != nil {
			errs = append(errs, fmt.Errorf("source close error: %w", sourceErr))
		}

		if dbErr != nil {
			errs = append(errs, fmt.Errorf("database close error: %w", dbErr))
		}
	}

	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database connection close error: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...), slog.String("component", "migrate"))
}

func (l *migrateLogger) Verbose() bool {
	return l.logger.Enabled(context.Background(), slog.LevelDebug)
}
