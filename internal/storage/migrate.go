package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/astrolabe-io/astrolabe/migrations"
)

// ErrMigrationFailed is returned when the schema cannot be brought up to date.
var ErrMigrationFailed = errors.New("migration failed")

// NewMigrator returns a golang-migrate instance over set, bound to a single
// connection taken from db. Closing the migrator releases that connection but
// leaves db open. A nil set selects the embedded schema.
func NewMigrator(ctx context.Context, db *sql.DB, set *migrations.Set, table string) (*migrate.Migrate, error) {
	if db == nil {
		return nil, ErrNoDatabaseConnection
	}

	if set == nil {
		set = migrations.New(nil)
	}

	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	src, err := set.Source()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = src.Close()

		return nil, fmt.Errorf("%w: acquire connection: %w", ErrMigrationFailed, err)
	}

	driver, err := migratepg.WithConnection(ctx, conn, &migratepg.Config{MigrationsTable: table})
	if err != nil {
		_ = src.Close()
		_ = conn.Close()

		return nil, fmt.Errorf("%w: postgres driver: %w", ErrMigrationFailed, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = src.Close()
		_ = driver.Close()

		return nil, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	return m, nil
}

// MigrateUp applies every pending embedded migration. An up-to-date schema is not an error.
func MigrateUp(ctx context.Context, db *sql.DB, table string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	start := time.Now()

	m, err := NewMigrator(ctx, db, nil, table)
	if err != nil {
		return err
	}

	defer func() {
		_, _ = m.Close()
	}()

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("%w: read version: %w", ErrMigrationFailed, verr)
	}

	logger.Info("schema up to date",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
		slog.Bool("changed", err == nil),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return nil
}
