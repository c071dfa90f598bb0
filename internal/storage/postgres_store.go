package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/astrolabe-io/astrolabe/internal/ingestion"
)

// PostgreSQL SQLSTATE codes the stores react to.
const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
)

var (
	// ErrUpsertFailed is returned when a satellite upsert cannot complete.
	ErrUpsertFailed = errors.New("satellite upsert failed")
	// ErrInsertFailed is returned when an observation insert cannot complete.
	ErrInsertFailed = errors.New("observation insert failed")
	// ErrStatsFailed is returned when store totals cannot be read.
	ErrStatsFailed = errors.New("stats query failed")
	// ErrMissingSatellite is returned when an observation references an unknown catalog number.
	ErrMissingSatellite = errors.New("observation references unknown satellite")

	_ ingestion.Store          = (*PostgresStore)(nil)
	_ ingestion.AtomicInserter = (*PostgresStore)(nil)
)

const (
	upsertSatelliteSQL = `
		INSERT INTO satellites (catalog_number, name, international_designator, is_active, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (catalog_number) DO UPDATE SET
			name = EXCLUDED.name,
			international_designator = EXCLUDED.international_designator,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`

	insertObservationSQL = `
		INSERT INTO observations (
			catalog_number, epoch, line1, line2,
			inclination, raan, eccentricity, argument_of_perigee, mean_anomaly, mean_motion,
			revolution_number, bstar, mean_motion_dot, source
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT ON CONSTRAINT observations_catalog_epoch_key DO NOTHING
		RETURNING id`

	statsSQL = `
		SELECT total_satellites, active_satellites, total_observations, latest_epoch
		FROM get_tle_stats()`
)

type (
	// PostgresStore implements ingestion.Store on PostgreSQL.
	//
	// Each call runs in one transaction. Observations use INSERT ... ON CONFLICT
	// DO NOTHING against the (catalog_number, epoch) constraint, so concurrent
	// flushes cannot create duplicates. The schema is owned by the migrations
	// package and applied with the migrator or Migrate.
	PostgresStore struct {
		conn           *Connection
		logger         *slog.Logger
		ownsConn       bool
		migrationTable string
		closeOnce      sync.Once
		closeErr       error
	}

	// PostgresStoreOption configures optional PostgresStore behavior.
	PostgresStoreOption func(*PostgresStore)
)

// WithPostgresLogger sets the store logger.
func WithPostgresLogger(l *slog.Logger) PostgresStoreOption {
	return func(s *PostgresStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithOwnedConnection makes Close also close the underlying connection.
func WithOwnedConnection() PostgresStoreOption {
	return func(s *PostgresStore) {
		s.ownsConn = true
	}
}

// WithMigrationTable sets the version table used by Migrate.
func WithMigrationTable(table string) PostgresStoreOption {
	return func(s *PostgresStore) {
		if table != "" {
			s.migrationTable = table
		}
	}
}

// NewPostgresStore creates a PostgreSQL-backed store over conn.
func NewPostgresStore(conn *Connection, opts ...PostgresStoreOption) (*PostgresStore, error) {
	if conn == nil || conn.DB == nil {
		return nil, ErrNoDatabaseConnection
	}

	s := &PostgresStore{conn: conn, logger: slog.Default(), migrationTable: defaultMigrationTable}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Migrate applies pending embedded migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return MigrateUp(ctx, s.conn.DB, s.migrationTable, s.logger)
}

// AtomicInsertIfAbsent reports that inserts are a single conflict-resolving statement.
func (s *PostgresStore) AtomicInsertIfAbsent() bool {
	return true
}

// UpsertSatellites implements ingestion.Store.
func (s *PostgresStore) UpsertSatellites(ctx context.Context, records []*ingestion.SatelliteRecord) (int, error) {
	records = ingestion.SortSatellitesByCatalog(ingestion.DedupeSatellites(records))
	if len(records) == 0 {
		return 0, nil
	}

	start := time.Now()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin transaction: %w", ErrUpsertFailed, err)
	}

	defer func() {
		_ = tx.Rollback() // Safe to call even after commit
	}()

	stmt, err := tx.PrepareContext(ctx, upsertSatelliteSQL)
	if err != nil {
		return 0, fmt.Errorf("%w: prepare: %w", ErrUpsertFailed, err)
	}

	defer func() {
		_ = stmt.Close()
	}()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.CatalogNumber, r.Name, r.InternationalDesignator, r.IsActive, r.UpdatedAt.UTC(),
		); err != nil {
			return 0, fmt.Errorf("%w: catalog_number=%d: %w", ErrUpsertFailed, r.CatalogNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", ErrUpsertFailed, err)
	}

	s.logger.Debug("satellites upserted",
		slog.Int("count", len(records)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return len(records), nil
}

// InsertObservations implements ingestion.Store.
//
// A foreign key violation aborts the whole call with ErrMissingSatellite: the
// caller must upsert satellites first.
func (s *PostgresStore) InsertObservations(
	ctx context.Context,
	observations []*ingestion.Observation,
) (*ingestion.InsertResult, error) {
	result := &ingestion.InsertResult{}
	if len(observations) == 0 {
		return result, nil
	}

	start := time.Now()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %w", ErrInsertFailed, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, insertObservationSQL)
	if err != nil {
		return nil, fmt.Errorf("%w: prepare: %w", ErrInsertFailed, err)
	}

	defer func() {
		_ = stmt.Close()
	}()

	for _, o := range observations {
		var id int64

		err := stmt.QueryRowContext(ctx,
			o.CatalogNumber, o.Epoch.UTC(), o.Line1, o.Line2,
			o.Inclination, o.RAAN, o.Eccentricity, o.ArgumentOfPerigee, o.MeanAnomaly, o.MeanMotion,
			o.RevolutionNumber, o.BStar, o.MeanMotionDot, o.Source,
		).Scan(&id)

		switch {
		case err == nil:
			result.Inserted++
			result.New = append(result.New, o)
		case errors.Is(err, sql.ErrNoRows):
			result.Skipped++
		case pqErrorCode(err) == pgForeignKeyViolation:
			return nil, fmt.Errorf("%w: %w: catalog_number=%d", ErrInsertFailed, ErrMissingSatellite, o.CatalogNumber)
		case isDatabaseConnectionError(err):
			return nil, fmt.Errorf("%w: database connection lost: %w", ErrInsertFailed, err)
		default:
			return nil, fmt.Errorf("%w: catalog_number=%d: %w", ErrInsertFailed, o.CatalogNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", ErrInsertFailed, err)
	}

	s.logger.Debug("observations inserted",
		slog.Int("inserted", result.Inserted),
		slog.Int("skipped", result.Skipped),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return result, nil
}

// GetStats implements ingestion.Store using the get_tle_stats() function.
func (s *PostgresStore) GetStats(ctx context.Context) (*ingestion.StoreStats, error) {
	var (
		stats  ingestion.StoreStats
		latest sql.NullTime
	)

	err := s.conn.QueryRowContext(ctx, statsSQL).Scan(
		&stats.TotalSatellites, &stats.ActiveSatellites, &stats.TotalObservations, &latest,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStatsFailed, err)
	}

	if latest.Valid {
		t := latest.Time.UTC()
		stats.LatestEpoch = &t
	}

	return &stats, nil
}

// HealthCheck implements ingestion.Store.
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

// Close releases the connection when the store owns it.
func (s *PostgresStore) Close() error {
	s.closeOnce.Do(func() {
		if s.ownsConn {
			s.closeErr = s.conn.Close()
		}
	})

	return s.closeErr
}
