package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/astrolabe-io/astrolabe/internal/ingestion"
)

// sqliteTimeLayout stores instants as fixed-width UTC text so that lexical
// order equals chronological order and MAX(epoch) is meaningful.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

var (
	// ErrSchemaSetup is returned when the embedded schema cannot be created.
	ErrSchemaSetup = errors.New("schema setup failed")

	_ ingestion.Store          = (*SQLiteStore)(nil)
	_ ingestion.AtomicInserter = (*SQLiteStore)(nil)
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS satellites (
		catalog_number           INTEGER PRIMARY KEY,
		name                     TEXT NOT NULL,
		international_designator TEXT NOT NULL DEFAULT '',
		is_active                INTEGER NOT NULL DEFAULT 1,
		updated_at               TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS observations (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		catalog_number      INTEGER NOT NULL REFERENCES satellites (catalog_number),
		epoch               TEXT NOT NULL,
		line1               TEXT NOT NULL,
		line2               TEXT NOT NULL,
		inclination         REAL NOT NULL,
		raan                REAL NOT NULL,
		eccentricity        REAL NOT NULL,
		argument_of_perigee REAL NOT NULL,
		mean_anomaly        REAL NOT NULL,
		mean_motion         REAL NOT NULL,
		revolution_number   INTEGER NOT NULL,
		bstar               REAL NOT NULL,
		mean_motion_dot     REAL NOT NULL,
		source              TEXT NOT NULL DEFAULT 'celestrak',
		created_at          TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
		UNIQUE (catalog_number, epoch)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_observations_epoch ON observations (epoch)`,
	`CREATE INDEX IF NOT EXISTS idx_satellites_is_active ON satellites (is_active)`,
}

const (
	sqliteUpsertSatelliteSQL = `
		INSERT INTO satellites (catalog_number, name, international_designator, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (catalog_number) DO UPDATE SET
			name = excluded.name,
			international_designator = excluded.international_designator,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`

	sqliteInsertObservationSQL = `
		INSERT INTO observations (
			catalog_number, epoch, line1, line2,
			inclination, raan, eccentricity, argument_of_perigee, mean_anomaly, mean_motion,
			revolution_number, bstar, mean_motion_dot, source
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (catalog_number, epoch) DO NOTHING`

	sqliteStatsSQL = `
		SELECT
			(SELECT COUNT(*) FROM satellites),
			(SELECT COUNT(*) FROM satellites WHERE is_active = 1),
			(SELECT COUNT(*) FROM observations),
			(SELECT MAX(epoch) FROM observations)`
)

type (
	// SQLiteStore implements ingestion.Store on an embedded SQLite file.
	//
	// The store owns its schema and creates it on open. Foreign keys are enforced
	// and the pool is limited to one connection, so every write is serialized
	// and ON CONFLICT DO NOTHING gives an atomic insert-if-absent.
	SQLiteStore struct {
		db        *sql.DB
		path      string
		logger    *slog.Logger
		closeOnce sync.Once
		closeErr  error
	}

	// SQLiteStoreOption configures optional SQLiteStore behavior.
	SQLiteStoreOption func(*SQLiteStore)
)

// WithSQLiteLogger sets the store logger.
func WithSQLiteLogger(l *slog.Logger) SQLiteStoreOption {
	return func(s *SQLiteStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSQLiteStore opens (creating if needed) the database at path and ensures the schema.
// Use ":memory:" for a private in-memory database.
func NewSQLiteStore(ctx context.Context, path string, opts ...SQLiteStoreOption) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrSQLitePathEmpty
	}

	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, path: path, logger: slog.Default()}

	for _, opt := range opts {
		opt(s)
	}

	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()

		return nil, err
	}

	s.logger.Debug("sqlite store opened", slog.String("path", path))

	return s, nil
}

func sqliteDSN(path string) string {
	params := "_foreign_keys=on&_busy_timeout=10000"
	if path != ":memory:" {
		params += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	return "file:" + path + "?" + params
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %w", ErrSchemaSetup, err)
		}
	}

	return nil
}

// AtomicInsertIfAbsent reports that inserts are a single conflict-resolving statement.
func (s *SQLiteStore) AtomicInsertIfAbsent() bool {
	return true
}

// UpsertSatellites implements ingestion.Store.
func (s *SQLiteStore) UpsertSatellites(ctx context.Context, records []*ingestion.SatelliteRecord) (int, error) {
	records = ingestion.SortSatellitesByCatalog(ingestion.DedupeSatellites(records))
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin transaction: %w", ErrUpsertFailed, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertSatelliteSQL)
	if err != nil {
		return 0, fmt.Errorf("%w: prepare: %w", ErrUpsertFailed, err)
	}

	defer func() {
		_ = stmt.Close()
	}()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.CatalogNumber, r.Name, r.InternationalDesignator, r.IsActive, formatSQLiteTime(r.UpdatedAt),
		); err != nil {
			return 0, fmt.Errorf("%w: catalog_number=%d: %w", ErrUpsertFailed, r.CatalogNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", ErrUpsertFailed, err)
	}

	return len(records), nil
}

// InsertObservations implements ingestion.Store.
func (s *SQLiteStore) InsertObservations(
	ctx context.Context,
	observations []*ingestion.Observation,
) (*ingestion.InsertResult, error) {
	result := &ingestion.InsertResult{}
	if len(observations) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %w", ErrInsertFailed, err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, sqliteInsertObservationSQL)
	if err != nil {
		return nil, fmt.Errorf("%w: prepare: %w", ErrInsertFailed, err)
	}

	defer func() {
		_ = stmt.Close()
	}()

	for _, o := range observations {
		res, err := stmt.ExecContext(ctx,
			o.CatalogNumber, formatSQLiteTime(o.Epoch), o.Line1, o.Line2,
			o.Inclination, o.RAAN, o.Eccentricity, o.ArgumentOfPerigee, o.MeanAnomaly, o.MeanMotion,
			o.RevolutionNumber, o.BStar, o.MeanMotionDot, o.Source,
		)
		if err != nil {
			if isSQLiteForeignKeyError(err) {
				return nil, fmt.Errorf("%w: %w: catalog_number=%d", ErrInsertFailed, ErrMissingSatellite, o.CatalogNumber)
			}

			return nil, fmt.Errorf("%w: catalog_number=%d: %w", ErrInsertFailed, o.CatalogNumber, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("%w: rows affected: %w", ErrInsertFailed, err)
		}

		if n == 0 {
			result.Skipped++
			continue
		}

		result.Inserted++
		result.New = append(result.New, o)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", ErrInsertFailed, err)
	}

	return result, nil
}

// GetStats implements ingestion.Store.
func (s *SQLiteStore) GetStats(ctx context.Context) (*ingestion.StoreStats, error) {
	var (
		stats  ingestion.StoreStats
		latest sql.NullString
	)

	err := s.db.QueryRowContext(ctx, sqliteStatsSQL).Scan(
		&stats.TotalSatellites, &stats.ActiveSatellites, &stats.TotalObservations, &latest,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStatsFailed, err)
	}

	if latest.Valid {
		t, err := time.Parse(sqliteTimeLayout, latest.String)
		if err != nil {
			return nil, fmt.Errorf("%w: latest epoch %q: %w", ErrStatsFailed, latest.String, err)
		}

		stats.LatestEpoch = &t
	}

	return &stats, nil
}

// HealthCheck implements ingestion.Store.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite health check failed: %w", err)
	}

	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})

	return s.closeErr
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func isSQLiteForeignKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}

	return false
}
