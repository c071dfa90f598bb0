package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/astrolabe-io/astrolabe/internal/config"
	"github.com/astrolabe-io/astrolabe/internal/ingestion"
)

func setupPostgresStore(ctx context.Context, t *testing.T) (*PostgresStore, *config.TestDatabase) {
	t.Helper()

	testDB := config.SetupTestDatabase(ctx, t)

	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	store, err := NewPostgresStore(&Connection{DB: testDB.Connection},
		WithPostgresLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	return store, testDB
}

func TestPostgresStore_Contract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store, _ := setupPostgresStore(ctx, t)

	runStoreContract(t, store)
}

func TestPostgresStore_ConcurrentInsert(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store, _ := setupPostgresStore(ctx, t)

	runConcurrentInsert(t, store)
}

func TestPostgresStore_OverlappingUpserts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store, _ := setupPostgresStore(ctx, t)

	runOverlappingUpserts(t, store)
}

func TestPostgresStore_MissingSatellite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store, _ := setupPostgresStore(ctx, t)
	_, obs := fixture(t, 99999, "ORPHAN", 24, 5)

	_, err := store.InsertObservations(ctx, []*ingestion.Observation{obs})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsertFailed)
	assert.ErrorIs(t, err, ErrMissingSatellite)
}

func TestPostgresStore_UpsertUpdatesIdentity(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store, testDB := setupPostgresStore(ctx, t)

	sat, _ := fixture(t, 25544, "ISS", 24, 10.5)
	_, err := store.UpsertSatellites(ctx, []*ingestion.SatelliteRecord{sat})
	require.NoError(t, err)

	renamed := *sat
	renamed.Name = "ISS (ZARYA)"
	renamed.IsActive = false

	_, err = store.UpsertSatellites(ctx, []*ingestion.SatelliteRecord{&renamed})
	require.NoError(t, err)

	var (
		name   string
		active bool
		rows   int
	)

	require.NoError(t, testDB.Connection.QueryRowContext(ctx,
		"SELECT name, is_active FROM satellites WHERE catalog_number = $1", 25544).Scan(&name, &active))
	require.NoError(t, testDB.Connection.QueryRowContext(ctx, "SELECT COUNT(*) FROM satellites").Scan(&rows))

	assert.Equal(t, "ISS (ZARYA)", name)
	assert.False(t, active)
	assert.Equal(t, 1, rows)

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalSatellites)
	assert.Equal(t, int64(0), stats.ActiveSatellites)
}

func TestOpen_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	_, testDB := setupPostgresStore(ctx, t)

	cfg := NewPostgresConfig(testDB.URL)
	cfg.AutoMigrate = true

	store, err := Open(ctx, cfg, nil)
	require.NoError(t, err)

	pg, ok := store.(*PostgresStore)
	require.True(t, ok)
	assert.True(t, pg.AtomicInsertIfAbsent())
	assert.NoError(t, store.HealthCheck(ctx))

	require.NoError(t, store.Close())
	assert.Error(t, pg.conn.PingContext(ctx), "owned connection is closed with the store")
}

func TestPostgresStore_Migrate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store, testDB := setupPostgresStore(ctx, t)

	// Already applied by the test setup.
	require.NoError(t, store.Migrate(ctx))

	m, err := NewMigrator(ctx, testDB.Connection, nil, defaultMigrationTable)
	require.NoError(t, err)
	require.NoError(t, m.Down())

	_, dbErr := m.Close()
	require.NoError(t, dbErr)

	var exists bool
	require.NoError(t, testDB.Connection.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'observations')`,
	).Scan(&exists))
	assert.False(t, exists)

	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, testDB.Connection.PingContext(ctx), "migrator must not close the shared pool")

	runStoreContract(t, store)
}
