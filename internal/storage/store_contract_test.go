package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astrolabe-io/astrolabe/internal/ingestion"
	"github.com/astrolabe-io/astrolabe/internal/tle"
	"github.com/astrolabe-io/astrolabe/internal/tle/tletest"
)

var contractNow = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

// fixture decodes a generated record into the rows the pipeline would write.
func fixture(t *testing.T, catalog int, name string, year int, day float64) (*ingestion.SatelliteRecord, *ingestion.Observation) {
	t.Helper()

	lines := tletest.Record(catalog, name, year, day)

	es, err := tle.Decode(lines[0], lines[1], lines[2])
	require.NoError(t, err)

	return ingestion.NewSatelliteRecord(es, contractNow), ingestion.NewObservation(es, "test")
}

// runStoreContract exercises the behavior every backend must share.
func runStoreContract(t *testing.T, store ingestion.Store) {
	t.Helper()

	ctx := context.Background()

	t.Run("empty store stats", func(t *testing.T) {
		stats, err := store.GetStats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), stats.TotalSatellites)
		assert.Equal(t, int64(0), stats.TotalObservations)
		assert.Nil(t, stats.LatestEpoch)
	})

	t.Run("insert is idempotent on exact duplicate", func(t *testing.T) {
		sat, obs := fixture(t, 25544, "ISS (ZARYA)", 24, 10.5)

		n, err := store.UpsertSatellites(ctx, []*ingestion.SatelliteRecord{sat})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		first, err := store.InsertObservations(ctx, []*ingestion.Observation{obs})
		require.NoError(t, err)
		assert.Equal(t, 1, first.Inserted)
		assert.Equal(t, 0, first.Skipped)
		require.Len(t, first.New, 1)

		second, err := store.InsertObservations(ctx, []*ingestion.Observation{obs})
		require.NoError(t, err)
		assert.Equal(t, 0, second.Inserted)
		assert.Equal(t, 1, second.Skipped)
		assert.Empty(t, second.New)
	})

	t.Run("duplicate within one call", func(t *testing.T) {
		sat, obs := fixture(t, 20580, "HST", 24, 1.5)

		_, err := store.UpsertSatellites(ctx, []*ingestion.SatelliteRecord{sat})
		require.NoError(t, err)

		result, err := store.InsertObservations(ctx, []*ingestion.Observation{obs, obs})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Inserted)
		assert.Equal(t, 1, result.Skipped)
	})

	t.Run("new epoch for known satellite inserts", func(t *testing.T) {
		_, later := fixture(t, 25544, "ISS (ZARYA)", 24, 11.5)

		result, err := store.InsertObservations(ctx, []*ingestion.Observation{later})
		require.NoError(t, err)
		assert.Equal(t, 1, result.Inserted)
	})

	t.Run("upsert collapses duplicates last write wins", func(t *testing.T) {
		older, _ := fixture(t, 43013, "OLD NAME", 24, 20)
		newer, _ := fixture(t, 43013, "NEW NAME", 24, 20)

		n, err := store.UpsertSatellites(ctx, []*ingestion.SatelliteRecord{older, newer})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		again, err := store.UpsertSatellites(ctx, []*ingestion.SatelliteRecord{newer})
		require.NoError(t, err)
		assert.Equal(t, 1, again)
	})

	t.Run("stats reflect whole store", func(t *testing.T) {
		stats, err := store.GetStats(ctx)
		require.NoError(t, err)

		assert.Equal(t, int64(3), stats.TotalSatellites)
		assert.Equal(t, int64(3), stats.ActiveSatellites)
		assert.Equal(t, int64(3), stats.TotalObservations)

		_, latest := fixture(t, 25544, "ISS (ZARYA)", 24, 11.5)
		require.NotNil(t, stats.LatestEpoch)
		assert.True(t, latest.Epoch.Equal(*stats.LatestEpoch), "latest epoch %s", stats.LatestEpoch)
	})

	t.Run("empty calls are no-ops", func(t *testing.T) {
		n, err := store.UpsertSatellites(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		result, err := store.InsertObservations(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Inserted)
	})

	t.Run("health check", func(t *testing.T) {
		assert.NoError(t, store.HealthCheck(ctx))
	})
}

// runConcurrentInsert inserts the same observation from several goroutines.
// Exactly one call may report it as inserted.
func runConcurrentInsert(t *testing.T, store ingestion.Store) {
	t.Helper()

	ctx := context.Background()
	sat, obs := fixture(t, 48274, "CSS (TIANHE)", 24, 30.25)

	_, err := store.UpsertSatellites(ctx, []*ingestion.SatelliteRecord{sat})
	require.NoError(t, err)

	const writers = 8

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
		skipped  int
	)

	for range writers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			result, err := store.InsertObservations(ctx, []*ingestion.Observation{obs})
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			inserted += result.Inserted
			skipped += result.Skipped
			mu.Unlock()
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, inserted)
	assert.Equal(t, writers-1, skipped)
}

// runOverlappingUpserts upserts the same catalog numbers from several
// goroutines, half of them in reverse order. Every upsert must succeed.
func runOverlappingUpserts(t *testing.T, store ingestion.Store) {
	t.Helper()

	ctx := context.Background()

	var forward []*ingestion.SatelliteRecord
	for i := range 20 {
		sat, _ := fixture(t, 46000+i, "STARLINK", 24, 100.5)
		forward = append(forward, sat)
	}

	reverse := make([]*ingestion.SatelliteRecord, len(forward))
	for i, sat := range forward {
		reverse[len(forward)-1-i] = sat
	}

	const writers = 8

	var wg sync.WaitGroup

	for w := range writers {
		records := forward
		if w%2 == 1 {
			records = reverse
		}

		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 5 {
				updated, err := store.UpsertSatellites(ctx, records)
				if !assert.NoError(t, err) {
					return
				}

				assert.Equal(t, len(records), updated)
			}
		}()
	}

	wg.Wait()

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(forward)), stats.TotalSatellites)
}
