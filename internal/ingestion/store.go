package ingestion

import (
	"context"
	"time"
)

// Store is the persistence contract every backend satisfies.
//
// Implementations live in internal/storage (embedded SQLite, PostgreSQL and a
// remote PostgREST API). The pipeline only ever sees this interface.
type Store interface {
	// UpsertSatellites creates or updates identity rows keyed by catalog number.
	// Calling it again with the same records changes nothing but updated_at.
	// Returns the number of distinct catalog numbers written.
	UpsertSatellites(ctx context.Context, records []*SatelliteRecord) (int, error)

	// InsertObservations inserts each observation unless a row with the same
	// (catalog number, epoch) exists, in which case it is counted as skipped.
	// A non-nil error means the whole call failed and no counts apply.
	InsertObservations(ctx context.Context, observations []*Observation) (*InsertResult, error)

	// GetStats returns store-wide totals.
	GetStats(ctx context.Context) (*StoreStats, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// AtomicInserter is implemented by stores whose insert-if-absent is a single
// atomic storage operation. Only those stores accept concurrent flushes.
type AtomicInserter interface {
	AtomicInsertIfAbsent() bool
}

// Publisher receives observations that were newly inserted by a flush.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, runID string, observations []*Observation) error
	Close() error
}

// Recorder observes pipeline activity, typically for metrics.
type Recorder interface {
	RecordDecode(err error)
	RecordFlush(step string, elapsed time.Duration, err error)
	RecordObservations(inserted, skipped, failed int)
	RecordPublish(publisher string, count int, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordDecode(error)                       {}
func (nopRecorder) RecordFlush(string, time.Duration, error) {}
func (nopRecorder) RecordObservations(int, int, int)         {}
func (nopRecorder) RecordPublish(string, int, error)         {}
