package ingestion

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errInjected = errors.New("injected failure")

// fakeStore is an in-memory Store with failure injection.
type fakeStore struct {
	mu           sync.Mutex
	satellites   map[int]*SatelliteRecord
	observations map[ObservationKey]*Observation
	upsertCalls  int
	insertCalls  int
	failUpsertAt int // 1-based call number, 0 disables
	failInsertAt int
	atomic       bool
	// upsertDelay, when set, returns how long an upsert of records sleeps
	// before touching the store.
	upsertDelay func(records []*SatelliteRecord) time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		satellites:   make(map[int]*SatelliteRecord),
		observations: make(map[ObservationKey]*Observation),
	}
}

func (f *fakeStore) UpsertSatellites(_ context.Context, records []*SatelliteRecord) (int, error) {
	if f.upsertDelay != nil {
		time.Sleep(f.upsertDelay(records))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.upsertCalls++
	if f.upsertCalls == f.failUpsertAt {
		return 0, errInjected
	}

	deduped := DedupeSatellites(records)
	for _, r := range deduped {
		f.satellites[r.CatalogNumber] = r
	}

	return len(deduped), nil
}

func (f *fakeStore) InsertObservations(_ context.Context, observations []*Observation) (*InsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.insertCalls++
	if f.insertCalls == f.failInsertAt {
		return nil, errInjected
	}

	result := &InsertResult{}

	for _, o := range observations {
		if _, ok := f.observations[o.Key()]; ok {
			result.Skipped++
			continue
		}

		f.observations[o.Key()] = o
		result.Inserted++
		result.New = append(result.New, o)
	}

	return result, nil
}

func (f *fakeStore) GetStats(context.Context) (*StoreStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stats := &StoreStats{
		TotalSatellites:   int64(len(f.satellites)),
		TotalObservations: int64(len(f.observations)),
	}

	for _, s := range f.satellites {
		if s.IsActive {
			stats.ActiveSatellites++
		}
	}

	for k := range f.observations {
		if stats.LatestEpoch == nil || k.Epoch.After(*stats.LatestEpoch) {
			epoch := k.Epoch
			stats.LatestEpoch = &epoch
		}
	}

	return stats, nil
}

func (f *fakeStore) HealthCheck(context.Context) error { return nil }

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) AtomicInsertIfAbsent() bool { return f.atomic }

// fakePublisher records every published observation.
type fakePublisher struct {
	mu        sync.Mutex
	published []*Observation
	runIDs    []string
	err       error
	closed    bool
}

func (p *fakePublisher) Name() string { return "fake" }

func (p *fakePublisher) Publish(_ context.Context, runID string, observations []*Observation) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.published = append(p.published, observations...)
	p.runIDs = append(p.runIDs, runID)

	return p.err
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

// fakeRecorder counts recorder callbacks.
type fakeRecorder struct {
	mu            sync.Mutex
	decodeOK      int
	decodeFailed  int
	flushFailures map[string]int
	publishErrors int
}

func (r *fakeRecorder) RecordDecode(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.decodeFailed++
		return
	}

	r.decodeOK++
}

func (r *fakeRecorder) RecordFlush(step string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		if r.flushFailures == nil {
			r.flushFailures = make(map[string]int)
		}

		r.flushFailures[step]++
	}
}

func (r *fakeRecorder) RecordObservations(int, int, int) {}

func (r *fakeRecorder) RecordPublish(_ string, _ int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.publishErrors++
	}
}
