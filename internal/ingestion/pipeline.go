package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/astrolabe-io/astrolabe/internal/tle"
)

// linesPerRecord is the name line plus the two element lines.
const linesPerRecord = 3

var (
	// ErrNoInput is returned when a run is started with no lines at all.
	ErrNoInput = errors.New("no input lines")
	// ErrNoStore is returned when a pipeline is built without a store.
	ErrNoStore = errors.New("ingestion store is required")
	// ErrBackendWrite wraps store failures surfaced by a flush.
	ErrBackendWrite = errors.New("backend write failed")
)

type (
	// Pipeline decodes element-set triples, buffers them into batches and
	// flushes each batch to a Store.
	//
	// A flush first upserts the batch's satellites and then inserts its
	// observations. If the satellite upsert fails the observations of that batch
	// are not attempted, since they reference satellites that may not exist.
	// Failures are counted in RunStats.Errors and never abort the run.
	//
	// Satellite upserts always run one batch at a time in input order so the
	// last record for a catalog number wins. With more than one flush worker
	// only the observation inserts overlap.
	Pipeline struct {
		store      Store
		logger     *slog.Logger
		recorder   Recorder
		publishers []Publisher
		batchSize  int
		workers    int
		now        func() time.Time
		newRunID   func() string
	}

	// Option configures optional Pipeline behavior.
	Option func(*Pipeline)

	batch struct {
		seq          int
		satellites   []*SatelliteRecord
		observations []*Observation
	}

	// run carries the mutable state of one Run call.
	run struct {
		id     string
		source string

		mu    sync.Mutex
		stats RunStats
	}
)

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithBatchSize sets how many satellites are buffered before a flush.
// Values below one are ignored.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithFlushWorkers sets how many flushes may run at once. Values above one only
// take effect when the store implements AtomicInserter.
func WithFlushWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithPublisher adds a sink for newly inserted observations.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) {
		if pub != nil {
			p.publishers = append(p.publishers, pub)
		}
	}
}

// WithRecorder sets the activity recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithClock overrides the time source used for updated_at and report timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithRunIDGenerator overrides run id generation.
func WithRunIDGenerator(gen func() string) Option {
	return func(p *Pipeline) {
		if gen != nil {
			p.newRunID = gen
		}
	}
}

// NewPipeline builds a pipeline over store.
//
// Example:
//
//	p, err := ingestion.NewPipeline(store,
//	    ingestion.WithBatchSize(100),
//	    ingestion.WithLogger(logger))
func NewPipeline(store Store, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrNoStore
	}

	p := &Pipeline{
		store:     store,
		logger:    slog.Default(),
		recorder:  nopRecorder{},
		batchSize: DefaultBatchSize,
		workers:   DefaultFlushWorkers,
		now:       time.Now,
		newRunID:  func() string { return uuid.NewString() },
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.workers > 1 {
		atomic, ok := store.(AtomicInserter)
		if !ok || !atomic.AtomicInsertIfAbsent() {
			p.logger.Warn("store does not support concurrent flushes, falling back to sequential",
				slog.Int("requested_workers", p.workers))

			p.workers = 1
		}
	}

	return p, nil
}

// Run processes lines as consecutive (name, line1, line2) triples. A trailing
// group of fewer than three lines is ignored. Undecodable triples are counted
// as errors and skipped.
//
// Run returns ErrNoInput for an empty input. Context cancellation stops
// decoding at the next record; batches already dispatched are awaited and the
// partial report is returned with the context error.
func (p *Pipeline) Run(ctx context.Context, source string, lines []string) (*Report, error) {
	if len(lines) == 0 {
		return nil, ErrNoInput
	}

	if source == "" {
		source = DefaultSource
	}

	r := &run{id: p.newRunID(), source: source}
	report := &Report{RunID: r.id, Source: source, StartedAt: p.now()}

	p.logger.Info("ingestion run started",
		slog.String("run_id", r.id),
		slog.String("source", source),
		slog.Int("lines", len(lines)),
		slog.Int("batch_size", p.batchSize),
		slog.Int("flush_workers", p.workers))

	g := new(errgroup.Group)
	g.SetLimit(p.workers)

	current := &batch{seq: 1}
	dispatch := func() {
		b := current
		current = &batch{seq: b.seq + 1}

		updated, ok := p.upsert(ctx, r, b)
		if !ok {
			return
		}

		if p.workers == 1 {
			p.insert(ctx, r, b, updated)
			return
		}

		g.Go(func() error {
			p.insert(ctx, r, b, updated)
			return nil
		})
	}

	var runErr error

	for i := 0; i+linesPerRecord <= len(lines); i += linesPerRecord {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		report.Records++

		es, err := tle.Decode(strings.TrimSpace(lines[i]), strings.TrimSpace(lines[i+1]), strings.TrimSpace(lines[i+2]))
		p.recorder.RecordDecode(err)

		if err != nil {
			r.add(RunStats{Errors: 1})
			p.logger.Warn("skipping undecodable record",
				slog.String("run_id", r.id),
				slog.Int("record", report.Records),
				slog.Any("error", err))

			continue
		}

		current.satellites = append(current.satellites, NewSatelliteRecord(es, p.now()))
		current.observations = append(current.observations, NewObservation(es, source))

		if len(current.satellites) >= p.batchSize {
			dispatch()
		}
	}

	if len(current.satellites) > 0 {
		dispatch()
	}

	_ = g.Wait()

	report.FinishedAt = p.now()
	report.Stats = r.snapshot()

	p.logger.Info("ingestion run finished",
		slog.String("run_id", r.id),
		slog.Int("records", report.Records),
		slog.Int("satellites_updated", report.Stats.SatellitesUpdated),
		slog.Int("observations_added", report.Stats.ObservationsAdded),
		slog.Int("observations_skipped", report.Stats.ObservationsSkipped),
		slog.Int("errors", report.Stats.Errors),
		slog.Int64("duration_ms", report.Duration().Milliseconds()))

	return report, runErr
}

// Totals attaches store-wide totals to report.
func (p *Pipeline) Totals(ctx context.Context, report *Report) error {
	totals, err := p.store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("query store totals: %w", err)
	}

	report.Totals = totals

	return nil
}

// Close closes every publisher. The store is owned by the caller.
func (p *Pipeline) Close() error {
	var errs []error

	for _, pub := range p.publishers {
		if err := pub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher %s: %w", pub.Name(), err))
		}
	}

	return errors.Join(errs...)
}

// upsert writes the batch's satellites. It runs on the Run goroutine so
// batches reach the store in dispatch order.
func (p *Pipeline) upsert(ctx context.Context, r *run, b *batch) (int, bool) {
	start := time.Now()
	updated, err := p.store.UpsertSatellites(ctx, b.satellites)
	p.recorder.RecordFlush("satellites", time.Since(start), err)

	if err != nil {
		r.add(RunStats{Errors: 1})
		p.logger.Error("satellite upsert failed, skipping observations for batch",
			slog.String("run_id", r.id),
			slog.Int("batch", b.seq),
			slog.Int("satellites", len(b.satellites)),
			slog.Any("error", fmt.Errorf("%w: %w", ErrBackendWrite, err)))

		return 0, false
	}

	return updated, true
}

func (p *Pipeline) insert(ctx context.Context, r *run, b *batch, updated int) {
	logger := p.logger.With(slog.String("run_id", r.id), slog.Int("batch", b.seq))

	start := time.Now()
	result, err := p.store.InsertObservations(ctx, b.observations)
	p.recorder.RecordFlush("observations", time.Since(start), err)

	if err != nil {
		r.add(RunStats{SatellitesUpdated: updated, Errors: 1})
		logger.Error("observation insert failed",
			slog.Int("observations", len(b.observations)),
			slog.Any("error", fmt.Errorf("%w: %w", ErrBackendWrite, err)))

		return
	}

	p.recorder.RecordObservations(result.Inserted, result.Skipped, result.Failed)
	r.add(RunStats{
		SatellitesUpdated:   updated,
		ObservationsAdded:   result.Inserted,
		ObservationsSkipped: result.Skipped,
		Errors:              result.Failed,
	})

	logger.Debug("batch flushed",
		slog.Int("satellites_updated", updated),
		slog.Int("inserted", result.Inserted),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	if len(result.New) > 0 {
		p.publish(ctx, logger, r.id, result.New)
	}
}

func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, runID string, observations []*Observation) {
	for _, pub := range p.publishers {
		err := pub.Publish(ctx, runID, observations)
		p.recorder.RecordPublish(pub.Name(), len(observations), err)

		if err != nil {
			logger.Warn("publish failed",
				slog.String("publisher", pub.Name()),
				slog.Int("observations", len(observations)),
				slog.Any("error", err))
		}
	}
}

func (r *run) add(delta RunStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats.Merge(delta)
}

func (r *run) snapshot() RunStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stats
}
