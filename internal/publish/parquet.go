package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/parquet-go/parquet-go"

	"github.com/astrolabe-io/astrolabe/internal/ingestion"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher closed")

var _ ingestion.Publisher = (*ParquetPublisher)(nil)

type (
	// ParquetPublisher writes observations to a Parquet file, one row group
	// per Publish call. The file is complete once Close returns.
	ParquetPublisher struct {
		path   string
		logger *slog.Logger

		mu     sync.Mutex
		file   *os.File
		writer *parquet.GenericWriter[ObservationRow]
		rows   int
	}

	// ObservationRow is the Parquet schema of an exported observation.
	ObservationRow struct {
		RunID             string  `parquet:"run_id"`
		CatalogNumber     int32   `parquet:"catalog_number"`
		EpochUnixMicros   int64   `parquet:"epoch_unix_us"`
		Line1             string  `parquet:"line1"`
		Line2             string  `parquet:"line2"`
		Inclination       float64 `parquet:"inclination"`
		RAAN              float64 `parquet:"raan"`
		Eccentricity      float64 `parquet:"eccentricity"`
		ArgumentOfPerigee float64 `parquet:"argument_of_perigee"`
		MeanAnomaly       float64 `parquet:"mean_anomaly"`
		MeanMotion        float64 `parquet:"mean_motion"`
		RevolutionNumber  int32   `parquet:"revolution_number"`
		BStar             float64 `parquet:"bstar"`
		MeanMotionDot     float64 `parquet:"mean_motion_dot"`
		Source            string  `parquet:"source,dict"`
	}
)

// NewParquetPublisher creates the file at path, replacing any earlier export.
func NewParquetPublisher(path string, logger *slog.Logger) (*ParquetPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	return &ParquetPublisher{
		path:   path,
		logger: logger,
		file:   f,
		writer: parquet.NewGenericWriter[ObservationRow](f),
	}, nil
}

// Name implements ingestion.Publisher.
func (p *ParquetPublisher) Name() string {
	return "parquet"
}

// Publish implements ingestion.Publisher.
func (p *ParquetPublisher) Publish(_ context.Context, runID string, observations []*ingestion.Observation) error {
	rows := make([]ObservationRow, 0, len(observations))
	for _, o := range observations {
		rows = append(rows, newObservationRow(runID, o))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer == nil {
		return ErrPublisherClosed
	}

	if _, err := p.writer.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}

	if err := p.writer.Flush(); err != nil {
		return fmt.Errorf("flush parquet row group: %w", err)
	}

	p.rows += len(rows)

	return nil
}

// Close finalizes the Parquet footer and closes the file.
func (p *ParquetPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writer == nil {
		return nil
	}

	writeErr := p.writer.Close()
	closeErr := p.file.Close()
	p.writer = nil

	if err := errors.Join(writeErr, closeErr); err != nil {
		return fmt.Errorf("close %s: %w", p.path, err)
	}

	p.logger.Info("parquet export written",
		slog.String("path", p.path),
		slog.Int("rows", p.rows))

	return nil
}

func newObservationRow(runID string, o *ingestion.Observation) ObservationRow {
	return ObservationRow{
		RunID:             runID,
		CatalogNumber:     int32(o.CatalogNumber), //nolint:gosec // catalog numbers are five digits
		EpochUnixMicros:   o.Epoch.UnixMicro(),
		Line1:             o.Line1,
		Line2:             o.Line2,
		Inclination:       o.Inclination,
		RAAN:              o.RAAN,
		Eccentricity:      o.Eccentricity,
		ArgumentOfPerigee: o.ArgumentOfPerigee,
		MeanAnomaly:       o.MeanAnomaly,
		MeanMotion:        o.MeanMotion,
		RevolutionNumber:  int32(o.RevolutionNumber), //nolint:gosec // five-digit field
		BStar:             o.BStar,
		MeanMotionDot:     o.MeanMotionDot,
		Source:            o.Source,
	}
}
