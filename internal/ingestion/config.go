package ingestion

import (
	"errors"
	"fmt"

	"github.com/astrolabe-io/astrolabe/internal/config"
)

const (
	// DefaultBatchSize is the number of satellites buffered before a flush.
	DefaultBatchSize = 100
	// DefaultFlushWorkers keeps flushes sequential.
	DefaultFlushWorkers = 1
)

var (
	// ErrInvalidBatchSize is returned when the batch size is below one.
	ErrInvalidBatchSize = errors.New("batch size must be at least 1")
	// ErrInvalidFlushWorkers is returned when the flush worker count is below one.
	ErrInvalidFlushWorkers = errors.New("flush workers must be at least 1")
)

// Config holds pipeline tuning read from the environment.
type Config struct {
	BatchSize    int
	FlushWorkers int
}

// LoadConfig reads INGEST_BATCH_SIZE and INGEST_FLUSH_WORKERS.
func LoadConfig() *Config {
	return &Config{
		BatchSize:    config.GetEnvInt("INGEST_BATCH_SIZE", DefaultBatchSize),
		FlushWorkers: config.GetEnvInt("INGEST_FLUSH_WORKERS", DefaultFlushWorkers),
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidBatchSize, c.BatchSize)
	}

	if c.FlushWorkers < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidFlushWorkers, c.FlushWorkers)
	}

	return nil
}

// Options converts the configuration into pipeline options.
func (c *Config) Options() []Option {
	return []Option{WithBatchSize(c.BatchSize), WithFlushWorkers(c.FlushWorkers)}
}
