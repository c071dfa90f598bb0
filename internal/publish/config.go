// Package publish forwards newly inserted observations to downstream sinks.
package publish

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/astrolabe-io/astrolabe/internal/config"
	"github.com/astrolabe-io/astrolabe/internal/ingestion"
)

// DefaultTopic receives observation messages when KAFKA_TOPIC is unset.
const DefaultTopic = "astrolabe.observations"

// ErrTopicEmpty is returned when brokers are configured without a topic.
var ErrTopicEmpty = errors.New("kafka topic cannot be empty")

// Config selects the enabled publishers. Empty settings disable a publisher.
type Config struct {
	KafkaBrokers []string
	KafkaTopic   string
	ParquetPath  string
}

// LoadConfig reads KAFKA_BROKERS, KAFKA_TOPIC and PARQUET_EXPORT_PATH.
func LoadConfig() *Config {
	return &Config{
		KafkaBrokers: config.ParseCommaSeparatedList(config.GetEnvStr("KAFKA_BROKERS", "")),
		KafkaTopic:   config.GetEnvStr("KAFKA_TOPIC", DefaultTopic),
		ParquetPath:  config.GetEnvStr("PARQUET_EXPORT_PATH", ""),
	}
}

// Validate checks the configuration of enabled publishers.
func (c *Config) Validate() error {
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return ErrTopicEmpty
	}

	return nil
}

// Build constructs every enabled publisher. On error, publishers already
// built are closed.
func Build(c *Config, logger *slog.Logger) ([]ingestion.Publisher, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var pubs []ingestion.Publisher

	if len(c.KafkaBrokers) > 0 {
		pubs = append(pubs, NewKafkaPublisher(c.KafkaBrokers, c.KafkaTopic, logger))
	}

	if c.ParquetPath != "" {
		p, err := NewParquetPublisher(c.ParquetPath, logger)
		if err != nil {
			for _, built := range pubs {
				_ = built.Close()
			}

			return nil, fmt.Errorf("parquet publisher: %w", err)
		}

		pubs = append(pubs, p)
	}

	return pubs, nil
}
