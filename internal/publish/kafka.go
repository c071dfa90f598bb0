package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/astrolabe-io/astrolabe/internal/ingestion"
)

const (
	kafkaWriteTimeout = 10 * time.Second
	headerRunID       = "run_id"
	headerSource      = "source"
)

var _ ingestion.Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher writes one message per observation, keyed by catalog number
// so that every element set of a satellite lands on the same partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewKafkaPublisher returns a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			WriteTimeout:           kafkaWriteTimeout,
		},
		logger: logger,
	}
}

// Name implements ingestion.Publisher.
func (p *KafkaPublisher) Name() string {
	return "kafka"
}

// Publish implements ingestion.Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, runID string, observations []*ingestion.Observation) error {
	msgs, err := buildMessages(runID, observations)
	if err != nil {
		return err
	}

	start := time.Now()

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(msgs), p.writer.Topic, err)
	}

	p.logger.Debug("observations published",
		slog.String("topic", p.writer.Topic),
		slog.Int("messages", len(msgs)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return nil
}

// Close flushes pending messages and closes broker connections.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func buildMessages(runID string, observations []*ingestion.Observation) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(observations))

	for _, o := range observations {
		value, err := json.Marshal(NewObservationMessage(runID, o))
		if err != nil {
			return nil, fmt.Errorf("encode observation %d: %w", o.CatalogNumber, err)
		}

		msgs = append(msgs, kafka.Message{
			Key:   []byte(strconv.Itoa(o.CatalogNumber)),
			Value: value,
			Headers: []kafka.Header{
				{Key: headerRunID, Value: []byte(runID)},
				{Key: headerSource, Value: []byte(o.Source)},
			},
		})
	}

	return msgs, nil
}
