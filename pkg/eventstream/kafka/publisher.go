// Package kafka publishes document events to a Kafka topic. Events are
// keyed by file ID so a document's lifecycle stays ordered within a
// partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	segmentio "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/quarryhq/quarry/pkg/eventstream"
)

var _ eventstream.Publisher = (*Publisher)(nil)

// Config holds the Kafka connection settings for the publisher.
type Config struct {
	Brokers []string
	Topic   string
}

// Publisher writes document events to Kafka.
type Publisher struct {
	writer *segmentio.Writer
	logger *zap.Logger
}

// NewPublisher creates a Kafka-backed eventstream publisher.
func NewPublisher(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka publisher requires a topic")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	writer := &segmentio.Writer{
		Addr:         segmentio.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &segmentio.Hash{},
		RequiredAcks: segmentio.RequireOne,
	}

	return &Publisher{writer: writer, logger: logger}, nil
}

// Publish serializes the event as JSON and writes it keyed by file ID.
func (p *Publisher) Publish(ctx context.Context, event *eventstream.DocumentEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal document event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, segmentio.Message{
		Key:   []byte(event.FileID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish document event: %w", err)
	}

	p.logger.Debug("published document event",
		zap.String("event_type", event.EventType),
		zap.String("file_id", event.FileID),
		zap.String("collection", event.Collection),
	)

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
