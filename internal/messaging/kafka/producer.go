// Package kafka publishes document-updated events after successful index
// writes.  Consumers (cache invalidation, downstream mirrors) are outside
// this repository; the producer is optional and a disabled producer is a
// no-op.
package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nbdc/humandbs-pipeline/internal/config"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// DefaultTopic is used when the configuration leaves the topic empty.
const DefaultTopic = "humandbs.document.updated"

// DocumentUpdatedEvent is the wire payload for one index mutation.
type DocumentUpdatedEvent struct {
	Index     string    `json:"index"`
	DocID     string    `json:"docId"`
	Action    string    `json:"action"` // "create" | "update" | "delete"
	Timestamp time.Time `json:"timestamp"`
}

// writerInterface abstracts kafka.Writer for tests.
type writerInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer emits DocumentUpdatedEvents.  It satisfies the index writer's
// event sink; publish failures are logged and never propagate, because the
// index write has already succeeded by the time the event fires.
type Producer struct {
	writer writerInterface
	topic  string
	logger logging.Logger
	closed atomic.Bool
}

// NewProducer builds a Producer from the kafka configuration.  A disabled
// configuration yields nil, which the writer treats as "no events".
func NewProducer(cfg config.KafkaConfig, logger logging.Logger) (*Producer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeConfig, "kafka: at least one broker is required")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		MaxAttempts:  3,
		BatchTimeout: time.Second,
		RequiredAcks: kafka.RequireOne,
	}

	return &Producer{writer: writer, topic: topic, logger: logger}, nil
}

// DocumentUpdated publishes one event keyed by document id so all events for
// a document land on the same partition in order.
func (p *Producer) DocumentUpdated(ctx context.Context, index, docID, action string) {
	if p == nil || p.closed.Load() {
		return
	}

	event := DocumentUpdatedEvent{
		Index:     index,
		DocID:     docID,
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("document event marshal failed", logging.Err(err))
		return
	}

	msg := kafka.Message{
		Key:   []byte(docID),
		Value: value,
		Time:  event.Timestamp,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("document event publish failed",
			logging.String("index", index),
			logging.String("doc_id", docID),
			logging.String("action", action),
			logging.Err(err))
		return
	}

	p.logger.Debug("document event published",
		logging.String("index", index),
		logging.String("doc_id", docID),
		logging.String("action", action))
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	if p == nil || !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.writer.Close()
}
