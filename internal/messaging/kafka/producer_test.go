package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbdc/humandbs-pipeline/internal/config"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestNewProducer_DisabledYieldsNil(t *testing.T) {
	p, err := NewProducer(config.KafkaConfig{Enabled: false}, logging.NewNopLogger())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestNewProducer_EnabledRequiresBrokers(t *testing.T) {
	_, err := NewProducer(config.KafkaConfig{Enabled: true}, logging.NewNopLogger())
	assert.Error(t, err)
}

func TestDocumentUpdated_PublishesKeyedEvent(t *testing.T) {
	writer := &fakeWriter{}
	p := &Producer{writer: writer, topic: DefaultTopic, logger: logging.NewNopLogger()}

	p.DocumentUpdated(context.Background(), "dataset", "JGAD000001-v1", "create")

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "JGAD000001-v1", string(msg.Key))

	var event DocumentUpdatedEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, "dataset", event.Index)
	assert.Equal(t, "JGAD000001-v1", event.DocID)
	assert.Equal(t, "create", event.Action)
	assert.False(t, event.Timestamp.IsZero())
}

func TestDocumentUpdated_PublishFailureIsSwallowed(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	p := &Producer{writer: writer, topic: DefaultTopic, logger: logging.NewNopLogger()}

	// Must not panic or propagate; the index write already succeeded.
	p.DocumentUpdated(context.Background(), "research", "hum0001", "update")
	assert.Empty(t, writer.messages)
}

func TestDocumentUpdated_NilProducerIsNoop(t *testing.T) {
	var p *Producer
	p.DocumentUpdated(context.Background(), "research", "hum0001", "update")
	assert.NoError(t, p.Close())
}

func TestClose_StopsPublishing(t *testing.T) {
	writer := &fakeWriter{}
	p := &Producer{writer: writer, topic: DefaultTopic, logger: logging.NewNopLogger()}

	require.NoError(t, p.Close())
	assert.True(t, writer.closed)

	p.DocumentUpdated(context.Background(), "dataset", "JGAD000001-v1", "delete")
	assert.Empty(t, writer.messages)
}
