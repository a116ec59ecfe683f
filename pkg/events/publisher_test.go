package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaPublisher_Publish(t *testing.T) {
	cfg := DefaultPublisherConfig()
	producer := mocks.NewSyncProducer(t, cfg.SaramaConfig())
	defer func() { _ = producer.Close() }()

	var got AuditEvent
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "dashboard.audit", msg.Topic)
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "usr_1", string(key))
		value, err := msg.Value.Encode()
		require.NoError(t, err)
		return json.Unmarshal(value, &got)
	})

	pub := NewKafkaPublisherWithProducer(producer, cfg)
	err := pub.Publish(context.Background(), &AuditEvent{
		EventType: EventLoginSucceeded,
		UserID:    "usr_1",
		Username:  "alice",
		OrgSlug:   "acme",
	})
	require.NoError(t, err)

	assert.Equal(t, EventLoginSucceeded, got.EventType)
	assert.Equal(t, "acme", got.OrgSlug)
	assert.NotEmpty(t, got.EventID)
	assert.False(t, got.Timestamp.IsZero())
}

func TestKafkaPublisher_PublishError(t *testing.T) {
	cfg := DefaultPublisherConfig()
	producer := mocks.NewSyncProducer(t, cfg.SaramaConfig())
	defer func() { _ = producer.Close() }()
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := NewKafkaPublisherWithProducer(producer, cfg).Publish(context.Background(), &AuditEvent{EventType: EventLogout})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestMemoryPublisher(t *testing.T) {
	pub := NewMemoryPublisher()
	require.NoError(t, pub.Publish(context.Background(), &AuditEvent{EventType: EventAccessDenied, Username: "bob"}))

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventAccessDenied, events[0].EventType)
	assert.NotEmpty(t, events[0].EventID)
}
