package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"opsdashboard/pkg/observability"
)

// Audit event types
const (
	EventLoginSucceeded = "dashboard.auth.login_succeeded"
	EventLoginFailed    = "dashboard.auth.login_failed"
	EventLogout         = "dashboard.auth.logout"
	EventAccessDenied   = "dashboard.access.denied"
)

// AuditEvent 审计事件
type AuditEvent struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Username  string            `json:"username,omitempty"`
	OrgSlug   string            `json:"org_slug,omitempty"`
	TraceID   string            `json:"trace_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Publisher 事件发布器接口
type Publisher interface {
	// Publish 发布事件
	Publish(ctx context.Context, event *AuditEvent) error

	// Close 关闭发布器
	Close() error
}

// KafkaPublisher Kafka 事件发布器
type KafkaPublisher struct {
	producer sarama.SyncProducer
	config   *PublisherConfig
}

// PublisherConfig 发布器配置
type PublisherConfig struct {
	Brokers      []string
	Topic        string
	RetryMax     int
	RequiredAcks sarama.RequiredAcks
	Compression  sarama.CompressionCodec
}

// DefaultPublisherConfig 默认配置
func DefaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "dashboard.audit",
		RetryMax:     3,
		RequiredAcks: sarama.WaitForLocal,
		Compression:  sarama.CompressionSnappy,
	}
}

// SaramaConfig 生成生产者配置
func (c *PublisherConfig) SaramaConfig() *sarama.Config {
	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Return.Errors = true
	kafkaConfig.Producer.RequiredAcks = c.RequiredAcks
	kafkaConfig.Producer.Compression = c.Compression
	kafkaConfig.Producer.Retry.Max = c.RetryMax
	kafkaConfig.Version = sarama.V3_6_0_0
	return kafkaConfig
}

// NewKafkaPublisher 创建 Kafka 发布器
func NewKafkaPublisher(config *PublisherConfig) (*KafkaPublisher, error) {
	if config == nil {
		config = DefaultPublisherConfig()
	}

	producer, err := sarama.NewSyncProducer(config.Brokers, config.SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return NewKafkaPublisherWithProducer(producer, config), nil
}

// NewKafkaPublisherWithProducer 使用已有生产者创建发布器
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, config *PublisherConfig) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		config:   config,
	}
}

// Publish 发布事件
func (p *KafkaPublisher) Publish(ctx context.Context, event *AuditEvent) error {
	fillDefaults(ctx, event)

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// 同一用户的事件进入同一分区
	key := event.UserID
	if key == "" {
		key = event.Username
	}

	msg := &sarama.ProducerMessage{
		Topic: p.config.Topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.EventType)},
			{Key: []byte("org_slug"), Value: []byte(event.OrgSlug)},
			{Key: []byte("trace_id"), Value: []byte(event.TraceID)},
		},
		Timestamp: event.Timestamp,
	}

	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close 关闭发布器
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

func fillDefaults(ctx context.Context, event *AuditEvent) {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.TraceID == "" {
		event.TraceID = observability.TraceID(ctx)
	}
}

// MemoryPublisher 内存发布器（未配置 Kafka 时或测试中使用）
type MemoryPublisher struct {
	mu     sync.Mutex
	events []*AuditEvent
}

// NewMemoryPublisher 创建内存发布器
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// Publish 发布事件
func (m *MemoryPublisher) Publish(ctx context.Context, event *AuditEvent) error {
	fillDefaults(ctx, event)
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return nil
}

// Close 关闭
func (m *MemoryPublisher) Close() error {
	return nil
}

// Events 返回已发布事件的副本
func (m *MemoryPublisher) Events() []*AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*AuditEvent, len(m.events))
	copy(out, m.events)
	return out
}
