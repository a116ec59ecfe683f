package data

import (
	"context"

	"go.uber.org/zap"

	"opsdashboard/cmd/dashboard-service/internal/conf"
	"opsdashboard/pkg/events"
)

// NewAuditPublisher kafka.enabled 时发布到 Kafka，否则只写日志
func NewAuditPublisher(c *conf.Config, logger *zap.Logger) (events.Publisher, func(), error) {
	if !c.Kafka.Enabled {
		return &logPublisher{log: logger}, func() {}, nil
	}

	cfg := events.DefaultPublisherConfig()
	cfg.Brokers = c.Kafka.Brokers
	if c.Kafka.Topic != "" {
		cfg.Topic = c.Kafka.Topic
	}
	pub, err := events.NewKafkaPublisher(cfg)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := pub.Close(); err != nil {
			logger.Error("failed to close audit publisher", zap.Error(err))
		}
	}
	return pub, cleanup, nil
}

// logPublisher 未配置 Kafka 时把审计事件写入日志
type logPublisher struct {
	log *zap.Logger
}

func (p *logPublisher) Publish(_ context.Context, event *events.AuditEvent) error {
	p.log.Info("audit event",
		zap.String("event_type", event.EventType),
		zap.String("user_id", event.UserID),
		zap.String("username", event.Username),
		zap.String("org_slug", event.OrgSlug),
		zap.Any("metadata", event.Metadata),
	)
	return nil
}

func (p *logPublisher) Close() error {
	return nil
}
