package mq

import (
	"context"
	"fmt"
	"log/slog"

	"kidbank/internal/config"
)

// Publisher 账务事件投递，由 OutboxSender 调用
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Close() error
}

// NewPublisher 按 mq.driver 创建投递实现；none 时事件只留在 outbox 表中
func NewPublisher(cfg *config.MQConfig) (Publisher, error) {
	switch cfg.Driver {
	case "kafka":
		return NewKafkaPublisher(&cfg.Kafka)
	case "amqp":
		return NewAMQPPublisher(&cfg.AMQP)
	case "none", "":
		slog.Info("未配置消息队列，账务事件不对外投递", "component", "mq")
		return NopPublisher{}, nil
	default:
		return nil, fmt.Errorf("不支持的 mq.driver: %q", cfg.Driver)
	}
}

// NopPublisher 丢弃所有消息
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, []byte) error { return nil }

func (NopPublisher) Close() error { return nil }
