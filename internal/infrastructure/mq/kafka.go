package mq

import (
	"context"
	"fmt"
	"log/slog"

	"kidbank/internal/config"

	"github.com/IBM/sarama"
)

// KafkaPublisher 基于 sarama 同步生产者，流水号作为消息 key
type KafkaPublisher struct {
	producer sarama.SyncProducer
}

func NewKafkaPublisher(cfg *config.KafkaConfig) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, newKafkaConfig())
	if err != nil {
		return nil, fmt.Errorf("创建 Kafka 生产者失败: %w", err)
	}
	slog.Info("Kafka 生产者创建成功", "component", "mq", "brokers", cfg.Brokers)
	return &KafkaPublisher{producer: producer}, nil
}

// NewKafkaPublisherWithProducer 使用已有的生产者，测试中传入 mocks.SyncProducer
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func newKafkaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	return cfg
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送 Kafka 消息失败: %w", err)
	}
	slog.DebugContext(ctx, "Kafka 消息已发送",
		"component", "mq", "topic", topic, "key", key, "partition", partition, "offset", offset)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
