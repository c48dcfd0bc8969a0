package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kidbank/internal/config"

	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpChannel 发布所需的 *amqp.Channel 方法子集
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher 发布到 topic 类型交换机，routing key 为事件主题
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
}

func NewAMQPPublisher(cfg *config.AMQPConfig) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 AMQP 失败: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("打开 AMQP channel 失败: %w", err)
	}

	p, err := newAMQPPublisher(channel, cfg.Exchange)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	slog.Info("AMQP 连接成功", "component", "mq", "exchange", cfg.Exchange)
	return p, nil
}

func newAMQPPublisher(channel amqpChannel, exchange string) (*AMQPPublisher, error) {
	err := channel.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		return nil, fmt.Errorf("声明交换机失败: %w", err)
	}
	return &AMQPPublisher{channel: channel, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, topic, key string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := p.channel.PublishWithContext(ctx, p.exchange, topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    key,
		Timestamp:    time.Now(),
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("发布 AMQP 消息失败: %w", err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.channel.Close()
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
