package job

import (
	"context"
	"log/slog"
	"time"

	"kidbank/internal/config"
	"kidbank/internal/infrastructure/mq"
	"kidbank/internal/model"
	"kidbank/internal/repository"

	"gorm.io/gorm"
)

// OutboxSender 轮询 outbox 表，把账务事件投递到消息队列
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  mq.Publisher
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
	maxRetry   int
}

func NewOutboxSender(db *gorm.DB, cfg *config.Config, publisher mq.Publisher) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		stopCh:     make(chan struct{}),
		interval:   cfg.Job.OutboxInterval,
		batchSize:  cfg.Job.OutboxBatchSize,
		maxRetry:   cfg.Job.OutboxMaxRetry,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	slog.Info("消息发送任务启动", "component", "outbox", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("收到停止信号，任务退出", "component", "outbox")
			return
		case <-s.stopCh:
			slog.Info("任务停止", "component", "outbox")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// processPendingMessages 按 id 顺序投递一批待发送消息，返回成功条数
func (s *OutboxSender) processPendingMessages(ctx context.Context) int {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		slog.ErrorContext(ctx, "查询待发送消息失败", "component", "outbox", "error", err)
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(ctx, msg.Topic, msg.MessageKey, []byte(msg.Payload))
	if err == nil {
		if err := s.outboxRepo.MarkAsSent(ctx, msg.ID); err != nil {
			slog.ErrorContext(ctx, "更新消息状态失败", "component", "outbox", "id", msg.ID, "error", err)
			return false
		}
		slog.DebugContext(ctx, "消息发送成功",
			"component", "outbox", "id", msg.ID, "topic", msg.Topic, "key", msg.MessageKey)
		return true
	}

	giveUp := msg.RetryCount+1 >= s.maxRetry
	slog.WarnContext(ctx, "消息发送失败",
		"component", "outbox", "id", msg.ID, "retry", msg.RetryCount+1, "give_up", giveUp, "error", err)

	if err := s.outboxRepo.RecordFailure(ctx, msg.ID, giveUp); err != nil {
		slog.ErrorContext(ctx, "记录发送失败出错", "component", "outbox", "id", msg.ID, "error", err)
	}
	return false
}
