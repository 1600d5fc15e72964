package job

import (
	"context"
	"log/slog"
	"time"

	"bankledger/internal/config"
	"bankledger/internal/model"
	"bankledger/internal/repository"
)

// Publisher delivers one message to the broker.
type Publisher interface {
	Publish(ctx context.Context, topic, key, value string) error
}

// OutboxSender relays committed ledger events from the outbox table to Kafka.
type OutboxSender struct {
	outbox        repository.OutboxStore
	publisher     Publisher
	stopCh        chan struct{}
	interval      time.Duration
	batchSize     int
	maxRetryCount int
	logger        *slog.Logger
}

func NewOutboxSender(outbox repository.OutboxStore, publisher Publisher, cfg *config.Config, logger *slog.Logger) *OutboxSender {
	return &OutboxSender{
		outbox:        outbox,
		publisher:     publisher,
		stopCh:        make(chan struct{}),
		interval:      cfg.Kafka.SenderInterval,
		batchSize:     cfg.Kafka.BatchSize,
		maxRetryCount: cfg.Kafka.MaxRetryCount,
		logger:        logger.With("component", "OutboxSender"),
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	s.logger.Info("消息发送任务启动", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("收到停止信号，任务退出")
			return
		case <-s.stopCh:
			s.logger.Info("任务停止")
			return
		case <-ticker.C:
			s.ProcessPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

// ProcessPendingMessages sends one batch and returns how many were delivered.
func (s *OutboxSender) ProcessPendingMessages(ctx context.Context) int {
	messages, err := s.outbox.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("查询消息失败", "err", err)
		return 0
	}

	sent := 0
	for _, msg := range messages {
		if ctx.Err() != nil {
			break
		}
		if s.sendMessage(ctx, msg) {
			sent++
		}
	}
	return sent
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) bool {
	err := s.publisher.Publish(ctx, msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outbox.UpdateStatus(ctx, msg.ID, model.OutboxStatusSent); updateErr != nil {
			s.logger.Error("更新消息状态失败", "id", msg.ID, "err", updateErr)
			return false
		}
		s.logger.Debug("消息发送成功", "id", msg.ID, "topic", msg.Topic, "key", msg.MessageKey)
		return true
	}

	s.logger.Warn("消息发送失败", "id", msg.ID, "retry_count", msg.RetryCount, "err", err)

	// 最后一次失败直接标记 FAILED（MarkAsFailed 会同时累加重试次数）
	if msg.RetryCount+1 >= s.maxRetryCount {
		if err := s.outbox.MarkAsFailed(ctx, msg.ID); err != nil {
			s.logger.Error("标记消息失败状态失败", "id", msg.ID, "err", err)
		} else {
			s.logger.Error("消息超过最大重试次数，标记为失败", "id", msg.ID, "key", msg.MessageKey)
		}
		return false
	}

	if err := s.outbox.IncrementRetryCount(ctx, msg.ID); err != nil {
		s.logger.Error("增加重试次数失败", "id", msg.ID, "err", err)
	}
	return false
}

// LogPublisher stands in for Kafka when it is disabled; events are only logged.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(_ context.Context, topic, key, value string) error {
	p.Logger.Info("ledger event", "topic", topic, "key", key, "payload", value)
	return nil
}
