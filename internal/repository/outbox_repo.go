package repository

import (
	"context"
	"fmt"

	"bankledger/internal/model"

	"gorm.io/gorm"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Create 写入本地消息表，需与业务写入处于同一个事务
func (r *OutboxRepository) Create(ctx context.Context, msg *model.OutboxMessage) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return mapGormError(err, fmt.Sprintf("create outbox message key=%s", msg.MessageKey))
	}
	return nil
}

func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, mapGormError(err, "list pending outbox messages")
	}
	return messages, nil
}

func (r *OutboxRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	result := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Update("status", status)
	return updatedOne(result, fmt.Sprintf("update outbox message id=%d", id))
}

func (r *OutboxRepository) IncrementRetryCount(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		UpdateColumn("retry_count", gorm.Expr("retry_count + 1"))
	return updatedOne(result, fmt.Sprintf("retry outbox message id=%d", id))
}

func (r *OutboxRepository) MarkAsFailed(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      model.OutboxStatusFailed,
			"retry_count": gorm.Expr("retry_count + 1"),
		})
	return updatedOne(result, fmt.Sprintf("fail outbox message id=%d", id))
}

// updatedOne maps an UPDATE that matched no row to model.ErrNotFound.
func updatedOne(result *gorm.DB, op string) error {
	if result.Error != nil {
		return mapGormError(result.Error, op)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	return nil
}
