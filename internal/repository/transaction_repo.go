package repository

import (
	"context"
	"fmt"
	"time"

	"bankledger/internal/model"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Save(ctx context.Context, trans *model.Transaction) error {
	if err := r.db.WithContext(ctx).Create(trans).Error; err != nil {
		return mapGormError(err, fmt.Sprintf("append transaction %s", trans.TransactionID))
	}
	return nil
}

func (r *TransactionRepository) FindByTransactionID(ctx context.Context, transactionID string) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&trans).Error
	if err != nil {
		return nil, mapGormError(err, fmt.Sprintf("find transaction %s", transactionID))
	}
	return &trans, nil
}

func (r *TransactionRepository) FindByAccountID(ctx context.Context, accountID int64, page PageRequest) (*Page[model.Transaction], error) {
	query := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("account_id = ?", accountID)
	return r.paginate(query, page, fmt.Sprintf("statement account=%d", accountID))
}

func (r *TransactionRepository) FindByAccountIDAndCreatedAtBetween(ctx context.Context, accountID int64, start, end time.Time, page PageRequest) (*Page[model.Transaction], error) {
	query := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("account_id = ? AND created_at BETWEEN ? AND ?", accountID, start, end)
	return r.paginate(query, page, fmt.Sprintf("history account=%d", accountID))
}

func (r *TransactionRepository) CountByAccountIDs(ctx context.Context, accountIDs []int64) (int64, error) {
	if len(accountIDs) == 0 {
		return 0, nil
	}
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("account_id IN ?", accountIDs).
		Count(&total).Error
	if err != nil {
		return 0, mapGormError(err, "count transactions")
	}
	return total, nil
}

func (r *TransactionRepository) paginate(query *gorm.DB, page PageRequest, op string) (*Page[model.Transaction], error) {
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, mapGormError(err, op)
	}

	var transactions []*model.Transaction
	err := query.Session(&gorm.Session{}).
		Order("created_at DESC").
		Order("id DESC").
		Offset(page.Offset()).
		Limit(page.Size).
		Find(&transactions).Error
	if err != nil {
		return nil, mapGormError(err, op)
	}

	return NewPage(transactions, page, total), nil
}
