package repository

import (
	"context"
	"fmt"
	"time"

	"bankledger/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) FindByID(ctx context.Context, id int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		return nil, mapGormError(err, fmt.Sprintf("find account id=%d", id))
	}
	return &account, nil
}

func (r *AccountRepository) FindByAccountNumber(ctx context.Context, accountNumber string) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("account_number = ?", accountNumber).First(&account).Error
	if err != nil {
		return nil, mapGormError(err, fmt.Sprintf("find account %s", accountNumber))
	}
	return &account, nil
}

// LockByAccountNumber 加行锁查询账户（SELECT ... FOR UPDATE）
// Only meaningful inside a unit of work; the lock is released at commit/rollback.
func (r *AccountRepository) LockByAccountNumber(ctx context.Context, accountNumber string) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_number = ?", accountNumber).
		First(&account).Error
	if err != nil {
		return nil, mapGormError(err, fmt.Sprintf("lock account %s", accountNumber))
	}
	return &account, nil
}

func (r *AccountRepository) FindAllByCustomer(ctx context.Context, customerID int64) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&accounts).Error
	if err != nil {
		return nil, mapGormError(err, fmt.Sprintf("list accounts customer=%d", customerID))
	}
	return accounts, nil
}

func (r *AccountRepository) FindUpdatedSince(ctx context.Context, since time.Time, afterID int64, limit int) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).
		Where("updated_at > ? OR (updated_at = ? AND id > ?)", since, since, afterID).
		Order("updated_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&accounts).Error
	if err != nil {
		return nil, mapGormError(err, "list recently updated accounts")
	}
	return accounts, nil
}

func (r *AccountRepository) ExistsByAccountNumber(ctx context.Context, accountNumber string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("account_number = ?", accountNumber).
		Count(&count).Error
	if err != nil {
		return false, mapGormError(err, fmt.Sprintf("exists account %s", accountNumber))
	}
	return count > 0, nil
}

// Save 新建或更新账户（乐观锁）
//
// Update succeeds only while the stored version equals account.Version; the
// version is bumped by one and written back to account on success.
func (r *AccountRepository) Save(ctx context.Context, account *model.Account) error {
	if account.ID == 0 {
		if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
			return mapGormError(err, fmt.Sprintf("create account %s", account.AccountNumber))
		}
		return nil
	}

	updatedAt := account.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND version = ?", account.ID, account.Version).
		Updates(map[string]interface{}{
			"account_name": account.AccountName,
			"account_type": account.AccountType,
			"balance":      account.Balance,
			"status":       account.Status,
			"updated_at":   updatedAt,
			"version":      gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return mapGormError(result.Error, fmt.Sprintf("save account id=%d", account.ID))
	}

	if result.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, account.ID); err != nil {
			return err
		}
		return fmt.Errorf("save account id=%d version=%d: %w", account.ID, account.Version, model.ErrConflict)
	}

	account.Version++
	account.UpdatedAt = updatedAt
	return nil
}

// UpdateBalanceAtomically 余额 CAS 更新
//
// UPDATE accounts SET balance = new WHERE id = ? AND balance = expected
// Zero rows affected means someone else moved the balance first.
func (r *AccountRepository) UpdateBalanceAtomically(ctx context.Context, accountID int64, expected, newBalance decimal.Decimal, at time.Time) error {
	if newBalance.IsNegative() {
		return fmt.Errorf("update balance id=%d to %s: %w", accountID, newBalance, model.ErrInsufficientBalance)
	}

	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND balance = ?", accountID, expected).
		Updates(map[string]interface{}{
			"balance":    newBalance,
			"updated_at": at,
			"version":    gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return mapGormError(result.Error, fmt.Sprintf("update balance id=%d", accountID))
	}

	if result.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, accountID); err != nil {
			return err
		}
		return fmt.Errorf("update balance id=%d expected=%s: %w", accountID, expected, model.ErrConflict)
	}

	return nil
}
