package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 交易类型 / 状态
// ============================================================================

type TransactionType string

const (
	TransactionTypeDeposit     TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal  TransactionType = "WITHDRAWAL"
	TransactionTypeTransferIn  TransactionType = "TRANSFER_IN"
	TransactionTypeTransferOut TransactionType = "TRANSFER_OUT"
)

// IsCredit reports whether the type increases the owning account's balance.
func (t TransactionType) IsCredit() bool {
	return t == TransactionTypeDeposit || t == TransactionTypeTransferIn
}

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeTransferIn, TransactionTypeTransferOut:
		return true
	}
	return false
}

type TransactionStatus string

// Only SUCCESS is ever written; a movement that cannot be applied is never persisted.
const (
	TransactionStatusSuccess TransactionStatus = "SUCCESS"
	TransactionStatusFailed  TransactionStatus = "FAILED"
	TransactionStatusPending TransactionStatus = "PENDING"
)

const MaxDescriptionLength = 500

// ============================================================================
// 账户流水实体
// ============================================================================

// Transaction is one append-only ledger entry belonging to exactly one account.
//
// Rules:
//  1. Written once, never updated or deleted.
//  2. BalanceBefore/BalanceAfter snapshot the owning account around this entry,
//     so the entries of one account ordered by (CreatedAt, ID) form a chain.
//  3. Transfer legs carry both account numbers; other types leave them nil.
type Transaction struct {
	ID                int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionID     string            `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_id"`
	Type              TransactionType   `gorm:"type:varchar(20);not null" json:"type"`
	Amount            decimal.Decimal   `gorm:"type:decimal(19,2);not null" json:"amount"`
	BalanceBefore     decimal.Decimal   `gorm:"type:decimal(19,2);not null" json:"balance_before"`
	BalanceAfter      decimal.Decimal   `gorm:"type:decimal(19,2);not null" json:"balance_after"`
	Description       string            `gorm:"type:varchar(500)" json:"description,omitempty"`
	Status            TransactionStatus `gorm:"type:varchar(20);not null" json:"status"`
	AccountID         int64             `gorm:"not null;index:idx_transactions_account_created,priority:1" json:"account_id"`
	FromAccountNumber *string           `gorm:"type:varchar(32)" json:"from_account_number,omitempty"`
	ToAccountNumber   *string           `gorm:"type:varchar(32)" json:"to_account_number,omitempty"`
	CreatedAt         time.Time         `gorm:"not null;index:idx_transactions_account_created,priority:2" json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// Consistent reports whether BalanceAfter follows from BalanceBefore, Amount and Type.
func (t *Transaction) Consistent() bool {
	if t.Type.IsCredit() {
		return t.BalanceAfter.Equal(t.BalanceBefore.Add(t.Amount))
	}
	return t.BalanceAfter.Equal(t.BalanceBefore.Sub(t.Amount))
}

func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	cp := *t
	if t.FromAccountNumber != nil {
		from := *t.FromAccountNumber
		cp.FromAccountNumber = &from
	}
	if t.ToAccountNumber != nil {
		to := *t.ToAccountNumber
		cp.ToAccountNumber = &to
	}
	return &cp
}
