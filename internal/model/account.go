package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType 账户类型
type AccountType string

const (
	AccountTypeSavings      AccountType = "SAVINGS"
	AccountTypeCurrent      AccountType = "CURRENT"
	AccountTypeFixedDeposit AccountType = "FIXED_DEPOSIT"
	AccountTypeSalary       AccountType = "SALARY"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeSavings, AccountTypeCurrent, AccountTypeFixedDeposit, AccountTypeSalary:
		return true
	}
	return false
}

// AccountStatus 账户状态
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "ACTIVE"
	AccountStatusInactive  AccountStatus = "INACTIVE"
	AccountStatusClosed    AccountStatus = "CLOSED"
	AccountStatusSuspended AccountStatus = "SUSPENDED"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountStatusActive, AccountStatusInactive, AccountStatusClosed, AccountStatusSuspended:
		return true
	}
	return false
}

// Account is a customer account and the source of truth for its balance.
//
// The ledger only ever touches Balance, UpdatedAt and Version. Every write
// bumps Version so concurrent writers can be detected.
type Account struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountNumber string          `gorm:"type:varchar(32);uniqueIndex;not null" json:"account_number"`
	AccountName   string          `gorm:"type:varchar(128);not null" json:"account_name"`
	CustomerID    int64           `gorm:"index;not null" json:"customer_id"`
	AccountType   AccountType     `gorm:"type:varchar(20);not null" json:"account_type"`
	Balance       decimal.Decimal `gorm:"type:decimal(19,2);not null;default:0" json:"balance"`
	Status        AccountStatus   `gorm:"type:varchar(20);not null;default:ACTIVE" json:"status"`
	Version       int             `gorm:"not null;default:0" json:"version"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime;index" json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

func (a *Account) OwnedBy(customerID int64) bool {
	return a.CustomerID == customerID
}

// Clone returns a detached copy so callers can never write through to store state.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}
