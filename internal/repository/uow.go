package repository

import (
	"context"

	"gorm.io/gorm"
)

type gormStores struct {
	accounts     *AccountRepository
	transactions *TransactionRepository
	outbox       *OutboxRepository
}

func newGormStores(db *gorm.DB) gormStores {
	return gormStores{
		accounts:     NewAccountRepository(db),
		transactions: NewTransactionRepository(db),
		outbox:       NewOutboxRepository(db),
	}
}

func (s gormStores) Accounts() AccountStore         { return s.accounts }
func (s gormStores) Transactions() TransactionStore { return s.transactions }
func (s gormStores) Outbox() OutboxStore            { return s.outbox }

// GormUnitOfWork runs each Do inside one database transaction.
type GormUnitOfWork struct {
	gormStores
	db *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{gormStores: newGormStores(db), db: db}
}

// Do commits when fn returns nil and rolls back otherwise. Errors from
// BEGIN/COMMIT are reported as storage failures.
func (u *GormUnitOfWork) Do(ctx context.Context, fn func(tx Tx) error) error {
	var fnErr error
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fnErr = fn(newGormStores(tx))
		return fnErr
	})
	if err == nil {
		return nil
	}
	if fnErr != nil {
		return fnErr
	}
	return mapGormError(err, "commit unit of work")
}
