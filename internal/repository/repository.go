package repository

import (
	"context"
	"time"

	"bankledger/internal/model"

	"github.com/shopspring/decimal"
)

// AccountStore is durable keyed storage of accounts.
type AccountStore interface {
	FindByID(ctx context.Context, id int64) (*model.Account, error)
	FindByAccountNumber(ctx context.Context, accountNumber string) (*model.Account, error)
	// LockByAccountNumber reads the account and, inside a unit of work, holds
	// a row lock on it until commit.
	LockByAccountNumber(ctx context.Context, accountNumber string) (*model.Account, error)
	FindAllByCustomer(ctx context.Context, customerID int64) ([]*model.Account, error)
	// FindUpdatedSince lists accounts ordered by (UpdatedAt, ID) strictly after
	// the cursor (since, afterID). afterID 0 includes everything updated at since.
	FindUpdatedSince(ctx context.Context, since time.Time, afterID int64, limit int) ([]*model.Account, error)
	ExistsByAccountNumber(ctx context.Context, accountNumber string) (bool, error)
	// Save inserts when ID is zero, otherwise updates guarded by Version.
	// A stale Version yields model.ErrConflict; a taken account number yields
	// model.ErrDuplicate.
	Save(ctx context.Context, account *model.Account) error
	// UpdateBalanceAtomically sets the balance only if it still equals expected.
	UpdateBalanceAtomically(ctx context.Context, accountID int64, expected, newBalance decimal.Decimal, at time.Time) error
}

// TransactionStore is the append-only ledger log.
type TransactionStore interface {
	// Save appends t. A taken TransactionID yields model.ErrDuplicate.
	Save(ctx context.Context, t *model.Transaction) error
	FindByTransactionID(ctx context.Context, transactionID string) (*model.Transaction, error)
	FindByAccountID(ctx context.Context, accountID int64, page PageRequest) (*Page[model.Transaction], error)
	FindByAccountIDAndCreatedAtBetween(ctx context.Context, accountID int64, start, end time.Time, page PageRequest) (*Page[model.Transaction], error)
	CountByAccountIDs(ctx context.Context, accountIDs []int64) (int64, error)
}

// OutboxStore holds ledger events waiting to be relayed to the broker.
type OutboxStore interface {
	Create(ctx context.Context, msg *model.OutboxMessage) error
	GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	UpdateStatus(ctx context.Context, id int64, status string) error
	IncrementRetryCount(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64) error
}

// Tx gives access to stores bound to one storage session.
type Tx interface {
	Accounts() AccountStore
	Transactions() TransactionStore
	Outbox() OutboxStore
}

// UnitOfWork commits everything fn does through its Tx as one atomic group.
// If fn returns an error nothing it wrote is visible to anyone. The embedded
// Tx is bound to no transaction and serves plain reads.
type UnitOfWork interface {
	Tx
	Do(ctx context.Context, fn func(tx Tx) error) error
}
