package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bankledger/internal/config"
	"bankledger/internal/infrastructure/lock"
	"bankledger/internal/model"
	"bankledger/internal/repository"
	"bankledger/internal/repository/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// seqIDs hands out predictable identifiers.
type seqIDs struct {
	accounts     int64
	transactions int64
}

func (g *seqIDs) NewAccountNumber() string {
	return fmt.Sprintf("ACC%06d", atomic.AddInt64(&g.accounts, 1))
}

func (g *seqIDs) NewTransactionID() string {
	return fmt.Sprintf("TXN%08d", atomic.AddInt64(&g.transactions, 1))
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Ledger.MaxRetries = 3
	cfg.Ledger.DefaultPageSize = 10
	cfg.Ledger.MaxPageSize = 100
	cfg.Kafka.Topic.TransactionPosted = "ledger.transaction.posted"
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	uow       repository.UnitOfWork
	locker    *countingLocker
	ids       *seqIDs
	ledger    *LedgerService
	statement *StatementService
	accounts  *AccountService
	clock     *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now advances by a millisecond per call so records get distinct timestamps.
func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type countingLocker struct {
	lock.Locker
	calls int64
}

func (l *countingLocker) Acquire(ctx context.Context, key string) (lock.Release, error) {
	atomic.AddInt64(&l.calls, 1)
	return l.Locker.Acquire(ctx, key)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, memory.NewStore().UnitOfWork())
}

func newFixtureWith(t *testing.T, uow repository.UnitOfWork) *fixture {
	t.Helper()
	cfg := testConfig()
	logger := discardLogger()
	clock := &fakeClock{now: time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)}
	locker := &countingLocker{Locker: lock.NewLocalLocker(5 * time.Second)}
	ids := &seqIDs{}

	ledger := NewLedgerService(uow, locker, ids, cfg, logger)
	ledger.now = clock.Now
	var events int64
	ledger.eventID = func() int64 { return atomic.AddInt64(&events, 1) }

	accounts := NewAccountService(uow, locker, ids, cfg, logger)
	accounts.now = clock.Now

	return &fixture{
		uow:       uow,
		locker:    locker,
		ids:       ids,
		ledger:    ledger,
		statement: NewStatementService(uow, cfg, logger),
		accounts:  accounts,
		clock:     clock,
	}
}

// seed stores an account with an opening balance and no ledger history.
func (f *fixture) seed(t *testing.T, customerID int64, balance string) *model.Account {
	t.Helper()
	now := f.clock.Now()
	account := &model.Account{
		AccountNumber: f.ids.NewAccountNumber(),
		AccountName:   "Main",
		CustomerID:    customerID,
		AccountType:   model.AccountTypeSavings,
		Balance:       dec(balance),
		Status:        model.AccountStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.uow.Accounts().Save(context.Background(), account))
	return account
}

func (f *fixture) balance(t *testing.T, accountNumber string) decimal.Decimal {
	t.Helper()
	account, err := f.uow.Accounts().FindByAccountNumber(context.Background(), accountNumber)
	require.NoError(t, err)
	return account.Balance
}

func (f *fixture) history(t *testing.T, account *model.Account) []*model.Transaction {
	t.Helper()
	page, err := f.uow.Transactions().FindByAccountID(context.Background(), account.ID, repository.PageRequest{Number: 0, Size: 10000})
	require.NoError(t, err)
	return page.Content
}

// requireChain checks the before/after chain of an account from its opening
// balance to its current balance.
func (f *fixture) requireChain(t *testing.T, account *model.Account, opening string) {
	t.Helper()
	records := f.history(t, account)
	expected := dec(opening)
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		require.True(t, r.BalanceBefore.Equal(expected), "record %s starts at %s, want %s", r.TransactionID, r.BalanceBefore, expected)
		require.True(t, r.Consistent(), "record %s arithmetic", r.TransactionID)
		require.False(t, r.BalanceAfter.IsNegative())
		expected = r.BalanceAfter
	}
	require.True(t, f.balance(t, account.AccountNumber).Equal(expected), "account balance matches newest record")
}
