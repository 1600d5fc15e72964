package database

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"bankledger/internal/config"
	"bankledger/internal/infrastructure/lock"
	"bankledger/internal/model"
	"bankledger/internal/repository"
	"bankledger/internal/service"
	"bankledger/pkg/idgen"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestGormLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, gormLogLevel("silent"))
	assert.Equal(t, logger.Error, gormLogLevel("error"))
	assert.Equal(t, logger.Info, gormLogLevel("info"))
	assert.Equal(t, logger.Warn, gormLogLevel(""))
}

func setupMySQL(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("mysql container test skipped in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mysql:8.0",
			ExposedPorts: []string{"3306/tcp"},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": "root",
				"MYSQL_DATABASE":      "bankledger",
			},
			WaitingFor: wait.ForLog("port: 3306  MySQL Community Server").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("mysql container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "3306")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	db, err := InitMySQL(&config.MySQLConfig{
		Host:         host,
		Port:         portNum,
		User:         "root",
		Password:     "root",
		Database:     "bankledger",
		MaxOpenConns: 20,
		MaxIdleConns: 5,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestMySQL_LedgerEndToEnd(t *testing.T) {
	db := setupMySQL(t)
	ctx := context.Background()

	cfg := &config.Config{}
	cfg.Ledger.MaxRetries = 3
	cfg.Ledger.DefaultPageSize = 10
	cfg.Ledger.MaxPageSize = 100
	cfg.Kafka.Topic.TransactionPosted = "ledger.transaction.posted"
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	uow := repository.NewUnitOfWork(db)
	locker := lock.NewLocalLocker(5 * time.Second)
	ids := idgen.NewGenerator()
	accounts := service.NewAccountService(uow, locker, ids, cfg, log)
	ledger := service.NewLedgerService(uow, locker, ids, cfg, log)

	a, err := accounts.OpenAccount(ctx, 1, "Main", model.AccountTypeSavings)
	require.NoError(t, err)
	b, err := accounts.OpenAccount(ctx, 2, "Other", model.AccountTypeCurrent)
	require.NoError(t, err)

	_, err = ledger.Deposit(ctx, 1, a.AccountNumber, decimal.NewFromInt(100), "")
	require.NoError(t, err)

	// 10 concurrent withdrawals of 15 against 100: exactly 6 succeed.
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Withdraw(ctx, 1, a.AccountNumber, decimal.NewFromInt(15), ""); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 6, succeeded)

	debit, err := ledger.Transfer(ctx, 1, a.AccountNumber, b.AccountNumber, decimal.RequireFromString("10.00"), "rent")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionTypeTransferOut, debit.Type)

	src, err := uow.Accounts().FindByAccountNumber(ctx, a.AccountNumber)
	require.NoError(t, err)
	dst, err := uow.Accounts().FindByAccountNumber(ctx, b.AccountNumber)
	require.NoError(t, err)
	assert.True(t, src.Balance.Equal(decimal.Zero), src.Balance.String())
	assert.True(t, dst.Balance.Equal(decimal.NewFromInt(10)), dst.Balance.String())

	// 1 deposit + 6 withdrawals + 1 transfer leg.
	page, err := uow.Transactions().FindByAccountID(ctx, src.ID, repository.PageRequest{Number: 0, Size: 50})
	require.NoError(t, err)
	require.Equal(t, int64(8), page.TotalElements)
	for i := 0; i+1 < len(page.Content); i++ {
		newer, older := page.Content[i], page.Content[i+1]
		assert.True(t, newer.BalanceBefore.Equal(older.BalanceAfter), "chain broken at %s", newer.TransactionID)
	}

	pending, err := uow.Outbox().GetPendingMessages(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, pending, 9)
}

func TestMySQL_DuplicateTransactionID(t *testing.T) {
	db := setupMySQL(t)
	ctx := context.Background()
	uow := repository.NewUnitOfWork(db)

	account := &model.Account{
		AccountNumber: "ACC202401010000001234",
		AccountName:   "Main",
		CustomerID:    1,
		AccountType:   model.AccountTypeSavings,
		Status:        model.AccountStatusActive,
	}
	require.NoError(t, uow.Accounts().Save(ctx, account))

	trans := func() *model.Transaction {
		return &model.Transaction{
			TransactionID: "TXN1",
			Type:          model.TransactionTypeDeposit,
			Amount:        decimal.NewFromInt(1),
			BalanceBefore: decimal.Zero,
			BalanceAfter:  decimal.NewFromInt(1),
			Status:        model.TransactionStatusSuccess,
			AccountID:     account.ID,
			CreatedAt:     time.Now().UTC(),
		}
	}
	require.NoError(t, uow.Transactions().Save(ctx, trans()))
	assert.ErrorIs(t, uow.Transactions().Save(ctx, trans()), model.ErrDuplicate)

	err := uow.Accounts().UpdateBalanceAtomically(ctx, account.ID, decimal.NewFromInt(5), decimal.NewFromInt(6), time.Now())
	assert.ErrorIs(t, err, model.ErrConflict)
}
