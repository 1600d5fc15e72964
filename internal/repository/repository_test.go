package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"bankledger/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db, mock
}

var accountColumns = []string{
	"id", "account_number", "account_name", "customer_id", "account_type",
	"balance", "status", "version", "created_at", "updated_at",
}

func accountRow(id int64, number string, customerID int64, balance string, version int) []driver.Value {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	return []driver.Value{id, number, "Main", customerID, "SAVINGS", balance, "ACTIVE", version, now, now}
}

func TestAccountRepository_FindByAccountNumber(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `accounts` WHERE account_number = \\?").
		WillReturnRows(sqlmock.NewRows(accountColumns).
			AddRow(accountRow(7, "ACC20240115100000001", 1, "250.50", 3)...))

	account, err := repo.FindByAccountNumber(context.Background(), "ACC20240115100000001")
	require.NoError(t, err)
	assert.Equal(t, int64(7), account.ID)
	assert.Equal(t, int64(1), account.CustomerID)
	assert.True(t, account.Balance.Equal(decimal.RequireFromString("250.50")))
	assert.Equal(t, 3, account.Version)
	assert.True(t, account.IsActive())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_FindByAccountNumber_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `accounts` WHERE account_number = \\?").
		WillReturnRows(sqlmock.NewRows(accountColumns))

	_, err := repo.FindByAccountNumber(context.Background(), "ACC-missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAccountRepository_FindUpdatedSince_KeysetCursor(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `accounts` WHERE .*updated_at > \\? OR \\(updated_at = \\? AND id > \\?\\).*ORDER BY updated_at ASC,id ASC").
		WillReturnRows(sqlmock.NewRows(accountColumns).
			AddRow(accountRow(8, "ACC20240115100000002", 1, "0.00", 0)...))

	since := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	accounts, err := repo.FindUpdatedSince(context.Background(), since, 7, 2)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, int64(8), accounts[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_LockByAccountNumber(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `accounts` WHERE account_number = \\? .*FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(accountColumns).
			AddRow(accountRow(7, "ACC1", 1, "10.00", 0)...))

	account, err := repo.LockByAccountNumber(context.Background(), "ACC1")
	require.NoError(t, err)
	assert.Equal(t, "ACC1", account.AccountNumber)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_StorageErrorIsMapped(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `accounts`").
		WillReturnError(errors.New("connection refused"))

	_, err := repo.FindByID(context.Background(), 1)
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)
	assert.NotErrorIs(t, err, model.ErrNotFound)
}

func TestAccountRepository_SaveCreate_Duplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)

	mock.ExpectExec("INSERT INTO `accounts`").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := repo.Save(context.Background(), &model.Account{
		AccountNumber: "ACC1",
		AccountName:   "Main",
		CustomerID:    1,
		AccountType:   model.AccountTypeSavings,
		Balance:       decimal.Zero,
		Status:        model.AccountStatusActive,
	})
	assert.ErrorIs(t, err, model.ErrDuplicate)
}

func TestAccountRepository_SaveUpdate_BumpsVersion(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)

	mock.ExpectExec("UPDATE `accounts` SET .* WHERE id = \\? AND version = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))

	account := &model.Account{ID: 7, AccountNumber: "ACC1", Version: 2, Status: model.AccountStatusClosed}
	require.NoError(t, repo.Save(context.Background(), account))
	assert.Equal(t, 3, account.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_SaveUpdate_StaleVersion(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepository(db)

	mock.ExpectExec("UPDATE `accounts` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT \\* FROM `accounts` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows(accountColumns).
			AddRow(accountRow(7, "ACC1", 1, "10.00", 5)...))

	account := &model.Account{ID: 7, AccountNumber: "ACC1", Version: 2}
	err := repo.Save(context.Background(), account)
	assert.ErrorIs(t, err, model.ErrConflict)
	assert.Equal(t, 2, account.Version)
}

func TestAccountRepository_UpdateBalanceAtomically(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	t.Run("applied", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAccountRepository(db)
		mock.ExpectExec("UPDATE `accounts` SET .* WHERE id = \\? AND balance = \\?").
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateBalanceAtomically(ctx, 7, decimal.RequireFromString("100.00"), decimal.RequireFromString("150.00"), at)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("balance moved", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAccountRepository(db)
		mock.ExpectExec("UPDATE `accounts` SET").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT \\* FROM `accounts` WHERE id = \\?").
			WillReturnRows(sqlmock.NewRows(accountColumns).
				AddRow(accountRow(7, "ACC1", 1, "90.00", 4)...))

		err := repo.UpdateBalanceAtomically(ctx, 7, decimal.RequireFromString("100.00"), decimal.RequireFromString("150.00"), at)
		assert.ErrorIs(t, err, model.ErrConflict)
	})

	t.Run("account gone", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAccountRepository(db)
		mock.ExpectExec("UPDATE `accounts` SET").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT \\* FROM `accounts` WHERE id = \\?").
			WillReturnRows(sqlmock.NewRows(accountColumns))

		err := repo.UpdateBalanceAtomically(ctx, 7, decimal.RequireFromString("100.00"), decimal.RequireFromString("150.00"), at)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("negative target never reaches storage", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAccountRepository(db)

		err := repo.UpdateBalanceAtomically(ctx, 7, decimal.RequireFromString("10.00"), decimal.RequireFromString("-0.01"), at)
		assert.ErrorIs(t, err, model.ErrInsufficientBalance)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

var transactionColumns = []string{
	"id", "transaction_id", "type", "amount", "balance_before", "balance_after",
	"description", "status", "account_id", "from_account_number", "to_account_number", "created_at",
}

func TestTransactionRepository_FindByAccountID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionRepository(db)
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `transactions` WHERE account_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery("SELECT \\* FROM `transactions` WHERE account_id = \\? ORDER BY created_at DESC,\\s?id DESC LIMIT").
		WillReturnRows(sqlmock.NewRows(transactionColumns).
			AddRow(12, "TXN2", "WITHDRAWAL", "5.00", "20.00", "15.00", "", "SUCCESS", 7, nil, nil, now.Add(time.Minute)).
			AddRow(11, "TXN1", "DEPOSIT", "20.00", "0.00", "20.00", "", "SUCCESS", 7, nil, nil, now))

	page, err := repo.FindByAccountID(context.Background(), 7, PageRequest{Number: 1, Size: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(12), page.TotalElements)
	assert.Equal(t, 3, page.TotalPages)
	assert.False(t, page.First)
	assert.False(t, page.Last)
	require.Len(t, page.Content, 2)
	assert.Equal(t, "TXN2", page.Content[0].TransactionID)
	assert.True(t, page.Content[0].Consistent())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_FindByAccountIDAndCreatedAtBetween(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionRepository(db)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `transactions` WHERE account_id = \\? AND created_at BETWEEN \\? AND \\?").
		WithArgs(7, start, end).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT \\* FROM `transactions` WHERE account_id = \\? AND created_at BETWEEN").
		WillReturnRows(sqlmock.NewRows(transactionColumns))

	page, err := repo.FindByAccountIDAndCreatedAtBetween(context.Background(), 7, start, end, PageRequest{Number: 0, Size: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Content)
	assert.NotNil(t, page.Content)
	assert.True(t, page.First)
	assert.True(t, page.Last)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepository_SaveDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionRepository(db)

	mock.ExpectExec("INSERT INTO `transactions`").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'TXN1'"})

	err := repo.Save(context.Background(), &model.Transaction{
		TransactionID: "TXN1",
		Type:          model.TransactionTypeDeposit,
		Amount:        decimal.RequireFromString("1.00"),
		Status:        model.TransactionStatusSuccess,
		AccountID:     7,
		CreatedAt:     time.Now(),
	})
	assert.ErrorIs(t, err, model.ErrDuplicate)
}

func TestTransactionRepository_CountByAccountIDs(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransactionRepository(db)

	total, err := repo.CountByAccountIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, total)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `transactions` WHERE account_id IN").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	total, err = repo.CountByAccountIDs(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_GetPendingMessages(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOutboxRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `outbox_message` WHERE status = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "message_key", "topic", "payload", "status", "retry_count"}).
			AddRow(1, "ACC1", "ledger.transaction.posted", `{"transaction_id":"TXN1"}`, "PENDING", 0))

	messages, err := repo.GetPendingMessages(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "ACC1", messages[0].MessageKey)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_MarkAsFailed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOutboxRepository(db)

	mock.ExpectExec("UPDATE `outbox_message` SET .*`retry_count`=retry_count \\+ 1.* WHERE id = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkAsFailed(context.Background(), 1))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_UnknownIDIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOutboxRepository(db)

	mock.ExpectExec("UPDATE `outbox_message` SET .*`retry_count`=retry_count \\+ 1.* WHERE id = \\?").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.IncrementRetryCount(context.Background(), 404)
	assert.ErrorIs(t, err, model.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_CommitsOnSuccess(t *testing.T) {
	db, mock := newMockDB(t)
	uow := NewUnitOfWork(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `transactions`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `outbox_message`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := uow.Do(context.Background(), func(tx Tx) error {
		trans := &model.Transaction{
			TransactionID: "TXN1",
			Type:          model.TransactionTypeDeposit,
			Amount:        decimal.RequireFromString("1.00"),
			BalanceAfter:  decimal.RequireFromString("1.00"),
			Status:        model.TransactionStatusSuccess,
			AccountID:     7,
			CreatedAt:     time.Now(),
		}
		if err := tx.Transactions().Save(context.Background(), trans); err != nil {
			return err
		}
		return tx.Outbox().Create(context.Background(), &model.OutboxMessage{
			MessageKey: "ACC1",
			Topic:      "ledger.transaction.posted",
			Payload:    "{}",
			Status:     model.OutboxStatusPending,
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_RollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	uow := NewUnitOfWork(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `accounts` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := uow.Do(context.Background(), func(tx Tx) error {
		err := tx.Accounts().UpdateBalanceAtomically(context.Background(), 7,
			decimal.RequireFromString("10.00"), decimal.RequireFromString("5.00"), time.Now())
		require.NoError(t, err)
		return model.ErrInsufficientBalance
	})
	assert.ErrorIs(t, err, model.ErrInsufficientBalance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnitOfWork_BeginFailureIsStorageError(t *testing.T) {
	db, mock := newMockDB(t)
	uow := NewUnitOfWork(db)

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	called := false
	err := uow.Do(context.Background(), func(tx Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)
	assert.False(t, called)
}

func TestNewPage(t *testing.T) {
	page := NewPage([]*model.Transaction{{}}, PageRequest{Number: 0, Size: 10}, 1)
	assert.Equal(t, 1, page.TotalPages)
	assert.True(t, page.First)
	assert.True(t, page.Last)

	empty := NewPage[model.Transaction](nil, PageRequest{Number: 3, Size: 10}, 0)
	assert.Equal(t, 0, empty.TotalPages)
	assert.NotNil(t, empty.Content)
	assert.True(t, empty.Last)
}
