package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bankledger/internal/config"
	"bankledger/internal/infrastructure/lock"
	"bankledger/internal/model"
	"bankledger/internal/repository"

	"github.com/shopspring/decimal"
)

type AccountService struct {
	uow        repository.UnitOfWork
	locker     lock.Locker
	ids        IDGenerator
	maxRetries int
	now        func() time.Time
	logger     *slog.Logger
}

func NewAccountService(uow repository.UnitOfWork, locker lock.Locker, ids IDGenerator, cfg *config.Config, logger *slog.Logger) *AccountService {
	return &AccountService{
		uow:        uow,
		locker:     locker,
		ids:        ids,
		maxRetries: cfg.Ledger.MaxRetries,
		now:        time.Now,
		logger:     logger.With("component", "account"),
	}
}

const maxAccountNameLength = 128

// Dashboard 客户账户概览
type Dashboard struct {
	CustomerID        int64            `json:"customer_id"`
	TotalAccounts     int              `json:"total_accounts"`
	TotalBalance      decimal.Decimal  `json:"total_balance"`
	TotalTransactions int64            `json:"total_transactions"`
	Accounts          []*model.Account `json:"accounts"`
}

func validateAccountFields(name string, typ model.AccountType) error {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxAccountNameLength {
		return fmt.Errorf("%w: account name must be 1-%d characters", model.ErrInvalidArgument, maxAccountNameLength)
	}
	if !typ.Valid() {
		return fmt.Errorf("%w: unknown account type %q", model.ErrInvalidArgument, typ)
	}
	return nil
}

// OpenAccount creates an ACTIVE account with zero balance under a freshly
// generated number.
func (s *AccountService) OpenAccount(ctx context.Context, customerID int64, name string, typ model.AccountType) (*model.Account, error) {
	if err := validateAccountFields(name, typ); err != nil {
		return nil, err
	}

	var account *model.Account
	err := withRetry(ctx, s.logger, "open account", s.maxRetries, func() error {
		number := s.ids.NewAccountNumber()
		exists, err := s.uow.Accounts().ExistsByAccountNumber(ctx, number)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("account number %s: %w", number, model.ErrDuplicate)
		}

		now := s.now()
		candidate := &model.Account{
			AccountNumber: number,
			AccountName:   strings.TrimSpace(name),
			CustomerID:    customerID,
			AccountType:   typ,
			Balance:       decimal.Zero,
			Status:        model.AccountStatusActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.uow.Accounts().Save(ctx, candidate); err != nil {
			return err
		}
		account = candidate
		return nil
	})
	if err != nil {
		s.logger.Error("open account failed", "customer_id", customerID, "err", err)
		return nil, err
	}

	s.logger.Info("account opened", "customer_id", customerID, "account", account.AccountNumber, "type", account.AccountType)
	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, caller int64, accountNumber string) (*model.Account, error) {
	return findOwned(ctx, s.uow.Accounts(), caller, accountNumber)
}

func (s *AccountService) ListAccounts(ctx context.Context, caller int64) ([]*model.Account, error) {
	return s.uow.Accounts().FindAllByCustomer(ctx, caller)
}

// UpdateAccount changes the display name and type. Balance and status are
// not touched here.
func (s *AccountService) UpdateAccount(ctx context.Context, caller int64, accountNumber, name string, typ model.AccountType) (*model.Account, error) {
	if err := validateAccountFields(name, typ); err != nil {
		return nil, err
	}

	var updated *model.Account
	err := s.underLock(ctx, "update account", accountNumber, func(tx repository.Tx) error {
		account, err := lockOwned(ctx, tx.Accounts(), caller, accountNumber)
		if err != nil {
			return err
		}
		if account.Status == model.AccountStatusClosed {
			return fmt.Errorf("%w: account %s is closed", model.ErrAccountInactive, accountNumber)
		}

		account.AccountName = strings.TrimSpace(name)
		account.AccountType = typ
		account.UpdatedAt = s.now()
		if err := tx.Accounts().Save(ctx, account); err != nil {
			return err
		}
		updated = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CloseAccount moves a zero-balance account to CLOSED.
func (s *AccountService) CloseAccount(ctx context.Context, caller int64, accountNumber string) (*model.Account, error) {
	var closed *model.Account
	err := s.underLock(ctx, "close account", accountNumber, func(tx repository.Tx) error {
		account, err := lockOwned(ctx, tx.Accounts(), caller, accountNumber)
		if err != nil {
			return err
		}
		if account.Status == model.AccountStatusClosed {
			return fmt.Errorf("%w: account %s is already closed", model.ErrAccountInactive, accountNumber)
		}
		if !account.Balance.IsZero() {
			return fmt.Errorf("%w: account %s still holds %s", model.ErrInvalidArgument, accountNumber, model.FormatAmount(account.Balance))
		}

		account.Status = model.AccountStatusClosed
		account.UpdatedAt = s.now()
		if err := tx.Accounts().Save(ctx, account); err != nil {
			return err
		}
		closed = account
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account closed", "account", accountNumber, "customer_id", caller)
	return closed, nil
}

func (s *AccountService) Dashboard(ctx context.Context, caller int64) (*Dashboard, error) {
	accounts, err := s.uow.Accounts().FindAllByCustomer(ctx, caller)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(accounts))
	for _, account := range accounts {
		ids = append(ids, account.ID)
	}
	count, err := s.uow.Transactions().CountByAccountIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		CustomerID:        caller,
		TotalAccounts:     len(accounts),
		TotalBalance:      sumBalances(accounts),
		TotalTransactions: count,
		Accounts:          accounts,
	}, nil
}

// underLock runs fn in a unit of work while holding the account lock, so
// lifecycle changes cannot interleave with ledger postings.
func (s *AccountService) underLock(ctx context.Context, op, accountNumber string, fn func(tx repository.Tx) error) error {
	release, err := lockAccounts(ctx, s.locker, accountNumber)
	if err != nil {
		return err
	}
	defer release()

	err = withRetry(ctx, s.logger, op, s.maxRetries, func() error {
		return s.uow.Do(ctx, fn)
	})
	if err != nil && !errors.Is(err, model.ErrNotFound) && !errors.Is(err, model.ErrUnauthorized) {
		s.logger.Warn(op+" failed", "account", accountNumber, "err", err)
	}
	return err
}

func lockOwned(ctx context.Context, accounts repository.AccountStore, caller int64, accountNumber string) (*model.Account, error) {
	account, err := accounts.LockByAccountNumber(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	if !account.OwnedBy(caller) {
		return nil, fmt.Errorf("%w: account %s", model.ErrUnauthorized, accountNumber)
	}
	return account, nil
}
