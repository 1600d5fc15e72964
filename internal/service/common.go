package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"bankledger/internal/infrastructure/lock"
	"bankledger/internal/model"
	"bankledger/internal/repository"

	"github.com/shopspring/decimal"
)

// IDGenerator produces business identifiers. Uniqueness is enforced by the
// stores; a collision surfaces as model.ErrDuplicate and is retried.
type IDGenerator interface {
	NewAccountNumber() string
	NewTransactionID() string
}

// retryable reports whether a unit of work may be rerun from scratch.
func retryable(err error) bool {
	return errors.Is(err, model.ErrConflict) || errors.Is(err, model.ErrDuplicate)
}

// withRetry 乐观并发冲突时整体重试（重新读取、重新生成流水号）
func withRetry(ctx context.Context, logger *slog.Logger, op string, maxRetries int, fn func() error) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logger.Warn("retrying after write conflict", "op", op, "attempt", attempt, "err", err)
	}

	if errors.Is(err, model.ErrConflict) {
		return err
	}
	return fmt.Errorf("%w: %v", model.ErrConflict, err)
}

// lockAccounts takes the per-account locks for numbers. A timed-out wait is
// reported as a conflict, an unreachable lock backend as storage unavailable.
func lockAccounts(ctx context.Context, locker lock.Locker, numbers ...string) (lock.Release, error) {
	release, err := lock.AcquireAll(ctx, locker, numbers...)
	if err != nil {
		switch {
		case errors.Is(err, lock.ErrLockFailed):
			return nil, fmt.Errorf("%w: %v", model.ErrConflict, err)
		case errors.Is(err, lock.ErrLockUnavailable):
			return nil, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
		}
		return nil, err
	}
	return release, nil
}

func validateDescription(description string) error {
	if utf8.RuneCountInString(description) > model.MaxDescriptionLength {
		return fmt.Errorf("%w: description longer than %d characters", model.ErrInvalidArgument, model.MaxDescriptionLength)
	}
	return nil
}

// findOwned loads an account and checks it belongs to the caller.
func findOwned(ctx context.Context, accounts repository.AccountStore, caller int64, accountNumber string) (*model.Account, error) {
	account, err := accounts.FindByAccountNumber(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	if !account.OwnedBy(caller) {
		return nil, fmt.Errorf("%w: account %s", model.ErrUnauthorized, accountNumber)
	}
	return account, nil
}

func requireActive(account *model.Account) error {
	if !account.IsActive() {
		return fmt.Errorf("%w: account %s is %s", model.ErrAccountInactive, account.AccountNumber, account.Status)
	}
	return nil
}

// newPostedEvent builds the outbox payload for a committed ledger entry.
func newPostedEvent(eventID int64, account *model.Account, trans *model.Transaction) model.TransactionPostedEvent {
	return model.TransactionPostedEvent{
		EventID:           eventID,
		TransactionID:     trans.TransactionID,
		AccountNumber:     account.AccountNumber,
		CustomerID:        account.CustomerID,
		Type:              trans.Type,
		Amount:            model.FormatAmount(trans.Amount),
		BalanceBefore:     model.FormatAmount(trans.BalanceBefore),
		BalanceAfter:      model.FormatAmount(trans.BalanceAfter),
		Status:            trans.Status,
		FromAccountNumber: trans.FromAccountNumber,
		ToAccountNumber:   trans.ToAccountNumber,
		CreatedAt:         trans.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func marshalEvent(event model.TransactionPostedEvent) (string, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal ledger event %s: %w", event.TransactionID, err)
	}
	return string(payload), nil
}

func sumBalances(accounts []*model.Account) decimal.Decimal {
	total := decimal.Zero
	for _, account := range accounts {
		total = total.Add(account.Balance)
	}
	return total
}
