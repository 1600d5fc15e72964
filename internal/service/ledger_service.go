package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bankledger/internal/config"
	"bankledger/internal/infrastructure/lock"
	"bankledger/internal/model"
	"bankledger/internal/repository"
	"bankledger/pkg/idgen"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 账务核心：存款 / 取款 / 转账
// ============================================================================
//
// 每个操作的并发控制分两层：
//  1. 账户锁（本地或 Redis），按账号升序获取，整个读-改-写期间持有
//  2. 存储层余额 CAS（expected balance + version），冲突时整体重试
//
// 余额变更、流水、outbox 消息在同一个工作单元内提交，要么全部可见，要么全部不可见。

type LedgerService struct {
	uow        repository.UnitOfWork
	locker     lock.Locker
	ids        IDGenerator
	eventID    func() int64
	topic      string
	maxRetries int
	now        func() time.Time
	logger     *slog.Logger
}

func NewLedgerService(uow repository.UnitOfWork, locker lock.Locker, ids IDGenerator, cfg *config.Config, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		uow:        uow,
		locker:     locker,
		ids:        ids,
		eventID:    idgen.NextID,
		topic:      cfg.Kafka.Topic.TransactionPosted,
		maxRetries: cfg.Ledger.MaxRetries,
		now:        time.Now,
		logger:     logger.With("component", "ledger"),
	}
}

// Deposit credits amount to an account owned by caller.
func (s *LedgerService) Deposit(ctx context.Context, caller int64, accountNumber string, amount decimal.Decimal, description string) (*model.Transaction, error) {
	return s.single(ctx, "deposit", caller, accountNumber, amount, description, model.TransactionTypeDeposit)
}

// Withdraw debits amount from an account owned by caller. The balance may
// reach zero but never go below it.
func (s *LedgerService) Withdraw(ctx context.Context, caller int64, accountNumber string, amount decimal.Decimal, description string) (*model.Transaction, error) {
	return s.single(ctx, "withdraw", caller, accountNumber, amount, description, model.TransactionTypeWithdrawal)
}

func (s *LedgerService) single(ctx context.Context, op string, caller int64, accountNumber string, amount decimal.Decimal, description string, typ model.TransactionType) (*model.Transaction, error) {
	amount, err := model.NormalizeAmount(amount)
	if err != nil {
		return nil, err
	}
	if err := validateDescription(description); err != nil {
		return nil, err
	}

	release, err := lockAccounts(ctx, s.locker, accountNumber)
	if err != nil {
		s.logFailure(op, err, "account", accountNumber, "amount", amount.StringFixed(2))
		return nil, err
	}
	defer release()

	var result *model.Transaction
	err = withRetry(ctx, s.logger, op, s.maxRetries, func() error {
		return s.uow.Do(ctx, func(tx repository.Tx) error {
			account, err := tx.Accounts().LockByAccountNumber(ctx, accountNumber)
			if err != nil {
				return err
			}
			if !account.OwnedBy(caller) {
				return fmt.Errorf("%w: account %s", model.ErrUnauthorized, accountNumber)
			}
			if err := requireActive(account); err != nil {
				return err
			}

			before := account.Balance
			var after decimal.Decimal
			if typ.IsCredit() {
				after = before.Add(amount)
				if err := model.CheckBalance(accountNumber, after); err != nil {
					return err
				}
			} else {
				if before.LessThan(amount) {
					return fmt.Errorf("%w: account %s balance %s, requested %s",
						model.ErrInsufficientBalance, accountNumber, model.FormatAmount(before), model.FormatAmount(amount))
				}
				after = before.Sub(amount)
			}

			now := s.now()
			trans := &model.Transaction{
				TransactionID: s.ids.NewTransactionID(),
				Type:          typ,
				Amount:        amount,
				BalanceBefore: before,
				BalanceAfter:  after,
				Description:   description,
				Status:        model.TransactionStatusSuccess,
				AccountID:     account.ID,
				CreatedAt:     now,
			}
			if err := s.post(ctx, tx, account, trans); err != nil {
				return err
			}
			result = trans
			return nil
		})
	})
	if err != nil {
		s.logFailure(op, err, "account", accountNumber, "amount", amount.StringFixed(2))
		return nil, err
	}

	s.logger.Info(op+" committed",
		"account", accountNumber,
		"amount", model.FormatAmount(amount),
		"balance_after", model.FormatAmount(result.BalanceAfter),
		"transaction_id", result.TransactionID)
	return result, nil
}

// Transfer moves amount from one account to another as a single unit and
// returns the debit leg. Only the source account must belong to caller.
func (s *LedgerService) Transfer(ctx context.Context, caller int64, fromAccountNumber, toAccountNumber string, amount decimal.Decimal, description string) (*model.Transaction, error) {
	const op = "transfer"

	if fromAccountNumber == toAccountNumber {
		return nil, fmt.Errorf("%w: cannot transfer to the same account", model.ErrInvalidArgument)
	}
	amount, err := model.NormalizeAmount(amount)
	if err != nil {
		return nil, err
	}
	if err := validateDescription(description); err != nil {
		return nil, err
	}

	logArgs := []any{"from", fromAccountNumber, "to", toAccountNumber, "amount", amount.StringFixed(2)}

	release, err := lockAccounts(ctx, s.locker, fromAccountNumber, toAccountNumber)
	if err != nil {
		s.logFailure(op, err, logArgs...)
		return nil, err
	}
	defer release()

	var debit *model.Transaction
	err = withRetry(ctx, s.logger, op, s.maxRetries, func() error {
		return s.uow.Do(ctx, func(tx repository.Tx) error {
			source, dest, err := lockPair(ctx, tx.Accounts(), fromAccountNumber, toAccountNumber)
			if err != nil {
				return err
			}
			if !source.OwnedBy(caller) {
				return fmt.Errorf("%w: account %s", model.ErrUnauthorized, fromAccountNumber)
			}
			if err := requireActive(source); err != nil {
				return err
			}
			if err := requireActive(dest); err != nil {
				return err
			}
			if source.Balance.LessThan(amount) {
				return fmt.Errorf("%w: account %s balance %s, requested %s",
					model.ErrInsufficientBalance, fromAccountNumber, model.FormatAmount(source.Balance), model.FormatAmount(amount))
			}
			if err := model.CheckBalance(toAccountNumber, dest.Balance.Add(amount)); err != nil {
				return err
			}

			now := s.now()
			from, to := fromAccountNumber, toAccountNumber
			out := &model.Transaction{
				TransactionID:     s.ids.NewTransactionID(),
				Type:              model.TransactionTypeTransferOut,
				Amount:            amount,
				BalanceBefore:     source.Balance,
				BalanceAfter:      source.Balance.Sub(amount),
				Description:       description,
				Status:            model.TransactionStatusSuccess,
				AccountID:         source.ID,
				FromAccountNumber: &from,
				ToAccountNumber:   &to,
				CreatedAt:         now,
			}
			in := &model.Transaction{
				TransactionID:     s.ids.NewTransactionID(),
				Type:              model.TransactionTypeTransferIn,
				Amount:            amount,
				BalanceBefore:     dest.Balance,
				BalanceAfter:      dest.Balance.Add(amount),
				Description:       description,
				Status:            model.TransactionStatusSuccess,
				AccountID:         dest.ID,
				FromAccountNumber: &from,
				ToAccountNumber:   &to,
				CreatedAt:         now,
			}

			if err := s.post(ctx, tx, source, out); err != nil {
				return err
			}
			if err := s.post(ctx, tx, dest, in); err != nil {
				return err
			}
			debit = out
			return nil
		})
	})
	if err != nil {
		s.logFailure(op, err, logArgs...)
		return nil, err
	}

	s.logger.Info("transfer committed", append(logArgs,
		"source_balance_after", model.FormatAmount(debit.BalanceAfter),
		"transaction_id", debit.TransactionID)...)
	return debit, nil
}

// lockPair row-locks both accounts in ascending number order, then reports
// missing accounts source first.
func lockPair(ctx context.Context, accounts repository.AccountStore, from, to string) (*model.Account, *model.Account, error) {
	first, second := from, to
	if second < first {
		first, second = second, first
	}

	found := make(map[string]*model.Account, 2)
	missing := make(map[string]error, 2)
	for _, number := range []string{first, second} {
		account, err := accounts.LockByAccountNumber(ctx, number)
		switch {
		case err == nil:
			found[number] = account
		case errors.Is(err, model.ErrNotFound):
			missing[number] = err
		default:
			return nil, nil, err
		}
	}

	if err, ok := missing[from]; ok {
		return nil, nil, err
	}
	if err, ok := missing[to]; ok {
		return nil, nil, err
	}
	return found[from], found[to], nil
}

// post applies one ledger entry inside tx: balance CAS, the record itself
// and its outbox message.
func (s *LedgerService) post(ctx context.Context, tx repository.Tx, account *model.Account, trans *model.Transaction) error {
	err := tx.Accounts().UpdateBalanceAtomically(ctx, account.ID, trans.BalanceBefore, trans.BalanceAfter, trans.CreatedAt)
	if err != nil {
		return err
	}
	if err := tx.Transactions().Save(ctx, trans); err != nil {
		return err
	}

	payload, err := marshalEvent(newPostedEvent(s.eventID(), account, trans))
	if err != nil {
		return err
	}
	return tx.Outbox().Create(ctx, &model.OutboxMessage{
		MessageKey: account.AccountNumber,
		Topic:      s.topic,
		Payload:    payload,
		Status:     model.OutboxStatusPending,
	})
}

func (s *LedgerService) logFailure(op string, err error, args ...any) {
	args = append(args, "err", err)
	switch {
	case errors.Is(err, model.ErrStorageUnavailable), errors.Is(err, model.ErrConflict):
		s.logger.Error(op+" failed", args...)
	default:
		s.logger.Info(op+" rejected", args...)
	}
}
