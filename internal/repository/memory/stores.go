package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bankledger/internal/model"
	"bankledger/internal/repository"

	"github.com/shopspring/decimal"
)

func wrapf(kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}

// ============================================================================
// accounts
// ============================================================================

type accountStore struct {
	store *Store
	tx    *memTx // nil outside Do
}

func (r *accountStore) session() *memTx {
	if r.tx != nil {
		return r.tx
	}
	return newAutoTx(r.store)
}

func (r *accountStore) FindByID(ctx context.Context, id int64) (*model.Account, error) {
	tx := r.session()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	account := tx.view(id)
	if account == nil {
		return nil, wrapf(model.ErrNotFound, "account id=%d", id)
	}
	return account.Clone(), nil
}

func (r *accountStore) FindByAccountNumber(ctx context.Context, accountNumber string) (*model.Account, error) {
	tx := r.session()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	account := tx.viewByNumber(accountNumber)
	if account == nil {
		return nil, wrapf(model.ErrNotFound, "account %s", accountNumber)
	}
	return account.Clone(), nil
}

// LockByAccountNumber is a plain read here; mutual exclusion comes from the
// per-account locker and commit-time version checks.
func (r *accountStore) LockByAccountNumber(ctx context.Context, accountNumber string) (*model.Account, error) {
	return r.FindByAccountNumber(ctx, accountNumber)
}

func (r *accountStore) FindAllByCustomer(ctx context.Context, customerID int64) ([]*model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Account, 0)
	for _, account := range s.accounts {
		if account.CustomerID == customerID {
			out = append(out, account.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *accountStore) FindUpdatedSince(ctx context.Context, since time.Time, afterID int64, limit int) ([]*model.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Account, 0)
	for _, account := range s.accounts {
		if account.UpdatedAt.After(since) || (account.UpdatedAt.Equal(since) && account.ID > afterID) {
			out = append(out, account.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *accountStore) ExistsByAccountNumber(ctx context.Context, accountNumber string) (bool, error) {
	tx := r.session()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return tx.viewByNumber(accountNumber) != nil, nil
}

func (r *accountStore) Save(ctx context.Context, account *model.Account) error {
	tx := r.session()
	if err := ctx.Err(); err != nil {
		return err
	}
	now := tx.store.now()

	if account.ID == 0 {
		if tx.viewByNumber(account.AccountNumber) != nil {
			return wrapf(model.ErrDuplicate, "account number %s", account.AccountNumber)
		}
		working := account.Clone()
		if working.CreatedAt.IsZero() {
			working.CreatedAt = now
		}
		if working.UpdatedAt.IsZero() {
			working.UpdatedAt = working.CreatedAt
		}
		tx.inserts = append(tx.inserts, &stagedAccount{account: working, baseVersion: -1, target: account})
		return tx.flush(ctx)
	}

	staged := tx.stage(account.ID)
	if staged == nil {
		return wrapf(model.ErrNotFound, "account id=%d", account.ID)
	}
	if staged.account.Version != account.Version {
		return wrapf(model.ErrConflict, "save account id=%d version=%d", account.ID, account.Version)
	}

	updatedAt := account.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	staged.account.AccountName = account.AccountName
	staged.account.AccountType = account.AccountType
	staged.account.Balance = account.Balance
	staged.account.Status = account.Status
	staged.account.UpdatedAt = updatedAt
	staged.account.Version++
	staged.target = account
	return tx.flush(ctx)
}

func (r *accountStore) UpdateBalanceAtomically(ctx context.Context, accountID int64, expected, newBalance decimal.Decimal, at time.Time) error {
	tx := r.session()
	if err := ctx.Err(); err != nil {
		return err
	}
	if newBalance.IsNegative() {
		return wrapf(model.ErrInsufficientBalance, "update balance id=%d to %s", accountID, newBalance)
	}

	staged := tx.stage(accountID)
	if staged == nil {
		return wrapf(model.ErrNotFound, "account id=%d", accountID)
	}
	if !staged.account.Balance.Equal(expected) {
		return wrapf(model.ErrConflict, "update balance id=%d expected=%s", accountID, expected)
	}

	staged.account.Balance = newBalance
	staged.account.UpdatedAt = at
	staged.account.Version++
	return tx.flush(ctx)
}

// ============================================================================
// transactions
// ============================================================================

type transactionStore struct {
	store *Store
	tx    *memTx // nil outside Do
}

func (r *transactionStore) session() *memTx {
	if r.tx != nil {
		return r.tx
	}
	return newAutoTx(r.store)
}

func (r *transactionStore) Save(ctx context.Context, trans *model.Transaction) error {
	tx := r.session()
	if err := ctx.Err(); err != nil {
		return err
	}
	if tx.transactionIDTaken(trans.TransactionID) {
		return wrapf(model.ErrDuplicate, "transaction id %s", trans.TransactionID)
	}
	if trans.CreatedAt.IsZero() {
		trans.CreatedAt = tx.store.now()
	}
	tx.transactions = append(tx.transactions, trans)
	return tx.flush(ctx)
}

func (r *transactionStore) FindByTransactionID(ctx context.Context, transactionID string) (*model.Transaction, error) {
	tx := r.session()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, trans := range tx.transactions {
		if trans.TransactionID == transactionID {
			return trans.Clone(), nil
		}
	}

	s := tx.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.transactionID[transactionID]; ok {
		for _, list := range s.transactions {
			for _, trans := range list {
				if trans.TransactionID == transactionID {
					return trans.Clone(), nil
				}
			}
		}
	}
	return nil, wrapf(model.ErrNotFound, "transaction %s", transactionID)
}

func (r *transactionStore) FindByAccountID(ctx context.Context, accountID int64, page repository.PageRequest) (*repository.Page[model.Transaction], error) {
	return r.page(ctx, accountID, page, func(*model.Transaction) bool { return true })
}

func (r *transactionStore) FindByAccountIDAndCreatedAtBetween(ctx context.Context, accountID int64, start, end time.Time, page repository.PageRequest) (*repository.Page[model.Transaction], error) {
	return r.page(ctx, accountID, page, func(t *model.Transaction) bool {
		return !t.CreatedAt.Before(start) && !t.CreatedAt.After(end)
	})
}

func (r *transactionStore) CountByAccountIDs(ctx context.Context, accountIDs []int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, id := range accountIDs {
		total += int64(len(s.transactions[id]))
	}
	return total, nil
}

func (r *transactionStore) page(ctx context.Context, accountID int64, page repository.PageRequest, keep func(*model.Transaction) bool) (*repository.Page[model.Transaction], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := r.store
	s.mu.RLock()
	matched := make([]*model.Transaction, 0, len(s.transactions[accountID]))
	for _, trans := range s.transactions[accountID] {
		if keep(trans) {
			matched = append(matched, trans.Clone())
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(matched)

	total := int64(len(matched))
	from := page.Offset()
	if from < 0 || from > len(matched) {
		from = len(matched)
	}
	to := from + page.Size
	if to < from || to > len(matched) {
		to = len(matched)
	}
	return repository.NewPage(matched[from:to], page, total), nil
}

// ============================================================================
// outbox
// ============================================================================

type outboxStore struct {
	store *Store
	tx    *memTx // nil outside Do
}

func (r *outboxStore) session() *memTx {
	if r.tx != nil {
		return r.tx
	}
	return newAutoTx(r.store)
}

func (r *outboxStore) Create(ctx context.Context, msg *model.OutboxMessage) error {
	tx := r.session()
	if err := ctx.Err(); err != nil {
		return err
	}
	now := tx.store.now()
	if msg.Status == "" {
		msg.Status = model.OutboxStatusPending
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = now
	tx.outbox = append(tx.outbox, msg)
	return tx.flush(ctx)
}

func (r *outboxStore) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.OutboxMessage, 0)
	for _, msg := range s.outbox {
		if msg.Status != model.OutboxStatusPending {
			continue
		}
		cp := *msg
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *outboxStore) UpdateStatus(ctx context.Context, id int64, status string) error {
	return r.mutate(ctx, id, func(msg *model.OutboxMessage) { msg.Status = status })
}

func (r *outboxStore) IncrementRetryCount(ctx context.Context, id int64) error {
	return r.mutate(ctx, id, func(msg *model.OutboxMessage) { msg.RetryCount++ })
}

func (r *outboxStore) MarkAsFailed(ctx context.Context, id int64) error {
	return r.mutate(ctx, id, func(msg *model.OutboxMessage) {
		msg.Status = model.OutboxStatusFailed
		msg.RetryCount++
	})
}

func (r *outboxStore) mutate(ctx context.Context, id int64, fn func(*model.OutboxMessage)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.outbox {
		if msg.ID == id {
			fn(msg)
			msg.UpdatedAt = s.now()
			return nil
		}
	}
	return wrapf(model.ErrNotFound, "outbox message id=%d", id)
}
