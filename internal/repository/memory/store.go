// Package memory is an in-process implementation of the repository contracts.
// Writes made inside Do are staged and only become visible when the whole
// group is validated and applied under the store mutex.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"bankledger/internal/model"
	"bankledger/internal/repository"
)

type Store struct {
	mu sync.RWMutex

	accounts      map[int64]*model.Account
	accountByNo   map[string]int64
	transactions  map[int64][]*model.Transaction // by account id, commit order
	transactionID map[string]struct{}
	outbox        []*model.OutboxMessage

	nextAccountID     int64
	nextTransactionID int64
	nextOutboxID      int64

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		accounts:      make(map[int64]*model.Account),
		accountByNo:   make(map[string]int64),
		transactions:  make(map[int64][]*model.Transaction),
		transactionID: make(map[string]struct{}),
		now:           time.Now,
	}
}

// UnitOfWork returns the store as a repository.UnitOfWork. Calls made through
// the embedded Tx outside Do commit one by one.
func (s *Store) UnitOfWork() repository.UnitOfWork {
	return &unitOfWork{stores: stores{store: s}}
}

type unitOfWork struct {
	stores
}

func (u *unitOfWork) Do(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := newMemTx(u.store)
	if err := fn(stores{store: u.store, tx: tx}); err != nil {
		return err
	}
	return tx.commit(ctx)
}

type stores struct {
	store *Store
	tx    *memTx
}

func (s stores) Accounts() repository.AccountStore {
	return &accountStore{store: s.store, tx: s.tx}
}

func (s stores) Transactions() repository.TransactionStore {
	return &transactionStore{store: s.store, tx: s.tx}
}

func (s stores) Outbox() repository.OutboxStore {
	return &outboxStore{store: s.store, tx: s.tx}
}

// ============================================================================
// staged unit of work
// ============================================================================

type stagedAccount struct {
	account     *model.Account // working copy
	baseVersion int            // committed version when first touched; -1 for inserts
	target      *model.Account // caller's pointer, refreshed on commit
}

type memTx struct {
	store      *Store
	autoCommit bool

	accounts     map[int64]*stagedAccount
	inserts      []*stagedAccount
	transactions []*model.Transaction
	outbox       []*model.OutboxMessage
}

func newMemTx(s *Store) *memTx {
	return &memTx{store: s, accounts: make(map[int64]*stagedAccount)}
}

func newAutoTx(s *Store) *memTx {
	tx := newMemTx(s)
	tx.autoCommit = true
	return tx
}

// view returns the account as this unit of work sees it, or nil.
func (t *memTx) view(id int64) *model.Account {
	if staged, ok := t.accounts[id]; ok {
		return staged.account
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.accounts[id]
}

func (t *memTx) viewByNumber(number string) *model.Account {
	for _, staged := range t.inserts {
		if staged.account.AccountNumber == number {
			return staged.account
		}
	}
	t.store.mu.RLock()
	id, ok := t.store.accountByNo[number]
	t.store.mu.RUnlock()
	if !ok {
		return nil
	}
	return t.view(id)
}

// stage returns a working copy of a committed account, remembering the
// version it was based on.
func (t *memTx) stage(id int64) *stagedAccount {
	if staged, ok := t.accounts[id]; ok {
		return staged
	}
	t.store.mu.RLock()
	committed := t.store.accounts[id]
	t.store.mu.RUnlock()
	if committed == nil {
		return nil
	}
	staged := &stagedAccount{account: committed.Clone(), baseVersion: committed.Version}
	t.accounts[id] = staged
	return staged
}

func (t *memTx) transactionIDTaken(id string) bool {
	for _, trans := range t.transactions {
		if trans.TransactionID == id {
			return true
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	_, ok := t.store.transactionID[id]
	return ok
}

// flush commits immediately when the tx is not part of a Do.
func (t *memTx) flush(ctx context.Context) error {
	if !t.autoCommit {
		return nil
	}
	return t.commit(ctx)
}

// commit validates every expectation and applies the staged writes, all
// under the store write lock.
func (t *memTx) commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, staged := range t.accounts {
		committed, ok := s.accounts[id]
		if !ok {
			return wrapf(model.ErrNotFound, "account id=%d", id)
		}
		if committed.Version != staged.baseVersion {
			return wrapf(model.ErrConflict, "account id=%d changed since read", id)
		}
	}
	for _, staged := range t.inserts {
		if _, ok := s.accountByNo[staged.account.AccountNumber]; ok {
			return wrapf(model.ErrDuplicate, "account number %s", staged.account.AccountNumber)
		}
	}
	seen := make(map[string]struct{}, len(t.transactions))
	for _, trans := range t.transactions {
		if _, ok := s.accounts[trans.AccountID]; !ok {
			return wrapf(model.ErrNotFound, "account id=%d for transaction %s", trans.AccountID, trans.TransactionID)
		}
		if _, ok := s.transactionID[trans.TransactionID]; ok {
			return wrapf(model.ErrDuplicate, "transaction id %s", trans.TransactionID)
		}
		if _, ok := seen[trans.TransactionID]; ok {
			return wrapf(model.ErrDuplicate, "transaction id %s", trans.TransactionID)
		}
		seen[trans.TransactionID] = struct{}{}
	}

	for id, staged := range t.accounts {
		s.accounts[id] = staged.account.Clone()
		if staged.target != nil {
			*staged.target = *staged.account
		}
	}
	for _, staged := range t.inserts {
		s.nextAccountID++
		staged.account.ID = s.nextAccountID
		s.accounts[staged.account.ID] = staged.account.Clone()
		s.accountByNo[staged.account.AccountNumber] = staged.account.ID
		*staged.target = *staged.account
	}
	for _, trans := range t.transactions {
		s.nextTransactionID++
		trans.ID = s.nextTransactionID
		s.transactions[trans.AccountID] = append(s.transactions[trans.AccountID], trans.Clone())
		s.transactionID[trans.TransactionID] = struct{}{}
	}
	for _, msg := range t.outbox {
		s.nextOutboxID++
		msg.ID = s.nextOutboxID
		cp := *msg
		s.outbox = append(s.outbox, &cp)
	}
	return nil
}

func sortNewestFirst(list []*model.Transaction) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
}
