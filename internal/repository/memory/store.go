// Package memory provides an in-memory domain.Store used by the engine unit
// tests. Transactions run against a deep copy of the state and are swapped in
// only on success, mirroring the commit/rollback behavior of the Postgres
// store. Failure hooks let tests inject store errors mid-transaction.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"atm-service/internal/domain"
	"atm-service/internal/errors"
)

type state struct {
	accounts      map[int64]*domain.Account
	entries       []domain.Transaction
	nextAccountID int64
	nextEntryID   int64
}

func (s *state) clone() *state {
	cp := &state{
		accounts:      make(map[int64]*domain.Account, len(s.accounts)),
		entries:       make([]domain.Transaction, len(s.entries)),
		nextAccountID: s.nextAccountID,
		nextEntryID:   s.nextEntryID,
	}
	for id, a := range s.accounts {
		acct := *a
		cp.accounts[id] = &acct
	}
	copy(cp.entries, s.entries)
	return cp
}

// Store is a thread-safe in-memory implementation of domain.Store. A single
// mutex serializes transactions, which is exactly the per-account ordering
// guarantee the engine relies on.
type Store struct {
	mu   sync.Mutex
	st   *state
	inTx bool

	// Failure hooks, called (when set) just before the corresponding write.
	// Returning an error makes the write fail and the transaction roll back.
	BeforeBalanceWrite func() error
	BeforeAppend       func() error
}

func NewStore() *Store {
	return &Store{
		st: &state{
			accounts: make(map[int64]*domain.Account),
		},
	}
}

func (s *Store) Accounts() domain.AccountRepository { return s }
func (s *Store) Ledger() domain.LedgerRepository    { return s }

func (s *Store) WithTransaction(ctx context.Context, fn func(domain.Store) error) error {
	if s.inTx {
		return errors.NewAppError(errors.InternalError, "cannot begin transaction inside a transaction")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &Store{
		st:                 s.st.clone(),
		inTx:               true,
		BeforeBalanceWrite: s.BeforeBalanceWrite,
		BeforeAppend:       s.BeforeAppend,
	}

	if err := fn(tx); err != nil {
		return err
	}

	s.st = tx.st
	return nil
}

// lock is a no-op inside a transaction, where the outer mutex is already held.
func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) CreateAccount(account *domain.Account) error {
	defer s.lock()()

	for _, a := range s.st.accounts {
		if a.CardNumber == account.CardNumber {
			return errors.ErrDuplicateAccount
		}
	}

	s.st.nextAccountID++
	now := time.Now()
	account.ID = s.st.nextAccountID
	account.CreatedAt = now
	account.UpdatedAt = now

	acct := *account
	s.st.accounts[account.ID] = &acct
	return nil
}

func (s *Store) GetAccount(id int64) (*domain.Account, error) {
	defer s.lock()()

	a, ok := s.st.accounts[id]
	if !ok {
		return nil, errors.ErrAccountNotFound
	}
	acct := *a
	return &acct, nil
}

// GetAccountForUpdate behaves like GetAccount; serialization comes from the
// store-wide transaction mutex rather than a row lock.
func (s *Store) GetAccountForUpdate(id int64) (*domain.Account, error) {
	return s.GetAccount(id)
}

func (s *Store) GetAccountByCardNumber(cardNumber string) (*domain.Account, error) {
	defer s.lock()()

	for _, a := range s.st.accounts {
		if a.CardNumber == cardNumber {
			acct := *a
			return &acct, nil
		}
	}
	return nil, errors.ErrAccountNotFound
}

func (s *Store) UpdateAccountBalance(id int64, newBalance int64) error {
	defer s.lock()()

	if s.BeforeBalanceWrite != nil {
		if err := s.BeforeBalanceWrite(); err != nil {
			return err
		}
	}

	a, ok := s.st.accounts[id]
	if !ok {
		return errors.ErrAccountNotFound
	}
	a.Balance = newBalance
	a.UpdatedAt = time.Now()
	return nil
}

func (s *Store) AppendEntry(entry *domain.Transaction) error {
	defer s.lock()()

	if s.BeforeAppend != nil {
		if err := s.BeforeAppend(); err != nil {
			return err
		}
	}

	if entry.IdempotencyKey != nil {
		for i := range s.st.entries {
			k := s.st.entries[i].IdempotencyKey
			if k != nil && *k == *entry.IdempotencyKey {
				return errors.NewAppError(errors.TransactionAborted, "idempotency key already used")
			}
		}
	}

	s.st.nextEntryID++
	entry.ID = s.st.nextEntryID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.st.entries = append(s.st.entries, *entry)
	return nil
}

func (s *Store) GetEntryByIdempotencyKey(key uuid.UUID) (*domain.Transaction, error) {
	defer s.lock()()

	for i := range s.st.entries {
		k := s.st.entries[i].IdempotencyKey
		if k != nil && *k == key {
			entry := s.st.entries[i]
			return &entry, nil
		}
	}
	return nil, nil
}

func (s *Store) ListByAccount(accountID int64, limit int) ([]domain.Transaction, error) {
	defer s.lock()()

	entries := make([]domain.Transaction, 0, limit)
	for i := range s.st.entries {
		if s.st.entries[i].AccountID == accountID {
			entries = append(entries, s.st.entries[i])
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

var _ domain.Store = (*Store)(nil)
