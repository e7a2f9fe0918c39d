package domain

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypeDeposit  TransactionType = "DEPOSIT"
	TransactionTypeWithdraw TransactionType = "WITHDRAW"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	return t == TransactionTypeDeposit || t == TransactionTypeWithdraw
}

// Transaction is one immutable ledger entry. Amount is the positive magnitude
// of the operation in cents regardless of direction; BalanceAfter is the
// account balance at the instant the entry was committed.
type Transaction struct {
	ID             int64           `json:"id"`
	AccountID      int64           `json:"account_id"`
	Type           TransactionType `json:"type"`
	Amount         int64           `json:"amount_cents"`
	BalanceAfter   int64           `json:"balance_after_cents"`
	IdempotencyKey *uuid.UUID      `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// LedgerRepository is append-only: entries are never updated or deleted.
type LedgerRepository interface {
	AppendEntry(entry *Transaction) error
	GetEntryByIdempotencyKey(key uuid.UUID) (*Transaction, error)
	ListByAccount(accountID int64, limit int) ([]Transaction, error)
}
