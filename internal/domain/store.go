package domain

import "context"

// Store is the unit-of-work boundary over both tables. WithTransaction runs fn
// against a transactional view of the store; the balance write and the ledger
// append performed inside fn become visible together or not at all.
type Store interface {
	Accounts() AccountRepository
	Ledger() LedgerRepository
	WithTransaction(ctx context.Context, fn func(Store) error) error
}
