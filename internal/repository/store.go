package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"atm-service/internal/domain"
	"atm-service/internal/errors"
)

// Store provides a unified interface for all repository operations with
// transaction support. It implements domain.Store over Postgres.
type Store struct {
	db       *sql.DB
	executor SQLExecutor
	logger   *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		db:       db,
		executor: db,
		logger:   logger,
	}
}

// Accounts returns an AccountRepository using the current executor
func (s *Store) Accounts() domain.AccountRepository {
	return NewAccountRepository(s.executor, s.logger)
}

// Ledger returns a LedgerRepository using the current executor
func (s *Store) Ledger() domain.LedgerRepository {
	return NewLedgerRepository(s.executor, s.logger)
}

// WithTransaction executes fn within a database transaction. Row locks taken
// by GetAccountForUpdate are held until commit or rollback; the context bounds
// how long the unit of work (including lock waits) may run.
func (s *Store) WithTransaction(ctx context.Context, fn func(domain.Store) error) error {
	if s.db == nil {
		return errors.NewAppError(errors.InternalError, "cannot begin transaction inside a transaction")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	txStore := &Store{
		executor: tx,
		logger:   s.logger,
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

var _ domain.Store = (*Store)(nil)
