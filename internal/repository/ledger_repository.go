package repository

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"atm-service/internal/domain"
	"atm-service/internal/errors"
)

type ledgerRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewLedgerRepository(db SQLExecutor, logger *slog.Logger) domain.LedgerRepository {
	return &ledgerRepository{
		db:     db,
		logger: logger,
	}
}

// AppendEntry inserts one immutable ledger row. The store assigns id and
// created_at; there is no update or delete path for transactions.
func (r *ledgerRepository) AppendEntry(entry *domain.Transaction) error {
	query := `
		INSERT INTO transactions
		(account_id, type, amount_cents, balance_after_cents, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	// Handle optional idempotency key
	var idempotencyKey interface{}
	if entry.IdempotencyKey != nil {
		idempotencyKey = entry.IdempotencyKey.String()
	}

	now := time.Now()
	err := r.db.QueryRow(
		query,
		entry.AccountID,
		entry.Type,
		entry.Amount,
		entry.BalanceAfter,
		idempotencyKey,
		now,
	).Scan(&entry.ID)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" && pqErr.Constraint == "idx_transactions_idempotency_key" {
				r.logger.Warn("Duplicate idempotency key", "idempotency_key", entry.IdempotencyKey)
				return errors.NewAppError(errors.TransactionAborted, "idempotency key already used")
			}
		}
		r.logger.Error("Failed to append ledger entry",
			"account_id", entry.AccountID,
			"type", entry.Type,
			"error", err)
		return errors.NewAppError(errors.InternalError, "failed to append ledger entry").WithDetails(err.Error())
	}

	entry.CreatedAt = now
	return nil
}

func (r *ledgerRepository) GetEntryByIdempotencyKey(key uuid.UUID) (*domain.Transaction, error) {
	query := `
		SELECT id, account_id, type, amount_cents, balance_after_cents, idempotency_key, created_at
		FROM transactions WHERE idempotency_key = $1
	`

	rows, err := r.db.Query(query, key.String())
	if err != nil {
		r.logger.Error("Failed to look up idempotency key", "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to look up idempotency key").WithDetails(err.Error())
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to look up idempotency key").WithDetails(err.Error())
		}
		return nil, nil
	}

	entry, err := r.scanEntry(rows)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListByAccount returns the newest entries first. Ordering is by created_at
// then id, both descending, so entries sharing a timestamp still come back in
// a deterministic order.
func (r *ledgerRepository) ListByAccount(accountID int64, limit int) ([]domain.Transaction, error) {
	query := `
		SELECT id, account_id, type, amount_cents, balance_after_cents, idempotency_key, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(query, accountID, limit)
	if err != nil {
		r.logger.Error("Failed to list ledger entries", "account_id", accountID, "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to list ledger entries").WithDetails(err.Error())
	}
	defer rows.Close()

	entries := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to list ledger entries").WithDetails(err.Error())
	}
	return entries, nil
}

func (r *ledgerRepository) scanEntry(rows *sql.Rows) (*domain.Transaction, error) {
	var entry domain.Transaction
	var idempotencyKey sql.NullString

	err := rows.Scan(
		&entry.ID,
		&entry.AccountID,
		&entry.Type,
		&entry.Amount,
		&entry.BalanceAfter,
		&idempotencyKey,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, errors.NewAppError(errors.InternalError, "failed to scan ledger entry").WithDetails(err.Error())
	}

	if idempotencyKey.Valid {
		key, err := uuid.Parse(idempotencyKey.String)
		if err != nil {
			return nil, errors.NewAppError(errors.InternalError, "failed to parse idempotency key").WithDetails(err.Error())
		}
		entry.IdempotencyKey = &key
	}

	return &entry, nil
}
