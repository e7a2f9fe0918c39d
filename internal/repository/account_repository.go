package repository

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"atm-service/internal/domain"
	"atm-service/internal/errors"
)

type accountRepository struct {
	db     SQLExecutor
	logger *slog.Logger
}

func NewAccountRepository(db SQLExecutor, logger *slog.Logger) domain.AccountRepository {
	return &accountRepository{
		db:     db,
		logger: logger,
	}
}

func (r *accountRepository) CreateAccount(account *domain.Account) error {
	query := `
		INSERT INTO accounts (card_number, pin_hash, balance_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	now := time.Now()
	err := r.db.QueryRow(
		query,
		account.CardNumber,
		account.PINHash,
		account.Balance,
		now,
		now,
	).Scan(&account.ID)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				r.logger.Warn("Duplicate card number on account creation", "card_number", account.CardNumber)
				return errors.ErrDuplicateAccount
			}
		}
		r.logger.Error("Failed to create account", "card_number", account.CardNumber, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to create account").WithDetails(err.Error())
	}

	account.CreatedAt = now
	account.UpdatedAt = now
	r.logger.Info("Account created successfully", "account_id", account.ID)
	return nil
}

func (r *accountRepository) GetAccount(id int64) (*domain.Account, error) {
	query := `
		SELECT id, card_number, pin_hash, balance_cents, created_at, updated_at
		FROM accounts WHERE id = $1
	`

	return r.scanAccount(query, id)
}

// GetAccountForUpdate takes the row-level exclusive lock that serializes all
// balance mutations for one account. Only valid inside WithTransaction; the
// lock is released on commit or rollback.
func (r *accountRepository) GetAccountForUpdate(id int64) (*domain.Account, error) {
	query := `
		SELECT id, card_number, pin_hash, balance_cents, created_at, updated_at
		FROM accounts WHERE id = $1 FOR UPDATE
	`

	return r.scanAccount(query, id)
}

func (r *accountRepository) GetAccountByCardNumber(cardNumber string) (*domain.Account, error) {
	query := `
		SELECT id, card_number, pin_hash, balance_cents, created_at, updated_at
		FROM accounts WHERE card_number = $1
	`

	return r.scanAccount(query, cardNumber)
}

func (r *accountRepository) scanAccount(query string, arg interface{}) (*domain.Account, error) {
	var account domain.Account

	err := r.db.QueryRow(query, arg).Scan(
		&account.ID,
		&account.CardNumber,
		&account.PINHash,
		&account.Balance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		r.logger.Error("Failed to get account", "error", err)
		return nil, errors.NewAppError(errors.InternalError, "failed to get account").WithDetails(err.Error())
	}

	return &account, nil
}

func (r *accountRepository) UpdateAccountBalance(id int64, newBalance int64) error {
	query := `
		UPDATE accounts
		SET balance_cents = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.db.Exec(query, newBalance, time.Now(), id)
	if err != nil {
		r.logger.Error("Failed to update account balance", "account_id", id, "error", err)
		return errors.NewAppError(errors.InternalError, "failed to update account balance").WithDetails(err.Error())
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewAppError(errors.InternalError, "failed to get rows affected").WithDetails(err.Error())
	}

	if rowsAffected == 0 {
		r.logger.Warn("No account found to update", "account_id", id)
		return errors.ErrAccountNotFound
	}

	return nil
}
