package service

import (
	"context"
	stderrors "errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"atm-service/internal/domain"
	"atm-service/internal/errors"
	"atm-service/internal/events"
)

// BalanceEngine applies deposits and withdrawals as a single atomic unit
// against the account row and the ledger. Per-account operations are
// serialized by the row lock taken inside the unit of work; the effective
// order of operations is the lock-acquisition order, which is also the
// ledger's created_at/id order.
type BalanceEngine struct {
	store     domain.Store
	publisher events.Publisher
	logger    *slog.Logger
}

func NewBalanceEngine(store domain.Store, publisher events.Publisher, logger *slog.Logger) *BalanceEngine {
	return &BalanceEngine{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

type ApplyRequest struct {
	AccountID      int64
	Type           domain.TransactionType
	Amount         decimal.Decimal
	IdempotencyKey *uuid.UUID
}

// Apply validates the request, then runs lock -> read -> check -> write ->
// append -> commit. On success exactly one balance mutation and one ledger
// entry are committed together; on any failure neither is visible.
//
// The engine never retries. A transaction_aborted result is only safe to
// retry when the caller supplied an idempotency key, in which case the retry
// returns the previously committed entry instead of applying twice.
func (e *BalanceEngine) Apply(ctx context.Context, req *ApplyRequest) (*domain.Transaction, error) {
	if !req.Type.Valid() {
		return nil, errors.NewAppErrorf(errors.InvalidInput, "unknown transaction type %q", req.Type)
	}

	amount, err := domain.ToCents(req.Amount)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != nil {
		existing, err := e.store.Ledger().GetEntryByIdempotencyKey(*req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			e.logger.Info("Returning existing entry for idempotency key",
				"idempotency_key", req.IdempotencyKey,
				"transaction_id", existing.ID)
			return existing, nil
		}
	}

	entry := &domain.Transaction{
		AccountID:      req.AccountID,
		Type:           req.Type,
		Amount:         amount,
		IdempotencyKey: req.IdempotencyKey,
	}

	err = e.store.WithTransaction(ctx, func(tx domain.Store) error {
		account, err := tx.Accounts().GetAccountForUpdate(req.AccountID)
		if err != nil {
			return err
		}

		newBalance := account.Balance
		switch req.Type {
		case domain.TransactionTypeDeposit:
			newBalance += amount
		case domain.TransactionTypeWithdraw:
			if amount > account.Balance {
				return errors.ErrInsufficientFunds
			}
			newBalance -= amount
		}

		if err := tx.Accounts().UpdateAccountBalance(account.ID, newBalance); err != nil {
			return err
		}

		entry.BalanceAfter = newBalance
		return tx.Ledger().AppendEntry(entry)
	})

	if err != nil {
		e.logger.Warn("Balance operation failed",
			"account_id", req.AccountID,
			"type", req.Type,
			"error", err)
		return nil, classifyApplyError(err)
	}

	e.logger.Info("Balance operation applied",
		"account_id", req.AccountID,
		"type", req.Type,
		"transaction_id", entry.ID,
		"balance_after", domain.FormatCents(entry.BalanceAfter))

	e.publishCompleted(ctx, entry)
	return entry, nil
}

// classifyApplyError keeps domain rejections as-is and folds everything else
// (driver errors, commit failures, context expiry) into transaction_aborted.
func classifyApplyError(err error) error {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		switch appErr.Code {
		case errors.InsufficientFunds, errors.AccountNotFound, errors.InvalidAmount, errors.TransactionAborted:
			return appErr
		}
		return errors.ErrTransactionAborted.WithDetails(appErr.Error())
	}
	return errors.ErrTransactionAborted.WithDetails(err.Error())
}

// publishCompleted emits the event after commit. The money has already moved,
// so a publish failure is logged and swallowed.
func (e *BalanceEngine) publishCompleted(ctx context.Context, entry *domain.Transaction) {
	event := events.TransactionCompleted{
		TransactionID: entry.ID,
		AccountID:     entry.AccountID,
		Type:          string(entry.Type),
		Amount:        domain.FormatCents(entry.Amount),
		BalanceAfter:  domain.FormatCents(entry.BalanceAfter),
		CreatedAt:     entry.CreatedAt,
	}

	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Error("Failed to publish transaction event",
			"transaction_id", entry.ID,
			"error", err)
	}
}
