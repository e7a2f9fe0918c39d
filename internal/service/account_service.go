package service

import (
	"log/slog"

	"atm-service/internal/domain"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type AccountService struct {
	store  domain.Store
	logger *slog.Logger
}

func NewAccountService(store domain.Store, logger *slog.Logger) *AccountService {
	return &AccountService{
		store:  store,
		logger: logger,
	}
}

// GetBalance is a plain read with no transactional requirement.
func (s *AccountService) GetBalance(accountID int64) (*domain.Account, error) {
	return s.store.Accounts().GetAccount(accountID)
}

// GetHistory returns the most recent ledger entries for an account, newest
// first. A non-positive limit falls back to the default; requests above the
// cap are clamped rather than rejected.
func (s *AccountService) GetHistory(accountID int64, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	if _, err := s.store.Accounts().GetAccount(accountID); err != nil {
		return nil, err
	}

	return s.store.Ledger().ListByAccount(accountID, limit)
}
