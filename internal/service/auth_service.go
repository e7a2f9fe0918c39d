package service

import (
	stderrors "errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"atm-service/internal/domain"
	"atm-service/internal/errors"
)

// AuthService maps card number + PIN to an account id. Everything downstream
// of it trusts the resolved id unconditionally, so an unknown card and a
// wrong PIN must be indistinguishable to the caller.
type AuthService struct {
	store  domain.Store
	logger *slog.Logger
}

func NewAuthService(store domain.Store, logger *slog.Logger) *AuthService {
	return &AuthService{
		store:  store,
		logger: logger,
	}
}

func (s *AuthService) ResolveAccount(cardNumber, pin string) (int64, error) {
	if cardNumber == "" || pin == "" {
		return 0, errors.ErrAuthFailure
	}

	account, err := s.store.Accounts().GetAccountByCardNumber(cardNumber)
	if err != nil {
		var appErr *errors.AppError
		if stderrors.As(err, &appErr) && appErr.Code == errors.AccountNotFound {
			s.logger.Warn("Auth attempt for unknown card")
			return 0, errors.ErrAuthFailure
		}
		return 0, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PINHash), []byte(pin)); err != nil {
		s.logger.Warn("Auth attempt with wrong PIN", "account_id", account.ID)
		return 0, errors.ErrAuthFailure
	}

	return account.ID, nil
}
