package errors

import (
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	InvalidInput       ErrorCode = "invalid_input"
	InvalidAmount      ErrorCode = "invalid_amount"
	AccountNotFound    ErrorCode = "account_not_found"
	InsufficientFunds  ErrorCode = "insufficient_funds"
	TransactionAborted ErrorCode = "transaction_aborted"
	AuthFailure        ErrorCode = "auth_failure"
	DuplicateAccount   ErrorCode = "duplicate_account"
	InternalError      ErrorCode = "internal_error"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *AppError) WithDetails(details string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
	}
}

// HTTPStatus maps the error code to a response status.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case InvalidInput, InvalidAmount:
		return http.StatusBadRequest
	case AuthFailure:
		return http.StatusUnauthorized
	case AccountNotFound:
		return http.StatusNotFound
	case DuplicateAccount:
		return http.StatusConflict
	case InsufficientFunds:
		return http.StatusUnprocessableEntity
	case TransactionAborted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Predefined errors for common cases
var (
	ErrInvalidAmount      = NewAppError(InvalidAmount, "amount must be positive with at most 2 decimal places")
	ErrAccountNotFound    = NewAppError(AccountNotFound, "account not found")
	ErrInsufficientFunds  = NewAppError(InsufficientFunds, "insufficient funds")
	ErrTransactionAborted = NewAppError(TransactionAborted, "transaction could not be committed")
	ErrAuthFailure        = NewAppError(AuthFailure, "invalid card number or PIN")
	ErrDuplicateAccount   = NewAppError(DuplicateAccount, "account already exists")
	ErrInvalidAccountID   = NewAppError(InvalidInput, "invalid account id")
)
