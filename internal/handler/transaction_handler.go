package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"atm-service/internal/domain"
	"atm-service/internal/errors"
	"atm-service/internal/service"
)

type TransactionHandler struct {
	engine *service.BalanceEngine
}

func NewTransactionHandler(engine *service.BalanceEngine) *TransactionHandler {
	return &TransactionHandler{
		engine: engine,
	}
}

type ApplyTransactionRequest struct {
	Type           string `json:"type"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type ApplyTransactionResponse struct {
	TransactionID int64     `json:"transaction_id"`
	AccountID     int64     `json:"account_id"`
	Type          string    `json:"type"`
	Amount        string    `json:"amount"`
	Balance       string    `json:"balance"`
	CreatedAt     time.Time `json:"created_at"`
}

func (h *TransactionHandler) Apply(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromPath(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req ApplyTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body").WithDetails(err.Error()))
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, errors.NewAppError(errors.InvalidAmount, "invalid amount format").WithDetails(err.Error()))
		return
	}

	// Parse optional idempotency key
	var idempotencyKey *uuid.UUID
	if req.IdempotencyKey != "" {
		key, err := uuid.Parse(req.IdempotencyKey)
		if err != nil {
			writeError(w, errors.NewAppError(errors.InvalidInput, "invalid idempotency_key format").WithDetails(err.Error()))
			return
		}
		idempotencyKey = &key
	}

	entry, err := h.engine.Apply(r.Context(), &service.ApplyRequest{
		AccountID:      accountID,
		Type:           domain.TransactionType(req.Type),
		Amount:         amount,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response := ApplyTransactionResponse{
		TransactionID: entry.ID,
		AccountID:     entry.AccountID,
		Type:          string(entry.Type),
		Amount:        domain.FormatCents(entry.Amount),
		Balance:       domain.FormatCents(entry.BalanceAfter),
		CreatedAt:     entry.CreatedAt,
	}

	writeJSON(w, http.StatusCreated, response)
}
