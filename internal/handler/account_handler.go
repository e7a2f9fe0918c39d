package handler

import (
	"net/http"
	"strconv"
	"time"

	"atm-service/internal/domain"
	"atm-service/internal/errors"
	"atm-service/internal/service"
)

type AccountHandler struct {
	accountService *service.AccountService
}

func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

type BalanceResponse struct {
	AccountID int64  `json:"account_id"`
	Balance   string `json:"balance"`
}

type HistoryEntry struct {
	ID           int64     `json:"id"`
	Type         string    `json:"type"`
	Amount       string    `json:"amount"`
	BalanceAfter string    `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromPath(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	account, err := h.accountService.GetBalance(accountID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response := BalanceResponse{
		AccountID: account.ID,
		Balance:   domain.FormatCents(account.Balance),
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *AccountHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDFromPath(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, errors.NewAppError(errors.InvalidInput, "invalid limit"))
			return
		}
	}

	entries, err := h.accountService.GetHistory(accountID, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	response := make([]HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		response = append(response, HistoryEntry{
			ID:           entry.ID,
			Type:         string(entry.Type),
			Amount:       domain.FormatCents(entry.Amount),
			BalanceAfter: domain.FormatCents(entry.BalanceAfter),
			CreatedAt:    entry.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, response)
}
