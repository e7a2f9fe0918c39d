package handler

import (
	"encoding/json"
	"net/http"

	"atm-service/internal/errors"
	"atm-service/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

type ResolveAccountRequest struct {
	CardNumber string `json:"card_number"`
	PIN        string `json:"pin"`
}

type ResolveAccountResponse struct {
	AccountID int64 `json:"account_id"`
}

func (h *AuthHandler) ResolveAccount(w http.ResponseWriter, r *http.Request) {
	var req ResolveAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.NewAppError(errors.InvalidInput, "invalid request body"))
		return
	}

	accountID, err := h.authService.ResolveAccount(req.CardNumber, req.PIN)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ResolveAccountResponse{AccountID: accountID})
}
