// Seeds the demo account: card 1111222233334444, PIN 1234, balance 500.00.
// Safe to run repeatedly; it does nothing if the card already exists.
package main

import (
	"database/sql"
	stderrors "errors"
	"log/slog"
	"os"

	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"atm-service/internal/config"
	"atm-service/internal/domain"
	"atm-service/internal/errors"
	"atm-service/internal/repository"
)

const (
	seedCardNumber   = "1111222233334444"
	seedPIN          = "1234"
	seedBalanceCents = 50000
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg := config.Load()

	db, err := sql.Open("postgres", cfg.GetDBConnectionString())
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	store := repository.NewStore(db, logger)

	if _, err := store.Accounts().GetAccountByCardNumber(seedCardNumber); err == nil {
		logger.Info("Account already exists", "card_number", seedCardNumber)
		return
	} else {
		var appErr *errors.AppError
		if !stderrors.As(err, &appErr) || appErr.Code != errors.AccountNotFound {
			logger.Error("Failed to check existing account", "error", err)
			os.Exit(1)
		}
	}

	pinHash, err := bcrypt.GenerateFromPassword([]byte(seedPIN), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("Failed to hash PIN", "error", err)
		os.Exit(1)
	}

	account := &domain.Account{
		CardNumber: seedCardNumber,
		PINHash:    string(pinHash),
		Balance:    seedBalanceCents,
	}

	if err := store.Accounts().CreateAccount(account); err != nil {
		logger.Error("Failed to seed account", "error", err)
		os.Exit(1)
	}

	logger.Info("Seeded account",
		"account_id", account.ID,
		"card_number", seedCardNumber,
		"balance", domain.FormatCents(seedBalanceCents))
}
