package domain

import (
	"time"
)

// Account holds the current balance for one card holder. Balance is stored in
// integer cents; decimal amounts only exist at the HTTP boundary.
type Account struct {
	ID         int64     `json:"account_id"`
	CardNumber string    `json:"card_number"`
	PINHash    string    `json:"-"`
	Balance    int64     `json:"balance_cents"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type AccountRepository interface {
	CreateAccount(account *Account) error
	GetAccount(id int64) (*Account, error)
	GetAccountForUpdate(id int64) (*Account, error)
	GetAccountByCardNumber(cardNumber string) (*Account, error)
	UpdateAccountBalance(id int64, newBalance int64) error
}
