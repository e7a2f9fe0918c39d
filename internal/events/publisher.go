package events

import (
	"context"
	"time"
)

// TransactionCompleted is emitted after a balance mutation has committed.
type TransactionCompleted struct {
	TransactionID int64     `json:"transaction_id"`
	AccountID     int64     `json:"account_id"`
	Type          string    `json:"type"`
	Amount        string    `json:"amount"`
	BalanceAfter  string    `json:"balance_after"`
	CreatedAt     time.Time `json:"created_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event TransactionCompleted) error
	Close() error
}

// NoopPublisher is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event TransactionCompleted) error { return nil }
func (NoopPublisher) Close() error                                                  { return nil }
