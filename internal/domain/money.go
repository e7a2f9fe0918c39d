package domain

import (
	"github.com/shopspring/decimal"

	"atm-service/internal/errors"
)

// maxAmount bounds a single operation so the cent conversion can never
// overflow int64.
var maxAmount = decimal.NewFromInt(10_000_000_000)

var oneHundred = decimal.NewFromInt(100)

// ToCents converts a boundary decimal amount into integer cents.
// The amount must be strictly positive, carry at most 2 decimal places and
// stay within maxAmount; anything else is ErrInvalidAmount. Sub-cent
// precision is rejected, never rounded.
func ToCents(amount decimal.Decimal) (int64, error) {
	if amount.Sign() <= 0 {
		return 0, errors.ErrInvalidAmount
	}
	if !amount.Equal(amount.Truncate(2)) {
		return 0, errors.ErrInvalidAmount
	}
	if amount.GreaterThan(maxAmount) {
		return 0, errors.ErrInvalidAmount
	}
	return amount.Mul(oneHundred).IntPart(), nil
}

// FromCents converts integer cents back to a decimal for responses.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FormatCents renders cents with exactly two decimal places, e.g. "650.00".
func FormatCents(cents int64) string {
	return FromCents(cents).StringFixed(2)
}
