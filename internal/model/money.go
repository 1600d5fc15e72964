package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountScale is the fixed number of fractional digits for balances and amounts.
const AmountScale = 2

// MaxAmount is the exclusive upper bound for amounts and balances, matching
// the decimal(19,2) columns.
var MaxAmount = decimal.New(1, 17)

// ParseAmount parses a decimal string such as "100.50".
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q is not a decimal", ErrInvalidArgument, s)
	}
	return d, nil
}

// NormalizeAmount checks amount is strictly positive with at most two
// fractional digits and returns it at scale 2.
func NormalizeAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be greater than 0", ErrInvalidArgument)
	}
	if amount.GreaterThanOrEqual(MaxAmount) {
		return decimal.Zero, fmt.Errorf("%w: amount must be less than %s", ErrInvalidArgument, MaxAmount.String())
	}
	if !amount.Equal(amount.Truncate(AmountScale)) {
		return decimal.Zero, fmt.Errorf("%w: amount has more than %d decimal places", ErrInvalidArgument, AmountScale)
	}
	return amount.Truncate(AmountScale), nil
}

// FormatAmount renders d with exactly two fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(AmountScale)
}

// CheckBalance rejects a resulting balance the ledger cannot store.
func CheckBalance(accountNumber string, balance decimal.Decimal) error {
	if balance.GreaterThanOrEqual(MaxAmount) {
		return fmt.Errorf("%w: account %s balance would exceed %s", ErrInvalidArgument, accountNumber, MaxAmount.String())
	}
	return nil
}
