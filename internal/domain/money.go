package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

var (
	// ErrUnknownCurrency is returned when the ISO 4217 code cannot be parsed.
	ErrUnknownCurrency = errors.New("domain: unknown currency")
	// ErrNegativeAmount is returned when a negative amount is converted to minor units.
	ErrNegativeAmount = errors.New("domain: amount must not be negative")
)

// LineItemsTotal sums quantity * unit price across items using exact decimal arithmetic.
func LineItemsTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// CurrencyScale returns the number of minor-unit digits for the ISO currency code.
func CurrencyScale(code string) (int32, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale), nil
}

// ToMinorUnits converts a decimal amount to the integer minor-unit representation used by
// payment gateways, rounding half up at the currency scale (199.995 INR -> 20000).
func ToMinorUnits(amount decimal.Decimal, code string) (int64, error) {
	if amount.IsNegative() {
		return 0, ErrNegativeAmount
	}
	scale, err := CurrencyScale(code)
	if err != nil {
		return 0, err
	}
	// decimal.Round rounds half away from zero, which is half up for non-negative amounts.
	return amount.Shift(scale).Round(0).IntPart(), nil
}

// FormatAmount renders the amount fixed to the currency scale, e.g. "250.00" for INR.
func FormatAmount(amount decimal.Decimal, code string) string {
	scale, err := CurrencyScale(code)
	if err != nil {
		scale = 2
	}
	return amount.StringFixed(scale)
}
