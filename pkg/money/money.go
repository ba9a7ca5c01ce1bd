// Package money converts between API decimal amounts and stored integer cents.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseCents parses a decimal string such as "49.90" into cents.
func ParseCents(raw string) (int64, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return ToCents(value)
}

// ToCents converts a decimal amount into cents, rejecting sub-cent precision.
func ToCents(value decimal.Decimal) (int64, error) {
	cents := value.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than two decimal places", value.String())
	}
	return cents.IntPart(), nil
}

// FromCents converts cents back into a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Format renders cents as a fixed two-decimal string.
func Format(cents int64) string {
	return FromCents(cents).StringFixed(2)
}

// Percent returns pct percent of cents, rounded half away from zero to the cent.
func Percent(cents int64, pct decimal.Decimal) int64 {
	return decimal.NewFromInt(cents).Mul(pct).Div(hundred).Round(0).IntPart()
}
