// Package money converts between user-facing decimal amounts and the
// integer cents used everywhere else. Rounding happens only in FromDecimal.
package money

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
)

// Cents is a signed amount in the currency's base unit.
type Cents = int64

// CommissionRatePercent is the platform's cut used by admin reporting.
const CommissionRatePercent int64 = 5

// MaxCents bounds any single amount, price or order total
// (10 trillion in currency units).
const MaxCents Cents = 1_000_000_000_000_000

var maxCentsDecimal = decimal.NewFromInt(MaxCents)

// FromDecimal converts a decimal currency amount to cents, rounding half
// away from zero. Amounts beyond MaxCents in either direction are a
// VALIDATION_ERROR.
func FromDecimal(amount decimal.Decimal) (Cents, error) {
	cents := amount.Shift(2).Round(0)
	if cents.Abs().GreaterThan(maxCentsDecimal) {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount is out of range").
			WithDetails(map[string]any{"max": Format(MaxCents)})
	}
	return cents.IntPart(), nil
}

// AddLine returns total + price*qty, or false when the result would leave
// [0, MaxCents].
func AddLine(total, price Cents, qty int64) (Cents, bool) {
	if total < 0 || price < 0 || qty < 0 {
		return 0, false
	}
	if qty > 0 && price > (math.MaxInt64-total)/qty {
		return 0, false
	}
	sum := total + price*qty
	if sum > MaxCents {
		return 0, false
	}
	return sum, true
}

// Parse reads a decimal string such as "25000.00" into cents.
func Parse(raw string) (Cents, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return FromDecimal(d)
}

// ToDecimal converts cents back to a decimal value.
func ToDecimal(cents Cents) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Format renders cents with exactly two fractional digits.
func Format(cents Cents) string {
	return ToDecimal(cents).StringFixed(2)
}

// Commission returns amount*ratePercent/100 using integer division.
func Commission(amount Cents, ratePercent int64) Cents {
	return amount * ratePercent / 100
}

// Abs returns the magnitude of a signed amount.
func Abs(amount Cents) Cents {
	if amount < 0 {
		return -amount
	}
	return amount
}
