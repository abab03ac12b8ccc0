package validate

import (
	"strings"

	"github.com/JonMunkholm/chargeflow/internal/core"
	"github.com/shopspring/decimal"
)

// MinAmount is the smallest positive amount a charge can carry.
var MinAmount = decimal.New(1, -2)

// MaxAmount is the largest value NUMERIC(16,2) can store.
var MaxAmount = decimal.RequireFromString("99999999999999.99")

// AmountOptions tunes Amount.
type AmountOptions struct {
	// AllowZero accepts 0 as a valid amount.
	AllowZero bool
	// NoFloor rounds sub-cent values to cents without raising them to 0.01.
	NoFloor bool
}

// Amount parses raw as a non-negative decimal with at most 2 fractional digits.
//
// Values with more precision are rounded to cents with a warning. A positive
// value that rounds below 0.01 becomes 0.01, so "0.001" yields 0.01, unless
// opts.NoFloor is set.
func Amount(raw string, opts AmountOptions) Result[decimal.Decimal] {
	r := newResult[decimal.Decimal]()

	s := strings.TrimSpace(raw)
	if core.IsNullToken(s) {
		r.addError("Amount is required")
		return r
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		r.addError("Invalid amount format: " + s)
		return r
	}

	if d.IsNegative() {
		r.addError("Amount cannot be negative")
		return r
	}
	if d.IsZero() && !opts.AllowZero {
		r.addError("Amount cannot be zero")
		return r
	}

	if d.Exponent() < -2 {
		r.addWarning("Amount has more than 2 decimal places, will be rounded")
		rounded := d.Round(2)
		if !opts.NoFloor && d.IsPositive() && rounded.LessThan(MinAmount) {
			rounded = MinAmount
		}
		d = rounded
	}

	if d.GreaterThan(MaxAmount) {
		r.addError("Amount exceeds maximum of " + MaxAmount.String())
		return r
	}

	r.Value = d
	return r
}
