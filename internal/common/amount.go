package common

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a human-readable decimal string into integer base
// units at the given precision. "0.1" at 6 decimals is 100000 base units.
// Inputs with more fractional digits than the precision allows are rejected
// rather than silently truncated.
func ParseAmount(s string, decimals int32) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %q is negative", s)
	}
	if d.Exponent() < -decimals {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", s, decimals)
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %q has more than %d decimal places", s, decimals)
	}
	return scaled.IntPart(), nil
}

// FormatAmount renders integer base units back into a human-readable decimal
// string at the given precision.
func FormatAmount(units int64, decimals int32) string {
	return decimal.New(units, -decimals).String()
}
