package common

import "fmt"

// NormalizePct converts a user-supplied percentage threshold into percent
// units. Values at or below 1 are treated as fractions ("0.05" means 5%);
// anything larger is already in percent ("10" means 10%).
func NormalizePct(v float64) float64 {
	if v <= 1 {
		return v * 100
	}
	return v
}

// NormalizeFraction converts a user-supplied percentage into a fraction in
// [0, 1]. A stored "10" means 10% and becomes 0.10; "0.1" is kept as-is.
func NormalizeFraction(v float64) float64 {
	if v > 1 {
		return v / 100
	}
	return v
}

// FormatCents renders a [0,1] price as cents with one decimal, e.g. 0.725
// becomes "72.5¢".
func FormatCents(price float64) string {
	return fmt.Sprintf("%.1f¢", price*100)
}

// FormatSignedPct renders a percentage change with sign and two decimals,
// e.g. 6.0 becomes "+6.00%".
func FormatSignedPct(pct float64) string {
	return fmt.Sprintf("%+.2f%%", pct)
}
