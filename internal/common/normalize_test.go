package common

import "testing"

func TestNormalizePct(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0.05, 5},
		{1, 100},
		{5, 5},
		{10, 10},
	}
	for _, c := range cases {
		if got := NormalizePct(c.in); got != c.want {
			t.Errorf("NormalizePct(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestNormalizeFraction(t *testing.T) {
	if got := NormalizeFraction(10); got != 0.10 {
		t.Errorf("NormalizeFraction(10) = %v, want 0.10", got)
	}
	if got := NormalizeFraction(0.1); got != 0.1 {
		t.Errorf("NormalizeFraction(0.1) = %v, want 0.1", got)
	}
}

func TestFormatCents(t *testing.T) {
	if got := FormatCents(0.725); got != "72.5¢" {
		t.Errorf("FormatCents(0.725) = %q", got)
	}
	if got := FormatCents(0.4); got != "40.0¢" {
		t.Errorf("FormatCents(0.4) = %q", got)
	}
}

func TestFormatSignedPct(t *testing.T) {
	if got := FormatSignedPct(6.0); got != "+6.00%" {
		t.Errorf("FormatSignedPct(6.0) = %q", got)
	}
	if got := FormatSignedPct(-3.5); got != "-3.50%" {
		t.Errorf("FormatSignedPct(-3.5) = %q", got)
	}
}

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount("0.1", 6)
	if err != nil {
		t.Fatalf("ParseAmount failed: %v", err)
	}
	if got != 100_000 {
		t.Errorf("ParseAmount(0.1, 6) = %d, want 100000", got)
	}

	if _, err := ParseAmount("0.0000001", 6); err == nil {
		t.Error("expected error for too many decimal places")
	}
	if _, err := ParseAmount("abc", 6); err == nil {
		t.Error("expected error for non-numeric input")
	}
	if _, err := ParseAmount("-1", 6); err == nil {
		t.Error("expected error for negative amount")
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(100_000, 6); got != "0.1" {
		t.Errorf("FormatAmount(100000, 6) = %q, want 0.1", got)
	}
}
