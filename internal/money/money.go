// Package money converts between integer minor currency units, the only
// representation used internally, and two-decimal major-unit strings shown
// to provider UIs. Amounts stay int64 end to end so no float rounding can
// drift a refund or capture amount.
package money

import (
	"fmt"
	"strconv"
	"strings"
)

// MajorString formats minor units as a fixed two-decimal major-unit amount,
// e.g. 1050 -> "10.50".
func MajorString(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

// MinorFromMajorString parses a two-decimal major-unit amount back to minor
// units, e.g. "10.50" -> 1050. It accepts at most two fraction digits.
func MinorFromMajorString(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty amount")
	}

	negative := strings.HasPrefix(value, "-")
	value = strings.TrimPrefix(value, "-")

	wholePart := value
	fracPart := ""
	if idx := strings.IndexByte(value, '.'); idx >= 0 {
		wholePart = value[:idx]
		fracPart = value[idx+1:]
	}
	if wholePart == "" || len(fracPart) > 2 {
		return 0, fmt.Errorf("invalid amount %q", value)
	}
	for len(fracPart) < 2 {
		fracPart += "0"
	}

	whole, err := strconv.ParseInt(wholePart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", value)
	}
	frac, err := strconv.ParseInt(fracPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", value)
	}

	minor := whole*100 + frac
	if negative {
		minor = -minor
	}
	return minor, nil
}
