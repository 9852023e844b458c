package utils

import (
	"fmt"
	"math"
	"strings"
)

// FormatCurrencyIDR formats an amount as Indonesian Rupiah.
// Example: 15000.50 -> "Rp 15.000,50", 15000 -> "Rp 15.000"
func FormatCurrencyIDR(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}

	cents := int64(math.Round(amount * 100))
	whole := cents / 100
	fraction := cents % 100

	digits := fmt.Sprintf("%d", whole)
	var groups []string
	for len(digits) > 3 {
		groups = append([]string{digits[len(digits)-3:]}, groups...)
		digits = digits[:len(digits)-3]
	}
	groups = append([]string{digits}, groups...)

	out := sign + "Rp " + strings.Join(groups, ".")
	if fraction > 0 {
		out += fmt.Sprintf(",%02d", fraction)
	}
	return out
}
