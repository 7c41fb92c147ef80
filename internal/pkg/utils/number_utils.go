package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// maxFractionDigits is the precision used for attribute strings.
const maxFractionDigits = 8

// FormatNumber renders d with up to 8 fractional digits and strips trailing zeros.
// Example: 0.000123400 => "0.0001234", 25000.00 => "25000"
func FormatNumber(d decimal.Decimal) string {
	formatted := d.StringFixed(maxFractionDigits)
	if strings.Contains(formatted, ".") {
		formatted = strings.TrimRight(formatted, "0")
		formatted = strings.TrimRight(formatted, ".")
	}
	if formatted == "-0" {
		return "0"
	}
	return formatted
}

// FormatWithUnit renders d with FormatNumber followed by a space and unit.
func FormatWithUnit(d decimal.Decimal, unit string) string {
	return FormatNumber(d) + " " + unit
}

// RoundDisplay rounds d to 2 decimals for a sensor state. Raw precision is kept elsewhere.
func RoundDisplay(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
