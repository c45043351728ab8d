// Package currency holds amount parsing and formatting helpers and the
// exchange-rate provider used by the currency change.
package currency

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var symbolPattern = regexp.MustCompile(`[€$£¥₹₽₩₪\s]|CHF`)

// NormalizeCode upper-cases and trims an ISO 4217 code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code looks like a three letter ISO 4217 code.
func ValidCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// ParseAmount parses user input such as "1,234.56", "1.234,56", "€12,50" or
// "CHF 1'200". Empty input is an error.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := standardize(s)
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse amount '%s': %w", s, err)
	}
	return d, nil
}

func standardize(s string) string {
	s = symbolPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "'", "")

	comma := strings.LastIndex(s, ",")
	dot := strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0:
		if dot < comma {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		// A trailing group of one or two digits is a decimal part.
		if len(s)-comma-1 <= 2 && strings.Count(s, ",") == 1 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}
	return s
}

// Format renders amount with two decimals and the currency symbol or code.
func Format(amount decimal.Decimal, code string) string {
	v := amount.StringFixed(2)
	switch NormalizeCode(code) {
	case "":
		return v
	case "EUR":
		return "€" + v
	case "USD":
		return "$" + v
	case "GBP":
		return "£" + v
	case "JPY":
		return "¥" + v
	case "INR":
		return "₹" + v
	default:
		return NormalizeCode(code) + " " + v
	}
}
