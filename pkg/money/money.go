// Package money normalizes monetary amounts found in free text and formats
// them for display. Amounts are carried as shopspring decimals and rendered
// through go-money so that currency symbols and separators follow ISO-4217.
package money

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Common currency codes (ISO-4217)
const (
	BRL = "BRL"
	USD = "USD"
	EUR = "EUR"
)

var ErrInvalidAmount = errors.New("invalid amount")

var currencyMarkers = []string{"R$", "US$", "BRL", "USD", "EUR", "$", "€", "£"}

// ParseAmount converts a raw amount token into a decimal. The decimal
// separator is whichever of ',' and '.' appears last when both are present;
// a lone separator followed by exactly three digits is a thousands separator.
// A leading minus or surrounding parentheses make the value negative.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	negative := false
	if strings.HasPrefix(s, "(") {
		negative = true
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(s, "("), ")"))
	}

	for _, marker := range currencyMarkers {
		s = strings.ReplaceAll(s, marker, "")
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	} else if strings.HasSuffix(s, "-") {
		// Some bank exports put the sign after the number: "1.234,56-".
		negative = !negative
		s = s[:len(s)-1]
	}
	s = strings.TrimPrefix(s, "+")

	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	normalized := normalizeSeparators(s)
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// 1.234,56
			return strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
		}
		// 1,234.56
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if isThousandsOnly(s, ",") {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.ReplaceAll(s, ",", ".")
	case lastDot >= 0:
		if isThousandsOnly(s, ".") {
			return strings.ReplaceAll(s, ".", "")
		}
		return s
	default:
		return s
	}
}

// isThousandsOnly reports whether sep is used purely as a group separator:
// repeated ("1.234.567") or a single group of three digits not after a
// leading zero ("1.234" but not "0.125").
func isThousandsOnly(s, sep string) bool {
	if strings.Count(s, sep) > 1 {
		return true
	}
	idx := strings.LastIndex(s, sep)
	return len(s)-idx-1 == 3 && !strings.HasPrefix(s, "0"+sep)
}

// IsDecimalComma reports whether a sample of raw amount tokens mostly uses a
// comma as decimal separator.
func IsDecimalComma(samples []string) bool {
	comma, dot := 0, 0
	for _, raw := range samples {
		lastComma := strings.LastIndex(raw, ",")
		lastDot := strings.LastIndex(raw, ".")
		switch {
		case lastComma > lastDot && len(raw)-lastComma-1 <= 2:
			comma++
		case lastDot > lastComma && len(raw)-lastDot-1 <= 2:
			dot++
		}
	}
	return comma > dot
}

// Cents returns the amount in minor units, rounded half away from zero.
func Cents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromCents converts minor units back to a decimal.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Display formats an amount for humans, e.g. "R$1.500,50".
func Display(d decimal.Decimal, currencyCode string) string {
	if money.GetCurrency(currencyCode) == nil {
		currencyCode = BRL
	}
	return money.New(Cents(d), currencyCode).Display()
}

// Sum adds amounts exactly.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
