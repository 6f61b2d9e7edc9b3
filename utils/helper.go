package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

// DefaultCurrency is the reporting currency suffix used in user-facing
// messages. HGB group statements are prepared in EUR.
const DefaultCurrency = "EUR"

// FormatAmount renders a monetary value for user-facing check/variance
// messages using German separators: 1.234.567,89 EUR.
// Presentation only; never used in computations.
func FormatAmount(amount decimal.Decimal) string {
	s := amount.StringFixed(2)

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	intPart := s[:len(s)-3]
	fracPart := s[len(s)-2:]

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, digit := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(digit)
	}
	b.WriteByte(',')
	b.WriteString(fracPart)
	b.WriteByte(' ')
	b.WriteString(DefaultCurrency)
	return b.String()
}

// FormatPercent renders a percentage with a German decimal comma: 12,50 %.
func FormatPercent(pct decimal.Decimal) string {
	return strings.ReplaceAll(pct.StringFixed(2), ".", ",") + " %"
}

func UniqueSlice[T comparable](values []T) []T {
	seen := make(map[T]bool, len(values))
	out := make([]T, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
