// Package core holds the domain model shared by the scheduling,
// amortization and forecasting services.
//
// This file contains money parsing and rounding helpers. All monetary
// arithmetic uses shopspring/decimal; float64 never touches an amount.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// CurrencyPlaces is the number of fractional digits carried by persisted
// and reported amounts. Intermediate arithmetic keeps full precision;
// only installment and forecast outputs are rounded.
const CurrencyPlaces = 2

// ParseDecimal converts a user-supplied decimal string to a Decimal.
//
// It accepts both dot (12.34) and comma (12,34) separators and rejects
// signs, zero and malformed input. Parsed amounts are always positive;
// direction is modeled separately.
//
// Examples:
//
//	ParseDecimal("12.34")  -> 12.34, nil
//	ParseDecimal("12,34")  -> 12.34, nil
//	ParseDecimal("-1")     -> error
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	dots := 0
	for _, r := range s {
		if r == '.' {
			dots++
			continue
		}
		if !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if dots > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// RoundCurrency rounds half-up to the currency's minimal unit.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}
