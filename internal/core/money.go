// Package core holds the ledger data model and the input parsing shared by
// the engines, the services and the HTTP layer.
//
// This file contains the parsing of user-entered amounts and the rounding
// policy applied to every computed figure.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-entered decimal string into a positive amount.
//
// Both dot (12.34) and comma (12,34) separators are accepted. Signs, blanks,
// non-numeric input and values <= 0 are rejected with ErrInvalidAmount.
// No rounding is applied: custom shares keep whatever precision was typed.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount(" 7,5 ")  -> 7.5, nil
//	ParseAmount("-3")     -> 0, ErrInvalidAmount
//	ParseAmount("abc")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// ParseDecimal is ParseAmount without the float conversion.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	// decimal accepts exponents; amounts typed by people never need them
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// Dec lifts a stored amount into decimal arithmetic.
func Dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// Round2 rounds to two decimals, half away from zero.
func Round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
