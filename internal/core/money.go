// Package core implements the group ledger engine: domain types and
// mutations, balance calculation and debt settlement planning.
//
// This file contains the fixed-point money type and functions for parsing
// monetary amounts from strings at the currency's minor-unit precision.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Currency is an ISO 4217 code. A group holds exactly one currency and the
// engine never converts between currencies.
type Currency string

const (
	EUR Currency = "EUR"
	USD Currency = "USD"
	GBP Currency = "GBP"
	CHF Currency = "CHF"
	JPY Currency = "JPY"
)

// minorDigits maps each supported currency to its number of minor-unit
// digits (2 for cent-based currencies, 0 for yen).
var minorDigits = map[Currency]int{
	EUR: 2,
	USD: 2,
	GBP: 2,
	CHF: 2,
	JPY: 0,
}

// MinorDigits returns the number of fractional digits of the currency's
// minor unit.
func (c Currency) MinorDigits() int {
	if d, ok := minorDigits[c]; ok {
		return d
	}
	return 2
}

func (c Currency) Validate() error {
	if _, ok := minorDigits[c]; !ok {
		return &ValidationError{Field: "currency", Reason: fmt.Sprintf("unsupported currency %q", string(c))}
	}
	return nil
}

// Money is an amount in minor units of the group currency (cents for EUR).
// All ledger arithmetic runs on int64 minor units; floats never enter the
// engine.
type Money struct {
	Cents int64
}

func (m Money) Add(o Money) Money { return Money{Cents: m.Cents + o.Cents} }
func (m Money) Sub(o Money) Money { return Money{Cents: m.Cents - o.Cents} }
func (m Money) Neg() Money        { return Money{Cents: -m.Cents} }
func (m Money) IsZero() bool      { return m.Cents == 0 }

// Validate checks the constraints for an expense amount: strictly positive.
func (m Money) Validate() error {
	if m.Cents <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	return nil
}

// Format renders the amount as a decimal string at the currency's
// minor-unit precision, e.g. Money{Cents: 6667} in EUR -> "66.67".
func (m Money) Format(c Currency) string {
	digits := c.MinorDigits()
	if digits == 0 {
		return strconv.FormatInt(m.Cents, 10)
	}
	units := m.Cents
	sign := ""
	if units < 0 {
		sign = "-"
		units = -units
	}
	pow := int64(1)
	for i := 0; i < digits; i++ {
		pow *= 10
	}
	return fmt.Sprintf("%s%d.%0*d", sign, units/pow, digits, units%pow)
}

// ParseAmount converts a decimal string to minor units of the given
// currency with half-up rounding on the first excess digit.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. The
// result must be strictly positive. Returns a ValidationError for invalid
// formats, signs, or zero amounts.
//
// Examples (EUR):
//
//	ParseAmount("12.34", EUR)  -> 1234, nil
//	ParseAmount("12,34", EUR)  -> 1234, nil
//	ParseAmount("12.346", EUR) -> 1235, nil (rounds up)
func ParseAmount(s string, c Currency) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, &ValidationError{Field: "amount", Reason: "empty"}
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		// Only unsigned values allowed
		return Money{}, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Money{}, &ValidationError{Field: "amount", Reason: "malformed decimal"}
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return Money{}, &ValidationError{Field: "amount", Reason: "malformed decimal"}
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return Money{}, &ValidationError{Field: "amount", Reason: "out of range"}
	}
	digits := c.MinorDigits()
	pow := int64(1)
	for i := 0; i < digits; i++ {
		pow *= 10
	}
	// Prevent overflow when scaling to minor units
	if iv >= (1<<63-1)/pow-1 {
		return Money{}, &ValidationError{Field: "amount", Reason: "out of range"}
	}
	// Take the first `digits` fractional digits, then half-up rounding on
	// the next one.
	var frac int64
	for i := 0; i < digits; i++ {
		frac *= 10
		if i < len(fracPart) {
			frac += int64(fracPart[i] - '0')
		}
	}
	if len(fracPart) > digits && fracPart[digits] >= '5' {
		frac++
	}
	cents := iv*pow + frac
	if cents <= 0 {
		return Money{}, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	return Money{Cents: cents}, nil
}
