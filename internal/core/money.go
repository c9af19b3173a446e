// Package core provides money parsing and handling utilities.
//
// This file contains the amount coercion used by the normalizer: stored
// records carry amounts as numbers or as strings, under more than one
// field name, and everything ends up as a decimal.Decimal.
package core

import (
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts a decimal string to a non-negative decimal.
//
// It accepts dot (12.34) or, when no dot is present, a single comma (12,34)
// as decimal separator. Signs, exponents, thousands separators and empty
// strings are rejected.
//
// Examples:
//
//	ParseAmount("15.50") -> 15.5, nil
//	ParseAmount(" 7,25 ") -> 7.25, nil
//	ParseAmount("-1")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if !strings.Contains(s, ".") && strings.Count(s, ",") == 1 {
		s = strings.Replace(s, ",", ".", 1)
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	if parts[0] == "" && (len(parts) == 1 || parts[1] == "") {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, p := range parts {
		for _, r := range p {
			if r < '0' || r > '9' {
				return decimal.Zero, ErrInvalidAmount
			}
		}
	}
	if len(parts) == 2 && parts[1] == "" {
		s = parts[0]
	}
	if parts[0] == "" {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// CoerceAmount converts a raw field value to a non-negative decimal.
// The boolean is false when v is absent, of an unsupported type, negative,
// or not a finite number.
func CoerceAmount(v any) (decimal.Decimal, bool) {
	var d decimal.Decimal
	switch n := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		d = n
	case string:
		p, err := ParseAmount(n)
		if err != nil {
			return decimal.Zero, false
		}
		d = p
	case json.Number:
		p, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero, false
		}
		d = p
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, false
		}
		d = decimal.NewFromFloat(n)
	case float32:
		f := float64(n)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, false
		}
		d = decimal.NewFromFloat32(n)
	case int:
		d = decimal.NewFromInt(int64(n))
	case int8:
		d = decimal.NewFromInt(int64(n))
	case int16:
		d = decimal.NewFromInt(int64(n))
	case int32:
		d = decimal.NewFromInt(int64(n))
	case int64:
		d = decimal.NewFromInt(n)
	case uint:
		d = decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(n)), 0)
	case uint8:
		d = decimal.NewFromInt(int64(n))
	case uint16:
		d = decimal.NewFromInt(int64(n))
	case uint32:
		d = decimal.NewFromInt(int64(n))
	case uint64:
		d = decimal.NewFromBigInt(new(big.Int).SetUint64(n), 0)
	default:
		return decimal.Zero, false
	}
	if d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

// Sum adds up the Monto of every expense.
func Sum(data []Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range data {
		total = total.Add(e.Monto)
	}
	return total
}
