package core

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"15.50", "15.5", true},
		{"1,23", "1.23", true},
		{" 2.50 ", "2.5", true},
		{".5", "0.5", true},
		{"5.", "5", true},
		{"0", "0", true},
		{"-1", "0", false},
		{"+1", "0", false},
		{"1e3", "0", false},
		{"abc", "0", false},
		{"1.2.3", "0", false},
		{"1,000.50", "0", false},
		{".", "0", false},
		{"", "0", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error, got %s", tc.in, got)
		}
	}
}

func TestCoerceAmount(t *testing.T) {
	cases := []struct {
		name string
		in   any
		out  string
		ok   bool
	}{
		{"nil", nil, "0", false},
		{"float", 12.25, "12.25", true},
		{"int", 7, "7", true},
		{"int64", int64(9), "9", true},
		{"uint64", uint64(3), "3", true},
		{"string", "15.50", "15.5", true},
		{"json number", json.Number("4.75"), "4.75", true},
		{"decimal", decimal.RequireFromString("1.01"), "1.01", true},
		{"negative float", -3.0, "0", false},
		{"negative decimal", decimal.NewFromInt(-1), "0", false},
		{"nan", math.NaN(), "0", false},
		{"inf", math.Inf(1), "0", false},
		{"bool", true, "0", false},
		{"garbage string", "doce", "0", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := CoerceAmount(tc.in)
			if ok != tc.ok {
				t.Fatalf("CoerceAmount(%v) ok=%v, want %v", tc.in, ok, tc.ok)
			}
			if !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("CoerceAmount(%v) = %s, want %s", tc.in, got, tc.out)
			}
		})
	}
}

func TestSum(t *testing.T) {
	data := []Expense{
		{Monto: decimal.RequireFromString("0.1")},
		{Monto: decimal.RequireFromString("0.2")},
	}
	if got := Sum(data); !got.Equal(decimal.RequireFromString("0.3")) {
		t.Fatalf("Sum = %s, want 0.3", got)
	}
	if got := Sum(nil); !got.IsZero() {
		t.Fatalf("Sum(nil) = %s, want 0", got)
	}
}
