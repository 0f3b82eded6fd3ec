package asset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals is the fixed-point precision of every asset on the exchange.
const Decimals int32 = 18

var ErrBadAmount = errors.New("invalid amount")

// ParseUnits converts a human decimal ("0.99") into base units.
func ParseUnits(s string, decimals int32) (*uint256.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadAmount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative %s", ErrBadAmount, s)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: more than %d fractional digits in %s", ErrBadAmount, decimals, s)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %s overflows 256 bits", ErrBadAmount, s)
	}
	return v, nil
}

// FormatUnits renders base units as a trimmed decimal string.
func FormatUnits(v *uint256.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v.ToBig(), -decimals).String()
}

// ParseAmount parses a raw base-unit integer in decimal notation.
func ParseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadAmount, err)
	}
	return v, nil
}

// Units is ParseUnits at 18 decimals that panics on bad input; for tests and fixtures.
func Units(s string) *uint256.Int {
	v, err := ParseUnits(s, Decimals)
	if err != nil {
		panic(err)
	}
	return v
}
