package ledger

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/medtreasury/medtreasury/internal/apperrors"
)

// DefaultDecimals is the number of fractional digits of one token.
const DefaultDecimals = 18

// ParseAmount parses a base-unit decimal integer.
func ParseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a base-unit amount", apperrors.ErrInvalidInput, s)
	}
	return v, nil
}

// ParseUnits converts a human token amount such as "5000" or "0.25" into base
// units with the given number of decimals.
func ParseUnits(s string, decimals int32) (*uint256.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a token amount", apperrors.ErrInvalidInput, s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %q is negative", apperrors.ErrInvalidInput, s)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q has more than %d fractional digits", apperrors.ErrInvalidInput, s, decimals)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, apperrors.ErrOverflow
	}
	return v, nil
}

// FormatUnits renders base units as a token amount.
func FormatUnits(v *uint256.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v.ToBig(), -decimals).String()
}
