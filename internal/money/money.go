// Package money holds the cents arithmetic shared by the ledger and the
// game. Balances are carried as int64 minor units (euro cents); every
// rounding decision goes through shopspring/decimal so results match the
// 2-fraction-digit contract bankers expect.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

var hundred = decimal.NewFromInt(100)

// ParseCents converts a decimal string with up to 2 fractional digits
// ("10.15") into cents. The amount must be strictly positive.
func ParseCents(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	if d.Exponent() < -2 {
		return 0, fmt.Errorf("%w: more than 2 decimals", ErrInvalidAmount)
	}

	if !d.IsPositive() {
		return 0, fmt.Errorf("%w: must be > 0", ErrInvalidAmount)
	}

	return d.Mul(hundred).IntPart(), nil
}

// FormatCents renders cents as a 2-decimal string: 1015 -> "10.15".
func FormatCents(c int64) string {
	return decimal.NewFromInt(c).Div(hundred).StringFixed(2)
}

// MulRound multiplies cents by a float factor and rounds half away from
// zero to whole cents. Used for payout = stake * multiplier.
func MulRound(c int64, factor float64) int64 {
	return decimal.NewFromInt(c).
		Mul(decimal.NewFromFloat(factor)).
		Div(hundred).
		Round(2).
		Mul(hundred).
		IntPart()
}

// SplitFee divides a gross amount into platform fee and seller net:
// fee = round2(gross * rate), net = gross - fee.
func SplitFee(gross int64, rate float64) (fee, net int64) {
	fee = MulRound(gross, rate)
	net = gross - fee

	return fee, net
}
