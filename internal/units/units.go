// Package units converts between human-decimal amounts and the fixed-point
// integer representation used on the wire.
package units

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"stakescope/internal/model"
)

// WireScale is the fractional-digit count of every monetary field the
// contract emits and accepts.
const WireScale uint8 = 18

// maxLedgerBits bounds converted values to the contract's uint256 fields.
const maxLedgerBits = 256

// ToLedgerUnits multiplies amount by 10^scale and returns the integer
// result. Amounts that are negative, carry more fractional digits than
// scale, or exceed 256 bits are rejected with ErrInvalidAmount.
func ToLedgerUnits(amount decimal.Decimal, scale uint8) (*big.Int, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: negative value %s", model.ErrInvalidAmount, amount)
	}

	shifted := amount.Shift(int32(scale))
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("%w: %s has more than %d fractional digits", model.ErrInvalidAmount, amount, scale)
	}

	value := shifted.BigInt()
	if value.BitLen() > maxLedgerBits {
		return nil, fmt.Errorf("%w: %s overflows %d bits at scale %d", model.ErrInvalidAmount, amount, maxLedgerBits, scale)
	}
	return value, nil
}

// FromLedgerUnits divides value by 10^scale. Lossless: the round trip
// through ToLedgerUnits returns the original amount.
func FromLedgerUnits(value *big.Int, scale uint8) (decimal.Decimal, error) {
	if value == nil {
		return decimal.Decimal{}, fmt.Errorf("%w: nil value", model.ErrInvalidAmount)
	}
	if value.Sign() < 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: negative value %s", model.ErrInvalidAmount, value)
	}
	return decimal.NewFromBigInt(value, -int32(scale)), nil
}
