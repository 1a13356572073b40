// Package rates converts amounts through oracle quotes and between decimal
// precisions. Every division truncates toward zero so rounding losses always
// stay with the caller.
package rates

import (
	"fmt"

	"github.com/holiman/uint256"

	coreerrors "ibco/core/errors"
)

// MaxDecimals is the largest power of ten representable in 256 bits.
const MaxDecimals = 77

var (
	ErrDivisionByZero     = coreerrors.New(coreerrors.KindArithmeticBounds, "rates: division by zero")
	ErrOverflow           = coreerrors.New(coreerrors.KindArithmeticBounds, "rates: overflow")
	ErrDecimalsOutOfRange = coreerrors.New(coreerrors.KindArithmeticBounds, "rates: decimals out of range")
	ErrNilAmount          = coreerrors.New(coreerrors.KindInvalid, "rates: nil operand")
)

var pow10 [MaxDecimals + 1]*uint256.Int

func init() {
	ten := uint256.NewInt(10)
	pow10[0] = uint256.NewInt(1)
	for i := 1; i <= MaxDecimals; i++ {
		pow10[i] = new(uint256.Int).Mul(pow10[i-1], ten)
	}
}

// Pow10 returns 10^d.
func Pow10(d uint8) (*uint256.Int, error) {
	if int(d) > MaxDecimals {
		return nil, fmt.Errorf("%w: %d", ErrDecimalsOutOfRange, d)
	}
	return pow10[d].Clone(), nil
}

// ConvertDefault converts an amount quoted in the rate's base asset:
// amount * rate / 10^rateDecimals. A zero rate is rejected.
func ConvertDefault(amount, rate *uint256.Int, rateDecimals uint8) (*uint256.Int, error) {
	if amount == nil || rate == nil {
		return nil, ErrNilAmount
	}
	if rate.IsZero() {
		return nil, ErrDivisionByZero
	}
	scale, err := Pow10(rateDecimals)
	if err != nil {
		return nil, err
	}
	out, overflow := new(uint256.Int).MulDivOverflow(amount, rate, scale)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// ConvertInverse converts an amount quoted in the rate's quote asset:
// amount * 10^rateDecimals / rate.
func ConvertInverse(amount, rate *uint256.Int, rateDecimals uint8) (*uint256.Int, error) {
	if amount == nil || rate == nil {
		return nil, ErrNilAmount
	}
	if rate.IsZero() {
		return nil, ErrDivisionByZero
	}
	scale, err := Pow10(rateDecimals)
	if err != nil {
		return nil, err
	}
	out, overflow := new(uint256.Int).MulDivOverflow(amount, scale, rate)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// Normalize rescales amount from one decimal precision to another. Scaling
// down truncates.
func Normalize(amount *uint256.Int, fromDecimals, toDecimals uint8) (*uint256.Int, error) {
	if amount == nil {
		return nil, ErrNilAmount
	}
	switch {
	case fromDecimals == toDecimals:
		if int(fromDecimals) > MaxDecimals {
			return nil, fmt.Errorf("%w: %d", ErrDecimalsOutOfRange, fromDecimals)
		}
		return amount.Clone(), nil
	case fromDecimals < toDecimals:
		if int(toDecimals) > MaxDecimals {
			return nil, fmt.Errorf("%w: %d", ErrDecimalsOutOfRange, toDecimals)
		}
		out, overflow := new(uint256.Int).MulOverflow(amount, pow10[toDecimals-fromDecimals])
		if overflow {
			return nil, ErrOverflow
		}
		return out, nil
	default:
		if int(fromDecimals) > MaxDecimals {
			return nil, fmt.Errorf("%w: %d", ErrDecimalsOutOfRange, fromDecimals)
		}
		return new(uint256.Int).Div(amount, pow10[fromDecimals-toDecimals]), nil
	}
}
