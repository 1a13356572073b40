package curve

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	coreerrors "ibco/core/errors"
)

// Decimals is the fixed point precision of prices and supplies.
const Decimals = 18

// maxIntegerExponent bounds the exact big integer evaluation path.
const maxIntegerExponent = 64

var wad = uint256.NewInt(1_000_000_000_000_000_000)

// Wad returns 10^18, the fixed point representation of one.
func Wad() *uint256.Int { return wad.Clone() }

var ErrInvalidParams = coreerrors.New(coreerrors.KindInvalid, "curve: invalid parameters")

// Params describe the bonding curve. Prices are EUR per unit and every value
// is expressed in 18 decimal fixed point.
type Params struct {
	InitialPrice *uint256.Int
	FullPrice    *uint256.Int
	MaxSupply    *uint256.Int
	BucketSize   *uint256.Int
	Exponent     decimal.Decimal
}

// Clone returns a deep copy of the parameters.
func (p Params) Clone() Params {
	clone := Params{Exponent: p.Exponent}
	if p.InitialPrice != nil {
		clone.InitialPrice = p.InitialPrice.Clone()
	}
	if p.FullPrice != nil {
		clone.FullPrice = p.FullPrice.Clone()
	}
	if p.MaxSupply != nil {
		clone.MaxSupply = p.MaxSupply.Clone()
	}
	if p.BucketSize != nil {
		clone.BucketSize = p.BucketSize.Clone()
	}
	return clone
}

// Validate checks the structural constraints of the curve.
func (p Params) Validate() error {
	if p.InitialPrice == nil || p.FullPrice == nil || p.MaxSupply == nil || p.BucketSize == nil {
		return fmt.Errorf("%w: all parameters are required", ErrInvalidParams)
	}
	if p.InitialPrice.IsZero() {
		return fmt.Errorf("%w: initial price must be positive", ErrInvalidParams)
	}
	if p.FullPrice.Lt(p.InitialPrice) {
		return fmt.Errorf("%w: full price below initial price", ErrInvalidParams)
	}
	if p.BucketSize.IsZero() {
		return fmt.Errorf("%w: bucket size must be positive", ErrInvalidParams)
	}
	if p.MaxSupply.Lt(p.BucketSize) {
		return fmt.Errorf("%w: max supply below bucket size", ErrInvalidParams)
	}
	if !new(uint256.Int).Div(p.MaxSupply, p.BucketSize).IsUint64() {
		return fmt.Errorf("%w: too many buckets", ErrInvalidParams)
	}
	if !p.Exponent.IsPositive() {
		return fmt.Errorf("%w: exponent must be positive", ErrInvalidParams)
	}
	if p.Exponent.IsInteger() && p.Exponent.GreaterThan(decimal.NewFromInt(maxIntegerExponent)) {
		return fmt.Errorf("%w: exponent above %d", ErrInvalidParams, maxIntegerExponent)
	}
	return nil
}

// LastBucketIndex is MaxSupply / BucketSize.
func (p Params) LastBucketIndex() uint64 {
	return new(uint256.Int).Div(p.MaxSupply, p.BucketSize).Uint64()
}

// BucketOf returns floor(supply / BucketSize) clamped to the last bucket.
func (p Params) BucketOf(supply *uint256.Int) uint64 {
	last := p.LastBucketIndex()
	if supply == nil {
		return 0
	}
	idx := new(uint256.Int).Div(supply, p.BucketSize)
	if !idx.IsUint64() || idx.Uint64() > last {
		return last
	}
	return idx.Uint64()
}

// ParsePrice parses a decimal string such as "0.8" into 18 decimal fixed
// point, truncating extra precision.
func ParsePrice(value string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("curve: parse %q: %w", value, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("curve: negative value %q", value)
	}
	scaled := d.Shift(Decimals).Truncate(0)
	out, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("curve: value %q overflows", value)
	}
	return out, nil
}

// FormatPrice renders an 18 decimal fixed point value as a decimal string.
func FormatPrice(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v.ToBig(), -Decimals).String()
}
