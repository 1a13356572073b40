package curve

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	coreerrors "ibco/core/errors"
)

// powPrecision is the number of decimal digits carried through fractional
// exponent evaluation.
const powPrecision = 40

var (
	ErrOverflow  = coreerrors.New(coreerrors.KindArithmeticBounds, "curve: overflow")
	ErrNilAmount = coreerrors.New(coreerrors.KindInvalid, "curve: nil amount")
)

// Issuance is the outcome of converting a EUR spend into units.
type Issuance struct {
	Units       *uint256.Int
	EndSupply   *uint256.Int
	BucketIndex uint64
	BucketPrice *uint256.Int
}

// Schedule evaluates bucket prices and walks spends across buckets. Prices
// are computed once per bucket and memoised.
type Schedule struct {
	params Params
	last   uint64
	diff   *big.Int

	mu     sync.Mutex
	prices map[uint64]*uint256.Int
}

// NewSchedule validates params and builds a schedule over them.
func NewSchedule(params Params) (*Schedule, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	p := params.Clone()
	return &Schedule{
		params: p,
		last:   p.LastBucketIndex(),
		diff:   new(uint256.Int).Sub(p.FullPrice, p.InitialPrice).ToBig(),
		prices: make(map[uint64]*uint256.Int),
	}, nil
}

// Params returns a copy of the curve parameters.
func (s *Schedule) Params() Params { return s.params.Clone() }

// LastBucketIndex returns the index of the final bucket.
func (s *Schedule) LastBucketIndex() uint64 { return s.last }

// PriceOfBucket returns the price of bucket i:
//
//	initial + (full - initial) * ((i*size + size/2) / maxSupply)^exponent
//
// truncated to 18 decimals and saturating at the full price from the last
// bucket onwards.
func (s *Schedule) PriceOfBucket(i uint64) (*uint256.Int, error) {
	if i >= s.last {
		return s.params.FullPrice.Clone(), nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.prices[i]; ok {
		return cached.Clone(), nil
	}
	delta, err := s.priceDelta(i)
	if err != nil {
		return nil, err
	}
	price := new(uint256.Int).Add(s.params.InitialPrice, delta)
	if price.Gt(s.params.FullPrice) {
		price = s.params.FullPrice.Clone()
	}
	s.prices[i] = price
	return price.Clone(), nil
}

func (s *Schedule) priceDelta(i uint64) (*uint256.Int, error) {
	if s.diff.Sign() == 0 {
		return new(uint256.Int), nil
	}
	size := s.params.BucketSize.ToBig()
	mid := new(big.Int).Mul(new(big.Int).SetUint64(i), size)
	mid.Add(mid, new(big.Int).Rsh(size, 1))
	max := s.params.MaxSupply.ToBig()

	var delta *big.Int
	if s.params.Exponent.IsInteger() {
		n := big.NewInt(s.params.Exponent.IntPart())
		num := new(big.Int).Exp(mid, n, nil)
		den := new(big.Int).Exp(max, n, nil)
		delta = num.Mul(num, s.diff)
		delta.Quo(delta, den)
	} else {
		ratio := decimal.NewFromBigInt(mid, 0).DivRound(decimal.NewFromBigInt(max, 0), powPrecision)
		pow, err := ratio.PowWithPrecision(s.params.Exponent, powPrecision)
		if err != nil {
			return nil, fmt.Errorf("curve: bucket %d: %w", i, err)
		}
		delta = decimal.NewFromBigInt(s.diff, 0).Mul(pow).Truncate(0).BigInt()
		if delta.Sign() < 0 {
			delta.SetInt64(0)
		}
	}
	out, overflow := uint256.FromBig(delta)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// bucketEnd returns the supply at which bucket idx ends, capped at the max
// supply.
func (s *Schedule) bucketEnd(idx uint64) *uint256.Int {
	end := new(uint256.Int).Mul(uint256.NewInt(idx+1), s.params.BucketSize)
	if end.Gt(s.params.MaxSupply) {
		return s.params.MaxSupply.Clone()
	}
	return end
}

// RemainingCapacity returns the EUR cost of buying out the bucket containing
// supply. Zero once the max supply is reached.
func (s *Schedule) RemainingCapacity(supply *uint256.Int) (*uint256.Int, error) {
	if supply == nil {
		return nil, ErrNilAmount
	}
	if !supply.Lt(s.params.MaxSupply) {
		return new(uint256.Int), nil
	}
	idx := s.params.BucketOf(supply)
	price, err := s.PriceOfBucket(idx)
	if err != nil {
		return nil, err
	}
	capacity := new(uint256.Int).Sub(s.bucketEnd(idx), supply)
	return mulDivCeil(capacity, price, wad)
}

// IssueForSpend converts eurosIn into units starting from supply without
// touching any state. Each bucket sells its remaining units at its own price;
// crossing a bucket costs the rounded-up price of its units so every partial
// purchase rounds in favour of the curve. EUR left over once the max supply
// is reached converts at the full price.
func (s *Schedule) IssueForSpend(eurosIn, supply *uint256.Int) (Issuance, error) {
	if eurosIn == nil || supply == nil {
		return Issuance{}, ErrNilAmount
	}
	remaining := eurosIn.Clone()
	current := supply.Clone()
	units := new(uint256.Int)

	for !remaining.IsZero() {
		if !current.Lt(s.params.MaxSupply) {
			extra, overflow := new(uint256.Int).MulDivOverflow(remaining, wad, s.params.FullPrice)
			if overflow {
				return Issuance{}, ErrOverflow
			}
			if err := addChecked(units, extra); err != nil {
				return Issuance{}, err
			}
			if err := addChecked(current, extra); err != nil {
				return Issuance{}, err
			}
			break
		}

		idx := s.params.BucketOf(current)
		price, err := s.PriceOfBucket(idx)
		if err != nil {
			return Issuance{}, err
		}
		capacity := new(uint256.Int).Sub(s.bucketEnd(idx), current)
		cost, err := mulDivCeil(capacity, price, wad)
		if err != nil {
			return Issuance{}, err
		}
		if !remaining.Lt(cost) {
			units.Add(units, capacity)
			current.Add(current, capacity)
			remaining.Sub(remaining, cost)
			continue
		}
		// remaining < cost, so the purchase stays inside this bucket
		bought, overflow := new(uint256.Int).MulDivOverflow(remaining, wad, price)
		if overflow {
			return Issuance{}, ErrOverflow
		}
		units.Add(units, bought)
		current.Add(current, bought)
		remaining.Clear()
	}

	idx := s.params.BucketOf(current)
	price, err := s.PriceOfBucket(idx)
	if err != nil {
		return Issuance{}, err
	}
	return Issuance{
		Units:       units,
		EndSupply:   current,
		BucketIndex: idx,
		BucketPrice: price,
	}, nil
}

func addChecked(dst, v *uint256.Int) error {
	if _, overflow := dst.AddOverflow(dst, v); overflow {
		return ErrOverflow
	}
	return nil
}

func mulDivCeil(a, b, d *uint256.Int) (*uint256.Int, error) {
	q, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, ErrOverflow
	}
	if !new(uint256.Int).MulMod(a, b, d).IsZero() {
		if _, overflow := q.AddOverflow(q, uint256.NewInt(1)); overflow {
			return nil, ErrOverflow
		}
	}
	return q, nil
}
