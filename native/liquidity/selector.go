// Package liquidity places bonding deposits into the concentrated liquidity
// pool. The pool itself is an external capability; this package decides the
// tick range and records the resulting bond.
package liquidity

import (
	"fmt"
	"math/bits"

	coreerrors "ibco/core/errors"
)

// Band limits, in tenths of the range width, that the current tick must fall
// within: the 40th to 60th percentile.
const (
	bandLowTenths  = 4
	bandHighTenths = 6
)

var ErrInvalidRange = coreerrors.New(coreerrors.KindInvalidRange, "liquidity: invalid tick range")

// RangeRequest is the input to SelectRange.
type RangeRequest struct {
	CurrentTick  int64
	DefaultLower int64
	DefaultUpper int64
	TickSpacing  int64
	MinTick      int64
	MaxTick      int64
}

// Range is the chosen tick range.
type Range struct {
	Lower   int64
	Upper   int64
	Widened bool
	Clamped bool
}

// InBand reports whether tick lies within the 40th-60th percentile of
// [lower, upper]. The comparison is carried out in 128 bits so extreme ticks
// cannot wrap.
func InBand(tick, lower, upper int64) bool {
	if lower >= upper || tick < lower || tick > upper {
		return false
	}
	width := uint64(upper) - uint64(lower)
	offset := uint64(tick) - uint64(lower)
	offHi, offLo := bits.Mul64(offset, 10)
	lowHi, lowLo := bits.Mul64(width, bandLowTenths)
	highHi, highLo := bits.Mul64(width, bandHighTenths)
	return !less128(offHi, offLo, lowHi, lowLo) && !less128(highHi, highLo, offHi, offLo)
}

func less128(aHi, aLo, bHi, bLo uint64) bool {
	return aHi < bHi || (aHi == bHi && aLo < bLo)
}

func clampTick(tick, minTick, maxTick int64) int64 {
	if tick < minTick {
		return minTick
	}
	if tick > maxTick {
		return maxTick
	}
	return tick
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func ceilDiv(a, b int64) int64 {
	return -floorDiv(-a, b)
}

// UsableBounds returns the spacing aligned limits inside [minTick, maxTick].
func UsableBounds(minTick, maxTick, spacing int64) (int64, int64) {
	return ceilDiv(minTick, spacing) * spacing, floorDiv(maxTick, spacing) * spacing
}

func (r RangeRequest) validate() error {
	if r.TickSpacing <= 0 {
		return fmt.Errorf("%w: tick spacing must be positive", ErrInvalidRange)
	}
	if r.DefaultLower >= r.DefaultUpper {
		return fmt.Errorf("%w: lower %d not below upper %d", ErrInvalidRange, r.DefaultLower, r.DefaultUpper)
	}
	if r.DefaultLower < r.MinTick || r.DefaultUpper > r.MaxTick {
		return fmt.Errorf("%w: default range outside [%d, %d]", ErrInvalidRange, r.MinTick, r.MaxTick)
	}
	minUsable, maxUsable := UsableBounds(r.MinTick, r.MaxTick, r.TickSpacing)
	if minUsable >= maxUsable {
		return fmt.Errorf("%w: no usable ticks in [%d, %d]", ErrInvalidRange, r.MinTick, r.MaxTick)
	}
	return nil
}

// SelectRange returns the default range when the current tick already sits in
// its percentile band. Otherwise both sides move outwards one tick spacing at
// a time until the band contains the current tick. A side that reaches its
// usable limit stays there while the other keeps moving; when both are pinned
// the full usable range is returned even if the tick is still outside the
// band. The current tick is clamped into [MinTick, MaxTick] first.
func SelectRange(req RangeRequest) (Range, error) {
	if err := req.validate(); err != nil {
		return Range{}, err
	}
	req.CurrentTick = clampTick(req.CurrentTick, req.MinTick, req.MaxTick)
	if InBand(req.CurrentTick, req.DefaultLower, req.DefaultUpper) {
		return Range{Lower: req.DefaultLower, Upper: req.DefaultUpper}, nil
	}
	minUsable, maxUsable := UsableBounds(req.MinTick, req.MaxTick, req.TickSpacing)
	lower, upper := req.DefaultLower, req.DefaultUpper
	lowPinned := lower <= minUsable
	highPinned := upper >= maxUsable
	for !(lowPinned && highPinned) {
		if !lowPinned {
			if lower <= minUsable+req.TickSpacing {
				lower, lowPinned = minUsable, true
			} else {
				lower -= req.TickSpacing
			}
		}
		if !highPinned {
			if upper >= maxUsable-req.TickSpacing {
				upper, highPinned = maxUsable, true
			} else {
				upper += req.TickSpacing
			}
		}
		if InBand(req.CurrentTick, lower, upper) {
			return Range{Lower: lower, Upper: upper, Widened: true, Clamped: lowPinned || highPinned}, nil
		}
	}
	return Range{Lower: minUsable, Upper: maxUsable, Widened: true, Clamped: true}, nil
}
