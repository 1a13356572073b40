// Package oracle defines the price feed capability consumed by the offering
// calculator along with the feed implementations the daemon can wire in.
package oracle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	coreerrors "ibco/core/errors"
)

var (
	ErrFeedNotFound  = coreerrors.New(coreerrors.KindNotFound, "oracle: feed not found")
	ErrNoPrice       = coreerrors.New(coreerrors.KindNotFound, "oracle: no price reported")
	ErrNegativePrice = coreerrors.New(coreerrors.KindInvalidRange, "oracle: negative price")
)

// Price is the latest value reported by a feed, scaled by 10^Decimals.
// UpdatedAt is surfaced for callers applying their own staleness policy.
type Price struct {
	Value     *uint256.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// Clone returns a deep copy of the price.
func (p Price) Clone() Price {
	clone := p
	if p.Value != nil {
		clone.Value = p.Value.Clone()
	}
	return clone
}

// Feed reports the latest price of one asset pair.
type Feed interface {
	LatestPrice(ctx context.Context) (Price, error)
}

// Resolver maps an oracle address to the feed reading it.
type Resolver interface {
	Feed(addr common.Address) (Feed, error)
}

// ManualFeed is an in-memory feed used in tests and for manual overrides
// during incident response.
type ManualFeed struct {
	mu    sync.RWMutex
	price Price
	set   bool
}

// NewManualFeed constructs a feed reporting value with the given decimals.
func NewManualFeed(value *uint256.Int, decimals uint8) *ManualFeed {
	f := &ManualFeed{}
	f.Set(value, decimals, time.Now())
	return f
}

// Set replaces the reported price.
func (f *ManualFeed) Set(value *uint256.Int, decimals uint8, ts time.Time) {
	if f == nil || value == nil {
		return
	}
	f.mu.Lock()
	f.price = Price{Value: value.Clone(), Decimals: decimals, UpdatedAt: ts}
	f.set = true
	f.mu.Unlock()
}

// LatestPrice implements Feed.
func (f *ManualFeed) LatestPrice(context.Context) (Price, error) {
	if f == nil {
		return Price{}, fmt.Errorf("oracle: manual feed not configured")
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.set || f.price.Value.IsZero() {
		return Price{}, ErrNoPrice
	}
	return f.price.Clone(), nil
}

// Directory is an address keyed Resolver.
type Directory struct {
	mu    sync.RWMutex
	feeds map[common.Address]Feed
}

// NewDirectory constructs an empty directory.
func NewDirectory() *Directory {
	return &Directory{feeds: make(map[common.Address]Feed)}
}

// Register binds addr to feed, replacing any previous binding.
func (d *Directory) Register(addr common.Address, feed Feed) {
	if d == nil || feed == nil {
		return
	}
	d.mu.Lock()
	d.feeds[addr] = feed
	d.mu.Unlock()
}

// Feed implements Resolver.
func (d *Directory) Feed(addr common.Address) (Feed, error) {
	if d == nil {
		return nil, ErrFeedNotFound
	}
	d.mu.RLock()
	feed, ok := d.feeds[addr]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFeedNotFound, addr.Hex())
	}
	return feed, nil
}
