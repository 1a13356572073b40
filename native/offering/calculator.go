// Package offering converts accepted assets into issued units: asset amount to
// USD through the asset oracle, USD to EUR through the EUR/USD oracle, then EUR
// to units through the bonding curve.
package offering

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	coreerrors "ibco/core/errors"
	"ibco/native/assets"
	nativecommon "ibco/native/common"
	"ibco/native/curve"
	"ibco/native/oracle"
	"ibco/native/rates"
)

// ValueDecimals is the precision of the USD and EUR values produced by the
// calculator.
const ValueDecimals = curve.Decimals

var (
	ErrUnauthorized           = coreerrors.New(coreerrors.KindUnauthorized, "offering: caller is not the offering contract")
	ErrOracleDecimalsMismatch = coreerrors.New(coreerrors.KindInvalidRange, "offering: oracle decimals mismatch")
	ErrInvalidAmount          = coreerrors.New(coreerrors.KindInvalid, "offering: amount must be positive")
	errNotConfigured          = fmt.Errorf("offering: calculator not configured")
)

// AssetLookup resolves accepted asset metadata.
type AssetLookup interface {
	Get(symbol string) (assets.Entry, error)
}

// Curve is the bonding curve capability used by the calculator.
type Curve interface {
	Issue(ctx nativecommon.CallContext, eurosIn *uint256.Int) (curve.Issuance, error)
	Quote(eurosIn, supplySnapshot *uint256.Int) (curve.Issuance, error)
	State() (curve.State, error)
}

// Result captures every intermediate value of a conversion.
type Result struct {
	Asset    string
	AmountIn *uint256.Int
	USD      *uint256.Int
	EUR      *uint256.Int
	curve.Issuance
}

// Calculator composes the registry, oracles, rate conversion and curve.
type Calculator struct {
	self     common.Address
	registry AssetLookup
	feeds    oracle.Resolver
	eurUSD   oracle.Feed
	curve    Curve
	log      *slog.Logger
}

// NewCalculator builds a calculator. self is the account the calculator uses
// when it advances the curve and must hold the curve updater role.
func NewCalculator(self common.Address, registry AssetLookup, feeds oracle.Resolver, eurUSD oracle.Feed, c Curve) *Calculator {
	return &Calculator{
		self:     self,
		registry: registry,
		feeds:    feeds,
		eurUSD:   eurUSD,
		curve:    c,
		log:      slog.Default(),
	}
}

func (c *Calculator) SetLogger(l *slog.Logger) {
	if c == nil || l == nil {
		return
	}
	c.log = l.With(slog.String("component", "offering.calculator"))
}

// Address returns the account the calculator acts as.
func (c *Calculator) Address() common.Address { return c.self }

func (c *Calculator) ready() error {
	if c == nil || c.registry == nil || c.feeds == nil || c.eurUSD == nil || c.curve == nil {
		return errNotConfigured
	}
	return nil
}

// EURValue converts amountIn of the asset into 18 decimal USD and EUR values.
// The asset oracle must report the decimals registered for it.
func (c *Calculator) EURValue(ctx context.Context, amountIn *uint256.Int, symbol string) (usd, eur *uint256.Int, err error) {
	if err := c.ready(); err != nil {
		return nil, nil, err
	}
	if amountIn == nil {
		return nil, nil, ErrInvalidAmount
	}
	entry, err := c.registry.Get(symbol)
	if err != nil {
		return nil, nil, err
	}
	feed, err := c.feeds.Feed(entry.Oracle)
	if err != nil {
		return nil, nil, err
	}
	price, err := feed.LatestPrice(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("offering: %s price: %w", entry.Symbol, err)
	}
	if price.Decimals != entry.OracleDecimals {
		return nil, nil, fmt.Errorf("%w: %s feed reports %d, registry expects %d",
			ErrOracleDecimalsMismatch, entry.Symbol, price.Decimals, entry.OracleDecimals)
	}
	usdRaw, err := rates.ConvertDefault(amountIn, price.Value, price.Decimals)
	if err != nil {
		return nil, nil, err
	}
	usd, err = rates.Normalize(usdRaw, entry.TokenDecimals, ValueDecimals)
	if err != nil {
		return nil, nil, err
	}
	eurPrice, err := c.eurUSD.LatestPrice(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("offering: EUR/USD price: %w", err)
	}
	// the EUR/USD feed quotes USD per EUR
	eur, err = rates.ConvertInverse(usd, eurPrice.Value, eurPrice.Decimals)
	if err != nil {
		return nil, nil, err
	}
	return usd, eur, nil
}

// Calculate converts amountIn and advances the curve. Only the offering
// contract may call it.
func (c *Calculator) Calculate(ctx context.Context, call nativecommon.CallContext, amountIn *uint256.Int, symbol string) (Result, error) {
	if err := c.ready(); err != nil {
		return Result{}, err
	}
	if err := call.Require(nativecommon.RoleOffering, ErrUnauthorized); err != nil {
		c.log.Debug("calculate rejected", slog.String("caller", call.Caller.Hex()), slog.Any("error", err))
		return Result{}, err
	}
	usd, eur, err := c.EURValue(ctx, amountIn, symbol)
	if err != nil {
		return Result{}, err
	}
	issuance, err := c.curve.Issue(nativecommon.NewCallContext(c.self, call.Roles), eur)
	if err != nil {
		return Result{}, err
	}
	return Result{Asset: assets.NormalizeSymbol(symbol), AmountIn: amountIn.Clone(), USD: usd, EUR: eur, Issuance: issuance}, nil
}

// ReadOnlyCalculate runs the same pipeline against an explicit supply
// snapshot without touching curve state. It is open to every caller.
func (c *Calculator) ReadOnlyCalculate(ctx context.Context, amountIn *uint256.Int, symbol string, supplySnapshot *uint256.Int) (Result, error) {
	usd, eur, err := c.EURValue(ctx, amountIn, symbol)
	if err != nil {
		return Result{}, err
	}
	issuance, err := c.curve.Quote(eur, supplySnapshot)
	if err != nil {
		return Result{}, err
	}
	return Result{Asset: assets.NormalizeSymbol(symbol), AmountIn: amountIn.Clone(), USD: usd, EUR: eur, Issuance: issuance}, nil
}

// Quote is ReadOnlyCalculate against the supply currently recorded by the
// curve.
func (c *Calculator) Quote(ctx context.Context, amountIn *uint256.Int, symbol string) (Result, error) {
	if err := c.ready(); err != nil {
		return Result{}, err
	}
	st, err := c.curve.State()
	if err != nil {
		return Result{}, err
	}
	return c.ReadOnlyCalculate(ctx, amountIn, symbol, st.TotalIssued)
}
