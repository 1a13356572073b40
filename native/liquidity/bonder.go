package liquidity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	coreerrors "ibco/core/errors"
	"ibco/core/events"
	nativecommon "ibco/native/common"
)

const moduleName = "liquidity"

var (
	ErrUnauthorized  = coreerrors.New(coreerrors.KindUnauthorized, "liquidity: caller is not admin")
	ErrInvalidAmount = coreerrors.New(coreerrors.KindInvalid, "liquidity: amounts must be positive")
	ErrAMMOverspent  = coreerrors.New(coreerrors.KindInvalidRange, "liquidity: pool used more than deposited")
	ErrOneSided      = coreerrors.New(coreerrors.KindInvalidRange, "liquidity: current tick outside the selected range")
	errNotConfigured = fmt.Errorf("liquidity: bonder not configured")
)

// Mint describes the position created by AddLiquidity.
type Mint struct {
	Ref       uint64
	Liquidity *uint256.Int
	UsedA     *uint256.Int
	UsedB     *uint256.Int
}

// AMM is the concentrated liquidity pool capability.
type AMM interface {
	TickSpacing() int64
	CurrentTick(ctx context.Context) (int64, error)
	AddLiquidity(ctx context.Context, amountA, amountB *uint256.Int, lowerTick, upperTick int64) (Mint, error)
	Collect(ctx context.Context, ref uint64) (feeA, feeB *uint256.Int, err error)
}

// TokenLedger moves token balances.
type TokenLedger interface {
	Transfer(from, to common.Address, symbol string, amount *uint256.Int) error
}

// BondStarter records the bond backing a deposit. CanStart must reject every
// case StartBond would reject for reasons other than the principal amounts.
type BondStarter interface {
	CanStart(call nativecommon.CallContext, weeks uint64) error
	StartBond(call nativecommon.CallContext, owner common.Address, principalA, principalB *uint256.Int, rateBps, weeks, positionRef uint64) (uint64, error)
}

// Config holds the bonder accounts and range defaults.
type Config struct {
	// Address is the bonder account; it must hold ROLE_BOND_WHITELIST.
	Address common.Address
	// Custody receives the principal backing every bond.
	Custody      common.Address
	AssetA       string
	AssetB       string
	DefaultLower int64
	DefaultUpper int64
	MinTick      int64
	MaxTick      int64
}

// Deposit summarises a bonding deposit.
type Deposit struct {
	BondID uint64
	Range  Range
	Mint   Mint
}

// Bonder adds two sided liquidity and opens a bond for the depositor.
type Bonder struct {
	cfg     Config
	amm     AMM
	ledger  TokenLedger
	bonds   BondStarter
	pauses  nativecommon.PauseView
	emitter events.Emitter
	log     *slog.Logger
}

func NewBonder(cfg Config, amm AMM, ledger TokenLedger, bonds BondStarter) *Bonder {
	return &Bonder{
		cfg:     cfg,
		amm:     amm,
		ledger:  ledger,
		bonds:   bonds,
		emitter: events.NoopEmitter{},
		log:     slog.Default(),
	}
}

func (b *Bonder) SetPauses(p nativecommon.PauseView) {
	if b == nil {
		return
	}
	b.pauses = p
}

func (b *Bonder) SetEmitter(emitter events.Emitter) {
	if b == nil {
		return
	}
	if emitter == nil {
		b.emitter = events.NoopEmitter{}
		return
	}
	b.emitter = emitter
}

func (b *Bonder) SetLogger(l *slog.Logger) {
	if b == nil || l == nil {
		return
	}
	b.log = l.With(slog.String("component", moduleName))
}

// Range picks the tick range for a deposit at the current pool price.
func (b *Bonder) Range(ctx context.Context) (Range, error) {
	rng, _, err := b.rangeAt(ctx)
	return rng, err
}

func (b *Bonder) rangeAt(ctx context.Context) (Range, int64, error) {
	if b == nil || b.amm == nil {
		return Range{}, 0, errNotConfigured
	}
	tick, err := b.amm.CurrentTick(ctx)
	if err != nil {
		return Range{}, 0, fmt.Errorf("liquidity: current tick: %w", err)
	}
	rng, err := SelectRange(RangeRequest{
		CurrentTick:  tick,
		DefaultLower: b.cfg.DefaultLower,
		DefaultUpper: b.cfg.DefaultUpper,
		TickSpacing:  b.amm.TickSpacing(),
		MinTick:      b.cfg.MinTick,
		MaxTick:      b.cfg.MaxTick,
	})
	return rng, tick, err
}

// Deposit escrows both assets from the caller, adds them to the pool, returns
// whatever the pool did not use and opens a bond over the used amounts. The
// pool position cannot be rolled back, so every check that could fail the
// bond runs before AddLiquidity.
func (b *Bonder) Deposit(ctx context.Context, call nativecommon.CallContext, amountA, amountB *uint256.Int, rateBps, weeks uint64) (Deposit, error) {
	if b == nil || b.amm == nil || b.ledger == nil || b.bonds == nil {
		return Deposit{}, errNotConfigured
	}
	if err := nativecommon.Guard(b.pauses, moduleName); err != nil {
		return Deposit{}, err
	}
	if amountA == nil || amountB == nil || amountA.IsZero() || amountB.IsZero() {
		return Deposit{}, ErrInvalidAmount
	}
	owner := call.Caller
	bondCall := nativecommon.NewCallContext(b.cfg.Address, call.Roles)
	if err := b.bonds.CanStart(bondCall, weeks); err != nil {
		return Deposit{}, err
	}
	rng, tick, err := b.rangeAt(ctx)
	if err != nil {
		return Deposit{}, err
	}
	// a tick on or past a range edge yields a single sided position
	if tick <= rng.Lower || tick >= rng.Upper {
		return Deposit{}, fmt.Errorf("%w: tick %d, range [%d, %d]", ErrOneSided, tick, rng.Lower, rng.Upper)
	}
	if err := b.ledger.Transfer(owner, b.cfg.Address, b.cfg.AssetA, amountA); err != nil {
		return Deposit{}, err
	}
	if err := b.ledger.Transfer(owner, b.cfg.Address, b.cfg.AssetB, amountB); err != nil {
		return Deposit{}, err
	}
	mint, err := b.amm.AddLiquidity(ctx, amountA, amountB, rng.Lower, rng.Upper)
	if err != nil {
		return Deposit{}, fmt.Errorf("liquidity: add liquidity: %w", err)
	}
	if mint.UsedA == nil || mint.UsedB == nil || mint.UsedA.Gt(amountA) || mint.UsedB.Gt(amountB) {
		return Deposit{}, ErrAMMOverspent
	}
	if mint.UsedA.IsZero() || mint.UsedB.IsZero() {
		b.log.Error("pool minted a single sided position",
			slog.Uint64("ref", mint.Ref),
			slog.String("usedA", mint.UsedA.Dec()),
			slog.String("usedB", mint.UsedB.Dec()))
		return Deposit{}, ErrInvalidAmount
	}
	if err := b.settle(owner, b.cfg.AssetA, amountA, mint.UsedA); err != nil {
		return Deposit{}, err
	}
	if err := b.settle(owner, b.cfg.AssetB, amountB, mint.UsedB); err != nil {
		return Deposit{}, err
	}
	bondID, err := b.bonds.StartBond(bondCall, owner, mint.UsedA, mint.UsedB, rateBps, weeks, mint.Ref)
	if err != nil {
		return Deposit{}, err
	}
	b.emitter.Emit(events.LiquidityDeposited{
		Owner:       owner,
		LowerTick:   rng.Lower,
		UpperTick:   rng.Upper,
		Widened:     rng.Widened,
		Clamped:     rng.Clamped,
		UsedA:       mint.UsedA.Clone(),
		UsedB:       mint.UsedB.Clone(),
		PositionRef: mint.Ref,
	})
	b.log.Info("bonding deposit placed",
		slog.String("owner", owner.Hex()),
		slog.Int64("lower", rng.Lower),
		slog.Int64("upper", rng.Upper),
		slog.Bool("widened", rng.Widened),
		slog.Uint64("bond", bondID))
	return Deposit{BondID: bondID, Range: rng, Mint: mint}, nil
}

// settle moves the used amount into custody and refunds the rest.
func (b *Bonder) settle(owner common.Address, symbol string, deposited, used *uint256.Int) error {
	if err := b.ledger.Transfer(b.cfg.Address, b.cfg.Custody, symbol, used); err != nil {
		return err
	}
	refund := new(uint256.Int).Sub(deposited, used)
	return b.ledger.Transfer(b.cfg.Address, owner, symbol, refund)
}

// CollectFees withdraws the accrued pool fees of a position. Admin only.
func (b *Bonder) CollectFees(ctx context.Context, call nativecommon.CallContext, ref uint64) (*uint256.Int, *uint256.Int, error) {
	if b == nil || b.amm == nil {
		return nil, nil, errNotConfigured
	}
	if err := nativecommon.Guard(b.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if err := call.Require(nativecommon.RoleAdmin, ErrUnauthorized); err != nil {
		return nil, nil, err
	}
	feeA, feeB, err := b.amm.Collect(ctx, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("liquidity: collect %d: %w", ref, err)
	}
	if feeA == nil {
		feeA = new(uint256.Int)
	}
	if feeB == nil {
		feeB = new(uint256.Int)
	}
	b.emitter.Emit(events.LiquidityFeesCollected{PositionRef: ref, FeeA: feeA, FeeB: feeB, Recipient: call.Caller})
	b.log.Info("pool fees collected", slog.Uint64("ref", ref), slog.String("feeA", feeA.Dec()), slog.String("feeB", feeB.Dec()))
	return feeA, feeB, nil
}
