package liquidity

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	coreerrors "ibco/core/errors"
	"ibco/core/events"
	"ibco/core/state"
	"ibco/native/bank"
	"ibco/native/bonds"
	nativecommon "ibco/native/common"
	"ibco/storage"
)

var (
	adminAddr   = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	bonderAddr  = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	custodyAddr = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	userAddr    = common.HexToAddress("0x0000000000000000000000000000000000000a01")
)

// fakeAMM uses a fixed fraction of each side, expressed in percent.
type fakeAMM struct {
	tick     int64
	spacing  int64
	usePctA  uint64
	usePctB  uint64
	nextRef  uint64
	lastLow  int64
	lastHigh int64
	fees     map[uint64][2]*uint256.Int
	err      error
}

func (a *fakeAMM) TickSpacing() int64 { return a.spacing }

func (a *fakeAMM) CurrentTick(context.Context) (int64, error) { return a.tick, a.err }

func (a *fakeAMM) AddLiquidity(_ context.Context, amountA, amountB *uint256.Int, lower, upper int64) (Mint, error) {
	if a.err != nil {
		return Mint{}, a.err
	}
	a.nextRef++
	a.lastLow, a.lastHigh = lower, upper
	usedA := new(uint256.Int).Div(new(uint256.Int).Mul(amountA, uint256.NewInt(a.usePctA)), uint256.NewInt(100))
	usedB := new(uint256.Int).Div(new(uint256.Int).Mul(amountB, uint256.NewInt(a.usePctB)), uint256.NewInt(100))
	return Mint{Ref: a.nextRef, Liquidity: new(uint256.Int).Add(usedA, usedB), UsedA: usedA, UsedB: usedB}, nil
}

func (a *fakeAMM) Collect(_ context.Context, ref uint64) (*uint256.Int, *uint256.Int, error) {
	fees, ok := a.fees[ref]
	if !ok {
		return nil, nil, nil
	}
	return fees[0], fees[1], nil
}

type startCall struct {
	caller     common.Address
	owner      common.Address
	principalA *uint256.Int
	principalB *uint256.Int
	rateBps    uint64
	weeks      uint64
	ref        uint64
}

type fakeBonds struct {
	calls     []startCall
	precheck  int
	refuseErr error
}

func (f *fakeBonds) CanStart(call nativecommon.CallContext, _ uint64) error {
	f.precheck++
	if f.refuseErr != nil {
		return f.refuseErr
	}
	return call.Require(nativecommon.RoleBondWhitelist, errors.New("not whitelisted"))
}

func (f *fakeBonds) StartBond(call nativecommon.CallContext, owner common.Address, a, b *uint256.Int, rateBps, weeks, ref uint64) (uint64, error) {
	if err := call.Require(nativecommon.RoleBondWhitelist, errors.New("not whitelisted")); err != nil {
		return 0, err
	}
	f.calls = append(f.calls, startCall{call.Caller, owner, a, b, rateBps, weeks, ref})
	return uint64(len(f.calls)), nil
}

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(e events.Event) { r.events = append(r.events, e) }

type bonderFixture struct {
	mgr    *state.Manager
	ledger *bank.Ledger
	amm    *fakeAMM
	bonds  *fakeBonds
	bonder *Bonder
	sink   *recordingEmitter
}

func newBonderFixture(t *testing.T) *bonderFixture {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	require.NoError(t, mgr.SetRole(nativecommon.RoleAdmin, adminAddr.Bytes()))
	require.NoError(t, mgr.SetRole(nativecommon.RoleBondWhitelist, bonderAddr.Bytes()))
	ledger := bank.NewLedger(mgr)
	require.NoError(t, ledger.Mint(userAddr, "EURX", uint256.NewInt(10_000)))
	require.NoError(t, ledger.Mint(userAddr, "IBCO", uint256.NewInt(20_000)))

	amm := &fakeAMM{tick: 0, spacing: 60, usePctA: 100, usePctB: 75, fees: map[uint64][2]*uint256.Int{}}
	bonds := &fakeBonds{}
	sink := &recordingEmitter{}
	bonder := NewBonder(Config{
		Address:      bonderAddr,
		Custody:      custodyAddr,
		AssetA:       "EURX",
		AssetB:       "IBCO",
		DefaultLower: -600,
		DefaultUpper: 600,
		MinTick:      -887272,
		MaxTick:      887272,
	}, amm, ledger, bonds)
	bonder.SetEmitter(sink)
	return &bonderFixture{mgr: mgr, ledger: ledger, amm: amm, bonds: bonds, bonder: bonder, sink: sink}
}

func (f *bonderFixture) call(addr common.Address) nativecommon.CallContext {
	return nativecommon.NewCallContext(addr, f.mgr)
}

func (f *bonderFixture) balance(t *testing.T, addr common.Address, symbol string) uint64 {
	t.Helper()
	bal, err := f.ledger.BalanceOf(addr, symbol)
	require.NoError(t, err)
	return bal.Uint64()
}

func TestDepositRefundsUnusedAndStartsBond(t *testing.T) {
	f := newBonderFixture(t)

	dep, err := f.bonder.Deposit(context.Background(), f.call(userAddr), uint256.NewInt(4_000), uint256.NewInt(8_000), 500, 4)
	require.NoError(t, err)
	require.Equal(t, uint64(1), dep.BondID)
	require.Equal(t, Range{Lower: -600, Upper: 600}, dep.Range)

	require.Equal(t, uint64(6_000), f.balance(t, userAddr, "EURX"))
	require.Equal(t, uint64(14_000), f.balance(t, userAddr, "IBCO"))
	require.Equal(t, uint64(4_000), f.balance(t, custodyAddr, "EURX"))
	require.Equal(t, uint64(6_000), f.balance(t, custodyAddr, "IBCO"))
	require.Zero(t, f.balance(t, bonderAddr, "EURX"))
	require.Zero(t, f.balance(t, bonderAddr, "IBCO"))

	require.Len(t, f.bonds.calls, 1)
	got := f.bonds.calls[0]
	require.Equal(t, bonderAddr, got.caller)
	require.Equal(t, userAddr, got.owner)
	require.Equal(t, uint64(4_000), got.principalA.Uint64())
	require.Equal(t, uint64(6_000), got.principalB.Uint64())
	require.Equal(t, uint64(500), got.rateBps)
	require.Equal(t, uint64(4), got.weeks)
	require.Equal(t, uint64(1), got.ref)

	require.Len(t, f.sink.events, 1)
	deposited, ok := f.sink.events[0].(events.LiquidityDeposited)
	require.True(t, ok)
	require.Equal(t, userAddr, deposited.Owner)
	require.False(t, deposited.Widened)
}

func TestDepositWidensOffCentreTick(t *testing.T) {
	f := newBonderFixture(t)
	f.amm.tick = 300

	dep, err := f.bonder.Deposit(context.Background(), f.call(userAddr), uint256.NewInt(100), uint256.NewInt(100), 500, 1)
	require.NoError(t, err)
	require.True(t, dep.Range.Widened)
	require.Equal(t, int64(-1500), f.amm.lastLow)
	require.Equal(t, int64(1500), f.amm.lastHigh)
}

func TestDepositRejectsZeroAmounts(t *testing.T) {
	f := newBonderFixture(t)
	_, err := f.bonder.Deposit(context.Background(), f.call(userAddr), uint256.NewInt(0), uint256.NewInt(100), 500, 1)
	require.ErrorIs(t, err, ErrInvalidAmount)
	require.Empty(t, f.bonds.calls)
}

func TestDepositInsufficientBalance(t *testing.T) {
	f := newBonderFixture(t)
	_, err := f.bonder.Deposit(context.Background(), f.call(userAddr), uint256.NewInt(50_000), uint256.NewInt(100), 500, 1)
	require.ErrorIs(t, err, coreerrors.ErrInsufficientBalance)
	require.Empty(t, f.bonds.calls)
}

func TestDepositDetectsOverspendingPool(t *testing.T) {
	f := newBonderFixture(t)
	f.amm.usePctA = 120
	_, err := f.bonder.Deposit(context.Background(), f.call(userAddr), uint256.NewInt(100), uint256.NewInt(100), 500, 1)
	require.ErrorIs(t, err, ErrAMMOverspent)
}

func TestDepositPaused(t *testing.T) {
	f := newBonderFixture(t)
	f.bonder.SetPauses(nativecommon.Pauses{moduleName: true})
	_, err := f.bonder.Deposit(context.Background(), f.call(userAddr), uint256.NewInt(100), uint256.NewInt(100), 500, 1)
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
}

func TestCollectFeesAdminOnly(t *testing.T) {
	f := newBonderFixture(t)
	f.amm.fees[7] = [2]*uint256.Int{uint256.NewInt(3), uint256.NewInt(9)}

	_, _, err := f.bonder.CollectFees(context.Background(), f.call(userAddr), 7)
	require.ErrorIs(t, err, ErrUnauthorized)

	feeA, feeB, err := f.bonder.CollectFees(context.Background(), f.call(adminAddr), 7)
	require.NoError(t, err)
	require.Equal(t, uint64(3), feeA.Uint64())
	require.Equal(t, uint64(9), feeB.Uint64())

	feeA, feeB, err = f.bonder.CollectFees(context.Background(), f.call(adminAddr), 99)
	require.NoError(t, err)
	require.True(t, feeA.IsZero())
	require.True(t, feeB.IsZero())
}

func TestDepositRefusedBondLeavesPoolUntouched(t *testing.T) {
	f := newBonderFixture(t)
	f.bonds.refuseErr = nativecommon.ErrModulePaused

	_, err := f.bonder.Deposit(context.Background(), f.call(userAddr), uint256.NewInt(100), uint256.NewInt(100), 500, 1)
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
	require.Equal(t, 1, f.bonds.precheck)
	require.Zero(t, f.amm.nextRef)
	require.Equal(t, uint64(10_000), f.balance(t, userAddr, "EURX"))
	require.Equal(t, uint64(20_000), f.balance(t, userAddr, "IBCO"))
	require.Empty(t, f.sink.events)
}

func TestDepositDuringCatastropheMintsNothing(t *testing.T) {
	f := newBonderFixture(t)
	ledger := bonds.New(bonds.Config{
		Address:        custodyAddr,
		AssetA:         "EURX",
		AssetADecimals: 18,
		AssetB:         "IBCO",
		RewardAsset:    "RWD",
	}, f.ledger, nil)
	ledger.SetState(f.mgr)
	require.NoError(t, ledger.EnableCatastrophe(f.call(adminAddr)))
	f.bonder.bonds = ledger

	_, err := f.bonder.Deposit(context.Background(), f.call(userAddr), uint256.NewInt(100), uint256.NewInt(100), 500, 1)
	require.ErrorIs(t, err, bonds.ErrCatastropheActive)
	require.Zero(t, f.amm.nextRef)
}

func TestDepositRejectsSingleSidedRange(t *testing.T) {
	f := newBonderFixture(t)
	f.bonder.cfg.MinTick, f.bonder.cfg.MaxTick = -900, 900
	f.amm.tick = 5_000

	_, err := f.bonder.Deposit(context.Background(), f.call(userAddr), uint256.NewInt(100), uint256.NewInt(100), 500, 1)
	require.ErrorIs(t, err, ErrOneSided)
	require.Zero(t, f.amm.nextRef)
	require.Empty(t, f.bonds.calls)
}

func TestDepositRejectsUnusedSide(t *testing.T) {
	f := newBonderFixture(t)
	f.amm.usePctB = 0
	_, err := f.bonder.Deposit(context.Background(), f.call(userAddr), uint256.NewInt(100), uint256.NewInt(100), 500, 1)
	require.ErrorIs(t, err, ErrInvalidAmount)
	require.Empty(t, f.bonds.calls)
}
