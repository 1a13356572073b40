package offering

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	coreerrors "ibco/core/errors"
	"ibco/core/events"
	"ibco/core/host"
	"ibco/core/state"
	"ibco/native/assets"
	"ibco/native/bank"
	nativecommon "ibco/native/common"
	"ibco/native/curve"
	"ibco/native/oracle"
	"ibco/storage"
)

var (
	adminAddr    = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	offeringAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	calcAddr     = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	treasuryAddr = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	buyerAddr    = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	usdcOracle   = common.HexToAddress("0x0000000000000000000000000000000000000a01")
)

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(e events.Event) { r.events = append(r.events, e) }

type fixture struct {
	host     *host.Host
	mgr      *state.Manager
	ledger   *bank.Ledger
	curve    *curve.Curve
	calc     *Calculator
	offering *Offering
	usdcFeed *oracle.ManualFeed
	sink     *recordingEmitter
}

func wad(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), uint256.NewInt(1_000_000_000_000_000_000))
}

func usdc(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), uint256.NewInt(1_000_000))
}

func newFixture(t *testing.T, quota nativecommon.Quota) *fixture {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	sink := &recordingEmitter{}
	h := host.New(mgr, sink)

	for role, addr := range map[string]common.Address{
		nativecommon.RoleAdmin:        adminAddr,
		nativecommon.RoleOffering:     offeringAddr,
		nativecommon.RoleCurveUpdater: calcAddr,
	} {
		if err := mgr.SetRole(role, addr.Bytes()); err != nil {
			t.Fatalf("set role: %v", err)
		}
	}

	registry := assets.NewRegistry()
	registry.SetState(mgr)
	registry.SetEmitter(h.Emitter())
	if err := registry.Add(nativecommon.NewCallContext(adminAddr, mgr), assets.Entry{
		Symbol:         "USDC",
		Token:          common.HexToAddress("0x0000000000000000000000000000000000000a0c"),
		TokenDecimals:  6,
		Oracle:         usdcOracle,
		OracleDecimals: 8,
	}); err != nil {
		t.Fatalf("add asset: %v", err)
	}

	schedule, err := curve.NewSchedule(curve.Params{
		InitialPrice: new(uint256.Int).Div(wad(8), uint256.NewInt(10)),
		FullPrice:    wad(1),
		MaxSupply:    wad(10_000_000_000),
		BucketSize:   wad(100_000),
		Exponent:     decimal.NewFromInt(4),
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	c := curve.New(schedule)
	c.SetState(mgr)
	c.SetEmitter(h.Emitter())

	usdcFeed := oracle.NewManualFeed(uint256.NewInt(100_000_000), 8)
	feeds := oracle.NewDirectory()
	feeds.Register(usdcOracle, usdcFeed)
	eurUSD := oracle.NewManualFeed(uint256.NewInt(125_000_000), 8)

	calc := NewCalculator(calcAddr, registry, feeds, eurUSD, c)

	ledger := bank.NewLedger(mgr)
	ledger.SetEmitter(h.Emitter())
	off := New(Config{Address: offeringAddr, Treasury: treasuryAddr, UnitSymbol: "ibco", Quota: quota}, calc, ledger)
	off.SetState(mgr)
	off.SetEmitter(h.Emitter())
	off.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0) })

	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	h.Emitter().(*events.Buffer).Discard()
	return &fixture{host: h, mgr: mgr, ledger: ledger, curve: c, calc: calc, offering: off, usdcFeed: usdcFeed, sink: sink}
}

func (f *fixture) fund(t *testing.T, addr common.Address, amount *uint256.Int) {
	t.Helper()
	if err := f.host.Execute(func() error { return f.ledger.Mint(addr, "USDC", amount) }); err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func TestCalculatePipeline(t *testing.T) {
	f := newFixture(t, nativecommon.Quota{})
	res, err := f.calc.Calculate(context.Background(), nativecommon.NewCallContext(offeringAddr, f.mgr), usdc(125_000), "usdc")
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if !res.USD.Eq(wad(125_000)) {
		t.Fatalf("unexpected USD %s", res.USD.Dec())
	}
	if !res.EUR.Eq(wad(100_000)) {
		t.Fatalf("unexpected EUR %s", res.EUR.Dec())
	}
	if !res.Units.Eq(wad(125_000)) || res.BucketIndex != 1 {
		t.Fatalf("unexpected issuance %s @ %d", res.Units.Dec(), res.BucketIndex)
	}
	st, err := f.curve.State()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if !st.TotalIssued.Eq(wad(125_000)) {
		t.Fatalf("curve state not advanced: %s", st.TotalIssued.Dec())
	}
}

func TestCalculateRequiresOfferingRole(t *testing.T) {
	f := newFixture(t, nativecommon.Quota{})
	_, err := f.calc.Calculate(context.Background(), nativecommon.NewCallContext(buyerAddr, f.mgr), usdc(1), "USDC")
	if !errors.Is(err, ErrUnauthorized) || !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestCalculateRequiresCurveUpdater(t *testing.T) {
	f := newFixture(t, nativecommon.Quota{})
	if err := f.mgr.RevokeRole(nativecommon.RoleCurveUpdater, calcAddr.Bytes()); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	_, err := f.calc.Calculate(context.Background(), nativecommon.NewCallContext(offeringAddr, f.mgr), usdc(1), "USDC")
	if !errors.Is(err, curve.ErrUnauthorized) {
		t.Fatalf("expected curve unauthorized, got %v", err)
	}
}

func TestCalculateOracleDecimalsMismatch(t *testing.T) {
	f := newFixture(t, nativecommon.Quota{})
	f.usdcFeed.Set(uint256.NewInt(1_000_000), 6, time.Now())
	_, err := f.calc.Quote(context.Background(), usdc(1), "USDC")
	if !errors.Is(err, ErrOracleDecimalsMismatch) {
		t.Fatalf("expected decimals mismatch, got %v", err)
	}
}

func TestCalculateUnknownAsset(t *testing.T) {
	f := newFixture(t, nativecommon.Quota{})
	_, err := f.calc.Quote(context.Background(), usdc(1), "DOGE")
	if !errors.Is(err, assets.ErrAssetNotFound) {
		t.Fatalf("expected asset not found, got %v", err)
	}
}

func TestReadOnlyCalculateDoesNotPersist(t *testing.T) {
	f := newFixture(t, nativecommon.Quota{})
	res, err := f.calc.ReadOnlyCalculate(context.Background(), usdc(125_000), "USDC", new(uint256.Int))
	if err != nil {
		t.Fatalf("read only: %v", err)
	}
	if !res.Units.Eq(wad(125_000)) {
		t.Fatalf("unexpected units %s", res.Units.Dec())
	}
	if f.mgr.Dirty() != 0 {
		t.Fatalf("read only calculation staged writes")
	}
	later, err := f.calc.ReadOnlyCalculate(context.Background(), usdc(125_000), "USDC", wad(10_000_000_000))
	if err != nil {
		t.Fatalf("read only at cap: %v", err)
	}
	if !later.Units.Eq(wad(100_000)) {
		t.Fatalf("expected full price conversion at cap, got %s", later.Units.Dec())
	}
}

func TestBuySettlesPurchase(t *testing.T) {
	f := newFixture(t, nativecommon.Quota{})
	f.fund(t, buyerAddr, usdc(200_000))

	var receipt Receipt
	err := f.host.Execute(func() error {
		var err error
		receipt, err = f.offering.Buy(context.Background(), nativecommon.NewCallContext(buyerAddr, f.mgr), "USDC", usdc(125_000), wad(125_000))
		return err
	})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if _, err := uuid.Parse(receipt.ID); err != nil {
		t.Fatalf("receipt id is not a uuid: %v", err)
	}
	units, _ := f.ledger.BalanceOf(buyerAddr, "IBCO")
	if !units.Eq(wad(125_000)) {
		t.Fatalf("unexpected unit balance %s", units.Dec())
	}
	left, _ := f.ledger.BalanceOf(buyerAddr, "USDC")
	treasury, _ := f.ledger.BalanceOf(treasuryAddr, "USDC")
	if !left.Eq(usdc(75_000)) || !treasury.Eq(usdc(125_000)) {
		t.Fatalf("unexpected balances buyer=%s treasury=%s", left.Dec(), treasury.Dec())
	}
	var purchase *events.OfferingPurchase
	for _, e := range f.sink.events {
		if p, ok := e.(events.OfferingPurchase); ok {
			purchase = &p
		}
	}
	if purchase == nil || purchase.ReceiptID != receipt.ID || purchase.Asset != "USDC" {
		t.Fatalf("missing purchase event: %+v", f.sink.events)
	}
}

func TestBuySlippageRollsBack(t *testing.T) {
	f := newFixture(t, nativecommon.Quota{})
	f.fund(t, buyerAddr, usdc(200_000))
	before := len(f.sink.events)

	err := f.host.Execute(func() error {
		_, err := f.offering.Buy(context.Background(), nativecommon.NewCallContext(buyerAddr, f.mgr), "USDC", usdc(125_000), wad(125_001))
		return err
	})
	if !errors.Is(err, ErrSlippage) {
		t.Fatalf("expected slippage, got %v", err)
	}
	st, err := f.curve.State()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if !st.TotalIssued.IsZero() || st.CurrentBucketIndex != 0 {
		t.Fatalf("curve advanced despite failure: %+v", st)
	}
	bal, _ := f.ledger.BalanceOf(buyerAddr, "USDC")
	if !bal.Eq(usdc(200_000)) {
		t.Fatalf("buyer funds moved despite failure: %s", bal.Dec())
	}
	if len(f.sink.events) != before {
		t.Fatalf("events leaked from failed purchase")
	}
}

func TestBuyInsufficientBalance(t *testing.T) {
	f := newFixture(t, nativecommon.Quota{})
	err := f.host.Execute(func() error {
		_, err := f.offering.Buy(context.Background(), nativecommon.NewCallContext(buyerAddr, f.mgr), "USDC", usdc(1), nil)
		return err
	})
	if !errors.Is(err, bank.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestBuyEnforcesQuota(t *testing.T) {
	f := newFixture(t, nativecommon.Quota{MaxRequestsPerEpoch: 1, MaxAmountPerEpoch: 150_000, EpochSeconds: 3600})
	f.fund(t, buyerAddr, usdc(1_000_000))
	buy := func(amount *uint256.Int) error {
		return f.host.Execute(func() error {
			_, err := f.offering.Buy(context.Background(), nativecommon.NewCallContext(buyerAddr, f.mgr), "USDC", amount, nil)
			return err
		})
	}
	if err := buy(usdc(125_000)); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	if err := buy(usdc(1)); !errors.Is(err, nativecommon.ErrQuotaRequestsExceeded) {
		t.Fatalf("expected request quota, got %v", err)
	}

	f.offering.SetClock(func() time.Time { return time.Unix(1_700_000_000+3600, 0) })
	// 250k USDC is 200k EUR, above the per epoch cap
	if err := buy(usdc(250_000)); !errors.Is(err, nativecommon.ErrQuotaAmountExceeded) {
		t.Fatalf("expected amount quota, got %v", err)
	}
}

func TestBuyPaused(t *testing.T) {
	f := newFixture(t, nativecommon.Quota{})
	f.offering.SetPauses(nativecommon.Pauses{moduleName: true})
	_, err := f.offering.Buy(context.Background(), nativecommon.NewCallContext(buyerAddr, f.mgr), "USDC", usdc(1), nil)
	if !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
}

func TestBuyZeroPriceRejected(t *testing.T) {
	f := newFixture(t, nativecommon.Quota{})
	f.fund(t, buyerAddr, usdc(1_000))
	f.usdcFeed.Set(uint256.NewInt(0), 8, time.Now())

	err := f.host.Execute(func() error {
		_, err := f.offering.Buy(context.Background(), nativecommon.NewCallContext(buyerAddr, f.mgr), "USDC", usdc(1_000), nil)
		return err
	})
	if !errors.Is(err, oracle.ErrNoPrice) {
		t.Fatalf("expected missing price, got %v", err)
	}
	bal, _ := f.ledger.BalanceOf(buyerAddr, "USDC")
	if !bal.Eq(usdc(1_000)) {
		t.Fatalf("buyer funds moved at zero price: %s", bal.Dec())
	}
	treasury, _ := f.ledger.BalanceOf(treasuryAddr, "USDC")
	if !treasury.IsZero() {
		t.Fatalf("treasury credited at zero price: %s", treasury.Dec())
	}
}
