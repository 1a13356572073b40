package bonds

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	coreerrors "ibco/core/errors"
	"ibco/core/events"
	"ibco/core/state"
	"ibco/native/bank"
	nativecommon "ibco/native/common"
	"ibco/storage"
)

var (
	adminAddr   = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	bonderAddr  = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	custodyAddr = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	aliceAddr   = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bobAddr     = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

const week = 7 * 24 * time.Hour

func wadOf(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), uint256.NewInt(1_000_000_000_000_000_000))
}

// halfValuer prices every asset at 0.5 EUR.
type halfValuer struct{}

func (halfValuer) EURValue(_ context.Context, amount *uint256.Int, _ string) (*uint256.Int, *uint256.Int, error) {
	half := new(uint256.Int).Rsh(amount, 1)
	return half, half.Clone(), nil
}

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(e events.Event) { r.events = append(r.events, e) }

func (r *recordingEmitter) count(kind string) int {
	n := 0
	for _, e := range r.events {
		if e.EventType() == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	mgr    *state.Manager
	tokens *bank.Ledger
	ledger *Ledger
	sink   *recordingEmitter
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	for role, addr := range map[string]common.Address{
		nativecommon.RoleAdmin:         adminAddr,
		nativecommon.RoleBondWhitelist: bonderAddr,
	} {
		if err := mgr.SetRole(role, addr.Bytes()); err != nil {
			t.Fatalf("set role: %v", err)
		}
	}
	tokens := bank.NewLedger(mgr)
	f := &fixture{mgr: mgr, tokens: tokens, sink: &recordingEmitter{}, now: time.Unix(1_700_000_000, 0)}
	f.ledger = New(Config{
		Address:        custodyAddr,
		AssetA:         "EURX",
		AssetADecimals: 18,
		AssetB:         "IBCO",
		RewardAsset:    "RWD",
		RewardPerEUR:   wadOf(2),
	}, tokens, halfValuer{})
	f.ledger.SetState(mgr)
	f.ledger.SetEmitter(f.sink)
	f.ledger.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) call(addr common.Address) nativecommon.CallContext {
	return nativecommon.NewCallContext(addr, f.mgr)
}

// start opens a bond and places its principal in custody the way the bonder
// does.
func (f *fixture) start(t *testing.T, owner common.Address, principal *uint256.Int, rateBps, weeks uint64) uint64 {
	t.Helper()
	for _, sym := range []string{"EURX", "IBCO"} {
		if err := f.tokens.Mint(custodyAddr, sym, principal); err != nil {
			t.Fatalf("mint custody: %v", err)
		}
	}
	id, err := f.ledger.StartBond(f.call(bonderAddr), owner, principal, principal, rateBps, weeks, 0)
	if err != nil {
		t.Fatalf("start bond: %v", err)
	}
	return id
}

func (f *fixture) fundRewards(t *testing.T, amount *uint256.Int) {
	t.Helper()
	if err := f.tokens.Mint(adminAddr, "RWD", amount); err != nil {
		t.Fatalf("mint rewards: %v", err)
	}
	if _, err := f.ledger.FundRewards(f.call(adminAddr), amount); err != nil {
		t.Fatalf("fund rewards: %v", err)
	}
}

func (f *fixture) balance(t *testing.T, addr common.Address, sym string) *uint256.Int {
	t.Helper()
	bal, err := f.tokens.BalanceOf(addr, sym)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

func TestTwoBondScenario(t *testing.T) {
	f := newFixture(t)
	f.start(t, aliceAddr, wadOf(2_000_000), 500, 1)
	f.start(t, aliceAddr, wadOf(2_000_000), 1_000, 4)

	f.now = f.now.Add(week)
	n, err := f.ledger.RefreshStatus(aliceAddr)
	if err != nil || n != 1 {
		t.Fatalf("expected one maturity, got %d (%v)", n, err)
	}
	n, err = f.ledger.RefreshStatus(aliceAddr)
	if err != nil || n != 0 {
		t.Fatalf("refresh must be idempotent, got %d (%v)", n, err)
	}
	book, err := f.ledger.Book(aliceAddr)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if !book.Accrual.ProfitA.Eq(wadOf(100_000)) || !book.Accrual.ProfitB.Eq(wadOf(100_000)) {
		t.Fatalf("unexpected profit %s/%s", book.Accrual.ProfitA.Dec(), book.Accrual.ProfitB.Dec())
	}
	if book.FirstActive != 1 {
		t.Fatalf("expected first active 1, got %d", book.FirstActive)
	}
	preview, err := f.ledger.ClaimableReward(context.Background(), aliceAddr)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	// 100k EUR from A plus 100k B at 0.5 EUR, two reward tokens per EUR.
	if !preview.ProfitEUR.Eq(wadOf(150_000)) || !preview.Reward.Eq(wadOf(300_000)) {
		t.Fatalf("unexpected preview %s EUR / %s reward", preview.ProfitEUR.Dec(), preview.Reward.Dec())
	}

	f.now = f.now.Add(3 * week)
	n, err = f.ledger.RefreshStatus(aliceAddr)
	if err != nil || n != 1 {
		t.Fatalf("expected second maturity, got %d (%v)", n, err)
	}
	preview, err = f.ledger.ClaimableReward(context.Background(), aliceAddr)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !preview.ProfitEUR.Eq(wadOf(450_000)) || preview.Positions != 2 {
		t.Fatalf("unexpected preview %s EUR over %d positions", preview.ProfitEUR.Dec(), preview.Positions)
	}
	if got := f.sink.count(events.TypeBondMatured); got != 2 {
		t.Fatalf("expected 2 matured events, got %d", got)
	}
}

func TestPreviewDoesNotPersist(t *testing.T) {
	f := newFixture(t)
	f.start(t, aliceAddr, wadOf(1_000), 500, 1)
	f.now = f.now.Add(week)
	if _, err := f.ledger.ClaimableReward(context.Background(), aliceAddr); err != nil {
		t.Fatalf("preview: %v", err)
	}
	book, _ := f.ledger.Book(aliceAddr)
	if book.Positions[0].state() != StatusActive || !book.Accrual.IsZero() {
		t.Fatalf("preview mutated the book")
	}
}

func TestOutOfOrderMaturityIsNotMissed(t *testing.T) {
	f := newFixture(t)
	f.start(t, aliceAddr, wadOf(10), 500, 4)
	f.start(t, aliceAddr, wadOf(10), 500, 1)

	f.now = f.now.Add(week)
	n, err := f.ledger.RefreshStatus(aliceAddr)
	if err != nil || n != 1 {
		t.Fatalf("expected the shorter bond to mature, got %d (%v)", n, err)
	}
	book, _ := f.ledger.Book(aliceAddr)
	if book.Positions[0].state() != StatusActive || book.Positions[1].state() != StatusMatured {
		t.Fatalf("unexpected statuses %v %v", book.Positions[0].state(), book.Positions[1].state())
	}
	if book.FirstActive != 0 {
		t.Fatalf("first active must stay on the long bond, got %d", book.FirstActive)
	}
}

func TestClaimSettlesPrincipalAndReward(t *testing.T) {
	f := newFixture(t)
	f.start(t, aliceAddr, wadOf(2_000_000), 500, 1)
	f.fundRewards(t, wadOf(1_000_000))

	if _, err := f.ledger.Claim(context.Background(), f.call(aliceAddr)); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("expected nothing to claim before maturity, got %v", err)
	}

	f.now = f.now.Add(week)
	s, err := f.ledger.Claim(context.Background(), f.call(aliceAddr))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !s.Reward.Eq(wadOf(300_000)) || s.Positions != 1 {
		t.Fatalf("unexpected settlement %+v", s)
	}
	if !f.balance(t, aliceAddr, "EURX").Eq(wadOf(2_000_000)) || !f.balance(t, aliceAddr, "IBCO").Eq(wadOf(2_000_000)) {
		t.Fatalf("principal not returned")
	}
	if !f.balance(t, aliceAddr, "RWD").Eq(wadOf(300_000)) {
		t.Fatalf("reward not paid")
	}
	st, _ := f.ledger.State()
	if !st.RewardSupply.Eq(wadOf(700_000)) {
		t.Fatalf("unexpected reward supply %s", st.RewardSupply.Dec())
	}
	book, _ := f.ledger.Book(aliceAddr)
	if book.Positions[0].state() != StatusClaimed || !book.Accrual.IsZero() {
		t.Fatalf("position not closed")
	}
	if _, err := f.ledger.Claim(context.Background(), f.call(aliceAddr)); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("expected nothing to claim, got %v", err)
	}
}

func TestClaimFailsLoudlyOnShortRewardSupply(t *testing.T) {
	f := newFixture(t)
	f.start(t, aliceAddr, wadOf(2_000_000), 500, 1)
	f.fundRewards(t, wadOf(1))
	f.now = f.now.Add(week)

	_, err := f.ledger.Claim(context.Background(), f.call(aliceAddr))
	if !errors.Is(err, ErrInsufficientRewardSupply) || !errors.Is(err, coreerrors.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient reward supply, got %v", err)
	}
}

func TestStartBondValidation(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ledger.StartBond(f.call(aliceAddr), aliceAddr, wadOf(1), wadOf(1), 500, 1, 0); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := f.ledger.StartBond(f.call(bonderAddr), aliceAddr, wadOf(0), wadOf(1), 500, 1, 0); !errors.Is(err, ErrInvalidPrincipal) {
		t.Fatalf("expected invalid principal, got %v", err)
	}
	if _, err := f.ledger.StartBond(f.call(bonderAddr), aliceAddr, wadOf(1), wadOf(1), 500, 0, 0); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected invalid duration, got %v", err)
	}
	id, err := f.ledger.StartBond(f.call(bonderAddr), aliceAddr, wadOf(1), wadOf(1), 0, 1, 9)
	if err != nil || id != 1 {
		t.Fatalf("expected bond 1, got %d (%v)", id, err)
	}
	book, _ := f.ledger.Book(aliceAddr)
	if book.Positions[0].Maturity-book.Positions[0].Start != secondsPerWeek || book.Positions[0].PositionRef != 9 {
		t.Fatalf("unexpected position %+v", book.Positions[0])
	}
}

func TestCanStart(t *testing.T) {
	f := newFixture(t)
	if err := f.ledger.CanStart(f.call(bonderAddr), 4); err != nil {
		t.Fatalf("expected bond start allowed, got %v", err)
	}
	if err := f.ledger.CanStart(f.call(aliceAddr), 4); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := f.ledger.CanStart(f.call(bonderAddr), MaxWeeks+1); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected invalid duration, got %v", err)
	}
	f.ledger.SetPauses(nativecommon.Pauses{moduleName: true})
	if err := f.ledger.CanStart(f.call(bonderAddr), 4); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
}

func TestCatastropheGateAndEmergencyWithdraw(t *testing.T) {
	f := newFixture(t)
	f.start(t, aliceAddr, wadOf(100), 500, 1)
	f.start(t, bobAddr, wadOf(50), 500, 4)
	f.now = f.now.Add(week)
	if _, err := f.ledger.RefreshStatus(aliceAddr); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	req, err := f.ledger.CatastropheFundsRequired()
	if err != nil {
		t.Fatalf("required: %v", err)
	}
	if !req.AssetA.Eq(wadOf(150)) || !req.AssetB.Eq(wadOf(150)) {
		t.Fatalf("unexpected requirement %s/%s", req.AssetA.Dec(), req.AssetB.Dec())
	}

	if err := f.ledger.EnableCatastrophe(f.call(aliceAddr)); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected admin check, got %v", err)
	}
	// Drain custody below the requirement.
	if err := f.tokens.Transfer(custodyAddr, adminAddr, "IBCO", wadOf(1)); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if err := f.ledger.EnableCatastrophe(f.call(adminAddr)); !errors.Is(err, ErrInsufficientFunds) || !errors.Is(err, coreerrors.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if err := f.tokens.Transfer(adminAddr, custodyAddr, "IBCO", wadOf(1)); err != nil {
		t.Fatalf("refill: %v", err)
	}
	if err := f.ledger.EnableCatastrophe(f.call(adminAddr)); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if err := f.ledger.EnableCatastrophe(f.call(adminAddr)); !errors.Is(err, ErrAlreadyCatastrophe) {
		t.Fatalf("expected already catastrophe, got %v", err)
	}

	if _, err := f.ledger.RefreshStatus(bobAddr); !errors.Is(err, ErrCatastropheActive) {
		t.Fatalf("refresh must be blocked, got %v", err)
	}
	if _, err := f.ledger.Claim(context.Background(), f.call(aliceAddr)); !errors.Is(err, ErrCatastropheActive) {
		t.Fatalf("claim must be blocked, got %v", err)
	}
	if _, err := f.ledger.StartBond(f.call(bonderAddr), aliceAddr, wadOf(1), wadOf(1), 500, 1, 0); !errors.Is(err, ErrCatastropheActive) {
		t.Fatalf("start must be blocked, got %v", err)
	}
	if err := f.ledger.CanStart(f.call(bonderAddr), 1); !errors.Is(err, ErrCatastropheActive) {
		t.Fatalf("precheck must report catastrophe, got %v", err)
	}

	s, err := f.ledger.EmergencyWithdraw(f.call(aliceAddr))
	if err != nil {
		t.Fatalf("emergency withdraw: %v", err)
	}
	if !s.PrincipalA.Eq(wadOf(100)) || !s.Reward.IsZero() {
		t.Fatalf("expected principal only, got %+v", s)
	}
	if _, err := f.ledger.EmergencyWithdraw(f.call(aliceAddr)); !errors.Is(err, ErrNothingToClaim) {
		t.Fatalf("expected nothing left, got %v", err)
	}
	if _, err := f.ledger.EmergencyWithdraw(f.call(bobAddr)); err != nil {
		t.Fatalf("bob withdraw: %v", err)
	}
	if !f.balance(t, custodyAddr, "EURX").IsZero() {
		t.Fatalf("custody should be drained, has %s", f.balance(t, custodyAddr, "EURX").Dec())
	}

	if err := f.ledger.DisableCatastrophe(f.call(adminAddr)); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if err := f.ledger.DisableCatastrophe(f.call(adminAddr)); !errors.Is(err, ErrNotCatastrophe) {
		t.Fatalf("expected not catastrophe, got %v", err)
	}
	if _, err := f.ledger.EmergencyWithdraw(f.call(bobAddr)); !errors.Is(err, ErrNotCatastrophe) {
		t.Fatalf("withdraw outside catastrophe, got %v", err)
	}
	if got := f.sink.count(events.TypeCatastropheToggled); got != 2 {
		t.Fatalf("expected 2 toggles, got %d", got)
	}
}

func TestFundRewardsAdminOnly(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ledger.FundRewards(f.call(aliceAddr), wadOf(1)); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected admin check, got %v", err)
	}
	if _, err := f.ledger.FundRewards(f.call(adminAddr), wadOf(1)); !errors.Is(err, coreerrors.ErrInsufficientBalance) {
		t.Fatalf("expected unfunded admin to fail, got %v", err)
	}
}
