package bonds

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"ibco/core/events"
	nativecommon "ibco/native/common"
	"ibco/native/rates"
	"ibco/observability/metrics"
)

const moduleName = "bonds"

// eurDecimals is the precision of EUR values and of RewardPerEUR.
const eurDecimals = 18

var (
	stateKey    = []byte("bonds/state")
	errNilState = fmt.Errorf("bonds: state not configured")
	wad         = uint256.NewInt(1_000_000_000_000_000_000)
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// TokenLedger moves balances and reports custody holdings.
type TokenLedger interface {
	Transfer(from, to common.Address, symbol string, amount *uint256.Int) error
	BalanceOf(addr common.Address, symbol string) (*uint256.Int, error)
}

// EURValuer converts an asset amount to an 18 decimal EUR value.
type EURValuer interface {
	EURValue(ctx context.Context, amount *uint256.Int, symbol string) (usd, eur *uint256.Int, err error)
}

// Ledger is the bond engine.
type Ledger struct {
	cfg     Config
	state   engineState
	tokens  TokenLedger
	valuer  EURValuer
	pauses  nativecommon.PauseView
	emitter events.Emitter
	log     *slog.Logger
	nowFn   func() time.Time
}

// New constructs a bond ledger.
func New(cfg Config, tokens TokenLedger, valuer EURValuer) *Ledger {
	if cfg.RewardPerEUR == nil {
		cfg.RewardPerEUR = new(uint256.Int)
	}
	return &Ledger{
		cfg:     cfg,
		tokens:  tokens,
		valuer:  valuer,
		emitter: events.NoopEmitter{},
		log:     slog.Default(),
		nowFn:   time.Now,
	}
}

// SetState wires the engine to the external persistence layer.
func (l *Ledger) SetState(state engineState) { l.state = state }

func (l *Ledger) SetPauses(p nativecommon.PauseView) {
	if l == nil {
		return
	}
	l.pauses = p
}

func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if l == nil {
		return
	}
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) SetLogger(logger *slog.Logger) {
	if l == nil || logger == nil {
		return
	}
	l.log = logger.With(slog.String("component", moduleName))
}

// SetClock overrides the time source for maturity checks.
func (l *Ledger) SetClock(now func() time.Time) {
	if l == nil || now == nil {
		return
	}
	l.nowFn = now
}

// Address is the custody account.
func (l *Ledger) Address() common.Address { return l.cfg.Address }

func (l *Ledger) now() uint64 {
	ts := l.nowFn().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func bookKey(owner common.Address) []byte {
	return append([]byte("bonds/book/"), owner.Bytes()...)
}

// State returns the global ledger record.
func (l *Ledger) State() (LedgerState, error) {
	if l == nil || l.state == nil {
		return LedgerState{}, errNilState
	}
	var st LedgerState
	if _, err := l.state.KVGet(stateKey, &st); err != nil {
		return LedgerState{}, err
	}
	if st.RewardSupply == nil {
		st.RewardSupply = new(uint256.Int)
	}
	if st.Owners == nil {
		st.Owners = []common.Address{}
	}
	return st, nil
}

func (l *Ledger) putState(st LedgerState) error {
	return l.state.KVPut(stateKey, st)
}

func (l *Ledger) loadBook(owner common.Address) (*Book, bool, error) {
	var book Book
	ok, err := l.state.KVGet(bookKey(owner), &book)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return newBook(owner), false, nil
	}
	book.normalise()
	return &book, true, nil
}

func (l *Ledger) putBook(book *Book) error {
	return l.state.KVPut(bookKey(book.Owner), book)
}

// Book returns the positions and accrual of owner. Unknown owners yield an
// empty book.
func (l *Ledger) Book(owner common.Address) (Book, error) {
	if l == nil || l.state == nil {
		return Book{}, errNilState
	}
	book, _, err := l.loadBook(owner)
	if err != nil {
		return Book{}, err
	}
	return *book, nil
}

// CanStart reports whether a bond of the given duration could be opened by
// the caller right now. Callers that commit external resources before
// StartBond check it first.
func (l *Ledger) CanStart(call nativecommon.CallContext, weeks uint64) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if err := call.Require(nativecommon.RoleBondWhitelist, ErrUnauthorized); err != nil {
		return err
	}
	if weeks == 0 || weeks > MaxWeeks {
		return fmt.Errorf("%w: %d weeks", ErrInvalidDuration, weeks)
	}
	st, err := l.State()
	if err != nil {
		return err
	}
	if st.Catastrophe {
		return ErrCatastropheActive
	}
	return nil
}

// StartBond appends an active position for owner. Only whitelisted callers,
// normally the bonder, may open bonds.
func (l *Ledger) StartBond(call nativecommon.CallContext, owner common.Address, principalA, principalB *uint256.Int, rateBps, weeks, positionRef uint64) (uint64, error) {
	if err := l.CanStart(call, weeks); err != nil {
		return 0, err
	}
	if principalA == nil || principalB == nil || principalA.IsZero() || principalB.IsZero() {
		return 0, ErrInvalidPrincipal
	}
	st, err := l.State()
	if err != nil {
		return 0, err
	}
	book, exists, err := l.loadBook(owner)
	if err != nil {
		return 0, err
	}
	start := l.now()
	st.NextID++
	pos := Position{
		ID:          st.NextID,
		Owner:       owner,
		PrincipalA:  principalA.Clone(),
		PrincipalB:  principalB.Clone(),
		RateBps:     rateBps,
		Start:       start,
		Maturity:    start + weeks*secondsPerWeek,
		Status:      uint8(StatusActive),
		PositionRef: positionRef,
	}
	book.Positions = append(book.Positions, pos)
	if !exists {
		st.Owners = append(st.Owners, owner)
	}
	if err := l.putBook(book); err != nil {
		return 0, err
	}
	if err := l.putState(st); err != nil {
		return 0, err
	}
	l.emitter.Emit(events.BondStarted{
		ID:          pos.ID,
		Owner:       owner,
		PrincipalA:  pos.PrincipalA.Clone(),
		PrincipalB:  pos.PrincipalB.Clone(),
		RateBps:     rateBps,
		Start:       pos.Start,
		Maturity:    pos.Maturity,
		PositionRef: positionRef,
	})
	metrics.IBCO().RecordBondEvent("started")
	l.log.Info("bond started",
		slog.Uint64("id", pos.ID),
		slog.String("owner", owner.Hex()),
		slog.Uint64("rateBps", rateBps),
		slog.Uint64("maturity", pos.Maturity))
	return pos.ID, nil
}

func profit(principal *uint256.Int, rateBps uint64) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulDivOverflow(principal, uint256.NewInt(rateBps), uint256.NewInt(bpsDenominator))
	if overflow {
		return nil, ErrArithmetic
	}
	return out, nil
}

func addInto(dst, v *uint256.Int) error {
	if _, overflow := dst.AddOverflow(dst, v); overflow {
		return ErrArithmetic
	}
	return nil
}

// mature moves every active position whose maturity has passed into the
// accrual. The whole tail from FirstActive is scanned since positions are not
// guaranteed to be ordered by maturity.
func mature(book *Book, now uint64) ([]events.BondMatured, error) {
	var matured []events.BondMatured
	first := uint64(len(book.Positions))
	for i := book.FirstActive; i < uint64(len(book.Positions)); i++ {
		pos := &book.Positions[i]
		if pos.state() != StatusActive {
			continue
		}
		if pos.Maturity > now {
			if i < first {
				first = i
			}
			continue
		}
		profitA, err := profit(pos.PrincipalA, pos.RateBps)
		if err != nil {
			return nil, err
		}
		profitB, err := profit(pos.PrincipalB, pos.RateBps)
		if err != nil {
			return nil, err
		}
		for _, step := range [][2]*uint256.Int{
			{book.Accrual.PrincipalA, pos.PrincipalA},
			{book.Accrual.PrincipalB, pos.PrincipalB},
			{book.Accrual.ProfitA, profitA},
			{book.Accrual.ProfitB, profitB},
		} {
			if err := addInto(step[0], step[1]); err != nil {
				return nil, err
			}
		}
		pos.Status = uint8(StatusMatured)
		matured = append(matured, events.BondMatured{ID: pos.ID, Owner: pos.Owner, ProfitA: profitA, ProfitB: profitB})
	}
	book.FirstActive = first
	return matured, nil
}

func (l *Ledger) refresh(book *Book) (int, error) {
	matured, err := mature(book, l.now())
	if err != nil {
		return 0, err
	}
	for _, ev := range matured {
		l.emitter.Emit(ev)
		metrics.IBCO().RecordBondEvent("matured")
	}
	return len(matured), nil
}

// RefreshStatus matures every due position of owner and reports how many
// changed. Calling it again without time passing changes nothing.
func (l *Ledger) RefreshStatus(owner common.Address) (int, error) {
	if l == nil || l.state == nil {
		return 0, errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return 0, err
	}
	st, err := l.State()
	if err != nil {
		return 0, err
	}
	if st.Catastrophe {
		return 0, ErrCatastropheActive
	}
	book, exists, err := l.loadBook(owner)
	if err != nil || !exists {
		return 0, err
	}
	n, err := l.refresh(book)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := l.putBook(book); err != nil {
		return 0, err
	}
	l.log.Info("bonds matured", slog.String("owner", owner.Hex()), slog.Int("count", n))
	return n, nil
}

// ProfitEUR values an accrual's profit in EUR: AssetA by decimal
// normalisation, AssetB through the valuer.
func (l *Ledger) ProfitEUR(ctx context.Context, acc Accrual) (*uint256.Int, error) {
	eurA, err := rates.Normalize(acc.ProfitA, l.cfg.AssetADecimals, eurDecimals)
	if err != nil {
		return nil, err
	}
	total := eurA.Clone()
	if !acc.ProfitB.IsZero() {
		if l.valuer == nil {
			return nil, fmt.Errorf("bonds: no valuer for %s", l.cfg.AssetB)
		}
		_, eurB, err := l.valuer.EURValue(ctx, acc.ProfitB, l.cfg.AssetB)
		if err != nil {
			return nil, err
		}
		if err := addInto(total, eurB); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// RewardFor applies the fixed reward ratio to an EUR value.
func (l *Ledger) RewardFor(eur *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulDivOverflow(eur, l.cfg.RewardPerEUR, wad)
	if overflow {
		return nil, ErrArithmetic
	}
	return out, nil
}

func (l *Ledger) settlement(ctx context.Context, acc Accrual) (Settlement, error) {
	profitEUR, err := l.ProfitEUR(ctx, acc)
	if err != nil {
		return Settlement{}, err
	}
	reward, err := l.RewardFor(profitEUR)
	if err != nil {
		return Settlement{}, err
	}
	return Settlement{
		PrincipalA: acc.PrincipalA.Clone(),
		PrincipalB: acc.PrincipalB.Clone(),
		ProfitEUR:  profitEUR,
		Reward:     reward,
	}, nil
}

// ClaimableReward previews what owner would receive from Claim now without
// persisting anything.
func (l *Ledger) ClaimableReward(ctx context.Context, owner common.Address) (Settlement, error) {
	if l == nil || l.state == nil {
		return Settlement{}, errNilState
	}
	book, _, err := l.loadBook(owner)
	if err != nil {
		return Settlement{}, err
	}
	book.Accrual = book.Accrual.clone()
	positions := make([]Position, len(book.Positions))
	copy(positions, book.Positions)
	book.Positions = positions
	if _, err := mature(book, l.now()); err != nil {
		return Settlement{}, err
	}
	s, err := l.settlement(ctx, book.Accrual)
	if err != nil {
		return Settlement{}, err
	}
	s.Positions = countStatus(book, StatusMatured)
	return s, nil
}

func countStatus(book *Book, status Status) int {
	n := 0
	for _, pos := range book.Positions {
		if pos.state() == status {
			n++
		}
	}
	return n
}

// Claim matures due positions of the caller, returns their principal and pays
// the profit as reward tokens from the tracked reward supply.
func (l *Ledger) Claim(ctx context.Context, call nativecommon.CallContext) (Settlement, error) {
	if l == nil || l.state == nil || l.tokens == nil {
		return Settlement{}, errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return Settlement{}, err
	}
	owner := call.Caller
	st, err := l.State()
	if err != nil {
		return Settlement{}, err
	}
	if st.Catastrophe {
		return Settlement{}, ErrCatastropheActive
	}
	book, _, err := l.loadBook(owner)
	if err != nil {
		return Settlement{}, err
	}
	if _, err := l.refresh(book); err != nil {
		return Settlement{}, err
	}
	if book.Accrual.IsZero() {
		return Settlement{}, ErrNothingToClaim
	}
	s, err := l.settlement(ctx, book.Accrual)
	if err != nil {
		return Settlement{}, err
	}
	if st.RewardSupply.Lt(s.Reward) {
		l.log.Debug("claim exceeds reward supply",
			slog.String("owner", owner.Hex()),
			slog.String("reward", s.Reward.Dec()),
			slog.String("supply", st.RewardSupply.Dec()))
		return Settlement{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientRewardSupply, s.Reward.Dec(), st.RewardSupply.Dec())
	}
	if err := l.tokens.Transfer(l.cfg.Address, owner, l.cfg.AssetA, s.PrincipalA); err != nil {
		return Settlement{}, err
	}
	if err := l.tokens.Transfer(l.cfg.Address, owner, l.cfg.AssetB, s.PrincipalB); err != nil {
		return Settlement{}, err
	}
	if err := l.tokens.Transfer(l.cfg.Address, owner, l.cfg.RewardAsset, s.Reward); err != nil {
		return Settlement{}, err
	}
	for i := range book.Positions {
		if book.Positions[i].state() == StatusMatured {
			book.Positions[i].Status = uint8(StatusClaimed)
			s.Positions++
		}
	}
	book.Accrual = newAccrual()
	st.RewardSupply = new(uint256.Int).Sub(st.RewardSupply, s.Reward)
	if err := l.putBook(book); err != nil {
		return Settlement{}, err
	}
	if err := l.putState(st); err != nil {
		return Settlement{}, err
	}
	l.emitter.Emit(events.BondClaimed{
		Owner:      owner,
		PrincipalA: s.PrincipalA.Clone(),
		PrincipalB: s.PrincipalB.Clone(),
		ProfitEUR:  s.ProfitEUR.Clone(),
		Reward:     s.Reward.Clone(),
	})
	m := metrics.IBCO()
	m.RecordBondEvent("claimed")
	m.SetRewardSupply(st.RewardSupply)
	l.log.Info("bonds claimed",
		slog.String("owner", owner.Hex()),
		slog.Int("positions", s.Positions),
		slog.String("reward", s.Reward.Dec()))
	return s, nil
}

// FundRewards moves reward tokens from the admin into custody and raises the
// distributable supply by the same amount.
func (l *Ledger) FundRewards(call nativecommon.CallContext, amount *uint256.Int) (*uint256.Int, error) {
	if l == nil || l.state == nil || l.tokens == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := call.Require(nativecommon.RoleAdmin, ErrNotAdmin); err != nil {
		return nil, err
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	st, err := l.State()
	if err != nil {
		return nil, err
	}
	next, overflow := new(uint256.Int).AddOverflow(st.RewardSupply, amount)
	if overflow {
		return nil, ErrArithmetic
	}
	if err := l.tokens.Transfer(call.Caller, l.cfg.Address, l.cfg.RewardAsset, amount); err != nil {
		return nil, err
	}
	st.RewardSupply = next
	if err := l.putState(st); err != nil {
		return nil, err
	}
	l.emitter.Emit(events.BondRewardsFunded{Amount: amount.Clone(), Supply: next.Clone()})
	metrics.IBCO().SetRewardSupply(next)
	l.log.Info("bond rewards funded", slog.String("amount", amount.Dec()), slog.String("supply", next.Dec()))
	return next.Clone(), nil
}
