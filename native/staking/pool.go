// Package staking implements the fixed-window simple-interest staking pool.
// Each depositor holds a single position identified by a token id; its reward
// is recomputed from the full stake on every mint.
package staking

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	coreerrors "ibco/core/errors"
	"ibco/core/events"
	nativecommon "ibco/native/common"
	"ibco/observability/metrics"
)

const moduleName = "staking"

// RateDenominator is the rate scale: 100000 is 100%, 5000 is 5%.
const RateDenominator = 100_000

var (
	ErrNotAdmin           = coreerrors.New(coreerrors.KindUnauthorized, "staking: caller is not admin")
	ErrInvalidParams      = coreerrors.New(coreerrors.KindInvalid, "staking: invalid params")
	ErrInvalidAmount      = coreerrors.New(coreerrors.KindInvalid, "staking: amount must be positive")
	ErrInactive           = coreerrors.New(coreerrors.KindAlreadyInState, "staking: pool not active")
	ErrAlreadyActive      = coreerrors.New(coreerrors.KindAlreadyInState, "staking: pool already active")
	ErrAlreadyCatastrophe = coreerrors.New(coreerrors.KindAlreadyInState, "staking: already in catastrophe")
	ErrNotCatastrophe     = coreerrors.New(coreerrors.KindAlreadyInState, "staking: not in catastrophe")
	ErrCatastropheActive  = coreerrors.New(coreerrors.KindAlreadyInState, "staking: catastrophe active")
	ErrOutsideWindow      = coreerrors.New(coreerrors.KindInvalidRange, "staking: outside staking window")
	ErrNotMature          = coreerrors.New(coreerrors.KindInvalidRange, "staking: pool not mature")
	ErrOverLimit          = coreerrors.New(coreerrors.KindInsufficientBalance, "staking: reward over limit")
	ErrNoPosition         = coreerrors.New(coreerrors.KindNotFound, "staking: no position")
	ErrPositionClosed     = coreerrors.New(coreerrors.KindAlreadyInState, "staking: position closed")
	ErrArithmetic         = coreerrors.New(coreerrors.KindArithmeticBounds, "staking: arithmetic overflow")
	errNilState           = fmt.Errorf("staking: state not configured")
)

var (
	poolKey = []byte("staking/pool")
	wad     = uint256.NewInt(1_000_000_000_000_000_000)
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// TokenLedger moves balances and reports pool holdings.
type TokenLedger interface {
	Transfer(from, to common.Address, symbol string, amount *uint256.Int) error
	BalanceOf(addr common.Address, symbol string) (*uint256.Int, error)
}

// Params fixes the economics of the pool. Times are unix seconds.
type Params struct {
	StakeAsset  string
	RewardAsset string
	RateMilli   uint64
	WindowStart uint64
	WindowEnd   uint64
	Maturity    uint64
	// RewardPerStake converts accrued interest, in stake units, to reward
	// token units. 18 decimals.
	RewardPerStake *uint256.Int
}

// Validate checks the window ordering and asset names.
func (p Params) Validate() error {
	switch {
	case strings.TrimSpace(p.StakeAsset) == "" || strings.TrimSpace(p.RewardAsset) == "":
		return fmt.Errorf("%w: assets required", ErrInvalidParams)
	case p.WindowStart > p.WindowEnd:
		return fmt.Errorf("%w: window ends before it starts", ErrInvalidParams)
	case p.WindowEnd > p.Maturity:
		return fmt.Errorf("%w: maturity precedes window end", ErrInvalidParams)
	case p.RewardPerStake == nil || p.RewardPerStake.IsZero():
		return fmt.Errorf("%w: reward ratio required", ErrInvalidParams)
	}
	return nil
}

// PoolState is the persisted pool record.
type PoolState struct {
	Active      bool
	Catastrophe bool
	TotalStake  *uint256.Int
	TotalReward *uint256.Int
	NextTokenID uint64
}

// Position is the single stake handle of an owner.
type Position struct {
	Owner   common.Address
	TokenID uint64
	Stake   *uint256.Int
	Reward  *uint256.Int
	Open    bool
}

// Pool is the staking engine.
type Pool struct {
	address common.Address
	params  Params
	state   engineState
	tokens  TokenLedger
	pauses  nativecommon.PauseView
	emitter events.Emitter
	log     *slog.Logger
	nowFn   func() time.Time
}

// New constructs a pool holding funds at address.
func New(address common.Address, params Params, tokens TokenLedger) (*Pool, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	params.RewardPerStake = params.RewardPerStake.Clone()
	return &Pool{
		address: address,
		params:  params,
		tokens:  tokens,
		emitter: events.NoopEmitter{},
		log:     slog.Default(),
		nowFn:   time.Now,
	}, nil
}

// SetState wires the engine to the external persistence layer.
func (p *Pool) SetState(state engineState) { p.state = state }

func (p *Pool) SetPauses(v nativecommon.PauseView) {
	if p == nil {
		return
	}
	p.pauses = v
}

func (p *Pool) SetEmitter(emitter events.Emitter) {
	if p == nil {
		return
	}
	if emitter == nil {
		p.emitter = events.NoopEmitter{}
		return
	}
	p.emitter = emitter
}

func (p *Pool) SetLogger(l *slog.Logger) {
	if p == nil || l == nil {
		return
	}
	p.log = l.With(slog.String("component", moduleName))
}

// SetClock overrides the time source for window and maturity checks.
func (p *Pool) SetClock(now func() time.Time) {
	if p == nil || now == nil {
		return
	}
	p.nowFn = now
}

// Params returns a copy of the pool parameters.
func (p *Pool) Params() Params {
	out := p.params
	out.RewardPerStake = p.params.RewardPerStake.Clone()
	return out
}

func (p *Pool) now() uint64 {
	ts := p.nowFn().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func positionKey(owner common.Address) []byte {
	return append([]byte("staking/position/"), owner.Bytes()...)
}

// State returns the pool record.
func (p *Pool) State() (PoolState, error) {
	if p == nil || p.state == nil {
		return PoolState{}, errNilState
	}
	var st PoolState
	if _, err := p.state.KVGet(poolKey, &st); err != nil {
		return PoolState{}, err
	}
	if st.TotalStake == nil {
		st.TotalStake = new(uint256.Int)
	}
	if st.TotalReward == nil {
		st.TotalReward = new(uint256.Int)
	}
	return st, nil
}

// Position returns the position of owner; ok is false when owner never
// minted.
func (p *Pool) Position(owner common.Address) (Position, bool, error) {
	if p == nil || p.state == nil {
		return Position{}, false, errNilState
	}
	var pos Position
	ok, err := p.state.KVGet(positionKey(owner), &pos)
	if err != nil || !ok {
		return Position{}, false, err
	}
	if pos.Stake == nil {
		pos.Stake = new(uint256.Int)
	}
	if pos.Reward == nil {
		pos.Reward = new(uint256.Int)
	}
	return pos, true, nil
}

// RewardFor computes the simple-interest reward of a total stake in reward
// token units.
func (p *Pool) RewardFor(stake *uint256.Int) (*uint256.Int, error) {
	interest, overflow := new(uint256.Int).MulDivOverflow(stake, uint256.NewInt(p.params.RateMilli), uint256.NewInt(RateDenominator))
	if overflow {
		return nil, ErrArithmetic
	}
	reward, overflow := new(uint256.Int).MulDivOverflow(interest, p.params.RewardPerStake, wad)
	if overflow {
		return nil, ErrArithmetic
	}
	return reward, nil
}

// Remaining reports how much of symbol the pool holds beyond what it already
// owes: committed rewards and, for the stake asset, principal.
func (p *Pool) Remaining(symbol string) (*uint256.Int, error) {
	st, err := p.State()
	if err != nil {
		return nil, err
	}
	return p.remaining(st, symbol, nil)
}

func (p *Pool) remaining(st PoolState, symbol string, exclude *uint256.Int) (*uint256.Int, error) {
	bal, err := p.tokens.BalanceOf(p.address, symbol)
	if err != nil {
		return nil, err
	}
	owed := new(uint256.Int)
	if strings.EqualFold(symbol, p.params.RewardAsset) {
		owed.Add(owed, st.TotalReward)
		if exclude != nil {
			owed.Sub(owed, exclude)
		}
	}
	if strings.EqualFold(symbol, p.params.StakeAsset) {
		owed.Add(owed, st.TotalStake)
	}
	if bal.Lt(owed) {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Sub(bal, owed), nil
}

// Mint adds amount to the caller's stake. The position reward is recomputed
// from the new total and must be covered by the pool's remaining reward
// balance.
func (p *Pool) Mint(call nativecommon.CallContext, amount *uint256.Int) (Position, error) {
	if p == nil || p.state == nil || p.tokens == nil {
		return Position{}, errNilState
	}
	if err := nativecommon.Guard(p.pauses, moduleName); err != nil {
		return Position{}, err
	}
	if amount == nil || amount.IsZero() {
		return Position{}, ErrInvalidAmount
	}
	st, err := p.State()
	if err != nil {
		return Position{}, err
	}
	if st.Catastrophe {
		return Position{}, ErrCatastropheActive
	}
	if !st.Active {
		return Position{}, ErrInactive
	}
	if now := p.now(); now < p.params.WindowStart || now > p.params.WindowEnd {
		return Position{}, fmt.Errorf("%w: %d not in [%d, %d]", ErrOutsideWindow, now, p.params.WindowStart, p.params.WindowEnd)
	}
	owner := call.Caller
	pos, exists, err := p.Position(owner)
	if err != nil {
		return Position{}, err
	}
	if exists && !pos.Open {
		return Position{}, ErrPositionClosed
	}
	if !exists {
		st.NextTokenID++
		pos = Position{Owner: owner, TokenID: st.NextTokenID, Stake: new(uint256.Int), Reward: new(uint256.Int), Open: true}
	}
	stake, overflow := new(uint256.Int).AddOverflow(pos.Stake, amount)
	if overflow {
		return Position{}, ErrArithmetic
	}
	reward, err := p.RewardFor(stake)
	if err != nil {
		return Position{}, err
	}
	if err := p.tokens.Transfer(owner, p.address, p.params.StakeAsset, amount); err != nil {
		return Position{}, err
	}
	st.TotalStake = new(uint256.Int).Add(st.TotalStake, amount)
	remaining, err := p.remaining(st, p.params.RewardAsset, pos.Reward)
	if err != nil {
		return Position{}, err
	}
	if remaining.Lt(reward) {
		p.log.Debug("stake reward over limit",
			slog.String("owner", owner.Hex()),
			slog.String("reward", reward.Dec()),
			slog.String("remaining", remaining.Dec()))
		return Position{}, fmt.Errorf("%w: reward %s, remaining %s", ErrOverLimit, reward.Dec(), remaining.Dec())
	}
	st.TotalReward = new(uint256.Int).Add(new(uint256.Int).Sub(st.TotalReward, pos.Reward), reward)
	pos.Stake = stake
	pos.Reward = reward
	if err := p.state.KVPut(positionKey(owner), pos); err != nil {
		return Position{}, err
	}
	if err := p.state.KVPut(poolKey, st); err != nil {
		return Position{}, err
	}
	p.emitter.Emit(events.StakeMinted{
		Owner:   owner,
		TokenID: pos.TokenID,
		Amount:  amount.Clone(),
		Stake:   stake.Clone(),
		Reward:  reward.Clone(),
	})
	metrics.IBCO().RecordStakingEvent("mint")
	p.log.Info("stake minted",
		slog.String("owner", owner.Hex()),
		slog.Uint64("token", pos.TokenID),
		slog.String("stake", stake.Dec()),
		slog.String("reward", reward.Dec()))
	return pos, nil
}

func (p *Pool) openPosition(owner common.Address) (Position, error) {
	pos, exists, err := p.Position(owner)
	if err != nil {
		return Position{}, err
	}
	if !exists {
		return Position{}, ErrNoPosition
	}
	if !pos.Open {
		return Position{}, ErrPositionClosed
	}
	return pos, nil
}

func (p *Pool) close(st PoolState, pos Position) error {
	st.TotalStake = new(uint256.Int).Sub(st.TotalStake, pos.Stake)
	st.TotalReward = new(uint256.Int).Sub(st.TotalReward, pos.Reward)
	pos.Open = false
	if err := p.state.KVPut(positionKey(pos.Owner), pos); err != nil {
		return err
	}
	return p.state.KVPut(poolKey, st)
}

// Burn pays the caller's principal and reward once the pool has matured and
// closes the position.
func (p *Pool) Burn(call nativecommon.CallContext) (Position, error) {
	if p == nil || p.state == nil || p.tokens == nil {
		return Position{}, errNilState
	}
	if err := nativecommon.Guard(p.pauses, moduleName); err != nil {
		return Position{}, err
	}
	st, err := p.State()
	if err != nil {
		return Position{}, err
	}
	if st.Catastrophe {
		return Position{}, ErrCatastropheActive
	}
	if now := p.now(); now < p.params.Maturity {
		return Position{}, fmt.Errorf("%w: matures at %d", ErrNotMature, p.params.Maturity)
	}
	pos, err := p.openPosition(call.Caller)
	if err != nil {
		return Position{}, err
	}
	if err := p.tokens.Transfer(p.address, pos.Owner, p.params.StakeAsset, pos.Stake); err != nil {
		return Position{}, err
	}
	if err := p.tokens.Transfer(p.address, pos.Owner, p.params.RewardAsset, pos.Reward); err != nil {
		return Position{}, err
	}
	if err := p.close(st, pos); err != nil {
		return Position{}, err
	}
	pos.Open = false
	p.emitter.Emit(events.StakeBurned{Owner: pos.Owner, TokenID: pos.TokenID, Principal: pos.Stake.Clone(), Reward: pos.Reward.Clone()})
	metrics.IBCO().RecordStakingEvent("burn")
	p.log.Info("stake burned", slog.String("owner", pos.Owner.Hex()), slog.Uint64("token", pos.TokenID))
	return pos, nil
}

// Activate opens the pool for minting.
func (p *Pool) Activate(call nativecommon.CallContext) error {
	if p == nil || p.state == nil {
		return errNilState
	}
	if err := call.Require(nativecommon.RoleAdmin, ErrNotAdmin); err != nil {
		return err
	}
	st, err := p.State()
	if err != nil {
		return err
	}
	if st.Catastrophe {
		return ErrCatastropheActive
	}
	if st.Active {
		return ErrAlreadyActive
	}
	st.Active = true
	if err := p.state.KVPut(poolKey, st); err != nil {
		return err
	}
	p.log.Info("staking pool activated", slog.String("caller", call.Caller.Hex()))
	return nil
}

// EnableCatastrophe halts the pool and opens principal-only withdrawals.
func (p *Pool) EnableCatastrophe(call nativecommon.CallContext) error {
	if p == nil || p.state == nil {
		return errNilState
	}
	if err := call.Require(nativecommon.RoleAdmin, ErrNotAdmin); err != nil {
		return err
	}
	st, err := p.State()
	if err != nil {
		return err
	}
	if st.Catastrophe {
		return ErrAlreadyCatastrophe
	}
	st.Catastrophe = true
	st.Active = false
	if err := p.state.KVPut(poolKey, st); err != nil {
		return err
	}
	p.emitter.Emit(events.CatastropheToggled{Module: moduleName, Enabled: true, Caller: call.Caller})
	metrics.IBCO().SetCatastrophe(moduleName, true)
	p.log.Info("catastrophe mode changed", slog.Bool("enabled", true), slog.String("caller", call.Caller.Hex()))
	return nil
}

// EmergencyWithdraw refunds the caller's raw principal without reward.
func (p *Pool) EmergencyWithdraw(call nativecommon.CallContext) (Position, error) {
	if p == nil || p.state == nil || p.tokens == nil {
		return Position{}, errNilState
	}
	st, err := p.State()
	if err != nil {
		return Position{}, err
	}
	if !st.Catastrophe {
		return Position{}, ErrNotCatastrophe
	}
	pos, err := p.openPosition(call.Caller)
	if err != nil {
		return Position{}, err
	}
	if err := p.tokens.Transfer(p.address, pos.Owner, p.params.StakeAsset, pos.Stake); err != nil {
		return Position{}, err
	}
	if err := p.close(st, pos); err != nil {
		return Position{}, err
	}
	pos.Open = false
	p.emitter.Emit(events.StakeEmergencyWithdraw{Owner: pos.Owner, TokenID: pos.TokenID, Principal: pos.Stake.Clone()})
	metrics.IBCO().RecordStakingEvent("emergency_withdraw")
	p.log.Info("stake emergency withdrawal", slog.String("owner", pos.Owner.Hex()), slog.Uint64("token", pos.TokenID))
	return pos, nil
}
