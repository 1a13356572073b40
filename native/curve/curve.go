// Package curve implements the bucketed discount bonding curve that prices
// issuance against cumulative supply.
package curve

import (
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"

	coreerrors "ibco/core/errors"
	"ibco/core/events"
	nativecommon "ibco/native/common"
	"ibco/observability/metrics"
)

const moduleName = "curve"

var (
	ErrUnauthorized = coreerrors.New(coreerrors.KindUnauthorized, "curve: caller is not the curve updater")
	errNilState     = fmt.Errorf("curve: state not configured")
)

var stateKey = []byte("curve/state")

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// State is the persisted cursor of the curve. CurrentBucketIndex always equals
// floor(TotalIssued / BucketSize) clamped to the last bucket.
type State struct {
	CurrentBucketIndex uint64
	CurrentBucketPrice *uint256.Int
	TotalIssued        *uint256.Int
}

// Curve owns the bucket cursor and is the only writer of it.
type Curve struct {
	state    engineState
	schedule *Schedule
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	log      *slog.Logger
}

// New constructs a curve engine over the provided schedule.
func New(schedule *Schedule) *Curve {
	return &Curve{
		schedule: schedule,
		emitter:  events.NoopEmitter{},
		log:      slog.Default(),
	}
}

// SetState wires the engine to the external persistence layer.
func (c *Curve) SetState(state engineState) { c.state = state }

func (c *Curve) SetPauses(p nativecommon.PauseView) {
	if c == nil {
		return
	}
	c.pauses = p
}

// SetEmitter configures the event emitter.
func (c *Curve) SetEmitter(emitter events.Emitter) {
	if c == nil {
		return
	}
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

func (c *Curve) SetLogger(l *slog.Logger) {
	if c == nil || l == nil {
		return
	}
	c.log = l.With(slog.String("component", moduleName))
}

// Schedule exposes the pricing schedule.
func (c *Curve) Schedule() *Schedule { return c.schedule }

// State returns the cached cursor, initialised to bucket 0 before the first
// issuance.
func (c *Curve) State() (State, error) {
	if c == nil || c.state == nil {
		return State{}, errNilState
	}
	var st State
	ok, err := c.state.KVGet(stateKey, &st)
	if err != nil {
		return State{}, err
	}
	if ok {
		return st, nil
	}
	price, err := c.schedule.PriceOfBucket(0)
	if err != nil {
		return State{}, err
	}
	return State{CurrentBucketPrice: price, TotalIssued: new(uint256.Int)}, nil
}

// Issue converts eurosIn into units against the persisted cursor and advances
// it. Only holders of the curve updater role may call it.
func (c *Curve) Issue(ctx nativecommon.CallContext, eurosIn *uint256.Int) (Issuance, error) {
	if c == nil || c.state == nil {
		return Issuance{}, errNilState
	}
	if err := nativecommon.Guard(c.pauses, moduleName); err != nil {
		return Issuance{}, err
	}
	if err := ctx.Require(nativecommon.RoleCurveUpdater, ErrUnauthorized); err != nil {
		c.log.Debug("curve issue rejected", slog.String("caller", ctx.Caller.Hex()), slog.Any("error", err))
		return Issuance{}, err
	}
	current, err := c.State()
	if err != nil {
		return Issuance{}, err
	}
	out, err := c.schedule.IssueForSpend(eurosIn, current.TotalIssued)
	if err != nil {
		return Issuance{}, err
	}
	next := State{
		CurrentBucketIndex: out.BucketIndex,
		CurrentBucketPrice: out.BucketPrice.Clone(),
		TotalIssued:        out.EndSupply.Clone(),
	}
	if err := c.state.KVPut(stateKey, next); err != nil {
		return Issuance{}, err
	}
	if next.CurrentBucketIndex != current.CurrentBucketIndex {
		c.emitter.Emit(events.CurveBucketAdvanced{
			FromIndex: current.CurrentBucketIndex,
			ToIndex:   next.CurrentBucketIndex,
			Price:     next.CurrentBucketPrice.Clone(),
			Issued:    next.TotalIssued.Clone(),
		})
		c.log.Info("curve bucket advanced",
			slog.Uint64("from", current.CurrentBucketIndex),
			slog.Uint64("to", next.CurrentBucketIndex),
			slog.String("price", FormatPrice(next.CurrentBucketPrice)))
	}
	metrics.IBCO().SetBucket(next.CurrentBucketIndex, next.CurrentBucketPrice)
	return out, nil
}

// Quote runs the walk against an explicit supply snapshot and never persists.
func (c *Curve) Quote(eurosIn, supplySnapshot *uint256.Int) (Issuance, error) {
	if c == nil || c.schedule == nil {
		return Issuance{}, errNilState
	}
	return c.schedule.IssueForSpend(eurosIn, supplySnapshot)
}
