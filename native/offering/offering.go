package offering

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	coreerrors "ibco/core/errors"
	"ibco/core/events"
	"ibco/native/assets"
	nativecommon "ibco/native/common"
	"ibco/observability/metrics"
)

const moduleName = "offering"

var (
	ErrSlippage = coreerrors.New(coreerrors.KindInvalidRange, "offering: issued units below minimum")
	errNilState = fmt.Errorf("offering: state not configured")
)

var wholeEUR = uint256.NewInt(1_000_000_000_000_000_000)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// TokenLedger moves and creates token balances.
type TokenLedger interface {
	Transfer(from, to common.Address, symbol string, amount *uint256.Int) error
	Mint(to common.Address, symbol string, amount *uint256.Int) error
}

// Config holds the accounts and limits of the offering.
type Config struct {
	// Address is the offering contract account; it must hold ROLE_OFFERING.
	Address common.Address
	// Treasury receives the inbound assets.
	Treasury common.Address
	// UnitSymbol is the ledger symbol of the issued token.
	UnitSymbol string
	// Quota bounds purchases per buyer; amounts are whole EUR.
	Quota nativecommon.Quota
}

// Receipt summarises a settled purchase.
type Receipt struct {
	ID    string
	Buyer common.Address
	Result
}

// Offering is the purchase entry point.
type Offering struct {
	cfg     Config
	calc    *Calculator
	ledger  TokenLedger
	state   engineState
	pauses  nativecommon.PauseView
	emitter events.Emitter
	log     *slog.Logger
	nowFn   func() time.Time
}

// New constructs an offering around a calculator.
func New(cfg Config, calc *Calculator, ledger TokenLedger) *Offering {
	cfg.UnitSymbol = assets.NormalizeSymbol(cfg.UnitSymbol)
	return &Offering{
		cfg:     cfg,
		calc:    calc,
		ledger:  ledger,
		emitter: events.NoopEmitter{},
		log:     slog.Default(),
		nowFn:   time.Now,
	}
}

// SetState wires the quota counters to the external persistence layer.
func (o *Offering) SetState(state engineState) { o.state = state }

func (o *Offering) SetPauses(p nativecommon.PauseView) {
	if o == nil {
		return
	}
	o.pauses = p
}

func (o *Offering) SetEmitter(emitter events.Emitter) {
	if o == nil {
		return
	}
	if emitter == nil {
		o.emitter = events.NoopEmitter{}
		return
	}
	o.emitter = emitter
}

func (o *Offering) SetLogger(l *slog.Logger) {
	if o == nil || l == nil {
		return
	}
	o.log = l.With(slog.String("component", moduleName))
}

// SetClock overrides the time source used for quota epochs.
func (o *Offering) SetClock(now func() time.Time) {
	if o == nil || now == nil {
		return
	}
	o.nowFn = now
}

// Calculator exposes the underlying calculator.
func (o *Offering) Calculator() *Calculator { return o.calc }

func quotaKey(addr common.Address) []byte {
	return append([]byte("offering/quota/"), addr.Bytes()...)
}

func (o *Offering) loadQuota(addr common.Address) (nativecommon.QuotaNow, error) {
	var q nativecommon.QuotaNow
	if _, err := o.state.KVGet(quotaKey(addr), &q); err != nil {
		return nativecommon.QuotaNow{}, err
	}
	return q, nil
}

// Buy takes amountIn of the asset from the caller, issues units against the
// curve and mints them to the caller. It fails with ErrSlippage when fewer
// than minUnits would be issued.
func (o *Offering) Buy(ctx context.Context, call nativecommon.CallContext, symbol string, amountIn, minUnits *uint256.Int) (Receipt, error) {
	if o == nil || o.calc == nil || o.ledger == nil || o.state == nil {
		return Receipt{}, errNilState
	}
	if err := nativecommon.Guard(o.pauses, moduleName); err != nil {
		return Receipt{}, err
	}
	if amountIn == nil || amountIn.IsZero() {
		return Receipt{}, ErrInvalidAmount
	}
	buyer := call.Caller
	entry, err := o.calc.registry.Get(symbol)
	if err != nil {
		return Receipt{}, err
	}

	epoch := o.cfg.Quota.EpochOf(uint64(o.nowFn().Unix()))
	usage, err := o.loadQuota(buyer)
	if err != nil {
		return Receipt{}, err
	}
	usage, err = nativecommon.CheckQuota(o.cfg.Quota, epoch, usage, 1, 0)
	if err != nil {
		return Receipt{}, err
	}

	if err := o.ledger.Transfer(buyer, o.cfg.Treasury, entry.Symbol, amountIn); err != nil {
		return Receipt{}, err
	}
	result, err := o.calc.Calculate(ctx, nativecommon.NewCallContext(o.cfg.Address, call.Roles), amountIn, entry.Symbol)
	if err != nil {
		return Receipt{}, err
	}
	if minUnits != nil && result.Units.Lt(minUnits) {
		o.log.Debug("purchase below minimum",
			slog.String("buyer", buyer.Hex()),
			slog.String("units", result.Units.Dec()),
			slog.String("min", minUnits.Dec()))
		return Receipt{}, fmt.Errorf("%w: got %s, want %s", ErrSlippage, result.Units.Dec(), minUnits.Dec())
	}

	spent := new(uint256.Int).Div(result.EUR, wholeEUR)
	if !spent.IsUint64() {
		return Receipt{}, nativecommon.ErrQuotaCounterOverflow
	}
	usage, err = nativecommon.CheckQuota(o.cfg.Quota, epoch, usage, 0, spent.Uint64())
	if err != nil {
		return Receipt{}, err
	}
	if err := o.state.KVPut(quotaKey(buyer), usage); err != nil {
		return Receipt{}, err
	}

	if err := o.ledger.Mint(buyer, o.cfg.UnitSymbol, result.Units); err != nil {
		return Receipt{}, err
	}

	receipt := Receipt{ID: uuid.NewString(), Buyer: buyer, Result: result}
	o.emitter.Emit(events.OfferingPurchase{
		ReceiptID: receipt.ID,
		Buyer:     buyer,
		Asset:     entry.Symbol,
		AmountIn:  amountIn.Clone(),
		EUR:       result.EUR.Clone(),
		Units:     result.Units.Clone(),
	})
	metrics.IBCO().RecordPurchase(entry.Symbol, result.Units)
	o.log.Info("purchase settled",
		slog.String("receipt", receipt.ID),
		slog.String("buyer", buyer.Hex()),
		slog.String("asset", entry.Symbol),
		slog.String("units", result.Units.Dec()))
	return receipt, nil
}
