// Package assets keeps the list of assets accepted by the offering together
// with the oracle used to price each of them.
package assets

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "ibco/core/errors"
	"ibco/core/events"
	nativecommon "ibco/native/common"
	"ibco/native/rates"
)

const moduleName = "assets"

var (
	ErrDuplicateAsset = coreerrors.New(coreerrors.KindAlreadyInState, "assets: duplicate asset")
	ErrAssetNotFound  = coreerrors.New(coreerrors.KindNotFound, "assets: asset not found")
	ErrUnauthorized   = coreerrors.New(coreerrors.KindUnauthorized, "assets: caller is not admin")
	ErrInvalidEntry   = coreerrors.New(coreerrors.KindInvalid, "assets: invalid entry")
	errNilState       = fmt.Errorf("assets: state not configured")
)

var listKey = []byte("assets/list")

type registryState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Entry describes an accepted asset.
type Entry struct {
	Symbol         string
	Token          common.Address
	TokenDecimals  uint8
	Oracle         common.Address
	OracleDecimals uint8
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Validate checks the entry is usable for conversion.
func (e Entry) Validate() error {
	if NormalizeSymbol(e.Symbol) == "" {
		return fmt.Errorf("%w: symbol required", ErrInvalidEntry)
	}
	if e.Token == (common.Address{}) {
		return fmt.Errorf("%w: token address required", ErrInvalidEntry)
	}
	if e.Oracle == (common.Address{}) {
		return fmt.Errorf("%w: oracle address required", ErrInvalidEntry)
	}
	if e.TokenDecimals > rates.MaxDecimals || e.OracleDecimals > rates.MaxDecimals {
		return fmt.Errorf("%w: decimals above %d", ErrInvalidEntry, rates.MaxDecimals)
	}
	return nil
}

// Registry is an insertion ordered list of entries unique by symbol. Lookups
// scan the list; the registry is small and admin controlled.
type Registry struct {
	state   registryState
	emitter events.Emitter
	pauses  nativecommon.PauseView
	log     *slog.Logger
}

func NewRegistry() *Registry {
	return &Registry{emitter: events.NoopEmitter{}, log: slog.Default()}
}

// SetState wires the registry to the external persistence layer.
func (r *Registry) SetState(state registryState) { r.state = state }

func (r *Registry) SetPauses(p nativecommon.PauseView) {
	if r == nil {
		return
	}
	r.pauses = p
}

func (r *Registry) SetEmitter(emitter events.Emitter) {
	if r == nil {
		return
	}
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func (r *Registry) SetLogger(l *slog.Logger) {
	if r == nil || l == nil {
		return
	}
	r.log = l.With(slog.String("component", moduleName))
}

func (r *Registry) load() ([]Entry, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	var list []Entry
	if _, err := r.state.KVGet(listKey, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func indexOf(list []Entry, symbol string) int {
	for i := range list {
		if list[i].Symbol == symbol {
			return i
		}
	}
	return -1
}

func (r *Registry) authorize(ctx nativecommon.CallContext) error {
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return err
	}
	return ctx.Require(nativecommon.RoleAdmin, ErrUnauthorized)
}

// Add registers a new asset.
func (r *Registry) Add(ctx nativecommon.CallContext, entry Entry) error {
	if err := r.authorize(ctx); err != nil {
		return err
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	entry.Symbol = NormalizeSymbol(entry.Symbol)
	list, err := r.load()
	if err != nil {
		return err
	}
	if indexOf(list, entry.Symbol) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateAsset, entry.Symbol)
	}
	list = append(list, entry)
	if err := r.state.KVPut(listKey, list); err != nil {
		return err
	}
	r.emitter.Emit(events.AssetAdded{
		Symbol:         entry.Symbol,
		Token:          entry.Token,
		TokenDecimals:  entry.TokenDecimals,
		Oracle:         entry.Oracle,
		OracleDecimals: entry.OracleDecimals,
	})
	r.log.Info("asset added", slog.String("symbol", entry.Symbol), slog.String("token", entry.Token.Hex()))
	return nil
}

// Remove deletes an asset, preserving the order of the remaining entries.
func (r *Registry) Remove(ctx nativecommon.CallContext, symbol string) error {
	if err := r.authorize(ctx); err != nil {
		return err
	}
	sym := NormalizeSymbol(symbol)
	list, err := r.load()
	if err != nil {
		return err
	}
	idx := indexOf(list, sym)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrAssetNotFound, sym)
	}
	list = append(list[:idx], list[idx+1:]...)
	if err := r.state.KVPut(listKey, list); err != nil {
		return err
	}
	r.emitter.Emit(events.NewAssetRemoved(sym))
	r.log.Info("asset removed", slog.String("symbol", sym))
	return nil
}

// Get returns the entry registered under symbol.
func (r *Registry) Get(symbol string) (Entry, error) {
	sym := NormalizeSymbol(symbol)
	list, err := r.load()
	if err != nil {
		return Entry{}, err
	}
	idx := indexOf(list, sym)
	if idx < 0 {
		return Entry{}, fmt.Errorf("%w: %s", ErrAssetNotFound, sym)
	}
	return list[idx], nil
}

// List returns every entry in insertion order.
func (r *Registry) List() ([]Entry, error) {
	list, err := r.load()
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Entry{}
	}
	return list, nil
}

// Seed registers entries that are not yet present. Used at genesis from the
// asset manifest; existing symbols are left untouched.
func (r *Registry) Seed(ctx nativecommon.CallContext, entries []Entry) (int, error) {
	added := 0
	for _, entry := range entries {
		if _, err := r.Get(entry.Symbol); err == nil {
			continue
		}
		if err := r.Add(ctx, entry); err != nil {
			return added, fmt.Errorf("seed %s: %w", NormalizeSymbol(entry.Symbol), err)
		}
		added++
	}
	return added, nil
}
