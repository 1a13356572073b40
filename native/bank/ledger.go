// Package bank implements the fungible token ledger consumed by the offering,
// bond and staking engines: balances per (account, asset) plus the total
// supply of every asset.
package bank

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	coreerrors "ibco/core/errors"
	"ibco/core/events"
)

var (
	ErrInsufficientBalance = coreerrors.New(coreerrors.KindInsufficientBalance, "bank: insufficient balance")
	ErrInvalidAmount       = coreerrors.New(coreerrors.KindInvalid, "bank: invalid amount")
	ErrInvalidAsset        = coreerrors.New(coreerrors.KindInvalid, "bank: asset symbol required")
	ErrSupplyOverflow      = coreerrors.New(coreerrors.KindArithmeticBounds, "bank: supply overflow")
)

type ledgerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Ledger tracks balances in the shared state.
type Ledger struct {
	state   ledgerState
	emitter events.Emitter
}

// NewLedger constructs a ledger over the provided state.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used for transfers and mints.
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

func normalizeSymbol(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", ErrInvalidAsset
	}
	return trimmed, nil
}

func balanceKey(symbol string, addr common.Address) []byte {
	return []byte(fmt.Sprintf("bank/balance/%s/%x", symbol, addr.Bytes()))
}

func supplyKey(symbol string) []byte {
	return []byte("bank/supply/" + symbol)
}

func (l *Ledger) load(key []byte) (*uint256.Int, error) {
	if l == nil || l.state == nil {
		return nil, fmt.Errorf("bank: state not configured")
	}
	value := new(uint256.Int)
	ok, err := l.state.KVGet(key, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return value, nil
}

func (l *Ledger) store(key []byte, value *uint256.Int) error {
	return l.state.KVPut(key, value)
}

// BalanceOf returns the balance of addr in the given asset.
func (l *Ledger) BalanceOf(addr common.Address, symbol string) (*uint256.Int, error) {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	return l.load(balanceKey(sym, addr))
}

// TotalSupply returns the amount of the asset minted so far.
func (l *Ledger) TotalSupply(symbol string) (*uint256.Int, error) {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	return l.load(supplyKey(sym))
}

// Transfer moves amount of the asset between two accounts. Zero transfers are
// accepted and leave balances untouched.
func (l *Ledger) Transfer(from, to common.Address, symbol string, amount *uint256.Int) error {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if amount == nil {
		return ErrInvalidAmount
	}
	if amount.IsZero() || from == to {
		return nil
	}
	fromBal, err := l.load(balanceKey(sym, from))
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBal.Dec(), sym, amount.Dec())
	}
	toBal, err := l.load(balanceKey(sym, to))
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(toBal, amount)
	if overflow {
		return ErrSupplyOverflow
	}
	if err := l.store(balanceKey(sym, from), new(uint256.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	if err := l.store(balanceKey(sym, to), next); err != nil {
		return err
	}
	l.emitter.Emit(events.NewTransfer(sym, from, to, amount.Clone()))
	return nil
}

// Mint creates amount of the asset and credits it to the recipient.
func (l *Ledger) Mint(to common.Address, symbol string, amount *uint256.Int) error {
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if amount == nil {
		return ErrInvalidAmount
	}
	if amount.IsZero() {
		return nil
	}
	supply, err := l.load(supplyKey(sym))
	if err != nil {
		return err
	}
	nextSupply, overflow := new(uint256.Int).AddOverflow(supply, amount)
	if overflow {
		return ErrSupplyOverflow
	}
	bal, err := l.load(balanceKey(sym, to))
	if err != nil {
		return err
	}
	if err := l.store(supplyKey(sym), nextSupply); err != nil {
		return err
	}
	// balance <= supply, so the addition cannot overflow once supply did not
	if err := l.store(balanceKey(sym, to), new(uint256.Int).Add(bal, amount)); err != nil {
		return err
	}
	l.emitter.Emit(events.Mint{Asset: sym, To: to, Amount: amount.Clone()})
	return nil
}
