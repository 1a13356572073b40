package bank

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	coreerrors "ibco/core/errors"
	"ibco/core/events"
	"ibco/core/state"
	"ibco/storage"
)

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(e events.Event) { r.events = append(r.events, e) }

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func newLedger(t *testing.T) (*Ledger, *recordingEmitter) {
	t.Helper()
	l := NewLedger(state.NewManager(storage.NewMemDB()))
	rec := &recordingEmitter{}
	l.SetEmitter(rec)
	return l, rec
}

func TestMintAndTransfer(t *testing.T) {
	l, rec := newLedger(t)
	if err := l.Mint(alice, "usdc", uint256.NewInt(1_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Transfer(alice, bob, "USDC", uint256.NewInt(400)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceBal, _ := l.BalanceOf(alice, "USDC")
	bobBal, _ := l.BalanceOf(bob, " usdc ")
	if aliceBal.Uint64() != 600 || bobBal.Uint64() != 400 {
		t.Fatalf("unexpected balances: alice=%s bob=%s", aliceBal, bobBal)
	}
	supply, err := l.TotalSupply("USDC")
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Uint64() != 1_000 {
		t.Fatalf("unexpected supply %s", supply)
	}
	if len(rec.events) != 2 {
		t.Fatalf("expected two events, got %d", len(rec.events))
	}
	transfer, ok := rec.events[1].(events.Transfer)
	if !ok || transfer.Asset != "USDC" || transfer.Amount.Uint64() != 400 {
		t.Fatalf("unexpected transfer event %+v", rec.events[1])
	}
}

func TestTransferInsufficientBalance(t *testing.T) {
	l, _ := newLedger(t)
	if err := l.Mint(alice, "USDC", uint256.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	err := l.Transfer(alice, bob, "USDC", uint256.NewInt(11))
	if !errors.Is(err, ErrInsufficientBalance) || !errors.Is(err, coreerrors.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	bal, _ := l.BalanceOf(alice, "USDC")
	if bal.Uint64() != 10 {
		t.Fatalf("balance changed on failure: %s", bal)
	}
}

func TestMintOverflow(t *testing.T) {
	l, _ := newLedger(t)
	max := new(uint256.Int).SetAllOne()
	if err := l.Mint(alice, "IBCO", max); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Mint(bob, "IBCO", uint256.NewInt(1)); !errors.Is(err, ErrSupplyOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestRejectsEmptySymbol(t *testing.T) {
	l, _ := newLedger(t)
	if _, err := l.BalanceOf(alice, "  "); !errors.Is(err, ErrInvalidAsset) {
		t.Fatalf("expected invalid asset, got %v", err)
	}
}
