package bonds

import (
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"

	"ibco/core/events"
	nativecommon "ibco/native/common"
	"ibco/observability/metrics"
)

// CatastropheFundsRequired sums the principal custody owes across all owners:
// active positions plus matured principal not yet claimed.
func (l *Ledger) CatastropheFundsRequired() (Requirement, error) {
	if l == nil || l.state == nil {
		return Requirement{}, errNilState
	}
	st, err := l.State()
	if err != nil {
		return Requirement{}, err
	}
	req := Requirement{AssetA: new(uint256.Int), AssetB: new(uint256.Int)}
	for _, owner := range st.Owners {
		book, _, err := l.loadBook(owner)
		if err != nil {
			return Requirement{}, err
		}
		a, b, err := unsettledPrincipal(book)
		if err != nil {
			return Requirement{}, err
		}
		if err := addInto(req.AssetA, a); err != nil {
			return Requirement{}, err
		}
		if err := addInto(req.AssetB, b); err != nil {
			return Requirement{}, err
		}
	}
	return req, nil
}

func unsettledPrincipal(book *Book) (*uint256.Int, *uint256.Int, error) {
	a := book.Accrual.PrincipalA.Clone()
	b := book.Accrual.PrincipalB.Clone()
	for i := book.FirstActive; i < uint64(len(book.Positions)); i++ {
		pos := book.Positions[i]
		if pos.state() != StatusActive {
			continue
		}
		if err := addInto(a, pos.PrincipalA); err != nil {
			return nil, nil, err
		}
		if err := addInto(b, pos.PrincipalB); err != nil {
			return nil, nil, err
		}
	}
	return a, b, nil
}

func (l *Ledger) custodyBalance(symbol string) (*uint256.Int, error) {
	return l.tokens.BalanceOf(l.cfg.Address, symbol)
}

// EnableCatastrophe switches the ledger to principal-only withdrawals. It
// fails unless custody covers CatastropheFundsRequired in both assets.
func (l *Ledger) EnableCatastrophe(call nativecommon.CallContext) error {
	if l == nil || l.state == nil || l.tokens == nil {
		return errNilState
	}
	if err := call.Require(nativecommon.RoleAdmin, ErrNotAdmin); err != nil {
		return err
	}
	st, err := l.State()
	if err != nil {
		return err
	}
	if st.Catastrophe {
		return ErrAlreadyCatastrophe
	}
	req, err := l.CatastropheFundsRequired()
	if err != nil {
		return err
	}
	for _, check := range []struct {
		symbol string
		need   *uint256.Int
	}{{l.cfg.AssetA, req.AssetA}, {l.cfg.AssetB, req.AssetB}} {
		have, err := l.custodyBalance(check.symbol)
		if err != nil {
			return err
		}
		if have.Lt(check.need) {
			l.log.Debug("catastrophe enable refused",
				slog.String("asset", check.symbol),
				slog.String("have", have.Dec()),
				slog.String("need", check.need.Dec()))
			return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, check.symbol, have.Dec(), check.need.Dec())
		}
	}
	return l.setCatastrophe(st, true, call)
}

// DisableCatastrophe returns the ledger to normal operation.
func (l *Ledger) DisableCatastrophe(call nativecommon.CallContext) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := call.Require(nativecommon.RoleAdmin, ErrNotAdmin); err != nil {
		return err
	}
	st, err := l.State()
	if err != nil {
		return err
	}
	if !st.Catastrophe {
		return ErrNotCatastrophe
	}
	return l.setCatastrophe(st, false, call)
}

func (l *Ledger) setCatastrophe(st LedgerState, enabled bool, call nativecommon.CallContext) error {
	st.Catastrophe = enabled
	if err := l.putState(st); err != nil {
		return err
	}
	l.emitter.Emit(events.CatastropheToggled{Module: moduleName, Enabled: enabled, Caller: call.Caller})
	metrics.IBCO().SetCatastrophe(moduleName, enabled)
	l.log.Info("catastrophe mode changed", slog.Bool("enabled", enabled), slog.String("caller", call.Caller.Hex()))
	return nil
}

// EmergencyWithdraw refunds the caller's unsettled principal without profit
// and closes every open position. Only available in catastrophe mode.
func (l *Ledger) EmergencyWithdraw(call nativecommon.CallContext) (Settlement, error) {
	if l == nil || l.state == nil || l.tokens == nil {
		return Settlement{}, errNilState
	}
	st, err := l.State()
	if err != nil {
		return Settlement{}, err
	}
	if !st.Catastrophe {
		return Settlement{}, ErrNotCatastrophe
	}
	owner := call.Caller
	book, exists, err := l.loadBook(owner)
	if err != nil {
		return Settlement{}, err
	}
	if !exists {
		return Settlement{}, ErrNothingToClaim
	}
	a, b, err := unsettledPrincipal(book)
	if err != nil {
		return Settlement{}, err
	}
	if a.IsZero() && b.IsZero() {
		return Settlement{}, ErrNothingToClaim
	}
	if err := l.tokens.Transfer(l.cfg.Address, owner, l.cfg.AssetA, a); err != nil {
		return Settlement{}, err
	}
	if err := l.tokens.Transfer(l.cfg.Address, owner, l.cfg.AssetB, b); err != nil {
		return Settlement{}, err
	}
	closed := 0
	for i := range book.Positions {
		switch book.Positions[i].state() {
		case StatusActive, StatusMatured:
			book.Positions[i].Status = uint8(StatusClaimed)
			closed++
		}
	}
	book.FirstActive = uint64(len(book.Positions))
	book.Accrual = newAccrual()
	if err := l.putBook(book); err != nil {
		return Settlement{}, err
	}
	l.emitter.Emit(events.BondEmergencyWithdraw{Owner: owner, PrincipalA: a.Clone(), PrincipalB: b.Clone(), Positions: closed})
	metrics.IBCO().RecordBondEvent("emergency_withdraw")
	l.log.Info("bond emergency withdrawal", slog.String("owner", owner.Hex()), slog.Int("positions", closed))
	return Settlement{
		PrincipalA: a,
		PrincipalB: b,
		ProfitEUR:  new(uint256.Int),
		Reward:     new(uint256.Int),
		Positions:  closed,
	}, nil
}
