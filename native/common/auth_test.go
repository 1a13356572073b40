package common

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	coreerrors "ibco/core/errors"
)

type staticRoles map[string][]common.Address

func (s staticRoles) HasRole(role string, addr []byte) bool {
	for _, member := range s[role] {
		if member == common.BytesToAddress(addr) {
			return true
		}
	}
	return false
}

var errDenied = coreerrors.New(coreerrors.KindUnauthorized, "test: denied")

func TestCallContextRequire(t *testing.T) {
	admin := common.HexToAddress("0x0a")
	roles := staticRoles{RoleAdmin: {admin}}

	if err := NewCallContext(admin, roles).Require(RoleAdmin, errDenied); err != nil {
		t.Fatalf("expected admin to pass, got %v", err)
	}
	err := NewCallContext(common.HexToAddress("0x0b"), roles).Require(RoleAdmin, errDenied)
	if !errors.Is(err, errDenied) || !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("expected denied error, got %v", err)
	}
	if err := (CallContext{Caller: admin}).Require(RoleAdmin, errDenied); !errors.Is(err, ErrNoAuthority) {
		t.Fatalf("expected ErrNoAuthority, got %v", err)
	}
}

func TestCallContextIsOwner(t *testing.T) {
	owner := common.HexToAddress("0x0c")
	ctx := NewCallContext(owner, nil)
	if !ctx.IsOwner(owner) || ctx.IsOwner(common.HexToAddress("0x0d")) {
		t.Fatalf("unexpected ownership result")
	}
}

func TestGuard(t *testing.T) {
	if err := Guard(Pauses{"offering": true}, "offering"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
	if err := Guard(Pauses{"offering": true}, "bonds"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Guard(nil, "bonds"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPausesModulesSorted(t *testing.T) {
	got := Pauses{"staking": true, "bonds": true, "offering": false}.Modules()
	if len(got) != 2 || got[0] != "bonds" || got[1] != "staking" {
		t.Fatalf("unexpected paused modules %v", got)
	}
}
