package common

import (
	"github.com/ethereum/go-ethereum/common"

	coreerrors "ibco/core/errors"
)

const (
	// RoleAdmin governs registry mutation, catastrophe toggles and funding.
	RoleAdmin = "ROLE_ADMIN"
	// RoleOffering marks the offering entry point allowed to run the mutating
	// issuance calculation.
	RoleOffering = "ROLE_OFFERING"
	// RoleCurveUpdater may persist the bonding curve cursor.
	RoleCurveUpdater = "ROLE_CURVE_UPDATER"
	// RoleBondWhitelist may open bond positions.
	RoleBondWhitelist = "ROLE_BOND_WHITELIST"
)

// ErrNoAuthority is returned when a call context carries no role view.
var ErrNoAuthority = coreerrors.New(coreerrors.KindUnauthorized, "auth: no authority configured")

// RoleView answers role membership queries.
type RoleView interface {
	HasRole(role string, addr []byte) bool
}

// CallContext identifies the account invoking a mutating operation together
// with the authority used to check its roles. It is passed explicitly into
// every mutating call.
type CallContext struct {
	Caller common.Address
	Roles  RoleView
}

// NewCallContext binds a caller to a role view.
func NewCallContext(caller common.Address, roles RoleView) CallContext {
	return CallContext{Caller: caller, Roles: roles}
}

// HasRole reports whether the caller holds role.
func (c CallContext) HasRole(role string) bool {
	if c.Roles == nil {
		return false
	}
	return c.Roles.HasRole(role, c.Caller.Bytes())
}

// IsOwner reports whether the caller is addr.
func (c CallContext) IsOwner(addr common.Address) bool {
	return c.Caller == addr
}

// Require returns denied unless the caller holds role.
func (c CallContext) Require(role string, denied error) error {
	if c.Roles == nil {
		return ErrNoAuthority
	}
	if !c.HasRole(role) {
		return denied
	}
	return nil
}
