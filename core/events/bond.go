package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	TypeBondStarted           = "bond.started"
	TypeBondMatured           = "bond.matured"
	TypeBondClaimed           = "bond.claimed"
	TypeBondEmergencyWithdraw = "bond.emergency_withdraw"
	TypeBondRewardsFunded     = "bond.rewards.funded"
	// TypeCatastropheToggled is emitted by both the bond ledger and the staking
	// pool when emergency mode changes.
	TypeCatastropheToggled = "catastrophe.toggled"
)

// BondStarted captures a newly recorded bond position.
type BondStarted struct {
	ID          uint64
	Owner       common.Address
	PrincipalA  *uint256.Int
	PrincipalB  *uint256.Int
	RateBps     uint64
	Start       uint64
	Maturity    uint64
	PositionRef uint64
}

// EventType implements the Event interface.
func (BondStarted) EventType() string { return TypeBondStarted }

// BondMatured records a position moving into the claimable accrual.
type BondMatured struct {
	ID      uint64
	Owner   common.Address
	ProfitA *uint256.Int
	ProfitB *uint256.Int
}

// EventType implements the Event interface.
func (BondMatured) EventType() string { return TypeBondMatured }

// BondClaimed summarises a settled claim.
type BondClaimed struct {
	Owner      common.Address
	PrincipalA *uint256.Int
	PrincipalB *uint256.Int
	ProfitEUR  *uint256.Int
	Reward     *uint256.Int
}

// EventType implements the Event interface.
func (BondClaimed) EventType() string { return TypeBondClaimed }

// BondEmergencyWithdraw records a principal-only refund in catastrophe mode.
type BondEmergencyWithdraw struct {
	Owner      common.Address
	PrincipalA *uint256.Int
	PrincipalB *uint256.Int
	Positions  int
}

// EventType implements the Event interface.
func (BondEmergencyWithdraw) EventType() string { return TypeBondEmergencyWithdraw }

// BondRewardsFunded records an increase of the distributable reward supply.
type BondRewardsFunded struct {
	Amount *uint256.Int
	Supply *uint256.Int
}

// EventType implements the Event interface.
func (BondRewardsFunded) EventType() string { return TypeBondRewardsFunded }

// CatastropheToggled records emergency mode transitions.
type CatastropheToggled struct {
	Module  string
	Enabled bool
	Caller  common.Address
}

// EventType implements the Event interface.
func (CatastropheToggled) EventType() string { return TypeCatastropheToggled }
