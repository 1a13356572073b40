package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	TypeStakeMinted            = "stake.minted"
	TypeStakeBurned            = "stake.burned"
	TypeStakeEmergencyWithdraw = "stake.emergency_withdraw"
)

// StakeMinted captures a deposit into the staking pool.
type StakeMinted struct {
	Owner   common.Address
	TokenID uint64
	Amount  *uint256.Int
	Stake   *uint256.Int
	Reward  *uint256.Int
}

// EventType implements the Event interface.
func (StakeMinted) EventType() string { return TypeStakeMinted }

// StakeBurned records a matured position being paid out and closed.
type StakeBurned struct {
	Owner     common.Address
	TokenID   uint64
	Principal *uint256.Int
	Reward    *uint256.Int
}

// EventType implements the Event interface.
func (StakeBurned) EventType() string { return TypeStakeBurned }

// StakeEmergencyWithdraw records a principal-only refund.
type StakeEmergencyWithdraw struct {
	Owner     common.Address
	TokenID   uint64
	Principal *uint256.Int
}

// EventType implements the Event interface.
func (StakeEmergencyWithdraw) EventType() string { return TypeStakeEmergencyWithdraw }
