package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	TypeLiquidityDeposited     = "liquidity.deposited"
	TypeLiquidityFeesCollected = "liquidity.fees.collected"
)

// LiquidityDeposited records a bonding deposit placed into the pool.
type LiquidityDeposited struct {
	Owner       common.Address
	LowerTick   int64
	UpperTick   int64
	Widened     bool
	Clamped     bool
	UsedA       *uint256.Int
	UsedB       *uint256.Int
	PositionRef uint64
}

// EventType implements the Event interface.
func (LiquidityDeposited) EventType() string { return TypeLiquidityDeposited }

// LiquidityFeesCollected records fees withdrawn from a pool position.
type LiquidityFeesCollected struct {
	PositionRef uint64
	FeeA        *uint256.Int
	FeeB        *uint256.Int
	Recipient   common.Address
}

// EventType implements the Event interface.
func (LiquidityFeesCollected) EventType() string { return TypeLiquidityFeesCollected }
