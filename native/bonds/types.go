// Package bonds keeps the per-owner bond positions opened by bonding
// deposits, accrues their profit at maturity, settles claims against a
// capped reward supply and implements the catastrophe drain.
package bonds

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	coreerrors "ibco/core/errors"
)

// Status of a position. Every position is in exactly one of them.
type Status uint8

const (
	StatusActive Status = iota + 1
	StatusMatured
	StatusClaimed
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusMatured:
		return "matured"
	case StatusClaimed:
		return "claimed"
	default:
		return "unknown"
	}
}

const (
	bpsDenominator = 10_000
	secondsPerWeek = 7 * 24 * 60 * 60
	// MaxWeeks bounds bond duration so maturity always fits in unix seconds.
	MaxWeeks = 1_040
)

var (
	ErrUnauthorized             = coreerrors.New(coreerrors.KindUnauthorized, "bonds: caller is not whitelisted")
	ErrNotAdmin                 = coreerrors.New(coreerrors.KindUnauthorized, "bonds: caller is not admin")
	ErrInvalidPrincipal         = coreerrors.New(coreerrors.KindInvalid, "bonds: principal must be positive")
	ErrInvalidDuration          = coreerrors.New(coreerrors.KindInvalidRange, "bonds: invalid duration")
	ErrInvalidAmount            = coreerrors.New(coreerrors.KindInvalid, "bonds: invalid amount")
	ErrNothingToClaim           = coreerrors.New(coreerrors.KindNotFound, "bonds: nothing to claim")
	ErrInsufficientRewardSupply = coreerrors.New(coreerrors.KindInsufficientBalance, "bonds: insufficient reward supply")
	ErrInsufficientFunds        = coreerrors.New(coreerrors.KindInsufficientBalance, "bonds: insufficient funds for catastrophe")
	ErrAlreadyCatastrophe       = coreerrors.New(coreerrors.KindAlreadyInState, "bonds: already in catastrophe")
	ErrNotCatastrophe           = coreerrors.New(coreerrors.KindAlreadyInState, "bonds: not in catastrophe")
	ErrCatastropheActive        = coreerrors.New(coreerrors.KindAlreadyInState, "bonds: catastrophe active")
	ErrArithmetic               = coreerrors.New(coreerrors.KindArithmeticBounds, "bonds: arithmetic overflow")
)

// Position is a single bond. Start and Maturity are unix seconds.
type Position struct {
	ID          uint64
	Owner       common.Address
	PrincipalA  *uint256.Int
	PrincipalB  *uint256.Int
	RateBps     uint64
	Start       uint64
	Maturity    uint64
	Status      uint8
	PositionRef uint64
}

func (p Position) state() Status { return Status(p.Status) }

// Accrual holds the matured but unclaimed amounts of an owner.
type Accrual struct {
	PrincipalA *uint256.Int
	PrincipalB *uint256.Int
	ProfitA    *uint256.Int
	ProfitB    *uint256.Int
}

func newAccrual() Accrual {
	return Accrual{
		PrincipalA: new(uint256.Int),
		PrincipalB: new(uint256.Int),
		ProfitA:    new(uint256.Int),
		ProfitB:    new(uint256.Int),
	}
}

// IsZero reports whether nothing is waiting to be claimed.
func (a Accrual) IsZero() bool {
	return a.PrincipalA.IsZero() && a.PrincipalB.IsZero() && a.ProfitA.IsZero() && a.ProfitB.IsZero()
}

func (a Accrual) clone() Accrual {
	return Accrual{
		PrincipalA: a.PrincipalA.Clone(),
		PrincipalB: a.PrincipalB.Clone(),
		ProfitA:    a.ProfitA.Clone(),
		ProfitB:    a.ProfitB.Clone(),
	}
}

// Book is the ordered position list of one owner. Positions before
// FirstActive are all matured or claimed.
type Book struct {
	Owner       common.Address
	Positions   []Position
	FirstActive uint64
	Accrual     Accrual
}

func newBook(owner common.Address) *Book {
	return &Book{Owner: owner, Positions: []Position{}, Accrual: newAccrual()}
}

// normalise replaces amounts decoded as nil.
func (b *Book) normalise() {
	for _, v := range []**uint256.Int{&b.Accrual.PrincipalA, &b.Accrual.PrincipalB, &b.Accrual.ProfitA, &b.Accrual.ProfitB} {
		if *v == nil {
			*v = new(uint256.Int)
		}
	}
	for i := range b.Positions {
		if b.Positions[i].PrincipalA == nil {
			b.Positions[i].PrincipalA = new(uint256.Int)
		}
		if b.Positions[i].PrincipalB == nil {
			b.Positions[i].PrincipalB = new(uint256.Int)
		}
	}
}

// LedgerState is the global record of the ledger.
type LedgerState struct {
	Catastrophe  bool
	RewardSupply *uint256.Int
	Owners       []common.Address
	NextID       uint64
}

// Config names the accounts and assets of the ledger.
type Config struct {
	// Address is the custody account holding bond principal and reward tokens.
	Address common.Address
	// AssetA is EUR pegged; its profit converts to EUR by decimal
	// normalisation only.
	AssetA         string
	AssetADecimals uint8
	// AssetB profit is valued through the oracle path.
	AssetB      string
	RewardAsset string
	// RewardPerEUR is the fixed number of reward base units per EUR, 18
	// decimals.
	RewardPerEUR *uint256.Int
}

// Settlement summarises a claim.
type Settlement struct {
	PrincipalA *uint256.Int
	PrincipalB *uint256.Int
	ProfitEUR  *uint256.Int
	Reward     *uint256.Int
	Positions  int
}

// Requirement is the principal the custody account must hold for every
// unsettled position.
type Requirement struct {
	AssetA *uint256.Int
	AssetB *uint256.Int
}
