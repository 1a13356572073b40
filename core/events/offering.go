package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	// TypeOfferingPurchase is emitted when a purchaser receives issued units.
	TypeOfferingPurchase = "offering.purchase"
	// TypeCurveBucketAdvanced is emitted when issuance moves the curve cursor
	// into a later bucket.
	TypeCurveBucketAdvanced = "curve.bucket.advanced"
)

// OfferingPurchase summarises a settled purchase.
type OfferingPurchase struct {
	ReceiptID string
	Buyer     common.Address
	Asset     string
	AmountIn  *uint256.Int
	EUR       *uint256.Int
	Units     *uint256.Int
}

// EventType implements the Event interface.
func (OfferingPurchase) EventType() string { return TypeOfferingPurchase }

// CurveBucketAdvanced records the cursor transition of the bonding curve.
type CurveBucketAdvanced struct {
	FromIndex uint64
	ToIndex   uint64
	Price     *uint256.Int
	Issued    *uint256.Int
}

// EventType implements the Event interface.
func (CurveBucketAdvanced) EventType() string { return TypeCurveBucketAdvanced }
