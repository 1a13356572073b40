package events

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	// TypeTransfer is emitted for token ledger balance movements.
	TypeTransfer = "token.transfer"
	// TypeMint is emitted when new token units are created.
	TypeMint = "token.mint"
)

type Transfer struct {
	Asset  string
	From   common.Address
	To     common.Address
	Amount *uint256.Int
}

func (Transfer) EventType() string { return TypeTransfer }

// NewTransfer normalises the asset symbol before building the event.
func NewTransfer(asset string, from, to common.Address, amount *uint256.Int) Transfer {
	return Transfer{Asset: normalizeAsset(asset), From: from, To: to, Amount: amount}
}

type Mint struct {
	Asset  string
	To     common.Address
	Amount *uint256.Int
}

func (Mint) EventType() string { return TypeMint }

func normalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}
