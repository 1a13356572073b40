package events

import "github.com/ethereum/go-ethereum/common"

const (
	// TypeAssetAdded is emitted when an accepted asset is registered.
	TypeAssetAdded = "asset.added"
	// TypeAssetRemoved is emitted when an accepted asset is removed.
	TypeAssetRemoved = "asset.removed"
)

// AssetAdded captures the metadata of a newly accepted asset.
type AssetAdded struct {
	Symbol         string
	Token          common.Address
	TokenDecimals  uint8
	Oracle         common.Address
	OracleDecimals uint8
}

// EventType implements the Event interface.
func (AssetAdded) EventType() string { return TypeAssetAdded }

// AssetRemoved records the removal of an accepted asset.
type AssetRemoved struct {
	Symbol string
}

// EventType implements the Event interface.
func (AssetRemoved) EventType() string { return TypeAssetRemoved }

// NewAssetRemoved normalises the symbol before building the event.
func NewAssetRemoved(symbol string) AssetRemoved {
	return AssetRemoved{Symbol: normalizeAsset(symbol)}
}
