package config

import "time"

// Logging controls the JSON logger and optional rotated file.
type Logging struct {
	Env        string `toml:"Env"`
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry configures the OTLP exporters. Both signals are off by default.
type Telemetry struct {
	Endpoint    string            `toml:"Endpoint"`
	Insecure    bool              `toml:"Insecure"`
	Headers     map[string]string `toml:"Headers"`
	Traces      bool              `toml:"Traces"`
	Metrics     bool              `toml:"Metrics"`
	SampleRatio float64           `toml:"SampleRatio"`
}

// RPC bounds per client request rates on the query API. A zero rate leaves
// that class unlimited.
type RPC struct {
	QuotePerMinute float64 `toml:"QuotePerMinute"`
	QueryPerMinute float64 `toml:"QueryPerMinute"`
	Burst          int     `toml:"Burst"`
}

// Roles lists the addresses granted each role at first start.
type Roles struct {
	Admins []string `toml:"Admins"`
}

// Curve holds the bonding curve parameters. Prices are EUR per unit and
// supplies whole units, all written as decimal strings.
type Curve struct {
	InitialPrice string `toml:"InitialPrice"`
	FullPrice    string `toml:"FullPrice"`
	MaxSupply    string `toml:"MaxSupply"`
	BucketSize   string `toml:"BucketSize"`
	Exponent     string `toml:"Exponent"`
}

// Quota bounds purchases per buyer and epoch.
type Quota struct {
	MaxRequestsPerEpoch uint32 `toml:"MaxRequestsPerEpoch"`
	MaxEURPerEpoch      uint64 `toml:"MaxEURPerEpoch"`
	EpochSeconds        uint32 `toml:"EpochSeconds"`
}

// Offering names the purchase accounts.
type Offering struct {
	Address           string `toml:"Address"`
	CalculatorAddress string `toml:"CalculatorAddress"`
	Treasury          string `toml:"Treasury"`
	UnitSymbol        string `toml:"UnitSymbol"`
	Quota             Quota  `toml:"quota"`
}

// Bonds configures the bond ledger.
type Bonds struct {
	Address        string `toml:"Address"`
	AssetA         string `toml:"AssetA"`
	AssetADecimals uint8  `toml:"AssetADecimals"`
	AssetB         string `toml:"AssetB"`
	RewardAsset    string `toml:"RewardAsset"`
	RewardPerEUR   string `toml:"RewardPerEUR"`
}

// Staking configures the staking pool window and economics.
type Staking struct {
	Address        string    `toml:"Address"`
	StakeAsset     string    `toml:"StakeAsset"`
	RewardAsset    string    `toml:"RewardAsset"`
	RateMilli      uint64    `toml:"RateMilli"`
	WindowStart    time.Time `toml:"WindowStart"`
	WindowEnd      time.Time `toml:"WindowEnd"`
	Maturity       time.Time `toml:"Maturity"`
	RewardPerStake string    `toml:"RewardPerStake"`
}

// Liquidity configures bonding deposits and range selection.
type Liquidity struct {
	Address      string `toml:"Address"`
	DefaultLower int64  `toml:"DefaultLower"`
	DefaultUpper int64  `toml:"DefaultUpper"`
	TickSpacing  int64  `toml:"TickSpacing"`
	MinTick      int64  `toml:"MinTick"`
	MaxTick      int64  `toml:"MaxTick"`
}

// ManualFeed pins an oracle address to a fixed price.
type ManualFeed struct {
	Address  string `toml:"Address"`
	Price    string `toml:"Price"`
	Decimals uint8  `toml:"Decimals"`
}

// Oracles selects the price sources. When Endpoint is set, every asset
// oracle and EURUSD without a manual override is read from AggregatorV3
// contracts through that JSON-RPC endpoint.
type Oracles struct {
	Endpoint string       `toml:"Endpoint"`
	EURUSD   string       `toml:"EURUSD"`
	Manual   []ManualFeed `toml:"manual"`
}

// Asset is one accepted purchase asset.
type Asset struct {
	Symbol         string `toml:"Symbol" yaml:"symbol"`
	Token          string `toml:"Token" yaml:"token"`
	TokenDecimals  uint8  `toml:"TokenDecimals" yaml:"tokenDecimals"`
	Oracle         string `toml:"Oracle" yaml:"oracle"`
	OracleDecimals uint8  `toml:"OracleDecimals" yaml:"oracleDecimals"`
}
