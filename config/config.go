package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress    string          `toml:"RPCAddress"`
	DataDir       string          `toml:"DataDir"`
	AssetManifest string          `toml:"AssetManifest"`
	Pauses        map[string]bool `toml:"Pauses"`
	Logging       Logging         `toml:"logging"`
	Telemetry     Telemetry       `toml:"telemetry"`
	RPC           RPC             `toml:"rpc"`
	Roles         Roles           `toml:"roles"`
	Curve         Curve           `toml:"curve"`
	Offering      Offering        `toml:"offering"`
	Bonds         Bonds           `toml:"bonds"`
	Staking       Staking         `toml:"staking"`
	Liquidity     Liquidity       `toml:"liquidity"`
	Oracles       Oracles         `toml:"oracles"`
	Assets        []Asset         `toml:"assets"`
}

// Load decodes the TOML file at path, applies defaults and validates the
// result. Unknown keys are rejected so typos do not silently fall back to
// defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	cfg.Normalise()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Normalise fills unset values with their defaults.
func (c *Config) Normalise() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./ibco-data"
	}
	if c.Pauses == nil {
		c.Pauses = map[string]bool{}
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 100
	}
	if c.RPC.Burst == 0 {
		c.RPC.Burst = 20
	}
	if strings.TrimSpace(c.Curve.Exponent) == "" {
		c.Curve.Exponent = "1"
	}
	if strings.TrimSpace(c.Offering.UnitSymbol) == "" {
		c.Offering.UnitSymbol = "IBCO"
	}
	if c.Offering.Quota.EpochSeconds == 0 {
		c.Offering.Quota.EpochSeconds = 3600
	}
	if c.Bonds.AssetADecimals == 0 {
		c.Bonds.AssetADecimals = 18
	}
	if c.Liquidity.TickSpacing == 0 {
		c.Liquidity.TickSpacing = 60
	}
	if c.Liquidity.MinTick == 0 && c.Liquidity.MaxTick == 0 {
		c.Liquidity.MinTick = -887272
		c.Liquidity.MaxTick = 887272
	}
	if c.Assets == nil {
		c.Assets = []Asset{}
	}
}

// Default returns a development configuration: manual oracles at fixed
// prices, a single USDC asset and the reference curve.
func Default() *Config {
	start := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	cfg := &Config{
		RPCAddress: ":8080",
		RPC:        RPC{QuotePerMinute: 120, QueryPerMinute: 600, Burst: 20},
		DataDir:    "./ibco-data",
		Roles:      Roles{Admins: []string{"0x00000000000000000000000000000000000000ad"}},
		Curve: Curve{
			InitialPrice: "0.8",
			FullPrice:    "1.0",
			MaxSupply:    "10000000000",
			BucketSize:   "100000",
			Exponent:     "4",
		},
		Offering: Offering{
			Address:           "0x00000000000000000000000000000000000000f1",
			CalculatorAddress: "0x00000000000000000000000000000000000000c1",
			Treasury:          "0x00000000000000000000000000000000000000e1",
			UnitSymbol:        "IBCO",
		},
		Bonds: Bonds{
			Address:        "0x00000000000000000000000000000000000000b1",
			AssetA:         "EURX",
			AssetADecimals: 18,
			AssetB:         "IBCO",
			RewardAsset:    "RWD",
			RewardPerEUR:   "1",
		},
		Staking: Staking{
			Address:        "0x00000000000000000000000000000000000000d1",
			StakeAsset:     "IBCO",
			RewardAsset:    "TST",
			RateMilli:      5000,
			WindowStart:    start,
			WindowEnd:      start.AddDate(0, 1, 0),
			Maturity:       start.AddDate(1, 0, 0),
			RewardPerStake: "1",
		},
		Liquidity: Liquidity{
			Address:      "0x00000000000000000000000000000000000000a1",
			DefaultLower: -600,
			DefaultUpper: 600,
			TickSpacing:  60,
		},
		Oracles: Oracles{
			EURUSD: "0x0000000000000000000000000000000000000e0d",
			Manual: []ManualFeed{
				{Address: "0x0000000000000000000000000000000000000e0d", Price: "1.08", Decimals: 8},
				{Address: "0x0000000000000000000000000000000000000a01", Price: "1", Decimals: 8},
			},
		},
		Assets: []Asset{{
			Symbol:         "USDC",
			Token:          "0x0000000000000000000000000000000000000c01",
			TokenDecimals:  6,
			Oracle:         "0x0000000000000000000000000000000000000a01",
			OracleDecimals: 8,
		}},
	}
	cfg.Normalise()
	return cfg
}

// WriteDefault persists Default() at path, creating parent directories.
func WriteDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
