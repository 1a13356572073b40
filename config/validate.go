package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"ibco/native/assets"
	"ibco/native/bonds"
	nativecommon "ibco/native/common"
	"ibco/native/curve"
	"ibco/native/liquidity"
	"ibco/native/offering"
	"ibco/native/staking"
	"ibco/observability/otel"
	"ibco/rpc"
)

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.AdminAddresses(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.CurveParams(); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := c.OfferingConfig(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.BondsConfig(); err != nil {
		errs = append(errs, err)
	}
	if c.Staking.Enabled() {
		if _, _, err := c.StakingParams(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.validateLiquidity(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ManualPrices(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Oracles.EURUSD) == "" {
		errs = append(errs, fmt.Errorf("oracles: EURUSD required"))
	} else if _, err := parseAddress("oracles.EURUSD", c.Oracles.EURUSD); err != nil {
		errs = append(errs, err)
	}
	if _, err := AssetEntries(c.Assets); err != nil {
		errs = append(errs, err)
	}
	if c.RPC.QuotePerMinute < 0 || c.RPC.QueryPerMinute < 0 || c.RPC.Burst < 0 {
		errs = append(errs, fmt.Errorf("rpc: rates and burst must not be negative"))
	}
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry: SampleRatio %v outside [0, 1]", r))
	}
	return errors.Join(errs...)
}

// TelemetryConfig converts the telemetry section for the exporters. Blank
// endpoint and headers fall back to the OTLP environment variables.
func (c *Config) TelemetryConfig(service string) otel.Config {
	return otel.Config{
		ServiceName: service,
		Environment: c.Logging.Env,
		Endpoint:    strings.TrimSpace(c.Telemetry.Endpoint),
		Insecure:    c.Telemetry.Insecure,
		Headers:     c.Telemetry.Headers,
		Traces:      c.Telemetry.Traces,
		Metrics:     c.Telemetry.Metrics,
		SampleRatio: c.Telemetry.SampleRatio,
	}.WithEnv()
}

// RateLimits converts the rpc section into per class limits for the query
// API.
func (c *Config) RateLimits() map[string]rpc.RateLimit {
	out := make(map[string]rpc.RateLimit, 2)
	if c.RPC.QuotePerMinute > 0 {
		out[rpc.LimitQuote] = rpc.RateLimit{RequestsPerMinute: c.RPC.QuotePerMinute, Burst: c.RPC.Burst}
	}
	if c.RPC.QueryPerMinute > 0 {
		out[rpc.LimitQuery] = rpc.RateLimit{RequestsPerMinute: c.RPC.QueryPerMinute, Burst: c.RPC.Burst}
	}
	return out
}

func parseAddress(field, value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, value)
	}
	return common.HexToAddress(trimmed), nil
}

// ParseFixed parses a non-negative decimal string into fixed point with the
// given number of decimals, truncating extra precision.
func ParseFixed(value string, decimals uint8) (*uint256.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative value %q", value)
	}
	out, overflow := uint256.FromBig(d.Shift(int32(decimals)).Truncate(0).BigInt())
	if overflow {
		return nil, fmt.Errorf("value %q overflows", value)
	}
	return out, nil
}

// AdminAddresses returns the addresses granted ROLE_ADMIN at first start.
func (c *Config) AdminAddresses() ([]common.Address, error) {
	out := make([]common.Address, 0, len(c.Roles.Admins))
	for i, raw := range c.Roles.Admins {
		addr, err := parseAddress(fmt.Sprintf("roles.Admins[%d]", i), raw)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("roles: at least one admin required")
	}
	return out, nil
}

// CurveParams converts the curve section.
func (c *Config) CurveParams() (curve.Params, error) {
	var p curve.Params
	fields := []struct {
		name  string
		value string
		dst   **uint256.Int
	}{
		{"InitialPrice", c.Curve.InitialPrice, &p.InitialPrice},
		{"FullPrice", c.Curve.FullPrice, &p.FullPrice},
		{"MaxSupply", c.Curve.MaxSupply, &p.MaxSupply},
		{"BucketSize", c.Curve.BucketSize, &p.BucketSize},
	}
	for _, f := range fields {
		v, err := curve.ParsePrice(f.value)
		if err != nil {
			return curve.Params{}, fmt.Errorf("curve.%s: %w", f.name, err)
		}
		*f.dst = v
	}
	exp, err := decimal.NewFromString(strings.TrimSpace(c.Curve.Exponent))
	if err != nil {
		return curve.Params{}, fmt.Errorf("curve.Exponent: %w", err)
	}
	p.Exponent = exp
	if err := p.Validate(); err != nil {
		return curve.Params{}, err
	}
	return p, nil
}

// OfferingConfig converts the offering section and returns the calculator
// account alongside.
func (c *Config) OfferingConfig() (offering.Config, common.Address, error) {
	addr, err := parseAddress("offering.Address", c.Offering.Address)
	if err != nil {
		return offering.Config{}, common.Address{}, err
	}
	calc, err := parseAddress("offering.CalculatorAddress", c.Offering.CalculatorAddress)
	if err != nil {
		return offering.Config{}, common.Address{}, err
	}
	treasury, err := parseAddress("offering.Treasury", c.Offering.Treasury)
	if err != nil {
		return offering.Config{}, common.Address{}, err
	}
	return offering.Config{
		Address:    addr,
		Treasury:   treasury,
		UnitSymbol: c.Offering.UnitSymbol,
		Quota: nativecommon.Quota{
			MaxRequestsPerEpoch: c.Offering.Quota.MaxRequestsPerEpoch,
			MaxAmountPerEpoch:   c.Offering.Quota.MaxEURPerEpoch,
			EpochSeconds:        c.Offering.Quota.EpochSeconds,
		},
	}, calc, nil
}

// BondsConfig converts the bonds section.
func (c *Config) BondsConfig() (bonds.Config, error) {
	addr, err := parseAddress("bonds.Address", c.Bonds.Address)
	if err != nil {
		return bonds.Config{}, err
	}
	if strings.TrimSpace(c.Bonds.AssetA) == "" || strings.TrimSpace(c.Bonds.AssetB) == "" || strings.TrimSpace(c.Bonds.RewardAsset) == "" {
		return bonds.Config{}, fmt.Errorf("bonds: AssetA, AssetB and RewardAsset required")
	}
	ratio, err := ParseFixed(c.Bonds.RewardPerEUR, 18)
	if err != nil {
		return bonds.Config{}, fmt.Errorf("bonds.RewardPerEUR: %w", err)
	}
	return bonds.Config{
		Address:        addr,
		AssetA:         assets.NormalizeSymbol(c.Bonds.AssetA),
		AssetADecimals: c.Bonds.AssetADecimals,
		AssetB:         assets.NormalizeSymbol(c.Bonds.AssetB),
		RewardAsset:    assets.NormalizeSymbol(c.Bonds.RewardAsset),
		RewardPerEUR:   ratio,
	}, nil
}

// Enabled reports whether a staking pool is configured.
func (s Staking) Enabled() bool { return strings.TrimSpace(s.Address) != "" }

// StakingParams converts the staking section.
func (c *Config) StakingParams() (common.Address, staking.Params, error) {
	addr, err := parseAddress("staking.Address", c.Staking.Address)
	if err != nil {
		return common.Address{}, staking.Params{}, err
	}
	ratio, err := ParseFixed(c.Staking.RewardPerStake, 18)
	if err != nil {
		return common.Address{}, staking.Params{}, fmt.Errorf("staking.RewardPerStake: %w", err)
	}
	unix := func(name string, v int64) (uint64, error) {
		if v < 0 {
			return 0, fmt.Errorf("staking.%s: before 1970", name)
		}
		return uint64(v), nil
	}
	start, err := unix("WindowStart", c.Staking.WindowStart.Unix())
	if err != nil {
		return common.Address{}, staking.Params{}, err
	}
	end, err := unix("WindowEnd", c.Staking.WindowEnd.Unix())
	if err != nil {
		return common.Address{}, staking.Params{}, err
	}
	maturity, err := unix("Maturity", c.Staking.Maturity.Unix())
	if err != nil {
		return common.Address{}, staking.Params{}, err
	}
	params := staking.Params{
		StakeAsset:     assets.NormalizeSymbol(c.Staking.StakeAsset),
		RewardAsset:    assets.NormalizeSymbol(c.Staking.RewardAsset),
		RateMilli:      c.Staking.RateMilli,
		WindowStart:    start,
		WindowEnd:      end,
		Maturity:       maturity,
		RewardPerStake: ratio,
	}
	if err := params.Validate(); err != nil {
		return common.Address{}, staking.Params{}, err
	}
	return addr, params, nil
}

func (c *Config) validateLiquidity() error {
	l := c.Liquidity
	if strings.TrimSpace(l.Address) != "" {
		if _, err := parseAddress("liquidity.Address", l.Address); err != nil {
			return err
		}
	}
	if l.TickSpacing <= 0 {
		return fmt.Errorf("liquidity: TickSpacing must be positive")
	}
	if l.MinTick >= l.MaxTick {
		return fmt.Errorf("liquidity: MinTick must be below MaxTick")
	}
	if l.DefaultLower >= l.DefaultUpper || l.DefaultLower < l.MinTick || l.DefaultUpper > l.MaxTick {
		return fmt.Errorf("liquidity: default range [%d, %d] outside [%d, %d]", l.DefaultLower, l.DefaultUpper, l.MinTick, l.MaxTick)
	}
	return nil
}

// RangeRequest builds a range selection request for currentTick from the
// liquidity section.
func (c *Config) RangeRequest(currentTick int64) liquidity.RangeRequest {
	return liquidity.RangeRequest{
		CurrentTick:  currentTick,
		DefaultLower: c.Liquidity.DefaultLower,
		DefaultUpper: c.Liquidity.DefaultUpper,
		TickSpacing:  c.Liquidity.TickSpacing,
		MinTick:      c.Liquidity.MinTick,
		MaxTick:      c.Liquidity.MaxTick,
	}
}

// BonderConfig converts the liquidity section. Deposits are escrowed with the
// bond ledger in the bonds assets.
func (c *Config) BonderConfig() (liquidity.Config, error) {
	addr, err := parseAddress("liquidity.Address", c.Liquidity.Address)
	if err != nil {
		return liquidity.Config{}, err
	}
	bondCfg, err := c.BondsConfig()
	if err != nil {
		return liquidity.Config{}, err
	}
	return liquidity.Config{
		Address:      addr,
		Custody:      bondCfg.Address,
		AssetA:       bondCfg.AssetA,
		AssetB:       bondCfg.AssetB,
		DefaultLower: c.Liquidity.DefaultLower,
		DefaultUpper: c.Liquidity.DefaultUpper,
		MinTick:      c.Liquidity.MinTick,
		MaxTick:      c.Liquidity.MaxTick,
	}, nil
}

// ManualPrice is a parsed manual oracle override.
type ManualPrice struct {
	Address  common.Address
	Value    *uint256.Int
	Decimals uint8
}

// ManualPrices parses the manual oracle overrides.
func (c *Config) ManualPrices() ([]ManualPrice, error) {
	out := make([]ManualPrice, 0, len(c.Oracles.Manual))
	seen := make(map[common.Address]struct{}, len(c.Oracles.Manual))
	for i, m := range c.Oracles.Manual {
		addr, err := parseAddress(fmt.Sprintf("oracles.manual[%d].Address", i), m.Address)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[addr]; dup {
			return nil, fmt.Errorf("oracles.manual[%d]: duplicate feed %s", i, addr.Hex())
		}
		seen[addr] = struct{}{}
		value, err := ParseFixed(m.Price, m.Decimals)
		if err != nil {
			return nil, fmt.Errorf("oracles.manual[%d].Price: %w", i, err)
		}
		out = append(out, ManualPrice{Address: addr, Value: value, Decimals: m.Decimals})
	}
	return out, nil
}

// AssetEntries converts and validates asset definitions. Symbols must be
// unique.
func AssetEntries(list []Asset) ([]assets.Entry, error) {
	out := make([]assets.Entry, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for i, a := range list {
		token, err := parseAddress(fmt.Sprintf("assets[%d].Token", i), a.Token)
		if err != nil {
			return nil, err
		}
		oracleAddr, err := parseAddress(fmt.Sprintf("assets[%d].Oracle", i), a.Oracle)
		if err != nil {
			return nil, err
		}
		entry := assets.Entry{
			Symbol:         assets.NormalizeSymbol(a.Symbol),
			Token:          token,
			TokenDecimals:  a.TokenDecimals,
			Oracle:         oracleAddr,
			OracleDecimals: a.OracleDecimals,
		}
		if err := entry.Validate(); err != nil {
			return nil, fmt.Errorf("assets[%d]: %w", i, err)
		}
		if _, dup := seen[entry.Symbol]; dup {
			return nil, fmt.Errorf("assets[%d]: duplicate symbol %s", i, entry.Symbol)
		}
		seen[entry.Symbol] = struct{}{}
		out = append(out, entry)
	}
	return out, nil
}
