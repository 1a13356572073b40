package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ibco/config"
	"ibco/core/host"
	"ibco/core/state"
	"ibco/native/assets"
	"ibco/native/bank"
	"ibco/native/bonds"
	nativecommon "ibco/native/common"
	"ibco/native/curve"
	"ibco/native/offering"
	"ibco/native/oracle"
	"ibco/native/staking"
	"ibco/observability"
	"ibco/observability/logging"
	"ibco/rpc"
	"ibco/storage"
)

// node holds the engines of one daemon instance wired to a shared host.
type node struct {
	cfg      *config.Config
	host     *host.Host
	curve    *curve.Curve
	registry *assets.Registry
	calc     *offering.Calculator
	offering *offering.Offering
	bank     *bank.Ledger
	bonds    *bonds.Ledger
	staking  *staking.Pool
	eth      *ethclient.Client
}

// newNode builds every engine over db and applies the first start setup:
// role grants and asset seeding. configDir resolves a relative asset
// manifest path.
func newNode(ctx context.Context, cfg *config.Config, db storage.Database, configDir string, logger *slog.Logger) (*node, error) {
	h := host.New(state.NewManager(db), observability.NewEventSink(logger))
	h.SetLogger(logger)
	st := h.State()
	emitter := h.Emitter()
	pauses := nativecommon.Pauses(cfg.Pauses)

	n := &node{cfg: cfg, host: h}

	params, err := cfg.CurveParams()
	if err != nil {
		return nil, err
	}
	schedule, err := curve.NewSchedule(params)
	if err != nil {
		return nil, err
	}
	n.curve = curve.New(schedule)
	n.curve.SetState(st)
	n.curve.SetPauses(pauses)
	n.curve.SetEmitter(emitter)
	n.curve.SetLogger(logger)

	n.registry = assets.NewRegistry()
	n.registry.SetState(st)
	n.registry.SetPauses(pauses)
	n.registry.SetEmitter(emitter)
	n.registry.SetLogger(logger)

	feeds, eurUSD, err := n.oracles(ctx, logger)
	if err != nil {
		return nil, err
	}

	offeringCfg, calcAddr, err := cfg.OfferingConfig()
	if err != nil {
		return nil, err
	}
	n.calc = offering.NewCalculator(calcAddr, n.registry, feeds, eurUSD, n.curve)
	n.calc.SetLogger(logger)

	n.bank = bank.NewLedger(st)
	n.bank.SetEmitter(emitter)

	n.offering = offering.New(offeringCfg, n.calc, n.bank)
	n.offering.SetState(st)
	n.offering.SetPauses(pauses)
	n.offering.SetEmitter(emitter)
	n.offering.SetLogger(logger)

	bondCfg, err := cfg.BondsConfig()
	if err != nil {
		return nil, err
	}
	n.bonds = bonds.New(bondCfg, n.bank, n.calc)
	n.bonds.SetState(st)
	n.bonds.SetPauses(pauses)
	n.bonds.SetEmitter(emitter)
	n.bonds.SetLogger(logger)

	if cfg.Staking.Enabled() {
		addr, stakeParams, err := cfg.StakingParams()
		if err != nil {
			return nil, err
		}
		if n.staking, err = staking.New(addr, stakeParams, n.bank); err != nil {
			return nil, err
		}
		n.staking.SetState(st)
		n.staking.SetPauses(pauses)
		n.staking.SetEmitter(emitter)
		n.staking.SetLogger(logger)
	}

	if err := n.bootstrap(configDir, logger); err != nil {
		return nil, err
	}
	return n, nil
}

// oracles registers the manual feeds and, when an endpoint is configured,
// on-chain aggregator feeds for every other oracle address in use.
func (n *node) oracles(ctx context.Context, logger *slog.Logger) (*oracle.Directory, oracle.Feed, error) {
	dir := oracle.NewDirectory()
	manual, err := n.cfg.ManualPrices()
	if err != nil {
		return nil, nil, err
	}
	registered := make(map[common.Address]struct{}, len(manual))
	for _, m := range manual {
		dir.Register(m.Address, oracle.NewManualFeed(m.Value, m.Decimals))
		registered[m.Address] = struct{}{}
	}

	eurUSDAddr := common.HexToAddress(strings.TrimSpace(n.cfg.Oracles.EURUSD))
	if endpoint := strings.TrimSpace(n.cfg.Oracles.Endpoint); endpoint != "" {
		client, err := ethclient.DialContext(ctx, endpoint)
		if err != nil {
			return nil, nil, fmt.Errorf("dial oracle endpoint: %w", err)
		}
		n.eth = client
		wanted := []common.Address{eurUSDAddr}
		entries, err := config.AssetEntries(n.cfg.Assets)
		if err != nil {
			return nil, nil, err
		}
		for _, e := range entries {
			wanted = append(wanted, e.Oracle)
		}
		for _, addr := range wanted {
			if _, ok := registered[addr]; ok {
				continue
			}
			dir.Register(addr, oracle.NewAggregatorFeed(client, addr))
			registered[addr] = struct{}{}
		}
		logger.Info("oracle endpoint connected",
			logging.MaskEndpoint("endpoint", endpoint),
			slog.Int("feeds", len(registered)))
	}

	eurUSD, err := dir.Feed(eurUSDAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("EUR/USD feed %s: %w", eurUSDAddr.Hex(), err)
	}
	return dir, eurUSD, nil
}

// bootstrap grants the configured roles and seeds assets missing from the
// registry in a single operation.
func (n *node) bootstrap(configDir string, logger *slog.Logger) error {
	admins, err := n.cfg.AdminAddresses()
	if err != nil {
		return err
	}
	entries, err := config.AssetEntries(n.cfg.Assets)
	if err != nil {
		return err
	}
	if path := strings.TrimSpace(n.cfg.AssetManifest); path != "" {
		if !filepath.IsAbs(path) && configDir != "" {
			path = filepath.Join(configDir, path)
		}
		fromManifest, err := config.LoadAssetManifest(path)
		if err != nil {
			return err
		}
		entries = append(entries, fromManifest...)
	}
	offeringCfg, calcAddr, err := n.cfg.OfferingConfig()
	if err != nil {
		return err
	}
	bonder, err := n.cfg.BonderConfig()
	if err != nil {
		return err
	}

	grants := []struct {
		role string
		addr common.Address
	}{
		{nativecommon.RoleOffering, offeringCfg.Address},
		{nativecommon.RoleCurveUpdater, calcAddr},
		{nativecommon.RoleBondWhitelist, bonder.Address},
	}
	for _, admin := range admins {
		grants = append(grants, struct {
			role string
			addr common.Address
		}{nativecommon.RoleAdmin, admin})
	}

	var seeded int
	err = n.host.Execute(func() error {
		st := n.host.State()
		for _, g := range grants {
			if err := st.SetRole(g.role, g.addr.Bytes()); err != nil {
				return fmt.Errorf("grant %s: %w", g.role, err)
			}
		}
		if len(entries) == 0 {
			return nil
		}
		if len(admins) == 0 {
			return fmt.Errorf("assets configured but no admin to register them")
		}
		var err error
		seeded, err = n.registry.Seed(nativecommon.NewCallContext(admins[0], st), entries)
		return err
	})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	logger.Info("node bootstrapped",
		slog.Int("admins", len(admins)),
		slog.Int("assetsSeeded", seeded))
	return nil
}

// handler returns the instrumented HTTP surface of the node.
func (n *node) handler(logger *slog.Logger) http.Handler {
	cfg := rpc.Config{
		Host:       n.host,
		Curve:      n.curve,
		Quoter:     n.calc,
		Assets:     n.registry,
		Bonds:      n.bonds,
		Ranges:     n.cfg.RangeRequest,
		RateLimits: n.cfg.RateLimits(),
		Metrics:    promhttp.Handler(),
		Logger:     logger,
	}
	if n.staking != nil {
		cfg.Staking = n.staking
	}
	return otelhttp.NewHandler(rpc.NewRouter(cfg), "ibcod")
}

func (n *node) Close() {
	if n.eth != nil {
		n.eth.Close()
	}
}
