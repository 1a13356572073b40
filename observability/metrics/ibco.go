package metrics

import (
	"math/big"
	"strings"
	"sync"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// IBCOMetrics groups the collectors recorded by the offering, curve, bond and
// staking engines.
type IBCOMetrics struct {
	purchases     *prometheus.CounterVec
	unitsIssued   prometheus.Counter
	bucketIndex   prometheus.Gauge
	bucketPrice   prometheus.Gauge
	bondEvents    *prometheus.CounterVec
	catastrophe   *prometheus.GaugeVec
	stakingEvents *prometheus.CounterVec
	rewardSupply  prometheus.Gauge
}

var (
	ibcoOnce     sync.Once
	ibcoRegistry *IBCOMetrics
)

// IBCO returns the lazily registered collectors.
func IBCO() *IBCOMetrics {
	ibcoOnce.Do(func() {
		ibcoRegistry = &IBCOMetrics{
			purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ibco_purchases_total",
				Help: "Count of settled offering purchases by asset.",
			}, []string{"asset"}),
			unitsIssued: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "ibco_units_issued_total",
				Help: "Whole token units issued through the bonding curve.",
			}),
			bucketIndex: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ibco_curve_bucket_index",
				Help: "Current bucket index of the bonding curve.",
			}),
			bucketPrice: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ibco_curve_bucket_price_eur",
				Help: "Price in EUR of the current bonding curve bucket.",
			}),
			bondEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ibco_bond_events_total",
				Help: "Bond lifecycle transitions by kind.",
			}, []string{"kind"}),
			catastrophe: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "ibco_catastrophe_enabled",
				Help: "Whether catastrophe mode is enabled (1) per module.",
			}, []string{"module"}),
			stakingEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ibco_staking_events_total",
				Help: "Staking pool operations by kind.",
			}, []string{"kind"}),
			rewardSupply: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "ibco_bond_reward_supply",
				Help: "Distributable bond reward supply in whole tokens.",
			}),
		}
		prometheus.MustRegister(
			ibcoRegistry.purchases,
			ibcoRegistry.unitsIssued,
			ibcoRegistry.bucketIndex,
			ibcoRegistry.bucketPrice,
			ibcoRegistry.bondEvents,
			ibcoRegistry.catastrophe,
			ibcoRegistry.stakingEvents,
			ibcoRegistry.rewardSupply,
		)
	})
	return ibcoRegistry
}

var wadFloat = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// wholeUnits renders an 18 decimal fixed point amount as a float.
func wholeUnits(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v.ToBig())
	out, _ := f.Quo(f, wadFloat).Float64()
	return out
}

func label(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}

func (m *IBCOMetrics) RecordPurchase(asset string, units *uint256.Int) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(strings.ToUpper(label(asset))).Inc()
	m.unitsIssued.Add(wholeUnits(units))
}

func (m *IBCOMetrics) SetBucket(index uint64, price *uint256.Int) {
	if m == nil {
		return
	}
	m.bucketIndex.Set(float64(index))
	m.bucketPrice.Set(wholeUnits(price))
}

func (m *IBCOMetrics) RecordBondEvent(kind string) {
	if m == nil {
		return
	}
	m.bondEvents.WithLabelValues(label(kind)).Inc()
}

func (m *IBCOMetrics) SetCatastrophe(module string, enabled bool) {
	if m == nil {
		return
	}
	value := 0.0
	if enabled {
		value = 1
	}
	m.catastrophe.WithLabelValues(label(module)).Set(value)
}

func (m *IBCOMetrics) RecordStakingEvent(kind string) {
	if m == nil {
		return
	}
	m.stakingEvents.WithLabelValues(label(kind)).Inc()
}

func (m *IBCOMetrics) SetRewardSupply(supply *uint256.Int) {
	if m == nil {
		return
	}
	m.rewardSupply.Set(wholeUnits(supply))
}
