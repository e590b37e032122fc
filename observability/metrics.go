package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics bundles the collectors exposed by a process embedding
// native/ledger.Engine: per-instruction request/error/latency counters, a
// per-account health gauge, and a per-bank capacity gauge. The shape
// (CounterVec/HistogramVec/GaugeVec registered once behind sync.Once) follows
// the teacher's moduleMetrics/PayoutdMetrics pattern; the labels and gauges
// themselves are specific to the six ledger instructions instead of the
// teacher's swap/payout/oracle-attester/consensus concerns, which have no
// SPEC_FULL.md home (see DESIGN.md).
type LedgerMetrics struct {
	instructions *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	liquidations *prometheus.CounterVec
	health       *prometheus.GaugeVec
	capacity     *prometheus.GaugeVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// Ledger returns the lazily-initialised, process-wide ledger metrics
// registry.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "marginbank",
				Subsystem: "ledger",
				Name:      "instructions_total",
				Help:      "Count of ledger instructions segmented by instruction name and outcome.",
			}, []string{"instruction", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "marginbank",
				Subsystem: "ledger",
				Name:      "instruction_duration_seconds",
				Help:      "Latency distribution for ledger instruction handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"instruction"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "marginbank",
				Subsystem: "ledger",
				Name:      "liquidations_total",
				Help:      "Count of liquidation attempts segmented by outcome (filled, illegal_post_liquidation_state, borrowing_not_allowed, error).",
			}, []string{"outcome"}),
			health: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "marginbank",
				Subsystem: "ledger",
				Name:      "account_health_ratio",
				Help:      "weighted_assets / weighted_liabilities for the most recently evaluated account, by regime (1 when liabilities are zero).",
			}, []string{"account", "regime"}),
			capacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "marginbank",
				Subsystem: "ledger",
				Name:      "bank_capacity_utilization",
				Help:      "Ratio of a bank's total deposit value to its configured max capacity (0-1+).",
			}, []string{"bank", "asset"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.instructions,
			ledgerRegistry.latency,
			ledgerRegistry.liquidations,
			ledgerRegistry.health,
			ledgerRegistry.capacity,
		)
	})
	return ledgerRegistry
}

// ObserveInstruction records the outcome and latency of one of the six
// instruction handlers (spec.md §6): create_group, add_bank,
// create_account, deposit, withdraw, liquidate.
func (m *LedgerMetrics) ObserveInstruction(instruction string, err error, d time.Duration) {
	if m == nil {
		return
	}
	instruction = normalizeLabel(instruction, "unknown")
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.instructions.WithLabelValues(instruction, outcome).Inc()
	m.latency.WithLabelValues(instruction).Observe(d.Seconds())
}

// RecordLiquidation increments the liquidation outcome counter. Callers pass
// a stable outcome string such as "filled",
// "illegal_post_liquidation_state", "borrowing_not_allowed", or "error"
// (the labels api.Router records).
func (m *LedgerMetrics) RecordLiquidation(outcome string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(normalizeLabel(outcome, "unspecified")).Inc()
}

// SetAccountHealth publishes the ratio of weighted assets to weighted
// liabilities for an account in a regime ("initial" or "maintenance"). A
// liabilities value of zero publishes a ratio of 1 (maximally healthy)
// rather than dividing by zero.
func (m *LedgerMetrics) SetAccountHealth(account, regime string, assets, liabilities float64) {
	if m == nil {
		return
	}
	ratio := 1.0
	if liabilities > 0 {
		ratio = assets / liabilities
	}
	m.health.WithLabelValues(normalizeLabel(account, "unknown"), normalizeLabel(regime, "initial")).Set(ratio)
}

// SetBankCapacity publishes a bank's deposit-capacity utilization ratio.
func (m *LedgerMetrics) SetBankCapacity(bank, asset string, depositValue, maxCapacity float64) {
	if m == nil {
		return
	}
	utilization := 0.0
	if maxCapacity > 0 {
		utilization = depositValue / maxCapacity
	}
	m.capacity.WithLabelValues(normalizeLabel(bank, "unknown"), normalizeLabel(asset, "unknown")).Set(utilization)
}

func normalizeLabel(v, fallback string) string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
