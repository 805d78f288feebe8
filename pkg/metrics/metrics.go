// Package metrics exposes Prometheus metrics for the staker ledger.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fortiblox/x1-staker/pkg/bank"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/staker"
	"github.com/fortiblox/x1-staker/pkg/types"
)

const namespace = "staker"

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds every collector on its own registry, so several ledgers
// can run in one process.
type Metrics struct {
	registry *prometheus.Registry

	Transactions        *prometheus.CounterVec
	TransactionDuration prometheus.Histogram
	ComputeUnits        prometheus.Histogram
	Instructions        *prometheus.CounterVec
	ProgramErrors       *prometheus.CounterVec
	StakeMovements      *prometheus.CounterVec
	StakeVolume         *prometheus.CounterVec

	Slot          prometheus.Gauge
	Accounts      prometheus.Gauge
	PoolCount     prometheus.Gauge
	PoolStaked    *prometheus.GaugeVec
	PoolPositions *prometheus.GaugeVec
}

var _ bank.Observer = (*Metrics)(nil)

// New creates the staker metrics on a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Transactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transactions processed by the bank, by result.",
		}, []string{"result"}),
		TransactionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_duration_seconds",
			Help:      "Time to verify, execute and commit a transaction.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
		}),
		ComputeUnits: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_compute_units",
			Help:      "Compute units consumed per transaction.",
			Buckets:   prometheus.ExponentialBuckets(500, 2, 12),
		}),
		Instructions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instructions_total",
			Help:      "Top-level instructions executed, by program, instruction and result.",
		}, []string{"program", "instruction", "result"}),
		ProgramErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "program_errors_total",
			Help:      "Staker program failures, by error name.",
		}, []string{"error"}),
		StakeMovements: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stake_movements_total",
			Help:      "Stake and unstake events, by kind and stake mint.",
		}, []string{"kind", "stake_mint"}),
		StakeVolume: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stake_volume_total",
			Help:      "Stake tokens moved by stake and unstake events, by kind and stake mint.",
		}, []string{"kind", "stake_mint"}),

		Slot: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slot",
			Help:      "Slot of the latest blockhash.",
		}),
		Accounts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accounts",
			Help:      "Accounts in the store.",
		}),
		PoolCount: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_count",
			Help:      "Initialized staking pools.",
		}),
		PoolStaked: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_staked",
			Help:      "Stake tokens held in custody by each pool vault.",
		}, []string{"stake_mint"}),
		PoolPositions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_position_supply",
			Help:      "Outstanding position tokens of each pool.",
		}, []string{"stake_mint"}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}

// TransactionProcessed records a finished transaction.
func (m *Metrics) TransactionProcessed(res *types.TransactionResult, elapsed time.Duration) {
	m.Transactions.WithLabelValues(result(res.Success)).Inc()
	m.TransactionDuration.Observe(elapsed.Seconds())
	m.ComputeUnits.Observe(float64(res.ComputeUnits))

	var pe *staker.ProgramError
	if errors.As(res.Error, &pe) {
		m.ProgramErrors.WithLabelValues(pe.Name).Inc()
	}
	if !res.Success {
		return
	}
	events, err := staker.ParseEvents(res.Logs)
	if err != nil {
		return
	}
	for _, e := range events {
		mint := e.StakeMint.String()
		m.StakeMovements.WithLabelValues(e.Kind, mint).Inc()
		m.StakeVolume.WithLabelValues(e.Kind, mint).Add(float64(e.Amount))
	}
}

// InstructionProcessed records one top-level instruction.
func (m *Metrics) InstructionProcessed(program, instruction string, err error) {
	m.Instructions.WithLabelValues(program, instruction, result(err == nil)).Inc()
}
