package metrics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fortiblox/x1-staker/pkg/svm/programs/staker"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/token"
	"github.com/fortiblox/x1-staker/pkg/types"
)

// Ledger is the read side of a bank that the collector samples.
type Ledger interface {
	Slot() types.Slot
	AccountsCount() uint64
	GetAccount(pubkey types.Pubkey) (*types.Account, error)
	ForEachAccount(fn func(types.Pubkey, *types.Account) error) error
}

// PoolStats summarizes one staking pool.
type PoolStats struct {
	Address        types.Pubkey
	StakeMint      types.Pubkey
	Staked         uint64
	PositionSupply uint64
}

// Conserved reports whether the vault holds exactly the outstanding
// position supply.
func (p PoolStats) Conserved() bool {
	return p.Staked == p.PositionSupply
}

// ScanPools walks the store and returns every initialized pool.
func ScanPools(l Ledger) ([]PoolStats, error) {
	var pools []PoolStats
	err := l.ForEachAccount(func(pk types.Pubkey, acc *types.Account) error {
		if acc.Owner != staker.ProgramID {
			return nil
		}
		state, err := staker.DeserializePoolState(acc.Data)
		if err != nil {
			return nil
		}
		pools = append(pools, PoolStats{Address: pk, StakeMint: state.StakeMint})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Reads happen after the walk so ForEach holds no lock on the store
	// while GetAccount runs.
	for i := range pools {
		state, err := poolState(l, pools[i].Address)
		if err != nil {
			return nil, err
		}
		if acc, err := l.GetAccount(state.Vault); err == nil && acc != nil {
			if vault, err := token.ReadTokenAccount(acc); err == nil {
				pools[i].Staked = vault.Amount
			}
		}
		if acc, err := l.GetAccount(state.PosMint); err == nil && acc != nil {
			if mint, err := token.ReadMint(acc); err == nil {
				pools[i].PositionSupply = mint.Supply
			}
		}
	}
	return pools, nil
}

func poolState(l Ledger, pool types.Pubkey) (*staker.PoolState, error) {
	acc, err := l.GetAccount(pool)
	if err != nil {
		return nil, err
	}
	return staker.ReadPoolState(acc)
}

// LedgerCollector samples slot, account and pool gauges from a ledger.
type LedgerCollector struct {
	metrics  *Metrics
	ledger   Ledger
	log      *slog.Logger
	interval time.Duration

	running  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewLedgerCollector creates a collector. A non-positive interval means
// 15 seconds.
func NewLedgerCollector(m *Metrics, l Ledger, interval time.Duration, logger *slog.Logger) *LedgerCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerCollector{
		metrics:  m,
		ledger:   l,
		log:      logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Collect samples the ledger once.
func (c *LedgerCollector) Collect() error {
	c.metrics.Slot.Set(float64(c.ledger.Slot()))
	c.metrics.Accounts.Set(float64(c.ledger.AccountsCount()))

	pools, err := ScanPools(c.ledger)
	if err != nil {
		return err
	}
	c.metrics.PoolCount.Set(float64(len(pools)))
	c.metrics.PoolStaked.Reset()
	c.metrics.PoolPositions.Reset()
	for _, p := range pools {
		mint := p.StakeMint.String()
		c.metrics.PoolStaked.WithLabelValues(mint).Set(float64(p.Staked))
		c.metrics.PoolPositions.WithLabelValues(mint).Set(float64(p.PositionSupply))
		if !p.Conserved() {
			c.log.Error("pool custody does not match position supply",
				"pool", p.Address, "staked", p.Staked, "positions", p.PositionSupply)
		}
	}
	return nil
}

// Start collects immediately and then every interval until ctx is done or
// Stop is called.
func (c *LedgerCollector) Start(ctx context.Context) {
	if c.running.Swap(true) {
		return
	}

	go func() {
		defer c.running.Store(false)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.collect()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.collect()
			}
		}
	}()
}

func (c *LedgerCollector) collect() {
	if err := c.Collect(); err != nil {
		c.log.Warn("ledger metrics collection failed", "error", err)
	}
}

// Stop stops periodic collection.
func (c *LedgerCollector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
