package metrics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fortiblox/x1-staker/pkg/types"
)

// HealthStatus represents the health status of the ledger.
type HealthStatus struct {
	Healthy   bool             `json:"healthy"`
	Ready     bool             `json:"ready"`
	Message   string           `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks,omitempty"`
	Uptime    time.Duration    `json:"uptime"`
}

// Check represents an individual health check result.
type Check struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency,omitempty"`
}

// HealthCheckFunc is a function that performs a health check.
type HealthCheckFunc func(ctx context.Context) Check

// HealthChecker runs named checks against a ledger.
type HealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]HealthCheckFunc
	status    atomic.Pointer[HealthStatus]
	ledger    Ledger
	startTime time.Time
	interval  time.Duration
	now       func() time.Time

	running  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}

	freshness time.Duration
	slotMu    sync.Mutex
	lastSlot  types.Slot
	slotSeen  time.Time
}

// HealthCheckerOption is a function that configures a HealthChecker.
type HealthCheckerOption func(*HealthChecker)

// WithBlockhashFreshness fails the ledger when no new blockhash was issued
// within d. Zero disables the check.
func WithBlockhashFreshness(d time.Duration) HealthCheckerOption {
	return func(h *HealthChecker) {
		h.freshness = d
	}
}

// WithHealthCheckInterval sets the health check interval.
func WithHealthCheckInterval(d time.Duration) HealthCheckerOption {
	return func(h *HealthChecker) {
		h.interval = d
	}
}

// NewHealthChecker creates a health checker with the store and pool
// conservation checks registered.
func NewHealthChecker(l Ledger, opts ...HealthCheckerOption) *HealthChecker {
	h := &HealthChecker{
		checks:    make(map[string]HealthCheckFunc),
		ledger:    l,
		startTime: time.Now(),
		interval:  10 * time.Second,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.status.Store(&HealthStatus{Healthy: true, Timestamp: h.startTime})

	h.RegisterCheck("accounts_store", h.checkStore)
	h.RegisterCheck("pool_conservation", h.checkPools)
	if h.freshness > 0 {
		h.lastSlot = l.Slot()
		h.slotSeen = h.startTime
		h.RegisterCheck("blockhash_freshness", h.checkFreshness)
	}
	return h
}

// RegisterCheck registers a health check.
func (h *HealthChecker) RegisterCheck(name string, check HealthCheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// IsHealthy returns true if the last run passed every check.
func (h *HealthChecker) IsHealthy() bool {
	return h.status.Load().Healthy
}

// IsReady returns true once a full run has passed.
func (h *HealthChecker) IsReady() bool {
	return h.status.Load().Ready
}

// GetStatus returns the status of the last run.
func (h *HealthChecker) GetStatus() *HealthStatus {
	return h.status.Load()
}

// Check runs all health checks and updates the status.
func (h *HealthChecker) Check(ctx context.Context) *HealthStatus {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	status := &HealthStatus{
		Healthy:   true,
		Ready:     true,
		Timestamp: h.now(),
		Checks:    make(map[string]Check, len(names)),
		Uptime:    time.Since(h.startTime),
	}

	var failed []string
	for _, name := range names {
		h.mu.RLock()
		fn := h.checks[name]
		h.mu.RUnlock()

		start := time.Now()
		result := fn(ctx)
		result.Name = name
		if result.Latency == 0 {
			result.Latency = time.Since(start)
		}
		status.Checks[name] = result
		if !result.Healthy {
			status.Healthy = false
			status.Ready = false
			failed = append(failed, result.Message)
		}
	}

	if len(failed) > 0 {
		status.Message = failed[0]
		if len(failed) > 1 {
			status.Message += fmt.Sprintf(" (and %d more)", len(failed)-1)
		}
	}

	h.status.Store(status)
	return status
}

func (h *HealthChecker) checkStore(context.Context) Check {
	if _, err := h.ledger.GetAccount(types.SystemProgramID); err != nil {
		return Check{Message: "account store read failed: " + err.Error()}
	}
	return Check{Healthy: true}
}

func (h *HealthChecker) checkPools(context.Context) Check {
	pools, err := ScanPools(h.ledger)
	if err != nil {
		return Check{Message: "pool scan failed: " + err.Error()}
	}
	for _, p := range pools {
		if !p.Conserved() {
			return Check{Message: fmt.Sprintf("pool %s holds %d but has %d positions outstanding", p.Address, p.Staked, p.PositionSupply)}
		}
	}
	return Check{Healthy: true}
}

func (h *HealthChecker) checkFreshness(context.Context) Check {
	h.slotMu.Lock()
	defer h.slotMu.Unlock()

	now := h.now()
	if slot := h.ledger.Slot(); slot != h.lastSlot {
		h.lastSlot = slot
		h.slotSeen = now
	}
	if age := now.Sub(h.slotSeen); age > h.freshness {
		return Check{Message: fmt.Sprintf("no blockhash issued for %s", age.Round(time.Second)), Latency: age}
	}
	return Check{Healthy: true}
}

// Start runs the checks immediately and then every interval.
func (h *HealthChecker) Start(ctx context.Context) {
	if h.running.Swap(true) {
		return
	}

	go func() {
		defer h.running.Store(false)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		h.Check(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case <-ticker.C:
				h.Check(ctx)
			}
		}
	}()
}

// Stop stops the periodic checks.
func (h *HealthChecker) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}
