// Package bank executes signed transactions against the account store.
//
// The bank verifies signatures, checks the recent blockhash and the status
// cache, locks every account the transaction names, runs its instructions
// through the registered native programs on cloned account state and then
// commits the modified accounts in one atomic write. A failed transaction
// writes nothing.
package bank

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fortiblox/x1-staker/pkg/accounts"
	"github.com/fortiblox/x1-staker/pkg/types"
)

// Bank errors
var (
	ErrBlockhashNotFound = errors.New("blockhash not found")
	ErrAlreadyProcessed  = errors.New("transaction already processed")
	ErrSignatureFailure  = errors.New("transaction signature verification failed")
	ErrInvalidAccount    = errors.New("invalid account index")
	ErrAirdropDisabled   = errors.New("airdrops are disabled")
	ErrAirdropTooLarge   = errors.New("airdrop exceeds the configured limit")
)

// Defaults
const (
	// DefaultBlockhashWindow is how many recent blockhashes are accepted.
	DefaultBlockhashWindow = 150

	// DefaultMaxAirdrop is the largest single faucet credit.
	DefaultMaxAirdrop = 100 * 1_000_000_000
)

// Observer receives execution events. The metrics package implements it.
type Observer interface {
	TransactionProcessed(result *types.TransactionResult, elapsed time.Duration)
	InstructionProcessed(program, instruction string, err error)
}

type nopObserver struct{}

func (nopObserver) TransactionProcessed(*types.TransactionResult, time.Duration) {}
func (nopObserver) InstructionProcessed(string, string, error)                   {}

// Bank is the transaction processor of the ledger.
type Bank struct {
	db       accounts.AccountsDB
	programs *ProgramRegistry
	locks    *AccountLocks
	status   *statusCache
	log      *slog.Logger
	observer Observer

	computeUnits    uint64
	blockhashWindow int
	airdrops        bool
	maxAirdrop      uint64

	mu          sync.RWMutex
	slot        types.Slot
	blockhashes []types.Hash // oldest first
	known       map[types.Hash]types.Slot
}

// Option configures a Bank.
type Option func(*Bank)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bank) { b.log = l }
}

// WithObserver sets the receiver of execution events.
func WithObserver(o Observer) Option {
	return func(b *Bank) { b.observer = o }
}

// WithPrograms replaces the default program registry.
func WithPrograms(r *ProgramRegistry) Option {
	return func(b *Bank) { b.programs = r }
}

// WithComputeUnits sets the compute budget of a transaction.
func WithComputeUnits(units uint64) Option {
	return func(b *Bank) { b.computeUnits = units }
}

// WithBlockhashWindow sets how many recent blockhashes are accepted.
func WithBlockhashWindow(n int) Option {
	return func(b *Bank) {
		if n > 0 {
			b.blockhashWindow = n
		}
	}
}

// WithStatusCacheSize sets how many processed signatures are remembered.
func WithStatusCacheSize(n int) Option {
	return func(b *Bank) { b.status = newStatusCache(n) }
}

// WithAirdrops enables the faucet with a per-request limit.
func WithAirdrops(maxLamports uint64) Option {
	return func(b *Bank) {
		b.airdrops = true
		b.maxAirdrop = maxLamports
	}
}

// New creates a bank over db.
func New(db accounts.AccountsDB, opts ...Option) *Bank {
	b := &Bank{
		db:              db,
		programs:        DefaultPrograms(),
		locks:           NewAccountLocks(),
		status:          newStatusCache(DefaultStatusCacheSize),
		log:             slog.Default(),
		observer:        nopObserver{},
		computeUnits:    uint64(types.DefaultComputeUnitsPerTransaction),
		blockhashWindow: DefaultBlockhashWindow,
		maxAirdrop:      DefaultMaxAirdrop,
		known:           make(map[types.Hash]types.Slot),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With("component", "bank")
	b.pushBlockhash(types.SHA256([]byte("staker genesis")))
	return b
}

// Programs returns the program registry.
func (b *Bank) Programs() *ProgramRegistry {
	return b.programs
}

// Slot returns the slot of the latest blockhash.
func (b *Bank) Slot() types.Slot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.slot
}

// LatestBlockhash returns the newest blockhash and its slot.
func (b *Bank) LatestBlockhash() (types.Hash, types.Slot) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.blockhashes[len(b.blockhashes)-1], b.slot
}

// BlockhashWindow returns how many recent blockhashes are accepted.
func (b *Bank) BlockhashWindow() int {
	return b.blockhashWindow
}

// IsBlockhashValid reports whether h is still inside the window.
func (b *Bank) IsBlockhashValid(h types.Hash) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.known[h]
	return ok
}

// AdvanceBlockhash issues a new blockhash, expiring the oldest one once the
// window is full.
func (b *Bank) AdvanceBlockhash() types.Hash {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.blockhashes[len(b.blockhashes)-1]
	var slot [8]byte
	binary.LittleEndian.PutUint64(slot[:], uint64(b.slot+1))
	next := types.SHA256(prev[:], slot[:])
	b.slot++
	b.pushBlockhashLocked(next)
	return next
}

// RunBlockhashTicker advances the blockhash every interval until ctx is done.
func (b *Bank) RunBlockhashTicker(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h := b.AdvanceBlockhash()
			b.log.Debug("advanced blockhash", "blockhash", h.String(), "slot", b.Slot())
		}
	}
}

func (b *Bank) pushBlockhash(h types.Hash) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pushBlockhashLocked(h)
}

func (b *Bank) pushBlockhashLocked(h types.Hash) {
	b.blockhashes = append(b.blockhashes, h)
	b.known[h] = b.slot
	if len(b.blockhashes) > b.blockhashWindow {
		delete(b.known, b.blockhashes[0])
		b.blockhashes = b.blockhashes[1:]
	}
}

// GetAccount returns the stored account, or nil if it does not exist.
func (b *Bank) GetAccount(pubkey types.Pubkey) (*types.Account, error) {
	return b.db.GetAccount(pubkey)
}

// GetBalance returns the lamport balance of pubkey, zero if it does not exist.
func (b *Bank) GetBalance(pubkey types.Pubkey) (types.Lamports, error) {
	acc, err := b.db.GetAccount(pubkey)
	if err != nil || acc == nil {
		return 0, err
	}
	return acc.Lamports, nil
}

// ForEachAccount iterates the account store in pubkey order.
func (b *Bank) ForEachAccount(fn func(types.Pubkey, *types.Account) error) error {
	return b.db.ForEach(fn)
}

// StateHash returns the merkle root of every stored account.
func (b *Bank) StateHash() (types.Hash, error) {
	return accounts.ComputeStateHash(b.db)
}

// AccountsCount returns the number of stored accounts.
func (b *Bank) AccountsCount() uint64 {
	return b.db.GetAccountsCount()
}

// HasProcessed reports whether a transaction with sig was committed.
func (b *Bank) HasProcessed(sig types.Signature) bool {
	return b.status.contains(sig)
}

// Airdrop credits lamports to pubkey from the local faucet and returns the
// new balance.
func (b *Bank) Airdrop(ctx context.Context, pubkey types.Pubkey, lamports uint64) (types.Lamports, error) {
	if !b.airdrops {
		return 0, ErrAirdropDisabled
	}
	if lamports > b.maxAirdrop {
		return 0, fmt.Errorf("%w: %d > %d", ErrAirdropTooLarge, lamports, b.maxAirdrop)
	}

	set, err := b.locks.Lock(ctx, []types.Pubkey{pubkey}, nil)
	if err != nil {
		return 0, err
	}
	defer set.Release()

	acc, err := b.db.GetAccount(pubkey)
	if err != nil {
		return 0, err
	}
	if acc == nil {
		acc = types.NewAccount(0, types.SystemProgramID)
	}
	acc.Lamports += types.Lamports(lamports)
	if err := b.db.Commit([]types.AccountRef{{Pubkey: pubkey, Account: acc}}); err != nil {
		return 0, err
	}
	b.log.Info("airdrop", "to", pubkey, "lamports", lamports, "balance", acc.Lamports)
	return acc.Lamports, nil
}

// Close closes the account store.
func (b *Bank) Close() error {
	return b.db.Close()
}
