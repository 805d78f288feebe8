package accounts

import (
	"bytes"
	"sort"
	"sync"

	"github.com/fortiblox/x1-staker/pkg/types"
)

// MemoryDB is an in-memory implementation of AccountsDB.
type MemoryDB struct {
	mu       sync.RWMutex
	accounts map[types.Pubkey]*types.Account
	closed   bool
}

// NewMemoryDB creates a new in-memory account database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		accounts: make(map[types.Pubkey]*types.Account),
	}
}

// GetAccount retrieves an account by pubkey.
// Returns nil, nil if account does not exist.
func (db *MemoryDB) GetAccount(pubkey types.Pubkey) (*types.Account, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.closed {
		return nil, ErrClosed
	}
	account, exists := db.accounts[pubkey]
	if !exists {
		return nil, nil
	}
	return account.Clone(), nil
}

// SetAccount stores an account.
func (db *MemoryDB) SetAccount(pubkey types.Pubkey, account *types.Account) error {
	return db.Commit([]types.AccountRef{{Pubkey: pubkey, Account: account}})
}

// DeleteAccount removes an account.
func (db *MemoryDB) DeleteAccount(pubkey types.Pubkey) error {
	return db.Commit([]types.AccountRef{{Pubkey: pubkey}})
}

// HasAccount returns true if the account exists.
func (db *MemoryDB) HasAccount(pubkey types.Pubkey) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()

	_, exists := db.accounts[pubkey]
	return exists
}

// Commit applies all updates under a single write lock.
func (db *MemoryDB) Commit(updates []types.AccountRef) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}
	for _, u := range updates {
		if u.Account.IsEmpty() {
			delete(db.accounts, u.Pubkey)
			continue
		}
		db.accounts[u.Pubkey] = u.Account.Clone()
	}
	return nil
}

// ForEach iterates accounts in pubkey order on a snapshot taken under the
// read lock, so fn may call back into the database.
func (db *MemoryDB) ForEach(fn func(pubkey types.Pubkey, account *types.Account) error) error {
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return ErrClosed
	}
	refs := make([]types.AccountRef, 0, len(db.accounts))
	for pk, acc := range db.accounts {
		refs = append(refs, types.AccountRef{Pubkey: pk, Account: acc.Clone()})
	}
	db.mu.RUnlock()

	sort.Slice(refs, func(i, j int) bool {
		return bytes.Compare(refs[i].Pubkey[:], refs[j].Pubkey[:]) < 0
	})
	for _, ref := range refs {
		if err := fn(ref.Pubkey, ref.Account); err != nil {
			return err
		}
	}
	return nil
}

// GetAccountsCount returns the total number of accounts.
func (db *MemoryDB) GetAccountsCount() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return uint64(len(db.accounts))
}

// Close closes the database.
func (db *MemoryDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.closed = true
	db.accounts = make(map[types.Pubkey]*types.Account)
	return nil
}

// Ensure MemoryDB implements AccountsDB.
var _ AccountsDB = (*MemoryDB)(nil)
