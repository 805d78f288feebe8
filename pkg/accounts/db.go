// Package accounts provides account storage for the staker ledger.
package accounts

import (
	"errors"

	"github.com/fortiblox/x1-staker/pkg/types"
)

// ErrClosed is returned by operations on a closed database.
var ErrClosed = errors.New("accounts db closed")

// AccountsDB defines the interface for account storage.
type AccountsDB interface {
	// GetAccount retrieves an account by pubkey.
	// Returns nil, nil if account does not exist.
	GetAccount(pubkey types.Pubkey) (*types.Account, error)

	// SetAccount stores an account.
	SetAccount(pubkey types.Pubkey, account *types.Account) error

	// DeleteAccount removes an account.
	DeleteAccount(pubkey types.Pubkey) error

	// HasAccount returns true if the account exists.
	HasAccount(pubkey types.Pubkey) bool

	// Commit applies a set of account writes atomically: either every
	// update is visible afterwards or none is. An update whose account is
	// nil or empty deletes the key.
	Commit(updates []types.AccountRef) error

	// ForEach calls fn for every stored account. Iteration stops at the
	// first error, which is returned.
	ForEach(fn func(pubkey types.Pubkey, account *types.Account) error) error

	// GetAccountsCount returns the total number of accounts.
	GetAccountsCount() uint64

	// Close closes the database.
	Close() error
}
