package accounts

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/fortiblox/x1-staker/pkg/types"
)

// accountKeyPrefix is the prefix for account keys in BadgerDB.
const accountKeyPrefix = "account:"

// BadgerDB is a persistent implementation of AccountsDB using BadgerDB.
type BadgerDB struct {
	db    *badger.DB
	count atomic.Int64
}

// NewBadgerDB opens (or creates) a BadgerDB account database at path.
func NewBadgerDB(path string) (*BadgerDB, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	bdb := &BadgerDB{db: db}

	count, err := bdb.countAccounts()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}
	bdb.count.Store(int64(count))

	return bdb, nil
}

func makeAccountKey(pubkey types.Pubkey) []byte {
	key := make([]byte, len(accountKeyPrefix)+32)
	copy(key, accountKeyPrefix)
	copy(key[len(accountKeyPrefix):], pubkey[:])
	return key
}

// GetAccount retrieves an account by pubkey.
// Returns nil, nil if account does not exist.
func (db *BadgerDB) GetAccount(pubkey types.Pubkey) (*types.Account, error) {
	var account *types.Account

	err := db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(makeAccountKey(pubkey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var derr error
			account, derr = DeserializeAccount(val)
			return derr
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", pubkey, err)
	}
	return account, nil
}

// SetAccount stores an account.
func (db *BadgerDB) SetAccount(pubkey types.Pubkey, account *types.Account) error {
	return db.Commit([]types.AccountRef{{Pubkey: pubkey, Account: account}})
}

// DeleteAccount removes an account.
func (db *BadgerDB) DeleteAccount(pubkey types.Pubkey) error {
	return db.Commit([]types.AccountRef{{Pubkey: pubkey}})
}

// HasAccount returns true if the account exists.
func (db *BadgerDB) HasAccount(pubkey types.Pubkey) bool {
	var exists bool
	_ = db.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(makeAccountKey(pubkey))
		exists = err == nil
		return nil
	})
	return exists
}

// Commit writes every update in a single badger transaction. The account
// count is only adjusted once the transaction has committed.
func (db *BadgerDB) Commit(updates []types.AccountRef) error {
	var delta int64

	err := db.db.Update(func(txn *badger.Txn) error {
		delta = 0
		for _, u := range updates {
			key := makeAccountKey(u.Pubkey)
			_, err := txn.Get(key)
			existed := err == nil
			if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			if u.Account.IsEmpty() {
				if !existed {
					continue
				}
				if err := txn.Delete(key); err != nil {
					return err
				}
				delta--
				continue
			}

			data, err := SerializeAccount(u.Account)
			if err != nil {
				return err
			}
			if err := txn.Set(key, data); err != nil {
				return err
			}
			if !existed {
				delta++
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit %d accounts: %w", len(updates), err)
	}

	db.count.Add(delta)
	return nil
}

// ForEach iterates accounts in key order, which is pubkey order.
func (db *BadgerDB) ForEach(fn func(pubkey types.Pubkey, account *types.Account) error) error {
	return db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(accountKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			var pubkey types.Pubkey
			copy(pubkey[:], item.Key()[len(accountKeyPrefix):])

			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			account, err := DeserializeAccount(val)
			if err != nil {
				return fmt.Errorf("account %s: %w", pubkey, err)
			}
			if err := fn(pubkey, account); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetAccountsCount returns the total number of accounts.
func (db *BadgerDB) GetAccountsCount() uint64 {
	return uint64(db.count.Load())
}

// Close closes the database.
func (db *BadgerDB) Close() error {
	return db.db.Close()
}

func (db *BadgerDB) countAccounts() (uint64, error) {
	var count uint64

	err := db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(accountKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Ensure BadgerDB implements AccountsDB.
var _ AccountsDB = (*BadgerDB)(nil)
