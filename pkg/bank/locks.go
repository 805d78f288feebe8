package bank

import (
	"context"
	"sync"

	"github.com/fortiblox/x1-staker/pkg/types"
)

// AccountLocks hands out write-exclusive and read-shared locks over sets
// of accounts. A set is acquired all at once or not at all, so holders
// never wait on each other while holding a partial set.
type AccountLocks struct {
	mu      sync.Mutex
	writers map[types.Pubkey]struct{}
	readers map[types.Pubkey]int
	// released is closed and replaced whenever a set is released.
	released chan struct{}
}

// NewAccountLocks creates an empty lock table.
func NewAccountLocks() *AccountLocks {
	return &AccountLocks{
		writers:  make(map[types.Pubkey]struct{}),
		readers:  make(map[types.Pubkey]int),
		released: make(chan struct{}),
	}
}

// LockSet is a held set of account locks.
type LockSet struct {
	locks    *AccountLocks
	writable []types.Pubkey
	readonly []types.Pubkey
	once     sync.Once
}

// Lock blocks until every writable key can be held exclusively and every
// read-only key shared, or until ctx is done. A key listed in both is
// locked for writing.
func (l *AccountLocks) Lock(ctx context.Context, writable, readonly []types.Pubkey) (*LockSet, error) {
	set := newLockSet(l, writable, readonly)
	for {
		l.mu.Lock()
		if l.available(set) {
			l.acquire(set)
			l.mu.Unlock()
			return set, nil
		}
		wait := l.released
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// TryLock acquires the set if it is free right now.
func (l *AccountLocks) TryLock(writable, readonly []types.Pubkey) (*LockSet, bool) {
	set := newLockSet(l, writable, readonly)
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.available(set) {
		return nil, false
	}
	l.acquire(set)
	return set, true
}

// Held reports how many keys are currently locked for writing and reading.
func (l *AccountLocks) Held() (writers, readers int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.writers), len(l.readers)
}

func newLockSet(l *AccountLocks, writable, readonly []types.Pubkey) *LockSet {
	w := make(map[types.Pubkey]struct{}, len(writable))
	set := &LockSet{locks: l}
	for _, pk := range writable {
		if _, dup := w[pk]; !dup {
			w[pk] = struct{}{}
			set.writable = append(set.writable, pk)
		}
	}
	r := make(map[types.Pubkey]struct{}, len(readonly))
	for _, pk := range readonly {
		_, isWriter := w[pk]
		_, dup := r[pk]
		if !isWriter && !dup {
			r[pk] = struct{}{}
			set.readonly = append(set.readonly, pk)
		}
	}
	return set
}

func (l *AccountLocks) available(set *LockSet) bool {
	for _, pk := range set.writable {
		if _, ok := l.writers[pk]; ok {
			return false
		}
		if l.readers[pk] > 0 {
			return false
		}
	}
	for _, pk := range set.readonly {
		if _, ok := l.writers[pk]; ok {
			return false
		}
	}
	return true
}

func (l *AccountLocks) acquire(set *LockSet) {
	for _, pk := range set.writable {
		l.writers[pk] = struct{}{}
	}
	for _, pk := range set.readonly {
		l.readers[pk]++
	}
}

// Release gives the locks back. Calling it more than once is a no-op.
func (s *LockSet) Release() {
	s.once.Do(func() {
		l := s.locks
		l.mu.Lock()
		for _, pk := range s.writable {
			delete(l.writers, pk)
		}
		for _, pk := range s.readonly {
			if l.readers[pk] <= 1 {
				delete(l.readers, pk)
			} else {
				l.readers[pk]--
			}
		}
		close(l.released)
		l.released = make(chan struct{})
		l.mu.Unlock()
	})
}
