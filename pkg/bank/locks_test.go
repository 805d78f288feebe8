package bank

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-staker/pkg/types"
)

func key(b byte) types.Pubkey {
	return types.Pubkey{b}
}

func TestAccountLocks_WriteExcludes(t *testing.T) {
	l := NewAccountLocks()
	set, ok := l.TryLock([]types.Pubkey{key(1)}, []types.Pubkey{key(2)})
	require.True(t, ok)

	_, ok = l.TryLock([]types.Pubkey{key(1)}, nil)
	assert.False(t, ok, "second writer")
	_, ok = l.TryLock(nil, []types.Pubkey{key(1)})
	assert.False(t, ok, "reader of a written key")
	_, ok = l.TryLock([]types.Pubkey{key(2)}, nil)
	assert.False(t, ok, "writer of a read key")

	reader, ok := l.TryLock(nil, []types.Pubkey{key(2)})
	assert.True(t, ok, "readers share")
	reader.Release()

	set.Release()
	set.Release()
	w, r := l.Held()
	assert.Zero(t, w)
	assert.Zero(t, r)
}

func TestAccountLocks_AllOrNothing(t *testing.T) {
	l := NewAccountLocks()
	held, ok := l.TryLock([]types.Pubkey{key(2)}, nil)
	require.True(t, ok)

	_, ok = l.TryLock([]types.Pubkey{key(1), key(2)}, nil)
	require.False(t, ok)
	w, _ := l.Held()
	assert.Equal(t, 1, w, "no partial hold of key 1")

	held.Release()
}

func TestAccountLocks_WritableWinsOverReadonly(t *testing.T) {
	l := NewAccountLocks()
	set, ok := l.TryLock([]types.Pubkey{key(1), key(1)}, []types.Pubkey{key(1)})
	require.True(t, ok)
	w, r := l.Held()
	assert.Equal(t, 1, w)
	assert.Zero(t, r)
	set.Release()
}

func TestAccountLocks_WaitAndCancel(t *testing.T) {
	l := NewAccountLocks()
	held, ok := l.TryLock([]types.Pubkey{key(1)}, nil)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := l.Lock(ctx, []types.Pubkey{key(1)}, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	acquired := make(chan *LockSet)
	go func() {
		set, err := l.Lock(context.Background(), nil, []types.Pubkey{key(1)})
		if err == nil {
			acquired <- set
		}
	}()

	select {
	case <-acquired:
		t.Fatal("acquired while held")
	case <-time.After(10 * time.Millisecond):
	}
	held.Release()

	select {
	case set := <-acquired:
		set.Release()
	case <-time.After(time.Second):
		t.Fatal("waiter not woken")
	}
}

func TestStatusCache(t *testing.T) {
	c := newStatusCache(2)
	sig := func(b byte) types.Signature { return types.Signature{b} }

	require.True(t, c.reserve(sig(1)))
	assert.False(t, c.reserve(sig(1)), "pending")
	c.cancel(sig(1))
	require.True(t, c.reserve(sig(1)))
	c.commit(sig(1))
	assert.False(t, c.reserve(sig(1)), "processed")

	for _, s := range []byte{2, 3} {
		require.True(t, c.reserve(sig(s)))
		c.commit(sig(s))
	}
	assert.False(t, c.contains(sig(1)), "evicted")
	assert.True(t, c.contains(sig(2)))
	assert.True(t, c.contains(sig(3)))
}
