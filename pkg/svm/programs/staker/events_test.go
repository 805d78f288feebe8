package staker_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-staker/pkg/crypto"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/staker"
)

func TestEvents_StakeAndUnstake(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.initialize())
	user := keypair(t, 10)
	u := f.register(user)
	f.credit(u, 500)

	res := f.mustSend([]*crypto.Keypair{user}, staker.NewStakeInstruction(f.pool, u, 300))
	events, err := staker.ParseEvents(res.Logs)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, staker.Event{
		Kind:      staker.EventStaked,
		Pool:      f.pool.Pool,
		StakeMint: f.stakeMint,
		User:      user.Pubkey(),
		Amount:    300,
	}, events[0])

	res = f.mustSend([]*crypto.Keypair{user},
		staker.NewUnstakeInstruction(f.pool, u, 100),
		staker.NewUnstakeInstruction(f.pool, u, 50),
	)
	events, err = staker.ParseEvents(res.Logs)
	require.NoError(t, err)
	require.Len(t, events, 2)
	for i, amount := range []uint64{100, 50} {
		assert.Equal(t, staker.EventUnstaked, events[i].Kind)
		assert.Equal(t, amount, events[i].Amount)
	}
}

func TestParseEvents(t *testing.T) {
	b64 := base64.StdEncoding.EncodeToString
	disc := staker.StakedDiscriminator

	events, err := staker.ParseEvents([]string{
		"Program log: Instruction: Stake",
		"Program data: " + b64([]byte("not-an-event")),
		"Program data: " + b64([]byte{1, 2, 3, 4, 5, 6, 7, 8}) + " " + b64(make([]byte, 104)),
		"Program data: %%%",
	})
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = staker.ParseEvents([]string{"Program data: " + b64(disc[:]) + " " + b64([]byte{1, 2, 3})})
	require.ErrorIs(t, err, staker.ErrInvalidAccountData)
}
