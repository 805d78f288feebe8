package staker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-staker/pkg/crypto"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/staker"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/system"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/token"
	"github.com/fortiblox/x1-staker/pkg/types"
)

func (f *fixture) lamports(pk types.Pubkey) types.Lamports {
	f.t.Helper()
	bal, err := f.bank.GetBalance(pk)
	require.NoError(f.t, err)
	return bal
}

func TestInitialize_FundedAddresses(t *testing.T) {
	f := newFixture(t)
	griefer := keypair(t, 50)
	f.fund(griefer)

	vaultRent := types.RentExemptMinimum(token.TokenAccountSize)
	f.mustSend([]*crypto.Keypair{griefer},
		system.Transfer(griefer.Pubkey(), f.pool.Pool, 1),
		system.Transfer(griefer.Pubkey(), f.pool.PositionMint, 1),
		system.Transfer(griefer.Pubkey(), f.pool.Vault, uint64(vaultRent)+7),
	)

	require.NoError(t, f.initialize())
	assert.Equal(t, types.RentExemptMinimum(staker.PoolStateSize), f.lamports(f.pool.Pool))
	assert.Equal(t, types.RentExemptMinimum(token.MintSize), f.lamports(f.pool.PositionMint))
	assert.Equal(t, vaultRent+7, f.lamports(f.pool.Vault))

	acc, err := f.bank.GetAccount(f.pool.Pool)
	require.NoError(t, err)
	assert.Equal(t, staker.ProgramID, acc.Owner)
	pool, err := staker.ReadPoolState(acc)
	require.NoError(t, err)
	assert.Equal(t, f.stakeMint, pool.StakeMint)

	alice := keypair(t, 10)
	u := f.register(alice)
	f.credit(u, 300)
	require.NoError(t, f.stake(alice, u, 300))
	assert.Equal(t, uint64(300), f.balance(f.pool.Vault))
	f.requireConserved()

	err = f.initialize()
	require.ErrorIs(t, err, staker.ErrAccountAlreadyInitialized)
}

func TestRegisterStake_FundedHoldings(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.initialize())
	griefer := keypair(t, 50)
	f.fund(griefer)

	alice := keypair(t, 10)
	f.fund(alice)
	u, err := staker.DeriveUserAccounts(f.pool, alice.Pubkey())
	require.NoError(t, err)
	f.mustSend([]*crypto.Keypair{griefer},
		system.Transfer(griefer.Pubkey(), u.StakeAccount, 1),
		system.Transfer(griefer.Pubkey(), u.PositionAccount, 1),
	)

	f.mustSend([]*crypto.Keypair{alice}, staker.NewRegisterStakeInstruction(f.pool, u))
	for _, pk := range []types.Pubkey{u.StakeAccount, u.PositionAccount} {
		acc, err := f.bank.GetAccount(pk)
		require.NoError(t, err)
		assert.Equal(t, types.TokenProgramID, acc.Owner)
		assert.Equal(t, types.RentExemptMinimum(token.TokenAccountSize), acc.Lamports)
	}

	f.credit(u, 1_000)
	require.NoError(t, f.stake(alice, u, 400))
	require.NoError(t, f.unstake(alice, u, 400))
	assert.Equal(t, uint64(1_000), f.balance(u.StakeAccount))
	f.requireConserved()
}

func TestTwoPools(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.initialize())
	poolB := f.newStakeMint(4)
	f.mustSend([]*crypto.Keypair{f.admin}, staker.NewInitializeInstruction(f.admin.Pubkey(), poolB))

	assert.NotEqual(t, f.pool.Pool, poolB.Pool)
	assert.NotEqual(t, f.pool.Vault, poolB.Vault)
	assert.NotEqual(t, f.pool.PositionMint, poolB.PositionMint)
	assert.Equal(t, f.pool.VaultAuthority, poolB.VaultAuthority)
	assert.Equal(t, f.pool.MintAuthority, poolB.MintAuthority)

	alice := keypair(t, 10)
	uA := f.register(alice)
	f.credit(uA, 100)
	require.NoError(t, f.stake(alice, uA, 100))

	uB, err := staker.DeriveUserAccounts(poolB, alice.Pubkey())
	require.NoError(t, err)
	f.mustSend([]*crypto.Keypair{alice}, staker.NewRegisterStakeInstruction(poolB, uB))
	f.mustSend([]*crypto.Keypair{f.admin, f.authority}, token.MintTo(poolB.StakeMint, uB.StakeAccount, f.authority.Pubkey(), 50))
	f.mustSend([]*crypto.Keypair{alice}, staker.NewStakeInstruction(poolB, uB, 50))

	t.Run("pool B record with pool A vault", func(t *testing.T) {
		mixed := *poolB
		mixed.Vault = f.pool.Vault
		_, err := f.send([]*crypto.Keypair{alice}, staker.NewUnstakeInstruction(&mixed, uB, 50))
		require.ErrorIs(t, err, staker.ErrVaultMismatch)
	})

	t.Run("pool A record with pool B vault", func(t *testing.T) {
		mixed := *f.pool
		mixed.Vault = poolB.Vault
		_, err := f.send([]*crypto.Keypair{alice}, staker.NewUnstakeInstruction(&mixed, uA, 50))
		require.ErrorIs(t, err, staker.ErrVaultMismatch)
	})

	t.Run("pool A position mint in pool B", func(t *testing.T) {
		mixed := *poolB
		mixed.PositionMint = f.pool.PositionMint
		_, err := f.send([]*crypto.Keypair{alice}, staker.NewStakeInstruction(&mixed, uB, 10))
		require.ErrorIs(t, err, staker.ErrPosMintMismatch)
	})

	assert.Equal(t, uint64(100), f.balance(f.pool.Vault))
	assert.Equal(t, uint64(50), f.balance(poolB.Vault))
	assert.Equal(t, uint64(100), f.supply(f.pool.PositionMint))
	assert.Equal(t, uint64(50), f.supply(poolB.PositionMint))

	require.NoError(t, f.unstake(alice, uA, 100))
	f.mustSend([]*crypto.Keypair{alice}, staker.NewUnstakeInstruction(poolB, uB, 50))
	assert.Equal(t, uint64(100), f.balance(uA.StakeAccount))
	assert.Equal(t, uint64(50), f.balance(uB.StakeAccount))
}

func TestMovement_ZeroAmountRejectedFirst(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.initialize())
	bob := keypair(t, 12)
	f.fund(bob)
	unregistered, err := staker.DeriveUserAccounts(f.pool, bob.Pubkey())
	require.NoError(t, err)

	require.ErrorIs(t, f.stake(bob, unregistered, 0), staker.ErrInvalidAmount)
	require.ErrorIs(t, f.unstake(bob, unregistered, 0), staker.ErrInvalidAmount)
	require.Error(t, f.stake(bob, unregistered, 1))
	require.NotErrorIs(t, f.stake(bob, unregistered, 1), staker.ErrInvalidAmount)
}
