package staker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-staker/pkg/accounts"
	"github.com/fortiblox/x1-staker/pkg/bank"
	"github.com/fortiblox/x1-staker/pkg/crypto"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/staker"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/system"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/token"
	"github.com/fortiblox/x1-staker/pkg/types"
)

const airdrop = 10_000_000_000

func keypair(t *testing.T, seed byte) *crypto.Keypair {
	t.Helper()
	s := make([]byte, crypto.SeedSize)
	s[0] = seed
	kp, err := crypto.KeypairFromSeed(s)
	require.NoError(t, err)
	return kp
}

// fixture is a ledger with one stake mint and its pool addresses derived.
type fixture struct {
	t    *testing.T
	bank *bank.Bank

	admin     *crypto.Keypair
	authority *crypto.Keypair
	stakeMint types.Pubkey
	pool      *staker.PoolAddresses
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:         t,
		bank:      bank.New(accounts.NewMemoryDB(), bank.WithAirdrops(bank.DefaultMaxAirdrop)),
		admin:     keypair(t, 1),
		authority: keypair(t, 2),
	}
	f.fund(f.admin)

	f.pool = f.newStakeMint(3)
	f.stakeMint = f.pool.StakeMint
	return f
}

// newStakeMint creates a mint with f.authority as mint authority and
// returns the pool addresses derived from it.
func (f *fixture) newStakeMint(seed byte) *staker.PoolAddresses {
	f.t.Helper()
	mint := keypair(f.t, seed)
	rent := uint64(types.RentExemptMinimum(token.MintSize))
	f.mustSend([]*crypto.Keypair{f.admin, mint},
		system.CreateAccount(f.admin.Pubkey(), mint.Pubkey(), rent, token.MintSize, types.TokenProgramID),
		token.InitializeMint(mint.Pubkey(), 6, f.authority.Pubkey(), nil),
	)
	pool, err := staker.DerivePoolAddresses(mint.Pubkey())
	require.NoError(f.t, err)
	return pool
}

func (f *fixture) fund(kp *crypto.Keypair) {
	f.t.Helper()
	_, err := f.bank.Airdrop(context.Background(), kp.Pubkey(), airdrop)
	require.NoError(f.t, err)
}

// send signs ixs with signers, the first paying, on a fresh blockhash.
func (f *fixture) send(signers []*crypto.Keypair, ixs ...types.Instruction) (*types.TransactionResult, error) {
	f.t.Helper()
	blockhash := f.bank.AdvanceBlockhash()
	msg, err := types.NewMessage(signers[0].Pubkey(), ixs, blockhash)
	require.NoError(f.t, err)
	tx := &types.Transaction{Message: *msg}
	require.NoError(f.t, crypto.SignTransaction(tx, signers...))
	return f.bank.ExecuteTransaction(context.Background(), tx)
}

func (f *fixture) mustSend(signers []*crypto.Keypair, ixs ...types.Instruction) *types.TransactionResult {
	f.t.Helper()
	res, err := f.send(signers, ixs...)
	require.NoError(f.t, err, "logs: %v", res.Logs)
	return res
}

func (f *fixture) initialize() error {
	_, err := f.send([]*crypto.Keypair{f.admin}, staker.NewInitializeInstruction(f.admin.Pubkey(), f.pool))
	return err
}

// register funds and registers a user in the pool.
func (f *fixture) register(kp *crypto.Keypair) *staker.UserAccounts {
	f.t.Helper()
	f.fund(kp)
	u, err := staker.DeriveUserAccounts(f.pool, kp.Pubkey())
	require.NoError(f.t, err)
	f.mustSend([]*crypto.Keypair{kp}, staker.NewRegisterStakeInstruction(f.pool, u))
	return u
}

func (f *fixture) credit(u *staker.UserAccounts, amount uint64) {
	f.t.Helper()
	f.mustSend([]*crypto.Keypair{f.admin, f.authority}, token.MintTo(f.stakeMint, u.StakeAccount, f.authority.Pubkey(), amount))
}

func (f *fixture) stake(kp *crypto.Keypair, u *staker.UserAccounts, amount uint64) error {
	_, err := f.send([]*crypto.Keypair{kp}, staker.NewStakeInstruction(f.pool, u, amount))
	return err
}

func (f *fixture) unstake(kp *crypto.Keypair, u *staker.UserAccounts, amount uint64) error {
	_, err := f.send([]*crypto.Keypair{kp}, staker.NewUnstakeInstruction(f.pool, u, amount))
	return err
}

func (f *fixture) balance(pk types.Pubkey) uint64 {
	f.t.Helper()
	acc, err := f.bank.GetAccount(pk)
	require.NoError(f.t, err)
	holding, err := token.ReadTokenAccount(acc)
	require.NoError(f.t, err)
	return holding.Amount
}

func (f *fixture) supply(mint types.Pubkey) uint64 {
	f.t.Helper()
	acc, err := f.bank.GetAccount(mint)
	require.NoError(f.t, err)
	m, err := token.ReadMint(acc)
	require.NoError(f.t, err)
	return m.Supply
}

// requireConserved checks that custody matches the outstanding position
// supply.
func (f *fixture) requireConserved() {
	f.t.Helper()
	require.Equal(f.t, f.balance(f.pool.Vault), f.supply(f.pool.PositionMint))
}
