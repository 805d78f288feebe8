package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-staker/pkg/svm/syscall"
	"github.com/fortiblox/x1-staker/pkg/types"
)

type programExecutor struct{ p *TokenProgram }

func (e programExecutor) ExecuteProgram(ctx *syscall.ExecutionContext) error {
	return e.p.Execute(ctx)
}

func testPubkey(seed string) types.Pubkey {
	return types.Pubkey(types.SHA256([]byte(seed)))
}

// ledger is a tiny keyed store for running token instructions.
type ledger map[types.Pubkey]*types.Account

func (l ledger) run(t *testing.T, ix types.Instruction) error {
	t.Helper()
	infos := make([]*syscall.AccountInfo, len(ix.Accounts))
	shared := map[types.Pubkey]*syscall.AccountInfo{}
	for i, meta := range ix.Accounts {
		if info, ok := shared[meta.Pubkey]; ok {
			infos[i] = info
			continue
		}
		infos[i] = syscall.NewAccountInfo(meta.Pubkey, l[meta.Pubkey], meta.IsSigner, meta.IsWritable)
		shared[meta.Pubkey] = infos[i]
	}
	ctx := syscall.NewExecutionContext(programExecutor{New()}, types.TokenProgramID, infos, ix.Data, 10_000)
	if err := ctx.Execute(); err != nil {
		return err
	}
	for _, info := range infos {
		l[info.Pubkey] = info.Account()
	}
	return nil
}

func (l ledger) allocate(pk types.Pubkey, size int) {
	l[pk] = &types.Account{Lamports: 1, Data: make([]byte, size), Owner: types.TokenProgramID}
}

func (l ledger) balance(t *testing.T, pk types.Pubkey) uint64 {
	t.Helper()
	ta, err := ReadTokenAccount(l[pk])
	require.NoError(t, err)
	return ta.Amount
}

func (l ledger) supply(t *testing.T, pk types.Pubkey) uint64 {
	t.Helper()
	m, err := ReadMint(l[pk])
	require.NoError(t, err)
	return m.Supply
}

type fixture struct {
	l         ledger
	mint      types.Pubkey
	authority types.Pubkey
	alice     types.Pubkey
	bob       types.Pubkey
	aliceAcc  types.Pubkey
	bobAcc    types.Pubkey
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		l:         ledger{},
		mint:      testPubkey("mint"),
		authority: testPubkey("authority"),
		alice:     testPubkey("alice"),
		bob:       testPubkey("bob"),
		aliceAcc:  testPubkey("alice-token"),
		bobAcc:    testPubkey("bob-token"),
	}
	f.l.allocate(f.mint, MintSize)
	f.l.allocate(f.aliceAcc, TokenAccountSize)
	f.l.allocate(f.bobAcc, TokenAccountSize)

	require.NoError(t, f.l.run(t, InitializeMint(f.mint, 6, f.authority, nil)))
	require.NoError(t, f.l.run(t, InitializeAccount(f.aliceAcc, f.mint, f.alice)))
	require.NoError(t, f.l.run(t, InitializeAccount(f.bobAcc, f.mint, f.bob)))
	return f
}

func TestStateLayout(t *testing.T) {
	auth := testPubkey("auth")
	mint := NewMint(9, &auth, nil)
	mint.Supply = 42
	data := mint.Serialize()
	require.Len(t, data, MintSize)
	assert.Equal(t, byte(1), data[0], "COption tag")
	assert.Equal(t, byte(42), data[36])
	assert.Equal(t, byte(9), data[44])
	assert.Equal(t, byte(1), data[45])

	decoded, err := DeserializeMint(data)
	require.NoError(t, err)
	assert.Equal(t, mint, decoded)

	acc := NewTokenAccount(testPubkey("m"), testPubkey("o"))
	acc.Amount = 7
	raw := acc.Serialize()
	require.Len(t, raw, TokenAccountSize)
	assert.Equal(t, byte(7), raw[64])
	assert.Equal(t, AccountStateInitialized, raw[108])

	back, err := DeserializeTokenAccount(raw)
	require.NoError(t, err)
	assert.Equal(t, acc, back)

	_, err = DeserializeTokenAccount(raw[:100])
	assert.ErrorIs(t, err, ErrInvalidAccountData)
}

func TestMintTransferBurn(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.l.run(t, MintTo(f.mint, f.aliceAcc, f.authority, 1000)))
	assert.Equal(t, uint64(1000), f.l.balance(t, f.aliceAcc))
	assert.Equal(t, uint64(1000), f.l.supply(t, f.mint))

	require.NoError(t, f.l.run(t, Transfer(f.aliceAcc, f.bobAcc, f.alice, 300)))
	assert.Equal(t, uint64(700), f.l.balance(t, f.aliceAcc))
	assert.Equal(t, uint64(300), f.l.balance(t, f.bobAcc))

	require.NoError(t, f.l.run(t, Burn(f.bobAcc, f.mint, f.bob, 100)))
	assert.Equal(t, uint64(200), f.l.balance(t, f.bobAcc))
	assert.Equal(t, uint64(900), f.l.supply(t, f.mint))

	require.NoError(t, f.l.run(t, Transfer(f.aliceAcc, f.aliceAcc, f.alice, 700)), "self transfer")
	assert.Equal(t, uint64(700), f.l.balance(t, f.aliceAcc))
}

func TestTokenErrors(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.run(t, MintTo(f.mint, f.aliceAcc, f.authority, 10)))

	assert.ErrorIs(t, f.l.run(t, Transfer(f.aliceAcc, f.bobAcc, f.alice, 11)), ErrInsufficientFunds)
	assert.ErrorIs(t, f.l.run(t, Transfer(f.aliceAcc, f.bobAcc, f.bob, 1)), ErrOwnerMismatch)
	assert.ErrorIs(t, f.l.run(t, Burn(f.aliceAcc, f.mint, f.alice, 11)), ErrInsufficientFunds)
	assert.ErrorIs(t, f.l.run(t, MintTo(f.mint, f.aliceAcc, f.alice, 1)), ErrAuthorityMismatch)
	assert.ErrorIs(t, f.l.run(t, InitializeMint(f.mint, 6, f.authority, nil)), ErrAlreadyInitialized)
	assert.ErrorIs(t, f.l.run(t, InitializeAccount(f.aliceAcc, f.mint, f.alice)), ErrAlreadyInitialized)

	unsigned := Transfer(f.aliceAcc, f.bobAcc, f.alice, 1)
	unsigned.Accounts[2].IsSigner = false
	assert.ErrorIs(t, f.l.run(t, unsigned), ErrAccountNotSigner)

	other := testPubkey("other-mint")
	otherAcc := testPubkey("other-token")
	f.l.allocate(other, MintSize)
	f.l.allocate(otherAcc, TokenAccountSize)
	require.NoError(t, f.l.run(t, InitializeMint(other, 0, f.authority, nil)))
	require.NoError(t, f.l.run(t, InitializeAccount(otherAcc, other, f.bob)))
	assert.ErrorIs(t, f.l.run(t, Transfer(f.aliceAcc, otherAcc, f.alice, 1)), ErrMintMismatch)
	assert.ErrorIs(t, f.l.run(t, MintTo(f.mint, otherAcc, f.authority, 1)), ErrMintMismatch)

	foreign := testPubkey("foreign")
	f.l[foreign] = &types.Account{Lamports: 1, Data: make([]byte, TokenAccountSize), Owner: types.SystemProgramID}
	assert.ErrorIs(t, f.l.run(t, Transfer(foreign, f.bobAcc, f.alice, 1)), ErrInvalidAccountOwner)

	fresh := testPubkey("fresh")
	f.l.allocate(fresh, TokenAccountSize)
	assert.ErrorIs(t, f.l.run(t, Transfer(fresh, f.bobAcc, f.alice, 0)), ErrNotInitialized)

	assert.ErrorIs(t, f.l.run(t, types.Instruction{ProgramID: types.TokenProgramID, Data: []byte{42}}), ErrInvalidInstruction)
}

func TestMintTo_Overflow(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.l.run(t, MintTo(f.mint, f.aliceAcc, f.authority, ^uint64(0))))
	assert.ErrorIs(t, f.l.run(t, MintTo(f.mint, f.bobAcc, f.authority, 1)), ErrOverflow)
}
