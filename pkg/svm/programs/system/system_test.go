package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-staker/pkg/svm/syscall"
	"github.com/fortiblox/x1-staker/pkg/types"
)

type programExecutor struct{ p *SystemProgram }

func (e programExecutor) ExecuteProgram(ctx *syscall.ExecutionContext) error {
	return e.p.Execute(ctx)
}

func testPubkey(seed string) types.Pubkey {
	return types.Pubkey(types.SHA256([]byte(seed)))
}

// run executes ix against accounts, which are matched to ix.Accounts by
// position.
func run(t *testing.T, ix types.Instruction, accounts ...*types.Account) ([]*syscall.AccountInfo, error) {
	t.Helper()
	infos := make([]*syscall.AccountInfo, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		var acc *types.Account
		if i < len(accounts) {
			acc = accounts[i]
		}
		infos[i] = syscall.NewAccountInfo(meta.Pubkey, acc, meta.IsSigner, meta.IsWritable)
	}
	ctx := syscall.NewExecutionContext(programExecutor{New()}, types.SystemProgramID, infos, ix.Data, 10_000)
	return infos, ctx.Execute()
}

func TestCreateAccount(t *testing.T) {
	payer, target, owner := testPubkey("payer"), testPubkey("target"), testPubkey("owner")
	rent := uint64(types.RentExemptMinimum(82))

	infos, err := run(t, CreateAccount(payer, target, rent, 82, owner),
		types.NewAccount(types.Lamports(rent+10), types.SystemProgramID))
	require.NoError(t, err)

	assert.Equal(t, uint64(10), *infos[0].Lamports)
	assert.Equal(t, rent, *infos[1].Lamports)
	assert.Len(t, infos[1].Data, 82)
	assert.Equal(t, owner, infos[1].Owner)
}

func TestCreateAccount_Errors(t *testing.T) {
	payer, target, owner := testPubkey("payer"), testPubkey("target"), testPubkey("owner")
	rent := uint64(types.RentExemptMinimum(10))
	rich := types.NewAccount(1_000_000_000, types.SystemProgramID)

	_, err := run(t, CreateAccount(payer, target, rent, 10, owner), types.NewAccount(types.Lamports(rent-1), types.SystemProgramID))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = run(t, CreateAccount(payer, target, rent-1, 10, owner), rich)
	assert.ErrorIs(t, err, ErrAccountNotRentExempt)

	_, err = run(t, CreateAccount(payer, target, rent, 10, owner), rich, types.NewAccount(1, types.SystemProgramID))
	assert.ErrorIs(t, err, ErrAccountAlreadyExists)

	ix := CreateAccount(payer, target, rent, 10, owner)
	ix.Accounts[1].IsSigner = false
	_, err = run(t, ix, rich)
	assert.ErrorIs(t, err, ErrAccountNotSigner)

	ix = CreateAccount(payer, target, rent, 10, owner)
	ix.Accounts = ix.Accounts[:1]
	_, err = run(t, ix, rich)
	assert.ErrorIs(t, err, ErrNotEnoughAccounts)
}

func TestTransfer(t *testing.T) {
	from, to := testPubkey("from"), testPubkey("to")

	infos, err := run(t, Transfer(from, to, 40), types.NewAccount(100, types.SystemProgramID))
	require.NoError(t, err)
	assert.Equal(t, uint64(60), *infos[0].Lamports)
	assert.Equal(t, uint64(40), *infos[1].Lamports)

	_, err = run(t, Transfer(from, to, 101), types.NewAccount(100, types.SystemProgramID))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = run(t, Transfer(from, to, 1), &types.Account{Lamports: 100, Owner: types.SystemProgramID, Data: []byte{1}})
	assert.ErrorIs(t, err, ErrInvalidAccountOwner)
}

func TestAssignAndAllocate(t *testing.T) {
	acct, owner := testPubkey("acct"), testPubkey("owner")

	infos, err := run(t, Allocate(acct, 16), types.NewAccount(5, types.SystemProgramID))
	require.NoError(t, err)
	assert.Len(t, infos[0].Data, 16)

	infos, err = run(t, Assign(acct, owner), types.NewAccount(5, types.SystemProgramID))
	require.NoError(t, err)
	assert.Equal(t, owner, infos[0].Owner)

	_, err = run(t, Assign(acct, owner), types.NewAccount(5, owner))
	assert.ErrorIs(t, err, ErrInvalidAccountOwner)
}

func TestUnknownInstruction(t *testing.T) {
	_, err := run(t, types.Instruction{ProgramID: types.SystemProgramID, Data: []byte{99, 0, 0, 0}})
	assert.ErrorIs(t, err, ErrInvalidInstructionData)

	_, err = run(t, types.Instruction{ProgramID: types.SystemProgramID, Data: []byte{1}})
	assert.ErrorIs(t, err, ErrInvalidInstructionData)

	assert.Equal(t, "transfer", New().InstructionName(Transfer(testPubkey("a"), testPubkey("b"), 1).Data))
}
