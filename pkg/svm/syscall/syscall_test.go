package syscall

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-staker/pkg/types"
)

func testPubkey(seed string) types.Pubkey {
	return types.Pubkey(types.SHA256([]byte(seed)))
}

// funcExecutor dispatches by program ID to plain functions.
type funcExecutor map[types.Pubkey]func(ctx *ExecutionContext) error

func (e funcExecutor) ExecuteProgram(ctx *ExecutionContext) error {
	fn, ok := e[ctx.ProgramID]
	if !ok {
		return fmt.Errorf("unknown program %s", ctx.ProgramID)
	}
	return fn(ctx)
}

var (
	callerProgram = testPubkey("caller-program")
	calleeProgram = testPubkey("callee-program")
)

func ownedAccount(pubkey types.Pubkey, lamports uint64, owner types.Pubkey, signer, writable bool) *AccountInfo {
	return NewAccountInfo(pubkey, &types.Account{Lamports: types.Lamports(lamports), Owner: owner, Data: make([]byte, 4)}, signer, writable)
}

func TestExecute_ReadOnlyModified(t *testing.T) {
	target := testPubkey("target")
	exec := funcExecutor{callerProgram: func(ctx *ExecutionContext) error {
		acc, _ := ctx.GetAccountByIndex(0)
		acc.Data[0] = 1
		return nil
	}}
	ctx := NewExecutionContext(exec, callerProgram, []*AccountInfo{
		ownedAccount(target, 10, callerProgram, false, false),
	}, nil, 10_000)

	require.ErrorIs(t, ctx.Execute(), ErrReadOnlyModified)
	logs := ctx.GetLogs()
	require.Len(t, logs, 2)
	assert.Equal(t, fmt.Sprintf("Program %s invoke [1]", callerProgram), logs[0])
	assert.Contains(t, logs[1], "failed")
}

func TestExecute_ExternalRules(t *testing.T) {
	foreign := testPubkey("foreign")
	other := testPubkey("other")

	cases := map[string]struct {
		mutate func(a, b *AccountInfo)
		want   error
	}{
		"data":     {func(a, _ *AccountInfo) { a.Data[0] = 9 }, ErrExternalDataModified},
		"owner":    {func(a, _ *AccountInfo) { a.Owner = callerProgram }, ErrModifiedProgramID},
		"spend":    {func(a, b *AccountInfo) { *a.Lamports -= 5; *b.Lamports += 5 }, ErrExternalLamportSpend},
		"conserve": {func(_, b *AccountInfo) { *b.Lamports += 5 }, ErrLamportsNotConserved},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			exec := funcExecutor{callerProgram: func(ctx *ExecutionContext) error {
				tc.mutate(ctx.Accounts[0], ctx.Accounts[1])
				return nil
			}}
			ctx := NewExecutionContext(exec, callerProgram, []*AccountInfo{
				ownedAccount(foreign, 10, types.SystemProgramID, false, true),
				ownedAccount(other, 10, callerProgram, false, true),
			}, nil, 10_000)
			require.ErrorIs(t, ctx.Execute(), tc.want)
		})
	}
}

func TestInvokeSigned_PropagatesChanges(t *testing.T) {
	seeds := [][]byte{[]byte("authority")}
	authority, bump, err := FindProgramAddress(seeds, callerProgram)
	require.NoError(t, err)

	data := testPubkey("data-account")
	exec := funcExecutor{
		callerProgram: func(ctx *ExecutionContext) error {
			return ctx.InvokeSigned(&types.Instruction{
				ProgramID: calleeProgram,
				Accounts: []types.AccountMeta{
					{Pubkey: authority, IsSigner: true},
					types.Writable(data),
				},
				Data: []byte{7},
			}, [][][]byte{WithBump(seeds, bump)})
		},
		calleeProgram: func(ctx *ExecutionContext) error {
			auth, _ := ctx.GetAccountByIndex(0)
			if !auth.IsSigner {
				return ErrAccountNotSigner
			}
			acc, _ := ctx.GetAccountByIndex(1)
			acc.Data[0] = ctx.InstructionData[0]
			return nil
		},
	}

	ctx := NewExecutionContext(exec, callerProgram, []*AccountInfo{
		ownedAccount(authority, 0, types.SystemProgramID, false, false),
		ownedAccount(data, 10, calleeProgram, false, true),
	}, nil, 10_000)

	require.NoError(t, ctx.Execute())
	assert.Equal(t, byte(7), ctx.Accounts[1].Data[0])
	assert.False(t, ctx.Accounts[0].IsSigner, "caller view keeps its own privileges")

	logs := ctx.GetLogs()
	require.Len(t, logs, 4)
	assert.Equal(t, fmt.Sprintf("Program %s invoke [2]", calleeProgram), logs[1])
	assert.Equal(t, fmt.Sprintf("Program %s success", calleeProgram), logs[2])
	assert.Equal(t, 0, ctx.GetDepth())
}

func TestInvokeSigned_PrivilegeEscalation(t *testing.T) {
	readonly := testPubkey("readonly")
	stranger := testPubkey("stranger")

	run := func(meta types.AccountMeta, seeds [][][]byte) error {
		exec := funcExecutor{
			callerProgram: func(ctx *ExecutionContext) error {
				return ctx.InvokeSigned(&types.Instruction{ProgramID: calleeProgram, Accounts: []types.AccountMeta{meta}}, seeds)
			},
			calleeProgram: func(*ExecutionContext) error { return nil },
		}
		ctx := NewExecutionContext(exec, callerProgram, []*AccountInfo{
			ownedAccount(readonly, 1, types.SystemProgramID, false, false),
		}, nil, 10_000)
		return ctx.Execute()
	}

	require.ErrorIs(t, run(types.Writable(readonly), nil), ErrCPIWritablePrivilege)
	require.ErrorIs(t, run(types.AccountMeta{Pubkey: readonly, IsSigner: true}, nil), ErrCPISignerPrivilege)
	require.ErrorIs(t, run(types.Readonly(stranger), nil), ErrCPIAccountNotFound)

	// Seeds for some other address do not grant a signature on readonly.
	other := [][]byte{[]byte("other")}
	_, bump, err := FindProgramAddress(other, callerProgram)
	require.NoError(t, err)
	require.ErrorIs(t, run(types.AccountMeta{Pubkey: readonly, IsSigner: true}, [][][]byte{WithBump(other, bump)}), ErrCPISignerPrivilege)
}

func TestInvokeSigned_CalleeFailureLeavesCaller(t *testing.T) {
	data := testPubkey("data-account")
	exec := funcExecutor{
		callerProgram: func(ctx *ExecutionContext) error {
			err := ctx.InvokeSigned(&types.Instruction{ProgramID: calleeProgram, Accounts: []types.AccountMeta{types.Writable(data)}}, nil)
			require.Error(t, err)
			return nil
		},
		calleeProgram: func(ctx *ExecutionContext) error {
			ctx.Accounts[0].Data[0] = 1
			return fmt.Errorf("boom")
		},
	}
	ctx := NewExecutionContext(exec, callerProgram, []*AccountInfo{
		ownedAccount(data, 10, calleeProgram, false, true),
	}, nil, 10_000)
	require.NoError(t, ctx.Execute())
	assert.Equal(t, byte(0), ctx.Accounts[0].Data[0])
}

func TestInvokeSigned_DepthLimit(t *testing.T) {
	exec := funcExecutor{callerProgram: func(ctx *ExecutionContext) error {
		return ctx.InvokeSigned(&types.Instruction{ProgramID: callerProgram}, nil)
	}}
	ctx := NewExecutionContext(exec, callerProgram, nil, nil, 100_000)
	require.ErrorIs(t, ctx.Execute(), ErrCPIDepthExceeded)
}

func TestProgramAddress(t *testing.T) {
	seeds := [][]byte{[]byte("vault"), testPubkey("pool").Bytes()}
	addr, bump, err := FindProgramAddress(seeds, callerProgram)
	require.NoError(t, err)

	again, err := CreateProgramAddress(WithBump(seeds, bump), callerProgram)
	require.NoError(t, err)
	assert.Equal(t, addr, again)
	assert.Len(t, seeds, 2, "seeds are not modified")

	other, _, err := FindProgramAddress(seeds, calleeProgram)
	require.NoError(t, err)
	assert.NotEqual(t, addr, other)

	_, _, err = FindProgramAddress([][]byte{make([]byte, MaxSeedLen+1)}, callerProgram)
	require.ErrorIs(t, err, ErrInvalidSeeds)
}

func TestParseLogData(t *testing.T) {
	ctx := NewExecutionContext(funcExecutor{}, callerProgram, nil, nil, 0)
	ctx.LogData([]byte("stake"), []byte{1, 2})
	ctx.Log("amount %d", 5)

	logs := ctx.GetLogs()
	fields, ok := ParseLogData(logs[0])
	require.True(t, ok)
	assert.Equal(t, [][]byte{[]byte("stake"), {1, 2}}, fields)
	assert.Equal(t, "Program log: amount 5", logs[1])

	_, ok = ParseLogData(logs[1])
	assert.False(t, ok)
}
