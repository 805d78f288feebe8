package compute_budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/x1-staker/pkg/types"
)

func message(t *testing.T, ixs ...types.Instruction) *types.Message {
	t.Helper()
	payer := types.Pubkey(types.SHA256([]byte("payer")))
	transfer := types.Instruction{
		ProgramID: types.SystemProgramID,
		Accounts:  []types.AccountMeta{{Pubkey: payer, IsSigner: true, IsWritable: true}},
		Data:      []byte{2, 0, 0, 0},
	}
	msg, err := types.NewMessage(payer, append(ixs, transfer), types.ZeroHash)
	require.NoError(t, err)
	return msg
}

func TestParseBudget(t *testing.T) {
	budget, err := ParseBudget(message(t), 200_000)
	require.NoError(t, err)
	assert.Equal(t, Budget{ComputeUnitLimit: 200_000}, budget)

	budget, err = ParseBudget(message(t, SetComputeUnitLimit(50_000), SetComputeUnitPrice(7)), 200_000)
	require.NoError(t, err)
	assert.Equal(t, Budget{ComputeUnitLimit: 50_000, ComputeUnitPrice: 7}, budget)
}

func TestParseBudget_Rejects(t *testing.T) {
	_, err := ParseBudget(message(t, SetComputeUnitLimit(1), SetComputeUnitLimit(2)), 200_000)
	require.ErrorIs(t, err, ErrDuplicateInstruction)

	_, err = ParseBudget(message(t, SetComputeUnitLimit(MaxComputeUnits+1)), 200_000)
	require.ErrorIs(t, err, ErrComputeUnitLimitTooHigh)

	_, err = ParseBudget(message(t, types.Instruction{ProgramID: ProgramID, Data: []byte{1, 0, 0, 0, 0}}), 200_000)
	require.ErrorIs(t, err, ErrUnknownInstruction)

	_, err = ParseBudget(message(t, types.Instruction{ProgramID: ProgramID, Data: []byte{2, 1}}), 200_000)
	require.ErrorIs(t, err, ErrInvalidInstructionData)
}

func TestInstructionName(t *testing.T) {
	p := New()
	assert.Equal(t, "set_compute_unit_limit", p.InstructionName(SetComputeUnitLimit(1).Data))
	assert.Equal(t, "set_compute_unit_price", p.InstructionName(SetComputeUnitPrice(1).Data))
	assert.Equal(t, "unknown", p.InstructionName(nil))
}
