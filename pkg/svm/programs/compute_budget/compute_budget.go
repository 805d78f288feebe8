// Package compute_budget implements the native compute budget program.
//
// Compute budget instructions do not touch accounts. The bank reads them
// from the message before execution with ParseBudget, and executing one
// only validates its data.
package compute_budget

import (
	"github.com/fortiblox/x1-staker/pkg/svm/syscall"
	"github.com/fortiblox/x1-staker/pkg/types"
)

// ProgramID is the address of the compute budget program.
var ProgramID = types.MustPubkeyFromBase58("ComputeBudget111111111111111111111111111111")

// Program implements the compute budget program.
type Program struct{}

// New creates the compute budget program.
func New() *Program {
	return &Program{}
}

func (p *Program) GetProgramID() types.Pubkey {
	return ProgramID
}

// Execute validates the instruction. Its effect was applied by ParseBudget
// when the transaction was loaded.
func (p *Program) Execute(ctx *syscall.ExecutionContext) error {
	_, err := decode(ctx.InstructionData)
	return err
}

// InstructionName names the instruction in data, for metrics and logs.
func (p *Program) InstructionName(data []byte) string {
	if len(data) == 0 {
		return "unknown"
	}
	switch data[0] {
	case InstructionSetComputeUnitLimit:
		return "set_compute_unit_limit"
	case InstructionSetComputeUnitPrice:
		return "set_compute_unit_price"
	default:
		return "unknown"
	}
}

// Budget is the compute budget requested by a transaction.
type Budget struct {
	ComputeUnitLimit uint64
	// ComputeUnitPrice is in micro-lamports. The ledger charges no fees, so
	// it is recorded but has no effect.
	ComputeUnitPrice uint64
}

// ParseBudget scans msg for compute budget instructions. Without a
// SetComputeUnitLimit the limit is defaultLimit. Each instruction may
// appear at most once.
func ParseBudget(msg *types.Message, defaultLimit uint64) (Budget, error) {
	budget := Budget{ComputeUnitLimit: defaultLimit}
	var seenLimit, seenPrice bool
	for i := range msg.Instructions {
		ix := &msg.Instructions[i]
		if int(ix.ProgramIDIndex) >= len(msg.AccountKeys) || msg.AccountKeys[ix.ProgramIDIndex] != ProgramID {
			continue
		}
		req, err := decode(ix.Data)
		if err != nil {
			return Budget{}, err
		}
		switch req.kind {
		case InstructionSetComputeUnitLimit:
			if seenLimit {
				return Budget{}, ErrDuplicateInstruction
			}
			seenLimit = true
			budget.ComputeUnitLimit = req.value
		case InstructionSetComputeUnitPrice:
			if seenPrice {
				return Budget{}, ErrDuplicateInstruction
			}
			seenPrice = true
			budget.ComputeUnitPrice = req.value
		}
	}
	return budget, nil
}
