// Package system implements the native system program.
//
// The system program creates accounts, allocates their data, assigns them
// to an owning program and transfers lamports. Every account starts out
// owned by the system program until assigned elsewhere.
package system

import (
	"fmt"

	"github.com/fortiblox/x1-staker/pkg/svm/syscall"
	"github.com/fortiblox/x1-staker/pkg/types"
)

// SystemProgram implements the native system program.
type SystemProgram struct {
	// ProgramID is the system program's public key
	ProgramID types.Pubkey
}

// New creates a new SystemProgram instance.
func New() *SystemProgram {
	return &SystemProgram{
		ProgramID: types.SystemProgramID,
	}
}

// Execute executes the system instruction loaded in ctx.
// The instruction format is:
//   - First 4 bytes: instruction discriminator (little-endian uint32)
//   - Remaining bytes: instruction-specific data
func (p *SystemProgram) Execute(ctx *syscall.ExecutionContext) error {
	instruction := ctx.InstructionData
	discriminator, err := ParseInstructionDiscriminator(instruction)
	if err != nil {
		return err
	}
	instructionData := instruction[4:]

	switch discriminator {
	case InstructionCreateAccount:
		var inst CreateAccountInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return handleCreateAccount(ctx, &inst)

	case InstructionAssign:
		var inst AssignInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return handleAssign(ctx, &inst)

	case InstructionTransfer:
		var inst TransferInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return handleTransfer(ctx, &inst)

	case InstructionAllocate:
		var inst AllocateInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return handleAllocate(ctx, &inst)

	default:
		return fmt.Errorf("%w: unknown instruction %d", ErrInvalidInstructionData, discriminator)
	}
}

// GetProgramID returns the system program's public key.
func (p *SystemProgram) GetProgramID() types.Pubkey {
	return p.ProgramID
}

// InstructionName names the instruction in data, for metrics and logs.
func (p *SystemProgram) InstructionName(data []byte) string {
	d, err := ParseInstructionDiscriminator(data)
	if err != nil {
		return "unknown"
	}
	switch d {
	case InstructionCreateAccount:
		return "create_account"
	case InstructionAssign:
		return "assign"
	case InstructionTransfer:
		return "transfer"
	case InstructionAllocate:
		return "allocate"
	default:
		return "unknown"
	}
}

// IsSystemProgram checks if a pubkey is the system program.
func IsSystemProgram(pubkey types.Pubkey) bool {
	return pubkey == types.SystemProgramID
}
