// Package staker implements the staking program. A pool is created for a
// stake mint; users deposit stake tokens into the pool vault and receive
// position tokens one for one, and burn position tokens to withdraw.
//
// Instruction data is an 8-byte sighash, sha256("global:<name>")[:8],
// followed by the Borsh encoding of the arguments.
//
// Program ID: J9bPtWZgaybEF9emecXXQfXpEBAcKHQpfZ41B9d4iEvX
package staker

import (
	"bytes"
	"fmt"

	"github.com/fortiblox/x1-staker/pkg/svm/syscall"
	"github.com/fortiblox/x1-staker/pkg/types"
)

// ProgramID is the address of the staking program.
var ProgramID = types.MustPubkeyFromBase58("J9bPtWZgaybEF9emecXXQfXpEBAcKHQpfZ41B9d4iEvX")

// Program implements the staking program.
type Program struct {
	// ProgramID is the staking program's public key
	ProgramID types.Pubkey
}

// New creates a new Program instance.
func New() *Program {
	return &Program{
		ProgramID: ProgramID,
	}
}

// Execute executes the staker instruction loaded in ctx.
func (p *Program) Execute(ctx *syscall.ExecutionContext) error {
	data := ctx.InstructionData
	if len(data) < 8 {
		return fmt.Errorf("%w: %d bytes of instruction data", ErrInstructionFallbackNotFound, len(data))
	}
	disc, args := [8]byte(data[:8]), data[8:]

	switch disc {
	case InstructionInitialize:
		var a InitializeArgs
		if err := decodeArgs(args, &a); err != nil {
			return err
		}
		ctx.Log("Instruction: Initialize")
		return handleInitialize(ctx, &a)

	case InstructionRegisterStake:
		var a RegisterStakeArgs
		if err := decodeArgs(args, &a); err != nil {
			return err
		}
		ctx.Log("Instruction: RegisterStake")
		return handleRegisterStake(ctx, &a)

	case InstructionStake:
		var a StakeArgs
		if err := decodeArgs(args, &a); err != nil {
			return err
		}
		ctx.Log("Instruction: Stake")
		return handleStake(ctx, &a)

	case InstructionUnstake:
		var a UnstakeArgs
		if err := decodeArgs(args, &a); err != nil {
			return err
		}
		ctx.Log("Instruction: Unstake")
		return handleUnstake(ctx, &a)

	default:
		return fmt.Errorf("%w: sighash %x", ErrInstructionFallbackNotFound, disc)
	}
}

// GetProgramID returns the staking program's public key.
func (p *Program) GetProgramID() types.Pubkey {
	return p.ProgramID
}

// InstructionName names the instruction in data, for metrics and logs.
func (p *Program) InstructionName(data []byte) string {
	if len(data) < 8 {
		return "unknown"
	}
	for _, known := range []struct {
		disc [8]byte
		name string
	}{
		{InstructionInitialize, nameInitialize},
		{InstructionRegisterStake, nameRegisterStake},
		{InstructionStake, nameStake},
		{InstructionUnstake, nameUnstake},
	} {
		if bytes.Equal(data[:8], known.disc[:]) {
			return known.name
		}
	}
	return "unknown"
}
