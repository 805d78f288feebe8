// Package token implements the native token program, byte compatible with
// SPL Token mint and account layouts.
//
// The program handles:
//   - Creating token mints
//   - Initializing token accounts
//   - Transferring tokens between accounts
//   - Minting and burning tokens
//
// Program ID: TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA
package token

import (
	"fmt"

	"github.com/fortiblox/x1-staker/pkg/svm/syscall"
	"github.com/fortiblox/x1-staker/pkg/types"
)

// TokenProgram implements the token program.
type TokenProgram struct {
	// ProgramID is the token program's public key
	ProgramID types.Pubkey
}

// New creates a new TokenProgram instance.
func New() *TokenProgram {
	return &TokenProgram{
		ProgramID: types.TokenProgramID,
	}
}

// Execute executes the token instruction loaded in ctx.
// The instruction format is:
//   - First byte: instruction discriminator
//   - Remaining bytes: instruction-specific data
func (p *TokenProgram) Execute(ctx *syscall.ExecutionContext) error {
	discriminator, err := ParseInstructionDiscriminator(ctx.InstructionData)
	if err != nil {
		return err
	}
	instructionData := ctx.InstructionData[1:]

	switch discriminator {
	case InstructionInitializeMint:
		var inst InitializeMintInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		return handleInitializeMint(ctx, &inst)

	case InstructionInitializeAccount:
		return handleInitializeAccount(ctx)

	case InstructionTransfer, InstructionMintTo, InstructionBurn:
		var inst AmountInstruction
		if err := inst.Decode(instructionData); err != nil {
			return err
		}
		switch discriminator {
		case InstructionTransfer:
			return handleTransfer(ctx, &inst)
		case InstructionMintTo:
			return handleMintTo(ctx, &inst)
		default:
			return handleBurn(ctx, &inst)
		}

	default:
		return fmt.Errorf("%w: unknown instruction %d", ErrInvalidInstruction, discriminator)
	}
}

// GetProgramID returns the token program's public key.
func (p *TokenProgram) GetProgramID() types.Pubkey {
	return p.ProgramID
}

// InstructionName names the instruction in data, for metrics and logs.
func (p *TokenProgram) InstructionName(data []byte) string {
	d, err := ParseInstructionDiscriminator(data)
	if err != nil {
		return "unknown"
	}
	switch d {
	case InstructionInitializeMint:
		return "initialize_mint"
	case InstructionInitializeAccount:
		return "initialize_account"
	case InstructionTransfer:
		return "transfer"
	case InstructionMintTo:
		return "mint_to"
	case InstructionBurn:
		return "burn"
	default:
		return "unknown"
	}
}

// ReadMint decodes an initialized mint from a ledger account owned by the
// token program.
func ReadMint(account *types.Account) (*Mint, error) {
	if account == nil || account.Owner != types.TokenProgramID {
		return nil, ErrInvalidAccountOwner
	}
	mint, err := DeserializeMint(account.Data)
	if err != nil {
		return nil, err
	}
	if !mint.IsInitialized {
		return nil, ErrNotInitialized
	}
	return mint, nil
}

// ReadTokenAccount decodes an initialized token account from a ledger
// account owned by the token program.
func ReadTokenAccount(account *types.Account) (*TokenAccount, error) {
	if account == nil || account.Owner != types.TokenProgramID {
		return nil, ErrInvalidAccountOwner
	}
	ta, err := DeserializeTokenAccount(account.Data)
	if err != nil {
		return nil, err
	}
	if !ta.IsInitialized() {
		return nil, ErrNotInitialized
	}
	return ta, nil
}
