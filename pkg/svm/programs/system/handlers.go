package system

import (
	"fmt"

	"github.com/fortiblox/x1-staker/pkg/svm/syscall"
	"github.com/fortiblox/x1-staker/pkg/types"
)

// MaxAccountDataSize is the largest allocation the program accepts.
const MaxAccountDataSize = 10 * 1024 * 1024

// accountAt returns account i, checking the signer and writable flags the
// instruction requires of it.
func accountAt(ctx *syscall.ExecutionContext, i int, name string, signer, writable bool) (*syscall.AccountInfo, error) {
	acc, err := ctx.GetAccountByIndex(i)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotEnoughAccounts, name)
	}
	if signer && !acc.IsSigner {
		return nil, fmt.Errorf("%w: %s %s", ErrAccountNotSigner, name, acc.Pubkey)
	}
	if writable && !acc.IsWritable {
		return nil, fmt.Errorf("%w: %s %s", ErrAccountNotWritable, name, acc.Pubkey)
	}
	return acc, nil
}

// handleCreateAccount handles the CreateAccount instruction.
// Account layout:
//
//	[0] funding account (signer, writable)
//	[1] new account (signer, writable)
func handleCreateAccount(ctx *syscall.ExecutionContext, inst *CreateAccountInstruction) error {
	funding, err := accountAt(ctx, 0, "funding account", true, true)
	if err != nil {
		return err
	}
	newAcc, err := accountAt(ctx, 1, "new account", true, true)
	if err != nil {
		return err
	}
	if funding.Pubkey == newAcc.Pubkey {
		return fmt.Errorf("%w: funding and new account are the same", ErrInvalidInstructionData)
	}

	if *newAcc.Lamports > 0 || len(newAcc.Data) > 0 || newAcc.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyExists, newAcc.Pubkey)
	}
	if inst.Space > MaxAccountDataSize {
		return ErrAccountDataTooLarge
	}

	minimum := uint64(types.RentExemptMinimum(inst.Space))
	if inst.Lamports < minimum {
		return fmt.Errorf("%w: need %d lamports for %d bytes", ErrAccountNotRentExempt, minimum, inst.Space)
	}
	if *funding.Lamports < inst.Lamports {
		return fmt.Errorf("%w: need %d lamports, have %d", ErrInsufficientFunds, inst.Lamports, *funding.Lamports)
	}

	*funding.Lamports -= inst.Lamports
	*newAcc.Lamports += inst.Lamports
	newAcc.Data = make([]byte, inst.Space)
	newAcc.Owner = inst.Owner
	return nil
}

// handleAssign handles the Assign instruction.
// Account layout:
//
//	[0] account to assign (signer, writable)
func handleAssign(ctx *syscall.ExecutionContext, inst *AssignInstruction) error {
	acc, err := accountAt(ctx, 0, "account to assign", true, true)
	if err != nil {
		return err
	}
	if acc.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: account must be owned by the system program", ErrInvalidAccountOwner)
	}
	acc.Owner = inst.Owner
	return nil
}

// handleTransfer handles the Transfer instruction.
// Account layout:
//
//	[0] source account (signer, writable)
//	[1] destination account (writable)
func handleTransfer(ctx *syscall.ExecutionContext, inst *TransferInstruction) error {
	source, err := accountAt(ctx, 0, "source account", true, true)
	if err != nil {
		return err
	}
	dest, err := accountAt(ctx, 1, "destination account", false, true)
	if err != nil {
		return err
	}
	if len(source.Data) > 0 || source.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: source must be a system account without data", ErrInvalidAccountOwner)
	}
	if *source.Lamports < inst.Lamports {
		return fmt.Errorf("%w: need %d lamports, have %d", ErrInsufficientFunds, inst.Lamports, *source.Lamports)
	}
	if source.Pubkey == dest.Pubkey {
		return nil
	}

	*source.Lamports -= inst.Lamports
	*dest.Lamports += inst.Lamports
	return nil
}

// handleAllocate handles the Allocate instruction.
// Account layout:
//
//	[0] account to allocate (signer, writable)
func handleAllocate(ctx *syscall.ExecutionContext, inst *AllocateInstruction) error {
	acc, err := accountAt(ctx, 0, "account to allocate", true, true)
	if err != nil {
		return err
	}
	if acc.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: account must be owned by the system program", ErrInvalidAccountOwner)
	}
	if len(acc.Data) > 0 {
		return fmt.Errorf("%w: account already has data", ErrAccountAlreadyExists)
	}
	if inst.Space > MaxAccountDataSize {
		return ErrAccountDataTooLarge
	}
	acc.Data = make([]byte, inst.Space)
	return nil
}
