package staker

import (
	"errors"
	"fmt"

	"github.com/fortiblox/x1-staker/pkg/svm/programs/system"
	"github.com/fortiblox/x1-staker/pkg/svm/programs/token"
	"github.com/fortiblox/x1-staker/pkg/svm/syscall"
	"github.com/fortiblox/x1-staker/pkg/types"
)

// accountList gives positional access to instruction accounts once their
// count has been checked.
type accountList []*syscall.AccountInfo

func instructionAccounts(ctx *syscall.ExecutionContext, want int) (accountList, error) {
	if ctx.AccountCount() < want {
		return nil, fmt.Errorf("%w: need %d, got %d", ErrNotEnoughAccountKeys, want, ctx.AccountCount())
	}
	return accountList(ctx.Accounts[:want]), nil
}

// deriveWithBump recomputes a program address from a bump and reports
// ErrInvalidBump if it does not match actual.
func deriveWithBump(ctx *syscall.ExecutionContext, name string, seeds [][]byte, bump uint8, actual types.Pubkey) error {
	if err := ctx.ConsumeComputeUnits(uint64(types.ComputeUnitsPerPDADerivation)); err != nil {
		return err
	}
	want, err := syscall.CreateProgramAddress(syscall.WithBump(seeds, bump), ProgramID)
	if err != nil {
		return fmt.Errorf("%w: %s bump %d: %v", ErrInvalidBump, name, bump, err)
	}
	if want != actual {
		return fmt.Errorf("%w: %s is %s, bump %d derives %s", ErrInvalidBump, name, actual, bump, want)
	}
	return nil
}

// matchesStored is deriveWithBump for bumps taken from the pool record.
// A mismatch there means the caller passed the wrong account.
func matchesStored(ctx *syscall.ExecutionContext, name string, seeds [][]byte, bump uint8, actual types.Pubkey, mismatch *ProgramError) error {
	if err := deriveWithBump(ctx, name, seeds, bump, actual); err != nil {
		if errors.Is(err, ErrInvalidBump) {
			return fmt.Errorf("%w: %s %s is not the pool's", mismatch, name, actual)
		}
		return err
	}
	return nil
}

func expectKey(acc *syscall.AccountInfo, want types.Pubkey, name string, mismatch *ProgramError) error {
	if acc.Pubkey != want {
		return fmt.Errorf("%w: %s is %s, expected %s", mismatch, name, acc.Pubkey, want)
	}
	return nil
}

func expectSigner(acc *syscall.AccountInfo, name string) error {
	if !acc.IsSigner {
		return fmt.Errorf("%w: %s %s must sign", ErrUnauthorized, name, acc.Pubkey)
	}
	return nil
}

// occupied reports whether acc already holds state. A system account with
// no data is free to create even if it carries lamports.
func occupied(acc *syscall.AccountInfo) bool {
	return len(acc.Data) > 0 || acc.Owner != types.SystemProgramID
}

// loadPool decodes and authenticates the pool record.
func loadPool(ctx *syscall.ExecutionContext, acc *syscall.AccountInfo) (*PoolState, error) {
	if !ctx.IsProgramOwned(acc.Pubkey) {
		return nil, fmt.Errorf("%w: pool record %s is owned by %s", ErrInvalidAccountOwner, acc.Pubkey, acc.Owner)
	}
	pool, err := DeserializePoolState(acc.Data)
	if err != nil {
		return nil, err
	}
	if err := matchesStored(ctx, "pool record", PoolSeeds(pool.StakeMint), pool.Bump, acc.Pubkey, ErrAccountMismatch); err != nil {
		return nil, err
	}
	return pool, nil
}

func loadMint(acc *syscall.AccountInfo, name string) (*token.Mint, error) {
	if acc.Owner != types.TokenProgramID {
		return nil, fmt.Errorf("%w: %s %s is owned by %s", ErrInvalidAccountOwner, name, acc.Pubkey, acc.Owner)
	}
	mint, err := token.DeserializeMint(acc.Data)
	if err != nil || !mint.IsInitialized {
		return nil, fmt.Errorf("%w: %s %s is not an initialized mint", ErrAccountMismatch, name, acc.Pubkey)
	}
	return mint, nil
}

// loadHolding decodes a token account and requires it to hold mint on
// behalf of owner.
func loadHolding(acc *syscall.AccountInfo, name string, mint, owner types.Pubkey, mintErr, ownerErr *ProgramError) (*token.TokenAccount, error) {
	if acc.Owner != types.TokenProgramID {
		return nil, fmt.Errorf("%w: %s %s is owned by %s", ErrInvalidAccountOwner, name, acc.Pubkey, acc.Owner)
	}
	holding, err := token.DeserializeTokenAccount(acc.Data)
	if err != nil || !holding.IsInitialized() {
		return nil, fmt.Errorf("%w: %s %s is not an initialized token account", ErrInvalidAccountData, name, acc.Pubkey)
	}
	if holding.Owner != owner {
		return nil, fmt.Errorf("%w: %s is owned by %s", ownerErr, name, holding.Owner)
	}
	if holding.Mint != mint {
		return nil, fmt.Errorf("%w: %s holds %s", mintErr, name, holding.Mint)
	}
	return holding, nil
}

// invoke runs a collaborator instruction. Balance failures of the
// collaborator are reported as ErrInsufficientFunds as well.
func invoke(ctx *syscall.ExecutionContext, ix types.Instruction, signerSeeds ...[][]byte) error {
	err := ctx.InvokeSigned(&ix, signerSeeds)
	if err == nil {
		return nil
	}
	if errors.Is(err, system.ErrInsufficientFunds) || errors.Is(err, token.ErrInsufficientFunds) {
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	}
	return err
}

// createAt creates a rent-exempt account of size bytes at the program
// address acc, owned by owner and paid for by payer. An address that was
// already funded is topped up, allocated and assigned in place.
func createAt(ctx *syscall.ExecutionContext, payer types.Pubkey, acc *syscall.AccountInfo, size uint64, owner types.Pubkey, seeds [][]byte) error {
	rent := uint64(types.RentExemptMinimum(size))
	held := uint64(*acc.Lamports)
	if held == 0 {
		return invoke(ctx, system.CreateAccount(payer, acc.Pubkey, rent, size, owner), seeds)
	}
	if held < rent {
		if err := invoke(ctx, system.Transfer(payer, acc.Pubkey, rent-held)); err != nil {
			return err
		}
	}
	if err := invoke(ctx, system.Allocate(acc.Pubkey, size), seeds); err != nil {
		return err
	}
	return invoke(ctx, system.Assign(acc.Pubkey, owner), seeds)
}
