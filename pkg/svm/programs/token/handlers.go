package token

import (
	"fmt"

	"github.com/fortiblox/x1-staker/pkg/svm/syscall"
	"github.com/fortiblox/x1-staker/pkg/types"
)

// tokenAccountAt returns instruction account i after checking that it is
// owned by the token program and, if required, writable.
func tokenAccountAt(ctx *syscall.ExecutionContext, i int, name string, writable bool) (*syscall.AccountInfo, error) {
	acc, err := ctx.GetAccountByIndex(i)
	if err != nil {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidNumberOfAccounts, name)
	}
	if acc.Owner != types.TokenProgramID {
		return nil, fmt.Errorf("%w: %s %s is owned by %s", ErrInvalidAccountOwner, name, acc.Pubkey, acc.Owner)
	}
	if writable && !acc.IsWritable {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotWritable, name)
	}
	return acc, nil
}

func signerAt(ctx *syscall.ExecutionContext, i int, name string) (*syscall.AccountInfo, error) {
	acc, err := ctx.GetAccountByIndex(i)
	if err != nil {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidNumberOfAccounts, name)
	}
	if !acc.IsSigner {
		return nil, fmt.Errorf("%w: %s %s", ErrAccountNotSigner, name, acc.Pubkey)
	}
	return acc, nil
}

func loadMint(acc *syscall.AccountInfo) (*Mint, error) {
	mint, err := DeserializeMint(acc.Data)
	if err != nil {
		return nil, err
	}
	if !mint.IsInitialized {
		return nil, fmt.Errorf("mint %s: %w", acc.Pubkey, ErrNotInitialized)
	}
	return mint, nil
}

func loadTokenAccount(acc *syscall.AccountInfo) (*TokenAccount, error) {
	ta, err := DeserializeTokenAccount(acc.Data)
	if err != nil {
		return nil, err
	}
	if !ta.IsInitialized() {
		return nil, fmt.Errorf("token account %s: %w", acc.Pubkey, ErrNotInitialized)
	}
	if ta.IsFrozen() {
		return nil, fmt.Errorf("token account %s: %w", acc.Pubkey, ErrAccountFrozen)
	}
	return ta, nil
}

// handleInitializeMint handles the InitializeMint instruction.
// Account layout:
//
//	[0] mint (writable)
//	[1] rent sysvar
func handleInitializeMint(ctx *syscall.ExecutionContext, inst *InitializeMintInstruction) error {
	mintAcc, err := tokenAccountAt(ctx, 0, "mint", true)
	if err != nil {
		return err
	}
	if len(mintAcc.Data) != MintSize {
		return fmt.Errorf("%w: mint account must be %d bytes, got %d",
			ErrInvalidAccountData, MintSize, len(mintAcc.Data))
	}
	if existing, err := DeserializeMint(mintAcc.Data); err == nil && existing.IsInitialized {
		return fmt.Errorf("mint %s: %w", mintAcc.Pubkey, ErrAlreadyInitialized)
	}

	mint := NewMint(inst.Decimals, &inst.MintAuthority, inst.FreezeAuthority)
	copy(mintAcc.Data, mint.Serialize())
	return nil
}

// handleInitializeAccount handles the InitializeAccount instruction.
// Account layout:
//
//	[0] account (writable)
//	[1] mint
//	[2] owner
//	[3] rent sysvar
func handleInitializeAccount(ctx *syscall.ExecutionContext) error {
	tokenAcc, err := tokenAccountAt(ctx, 0, "token account", true)
	if err != nil {
		return err
	}
	mintAcc, err := tokenAccountAt(ctx, 1, "mint", false)
	if err != nil {
		return err
	}
	ownerAcc, err := ctx.GetAccountByIndex(2)
	if err != nil {
		return fmt.Errorf("%w: missing owner", ErrInvalidNumberOfAccounts)
	}

	if len(tokenAcc.Data) != TokenAccountSize {
		return fmt.Errorf("%w: token account must be %d bytes, got %d",
			ErrInvalidAccountData, TokenAccountSize, len(tokenAcc.Data))
	}
	if existing, err := DeserializeTokenAccount(tokenAcc.Data); err == nil && existing.IsInitialized() {
		return fmt.Errorf("token account %s: %w", tokenAcc.Pubkey, ErrAlreadyInitialized)
	}
	if _, err := loadMint(mintAcc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMint, err)
	}

	account := NewTokenAccount(mintAcc.Pubkey, ownerAcc.Pubkey)
	copy(tokenAcc.Data, account.Serialize())
	return nil
}

// handleTransfer handles the Transfer instruction.
// Account layout:
//
//	[0] source (writable)
//	[1] destination (writable)
//	[2] owner of the source (signer)
func handleTransfer(ctx *syscall.ExecutionContext, inst *AmountInstruction) error {
	sourceAcc, err := tokenAccountAt(ctx, 0, "source", true)
	if err != nil {
		return err
	}
	destAcc, err := tokenAccountAt(ctx, 1, "destination", true)
	if err != nil {
		return err
	}
	authority, err := signerAt(ctx, 2, "authority")
	if err != nil {
		return err
	}

	source, err := loadTokenAccount(sourceAcc)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	dest, err := loadTokenAccount(destAcc)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	if source.Mint != dest.Mint {
		return fmt.Errorf("%w: source mint %s, destination mint %s", ErrMintMismatch, source.Mint, dest.Mint)
	}
	if source.Owner != authority.Pubkey {
		return fmt.Errorf("%w: source is owned by %s", ErrOwnerMismatch, source.Owner)
	}
	if source.Amount < inst.Amount {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, inst.Amount, source.Amount)
	}
	if sourceAcc.Pubkey == destAcc.Pubkey {
		return nil
	}
	if dest.Amount+inst.Amount < dest.Amount {
		return ErrOverflow
	}

	source.Amount -= inst.Amount
	dest.Amount += inst.Amount
	copy(sourceAcc.Data, source.Serialize())
	copy(destAcc.Data, dest.Serialize())
	return nil
}

// handleMintTo handles the MintTo instruction.
// Account layout:
//
//	[0] mint (writable)
//	[1] destination (writable)
//	[2] mint authority (signer)
func handleMintTo(ctx *syscall.ExecutionContext, inst *AmountInstruction) error {
	mintAcc, err := tokenAccountAt(ctx, 0, "mint", true)
	if err != nil {
		return err
	}
	destAcc, err := tokenAccountAt(ctx, 1, "destination", true)
	if err != nil {
		return err
	}
	authority, err := signerAt(ctx, 2, "mint authority")
	if err != nil {
		return err
	}

	mint, err := loadMint(mintAcc)
	if err != nil {
		return err
	}
	dest, err := loadTokenAccount(destAcc)
	if err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	if dest.Mint != mintAcc.Pubkey {
		return fmt.Errorf("%w: destination holds %s", ErrMintMismatch, dest.Mint)
	}
	if !mint.MintAuthority.IsSome {
		return ErrFixedSupply
	}
	if mint.MintAuthority.Value != authority.Pubkey {
		return fmt.Errorf("%w: mint authority is %s", ErrAuthorityMismatch, mint.MintAuthority.Value)
	}
	if mint.Supply+inst.Amount < mint.Supply || dest.Amount+inst.Amount < dest.Amount {
		return ErrOverflow
	}

	mint.Supply += inst.Amount
	dest.Amount += inst.Amount
	copy(mintAcc.Data, mint.Serialize())
	copy(destAcc.Data, dest.Serialize())
	return nil
}

// handleBurn handles the Burn instruction.
// Account layout:
//
//	[0] account to burn from (writable)
//	[1] mint (writable)
//	[2] owner of the account (signer)
func handleBurn(ctx *syscall.ExecutionContext, inst *AmountInstruction) error {
	sourceAcc, err := tokenAccountAt(ctx, 0, "source", true)
	if err != nil {
		return err
	}
	mintAcc, err := tokenAccountAt(ctx, 1, "mint", true)
	if err != nil {
		return err
	}
	authority, err := signerAt(ctx, 2, "authority")
	if err != nil {
		return err
	}

	source, err := loadTokenAccount(sourceAcc)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	mint, err := loadMint(mintAcc)
	if err != nil {
		return err
	}
	if source.Mint != mintAcc.Pubkey {
		return fmt.Errorf("%w: source holds %s", ErrMintMismatch, source.Mint)
	}
	if source.Owner != authority.Pubkey {
		return fmt.Errorf("%w: source is owned by %s", ErrOwnerMismatch, source.Owner)
	}
	if source.Amount < inst.Amount {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, inst.Amount, source.Amount)
	}

	source.Amount -= inst.Amount
	mint.Supply -= inst.Amount
	copy(sourceAcc.Data, source.Serialize())
	copy(mintAcc.Data, mint.Serialize())
	return nil
}
