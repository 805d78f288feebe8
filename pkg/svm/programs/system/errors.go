package system

import "errors"

// System program errors
var (
	// ErrInsufficientFunds indicates the source account has insufficient lamports.
	ErrInsufficientFunds = errors.New("insufficient funds for operation")

	// ErrAccountAlreadyExists indicates an account already exists at the address.
	ErrAccountAlreadyExists = errors.New("account already exists")

	// ErrAccountNotRentExempt indicates the account would not be rent exempt.
	ErrAccountNotRentExempt = errors.New("account not rent exempt")

	// ErrInvalidAccountOwner indicates the account owner is invalid for this operation.
	ErrInvalidAccountOwner = errors.New("invalid account owner")

	// ErrInvalidInstructionData indicates the instruction data is malformed.
	ErrInvalidInstructionData = errors.New("invalid instruction data")

	// ErrAccountNotSigner indicates a required signer is missing.
	ErrAccountNotSigner = errors.New("account is not a signer")

	// ErrAccountNotWritable indicates a required writable account is not writable.
	ErrAccountNotWritable = errors.New("account is not writable")

	// ErrAccountDataTooLarge indicates the allocated space exceeds maximum.
	ErrAccountDataTooLarge = errors.New("account data too large")

	// ErrNotEnoughAccounts indicates the instruction lists too few accounts.
	ErrNotEnoughAccounts = errors.New("not enough account keys")
)
