package staker

import (
	"errors"
	"fmt"
)

// ProgramError is a staker program failure with a stable numeric code.
// Detailed errors carry the broader category they belong to, so
// errors.Is(ErrStakeMintMismatch, ErrAccountMismatch) holds.
type ProgramError struct {
	Code     uint32
	Name     string
	Msg      string
	category *ProgramError
}

// Error implements the error interface.
func (e *ProgramError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

// Is reports whether target is e or e's category.
func (e *ProgramError) Is(target error) bool {
	t, ok := target.(*ProgramError)
	if !ok {
		return false
	}
	return e == t || (e.category != nil && e.category == t)
}

// Category returns the broad error class, or e itself for a class.
func (e *ProgramError) Category() *ProgramError {
	if e.category != nil {
		return e.category
	}
	return e
}

// errorCodeOffset is where custom program error codes start.
const errorCodeOffset = 6000

func newError(offset uint32, name, msg string, category *ProgramError) *ProgramError {
	e := &ProgramError{Code: errorCodeOffset + offset, Name: name, Msg: msg, category: category}
	registry[e.Code] = e
	return e
}

var registry = map[uint32]*ProgramError{}

// Error classes.
var (
	ErrInsufficientFunds         = newError(0, "InsufficientFunds", "Insufficient funds", nil)
	ErrInvalidBump               = newError(1, "InvalidBump", "Supplied bump does not reproduce the expected address", nil)
	ErrAccountMismatch           = newError(2, "AccountMismatch", "Account does not match the expected address or kind", nil)
	ErrAccountAlreadyInitialized = newError(3, "AccountAlreadyInitialized", "Account is already initialized", nil)
	ErrUnauthorized              = newError(4, "Unauthorized", "Caller is not authorized for this account", nil)
	ErrInvalidAmount             = newError(5, "InvalidAmount", "Amount must be greater than zero", nil)
)

// Detailed errors.
var (
	ErrStakeMintMismatch   = newError(6, "StakeMintMismatch", "Stake mint mismatch", ErrAccountMismatch)
	ErrPosMintMismatch     = newError(7, "PosMintMismatch", "Pos Mint mismatch", ErrAccountMismatch)
	ErrStakeOwnerMismatch  = newError(8, "StakeOwnerMismatch", "Stake token owner mismatch", ErrUnauthorized)
	ErrPosOwnerMismatch    = newError(9, "PosOwnerMismatch", "Pos Owner mismatch", ErrUnauthorized)
	ErrVaultMismatch       = newError(10, "VaultMismatch", "Vault does not match the pool", ErrAccountMismatch)
	ErrInvalidAccountOwner = newError(11, "InvalidAccountOwner", "Account is owned by the wrong program", ErrAccountMismatch)
)

// Decoding and dispatch errors.
var (
	ErrInvalidAccountData           = newError(12, "InvalidAccountData", "Account data is malformed", nil)
	ErrNotEnoughAccountKeys         = newError(13, "NotEnoughAccountKeys", "Not enough account keys given to the instruction", nil)
	ErrInstructionFallbackNotFound  = newError(14, "InstructionFallbackNotFound", "Fallback functions are not supported", nil)
	ErrInstructionDidNotDeserialize = newError(15, "InstructionDidNotDeserialize", "The program could not deserialize the given instruction", nil)
)

// ErrorByCode returns the program error registered under code.
func ErrorByCode(code uint32) (*ProgramError, bool) {
	e, ok := registry[code]
	return e, ok
}

// AsProgramError extracts the staker error from an error chain.
func AsProgramError(err error) (*ProgramError, bool) {
	var pe *ProgramError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
