package compute_budget

import "errors"

var (
	ErrInvalidInstructionData  = errors.New("invalid compute budget instruction data")
	ErrComputeUnitLimitTooHigh = errors.New("compute unit limit exceeds 1400000")
	ErrDuplicateInstruction    = errors.New("duplicate compute budget instruction")
	ErrUnknownInstruction      = errors.New("unknown compute budget instruction")
)
