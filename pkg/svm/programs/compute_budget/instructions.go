package compute_budget

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/x1-staker/pkg/types"
)

// Instruction tags (first byte of instruction data).
const (
	InstructionSetComputeUnitLimit uint8 = 2
	InstructionSetComputeUnitPrice uint8 = 3
)

// MaxComputeUnits is the largest limit a transaction may request.
const MaxComputeUnits uint32 = 1_400_000

type request struct {
	kind  uint8
	value uint64
}

func decode(data []byte) (request, error) {
	if len(data) == 0 {
		return request{}, fmt.Errorf("%w: empty", ErrInvalidInstructionData)
	}
	switch data[0] {
	case InstructionSetComputeUnitLimit:
		// Data layout: units (u32 LE)
		if len(data) != 5 {
			return request{}, fmt.Errorf("%w: SetComputeUnitLimit requires 4 bytes, got %d", ErrInvalidInstructionData, len(data)-1)
		}
		units := binary.LittleEndian.Uint32(data[1:])
		if units > MaxComputeUnits {
			return request{}, fmt.Errorf("%w: %d", ErrComputeUnitLimitTooHigh, units)
		}
		return request{kind: data[0], value: uint64(units)}, nil
	case InstructionSetComputeUnitPrice:
		// Data layout: micro_lamports (u64 LE)
		if len(data) != 9 {
			return request{}, fmt.Errorf("%w: SetComputeUnitPrice requires 8 bytes, got %d", ErrInvalidInstructionData, len(data)-1)
		}
		return request{kind: data[0], value: binary.LittleEndian.Uint64(data[1:])}, nil
	default:
		return request{}, fmt.Errorf("%w: %d", ErrUnknownInstruction, data[0])
	}
}

// SetComputeUnitLimit builds an instruction requesting units of compute for
// the whole transaction.
func SetComputeUnitLimit(units uint32) types.Instruction {
	data := make([]byte, 5)
	data[0] = InstructionSetComputeUnitLimit
	binary.LittleEndian.PutUint32(data[1:], units)
	return types.Instruction{ProgramID: ProgramID, Data: data}
}

// SetComputeUnitPrice builds an instruction setting the priority price.
func SetComputeUnitPrice(microLamports uint64) types.Instruction {
	data := make([]byte, 9)
	data[0] = InstructionSetComputeUnitPrice
	binary.LittleEndian.PutUint64(data[1:], microLamports)
	return types.Instruction{ProgramID: ProgramID, Data: data}
}
