package system

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/x1-staker/pkg/types"
)

// System program instruction discriminators (first 4 bytes of instruction data)
const (
	InstructionCreateAccount uint32 = 0
	InstructionAssign        uint32 = 1
	InstructionTransfer      uint32 = 2
	InstructionAllocate      uint32 = 8
)

// CreateAccountInstruction creates a new account with the specified
// lamports, space, and owner.
type CreateAccountInstruction struct {
	Lamports uint64
	Space    uint64
	Owner    types.Pubkey
}

// Decode decodes a CreateAccount instruction from bytes.
func (inst *CreateAccountInstruction) Decode(data []byte) error {
	if len(data) < 48 {
		return fmt.Errorf("%w: CreateAccount requires 48 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	inst.Lamports = binary.LittleEndian.Uint64(data[0:8])
	inst.Space = binary.LittleEndian.Uint64(data[8:16])
	copy(inst.Owner[:], data[16:48])
	return nil
}

// Encode encodes a CreateAccount instruction with its discriminator.
func (inst *CreateAccountInstruction) Encode() []byte {
	data := make([]byte, 4+48)
	binary.LittleEndian.PutUint32(data[0:4], InstructionCreateAccount)
	binary.LittleEndian.PutUint64(data[4:12], inst.Lamports)
	binary.LittleEndian.PutUint64(data[12:20], inst.Space)
	copy(data[20:52], inst.Owner[:])
	return data
}

// AssignInstruction changes the owner of an account.
type AssignInstruction struct {
	Owner types.Pubkey
}

// Decode decodes an Assign instruction from bytes.
func (inst *AssignInstruction) Decode(data []byte) error {
	if len(data) < 32 {
		return fmt.Errorf("%w: Assign requires 32 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	copy(inst.Owner[:], data[0:32])
	return nil
}

// Encode encodes an Assign instruction with its discriminator.
func (inst *AssignInstruction) Encode() []byte {
	data := make([]byte, 4+32)
	binary.LittleEndian.PutUint32(data[0:4], InstructionAssign)
	copy(data[4:36], inst.Owner[:])
	return data
}

// TransferInstruction moves lamports between accounts.
type TransferInstruction struct {
	Lamports uint64
}

// Decode decodes a Transfer instruction from bytes.
func (inst *TransferInstruction) Decode(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: Transfer requires 8 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	inst.Lamports = binary.LittleEndian.Uint64(data[0:8])
	return nil
}

// Encode encodes a Transfer instruction with its discriminator.
func (inst *TransferInstruction) Encode() []byte {
	data := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(data[0:4], InstructionTransfer)
	binary.LittleEndian.PutUint64(data[4:12], inst.Lamports)
	return data
}

// AllocateInstruction sizes the data of a system-owned account.
type AllocateInstruction struct {
	Space uint64
}

// Decode decodes an Allocate instruction from bytes.
func (inst *AllocateInstruction) Decode(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: Allocate requires 8 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	inst.Space = binary.LittleEndian.Uint64(data[0:8])
	return nil
}

// Encode encodes an Allocate instruction with its discriminator.
func (inst *AllocateInstruction) Encode() []byte {
	data := make([]byte, 4+8)
	binary.LittleEndian.PutUint32(data[0:4], InstructionAllocate)
	binary.LittleEndian.PutUint64(data[4:12], inst.Space)
	return data
}

// ParseInstructionDiscriminator reads the 4-byte little-endian tag.
func ParseInstructionDiscriminator(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("%w: instruction data too short for discriminator", ErrInvalidInstructionData)
	}
	return binary.LittleEndian.Uint32(data[0:4]), nil
}

// CreateAccount builds a CreateAccount instruction funded by from.
func CreateAccount(from, newAccount types.Pubkey, lamports, space uint64, owner types.Pubkey) types.Instruction {
	inst := CreateAccountInstruction{Lamports: lamports, Space: space, Owner: owner}
	return types.Instruction{
		ProgramID: types.SystemProgramID,
		Accounts: []types.AccountMeta{
			{Pubkey: from, IsSigner: true, IsWritable: true},
			{Pubkey: newAccount, IsSigner: true, IsWritable: true},
		},
		Data: inst.Encode(),
	}
}

// Transfer builds a lamport Transfer instruction.
func Transfer(from, to types.Pubkey, lamports uint64) types.Instruction {
	inst := TransferInstruction{Lamports: lamports}
	return types.Instruction{
		ProgramID: types.SystemProgramID,
		Accounts: []types.AccountMeta{
			{Pubkey: from, IsSigner: true, IsWritable: true},
			types.Writable(to),
		},
		Data: inst.Encode(),
	}
}

// Assign builds an Assign instruction.
func Assign(account, owner types.Pubkey) types.Instruction {
	inst := AssignInstruction{Owner: owner}
	return types.Instruction{
		ProgramID: types.SystemProgramID,
		Accounts:  []types.AccountMeta{{Pubkey: account, IsSigner: true, IsWritable: true}},
		Data:      inst.Encode(),
	}
}

// Allocate builds an Allocate instruction.
func Allocate(account types.Pubkey, space uint64) types.Instruction {
	inst := AllocateInstruction{Space: space}
	return types.Instruction{
		ProgramID: types.SystemProgramID,
		Accounts:  []types.AccountMeta{{Pubkey: account, IsSigner: true, IsWritable: true}},
		Data:      inst.Encode(),
	}
}
