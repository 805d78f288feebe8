package token

import (
	"encoding/binary"
	"fmt"

	"github.com/fortiblox/x1-staker/pkg/types"
)

// Token program instruction discriminators (first byte of instruction data)
const (
	InstructionInitializeMint    uint8 = 0
	InstructionInitializeAccount uint8 = 1
	InstructionTransfer          uint8 = 3
	InstructionMintTo            uint8 = 7
	InstructionBurn              uint8 = 8
)

// InitializeMintInstruction represents an InitializeMint instruction.
// Accounts:
//
//	[0] mint (writable)
//	[1] rent sysvar
type InitializeMintInstruction struct {
	Decimals        uint8
	MintAuthority   types.Pubkey
	FreezeAuthority *types.Pubkey
}

// Decode decodes an InitializeMint instruction from bytes.
// Layout: decimals (1) + mint_authority (32) + freeze option tag (1) [+ freeze_authority (32)]
func (inst *InitializeMintInstruction) Decode(data []byte) error {
	if len(data) < 34 {
		return fmt.Errorf("%w: InitializeMint requires at least 34 bytes, got %d",
			ErrInvalidInstructionData, len(data))
	}
	inst.Decimals = data[0]
	copy(inst.MintAuthority[:], data[1:33])

	if data[33] == 1 {
		if len(data) < 66 {
			return fmt.Errorf("%w: InitializeMint with freeze authority requires 66 bytes",
				ErrInvalidInstructionData)
		}
		var freeze types.Pubkey
		copy(freeze[:], data[34:66])
		inst.FreezeAuthority = &freeze
	}
	return nil
}

// Encode encodes an InitializeMint instruction with its discriminator.
func (inst *InitializeMintInstruction) Encode() []byte {
	data := make([]byte, 1+34, 1+66)
	data[0] = InstructionInitializeMint
	data[1] = inst.Decimals
	copy(data[2:34], inst.MintAuthority[:])
	if inst.FreezeAuthority != nil {
		data[34] = 1
		data = append(data, inst.FreezeAuthority[:]...)
	}
	return data
}

// AmountInstruction carries the single u64 argument of Transfer, MintTo
// and Burn.
type AmountInstruction struct {
	Amount uint64
}

// Decode decodes the amount argument.
func (inst *AmountInstruction) Decode(data []byte) error {
	if len(data) < 8 {
		return fmt.Errorf("%w: amount requires 8 bytes, got %d", ErrInvalidInstructionData, len(data))
	}
	inst.Amount = binary.LittleEndian.Uint64(data[0:8])
	return nil
}

func encodeAmount(discriminator uint8, amount uint64) []byte {
	data := make([]byte, 1+8)
	data[0] = discriminator
	binary.LittleEndian.PutUint64(data[1:9], amount)
	return data
}

// ParseInstructionDiscriminator reads the 1-byte instruction tag.
func ParseInstructionDiscriminator(data []byte) (uint8, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("%w: empty instruction data", ErrInvalidInstructionData)
	}
	return data[0], nil
}

// InitializeMint builds an InitializeMint instruction.
func InitializeMint(mint types.Pubkey, decimals uint8, mintAuthority types.Pubkey, freezeAuthority *types.Pubkey) types.Instruction {
	inst := InitializeMintInstruction{Decimals: decimals, MintAuthority: mintAuthority, FreezeAuthority: freezeAuthority}
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts:  []types.AccountMeta{types.Writable(mint), types.Readonly(types.SysvarRentID)},
		Data:      inst.Encode(),
	}
}

// InitializeAccount builds an InitializeAccount instruction.
// Accounts:
//
//	[0] account (writable)
//	[1] mint
//	[2] owner
//	[3] rent sysvar
func InitializeAccount(account, mint, owner types.Pubkey) types.Instruction {
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts: []types.AccountMeta{
			types.Writable(account),
			types.Readonly(mint),
			types.Readonly(owner),
			types.Readonly(types.SysvarRentID),
		},
		Data: []byte{InstructionInitializeAccount},
	}
}

// Transfer builds a Transfer instruction.
// Accounts:
//
//	[0] source (writable)
//	[1] destination (writable)
//	[2] owner (signer)
func Transfer(source, destination, owner types.Pubkey, amount uint64) types.Instruction {
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts: []types.AccountMeta{
			types.Writable(source),
			types.Writable(destination),
			{Pubkey: owner, IsSigner: true},
		},
		Data: encodeAmount(InstructionTransfer, amount),
	}
}

// MintTo builds a MintTo instruction.
// Accounts:
//
//	[0] mint (writable)
//	[1] destination (writable)
//	[2] mint authority (signer)
func MintTo(mint, destination, authority types.Pubkey, amount uint64) types.Instruction {
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts: []types.AccountMeta{
			types.Writable(mint),
			types.Writable(destination),
			{Pubkey: authority, IsSigner: true},
		},
		Data: encodeAmount(InstructionMintTo, amount),
	}
}

// Burn builds a Burn instruction.
// Accounts:
//
//	[0] account (writable)
//	[1] mint (writable)
//	[2] owner (signer)
func Burn(account, mint, owner types.Pubkey, amount uint64) types.Instruction {
	return types.Instruction{
		ProgramID: types.TokenProgramID,
		Accounts: []types.AccountMeta{
			types.Writable(account),
			types.Writable(mint),
			{Pubkey: owner, IsSigner: true},
		},
		Data: encodeAmount(InstructionBurn, amount),
	}
}
