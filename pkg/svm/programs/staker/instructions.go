package staker

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/x1-staker/pkg/types"
)

// Instruction names as they appear in the sighash preimage.
const (
	nameInitialize    = "initialize"
	nameRegisterStake = "register_stake"
	nameStake         = "stake"
	nameUnstake       = "unstake"
)

// Instruction sighashes: the first 8 bytes of sha256("global:<name>").
var (
	InstructionInitialize    = sighash(nameInitialize)
	InstructionRegisterStake = sighash(nameRegisterStake)
	InstructionStake         = sighash(nameStake)
	InstructionUnstake       = sighash(nameUnstake)
)

func sighash(name string) [8]byte {
	var d [8]byte
	h := types.SHA256([]byte("global:" + name))
	copy(d[:], h[:8])
	return d
}

// InitializeArgs carries the bumps of every pool address.
type InitializeArgs struct {
	PosMintBump   uint8
	PoolBump      uint8
	VaultAuthBump uint8
	VaultBump     uint8
	MintAuthBump  uint8
}

func (a *InitializeArgs) fields() []*uint8 {
	return []*uint8{&a.PosMintBump, &a.PoolBump, &a.VaultAuthBump, &a.VaultBump, &a.MintAuthBump}
}

func (a *InitializeArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	for _, f := range a.fields() {
		if err := enc.WriteUint8(*f); err != nil {
			return err
		}
	}
	return nil
}

func (a *InitializeArgs) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	for _, f := range a.fields() {
		if *f, err = dec.ReadUint8(); err != nil {
			return err
		}
	}
	return nil
}

// RegisterStakeArgs carries the bumps of the two user holdings.
type RegisterStakeArgs struct {
	StakeAccountBump uint8
	PosAccountBump   uint8
}

func (a *RegisterStakeArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint8(a.StakeAccountBump); err != nil {
		return err
	}
	return enc.WriteUint8(a.PosAccountBump)
}

func (a *RegisterStakeArgs) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if a.StakeAccountBump, err = dec.ReadUint8(); err != nil {
		return err
	}
	a.PosAccountBump, err = dec.ReadUint8()
	return err
}

// StakeArgs is the argument of Stake and Unstake.
type StakeArgs struct {
	Amount uint64
}

// UnstakeArgs has the same encoding as StakeArgs.
type UnstakeArgs = StakeArgs

func (a *StakeArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	return enc.WriteUint64(a.Amount, bin.LE)
}

func (a *StakeArgs) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	a.Amount, err = dec.ReadUint64(bin.LE)
	return err
}

// EncodeInstruction prefixes the Borsh encoding of args with the sighash.
func EncodeInstruction(discriminator [8]byte, args bin.BinaryMarshaler) []byte {
	buf := bytes.NewBuffer(append([]byte(nil), discriminator[:]...))
	_ = args.MarshalWithEncoder(bin.NewBorshEncoder(buf))
	return buf.Bytes()
}

func decodeArgs(data []byte, args bin.BinaryUnmarshaler) error {
	if err := args.UnmarshalWithDecoder(bin.NewBorshDecoder(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrInstructionDidNotDeserialize, err)
	}
	return nil
}

// NewInitializeInstruction builds Initialize for the pool described by a,
// paid for by admin.
func NewInitializeInstruction(admin types.Pubkey, a *PoolAddresses) types.Instruction {
	args := a.InitializeArgs()
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			{Pubkey: admin, IsSigner: true, IsWritable: true},
			types.Readonly(types.SystemProgramID),
			types.Readonly(types.TokenProgramID),
			types.Readonly(types.SysvarRentID),
			types.Readonly(a.StakeMint),
			types.Readonly(a.MintAuthority),
			types.Writable(a.PositionMint),
			types.Writable(a.Pool),
			types.Readonly(a.VaultAuthority),
			types.Writable(a.Vault),
		},
		Data: EncodeInstruction(InstructionInitialize, &args),
	}
}

// UserAccounts holds a user's two holdings in a pool.
type UserAccounts struct {
	User types.Pubkey

	StakeAccount     types.Pubkey
	StakeAccountBump uint8

	PositionAccount     types.Pubkey
	PositionAccountBump uint8
}

// DeriveUserAccounts derives user's holdings for the pool described by a.
func DeriveUserAccounts(a *PoolAddresses, user types.Pubkey) (*UserAccounts, error) {
	u := &UserAccounts{User: user}
	var err error
	if u.StakeAccount, u.StakeAccountBump, err = FindUserStakeAccount(a.StakeMint, user); err != nil {
		return nil, err
	}
	if u.PositionAccount, u.PositionAccountBump, err = FindUserPositionAccount(a.PositionMint, user); err != nil {
		return nil, err
	}
	return u, nil
}

// NewRegisterStakeInstruction builds RegisterStake creating u's holdings.
func NewRegisterStakeInstruction(a *PoolAddresses, u *UserAccounts) types.Instruction {
	args := RegisterStakeArgs{StakeAccountBump: u.StakeAccountBump, PosAccountBump: u.PositionAccountBump}
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts: []types.AccountMeta{
			types.Readonly(a.Pool),
			{Pubkey: u.User, IsSigner: true, IsWritable: true},
			types.Readonly(a.StakeMint),
			types.Writable(u.StakeAccount),
			types.Readonly(a.PositionMint),
			types.Writable(u.PositionAccount),
			types.Readonly(types.SystemProgramID),
			types.Readonly(types.TokenProgramID),
			types.Readonly(types.SysvarRentID),
		},
		Data: EncodeInstruction(InstructionRegisterStake, &args),
	}
}

func movementAccounts(a *PoolAddresses, u *UserAccounts, authority types.Pubkey) []types.AccountMeta {
	return []types.AccountMeta{
		types.Readonly(a.Pool),
		{Pubkey: u.User, IsSigner: true},
		types.Readonly(a.StakeMint),
		types.Writable(u.StakeAccount),
		types.Writable(a.PositionMint),
		types.Writable(u.PositionAccount),
		types.Writable(a.Vault),
		types.Readonly(authority),
		types.Readonly(types.TokenProgramID),
	}
}

// NewStakeInstruction builds Stake moving amount from u into the vault.
func NewStakeInstruction(a *PoolAddresses, u *UserAccounts, amount uint64) types.Instruction {
	args := StakeArgs{Amount: amount}
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts:  movementAccounts(a, u, a.MintAuthority),
		Data:      EncodeInstruction(InstructionStake, &args),
	}
}

// NewUnstakeInstruction builds Unstake returning amount to u.
func NewUnstakeInstruction(a *PoolAddresses, u *UserAccounts, amount uint64) types.Instruction {
	args := UnstakeArgs{Amount: amount}
	return types.Instruction{
		ProgramID: ProgramID,
		Accounts:  movementAccounts(a, u, a.VaultAuthority),
		Data:      EncodeInstruction(InstructionUnstake, &args),
	}
}
