package token

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/x1-staker/pkg/types"
)

// Account state sizes
const (
	// MintSize is the size of a serialized Mint account (82 bytes)
	MintSize = 82

	// TokenAccountSize is the size of a serialized TokenAccount (165 bytes)
	TokenAccountSize = 165
)

// Account state enum values
const (
	AccountStateUninitialized uint8 = 0
	AccountStateInitialized   uint8 = 1
	AccountStateFrozen        uint8 = 2
)

// COption is an optional pubkey: a 4-byte tag followed by 32 bytes.
type COption struct {
	IsSome bool
	Value  types.Pubkey
}

// Some wraps pk in a present COption.
func Some(pk types.Pubkey) COption {
	return COption{IsSome: true, Value: pk}
}

// COptionU64 is an optional u64: a 4-byte tag followed by 8 bytes.
type COptionU64 struct {
	IsSome bool
	Value  uint64
}

// Mint is an SPL-compatible mint account.
// Layout (82 bytes total):
//   - mint_authority: COption<Pubkey> (36 bytes)
//   - supply: u64 (8 bytes)
//   - decimals: u8 (1 byte)
//   - is_initialized: bool (1 byte)
//   - freeze_authority: COption<Pubkey> (36 bytes)
type Mint struct {
	MintAuthority   COption
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority COption
}

// TokenAccount is an SPL-compatible token holding.
// Layout (165 bytes total):
//   - mint: Pubkey (32 bytes)
//   - owner: Pubkey (32 bytes)
//   - amount: u64 (8 bytes)
//   - delegate: COption<Pubkey> (36 bytes)
//   - state: AccountState (1 byte)
//   - is_native: COption<u64> (12 bytes)
//   - delegated_amount: u64 (8 bytes)
//   - close_authority: COption<Pubkey> (36 bytes)
type TokenAccount struct {
	Mint            types.Pubkey
	Owner           types.Pubkey
	Amount          uint64
	Delegate        COption
	State           uint8
	IsNative        COptionU64
	DelegatedAmount uint64
	CloseAuthority  COption
}

// DeserializeMint decodes a Mint.
func DeserializeMint(data []byte) (*Mint, error) {
	if len(data) < MintSize {
		return nil, fmt.Errorf("%w: mint data too short, expected %d bytes, got %d",
			ErrInvalidAccountData, MintSize, len(data))
	}
	dec := bin.NewBinDecoder(data[:MintSize])
	mint := &Mint{}

	var err error
	if mint.MintAuthority, err = decodeCOption(dec); err != nil {
		return nil, err
	}
	if mint.Supply, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, err
	}
	if mint.Decimals, err = dec.ReadUint8(); err != nil {
		return nil, err
	}
	if mint.IsInitialized, err = dec.ReadBool(); err != nil {
		return nil, err
	}
	if mint.FreezeAuthority, err = decodeCOption(dec); err != nil {
		return nil, err
	}
	return mint, nil
}

// Serialize encodes the Mint into MintSize bytes.
func (m *Mint) Serialize() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, MintSize))
	enc := bin.NewBinEncoder(buf)

	encodeCOption(enc, m.MintAuthority)
	_ = enc.WriteUint64(m.Supply, bin.LE)
	_ = enc.WriteUint8(m.Decimals)
	_ = enc.WriteBool(m.IsInitialized)
	encodeCOption(enc, m.FreezeAuthority)
	return buf.Bytes()
}

// DeserializeTokenAccount decodes a TokenAccount.
func DeserializeTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) < TokenAccountSize {
		return nil, fmt.Errorf("%w: token account data too short, expected %d bytes, got %d",
			ErrInvalidAccountData, TokenAccountSize, len(data))
	}
	dec := bin.NewBinDecoder(data[:TokenAccountSize])
	account := &TokenAccount{}

	var err error
	if account.Mint, err = decodePubkey(dec); err != nil {
		return nil, err
	}
	if account.Owner, err = decodePubkey(dec); err != nil {
		return nil, err
	}
	if account.Amount, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, err
	}
	if account.Delegate, err = decodeCOption(dec); err != nil {
		return nil, err
	}
	if account.State, err = dec.ReadUint8(); err != nil {
		return nil, err
	}
	tag, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return nil, err
	}
	account.IsNative.IsSome = tag == 1
	if account.IsNative.Value, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, err
	}
	if account.DelegatedAmount, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, err
	}
	if account.CloseAuthority, err = decodeCOption(dec); err != nil {
		return nil, err
	}
	return account, nil
}

// Serialize encodes the TokenAccount into TokenAccountSize bytes.
func (a *TokenAccount) Serialize() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, TokenAccountSize))
	enc := bin.NewBinEncoder(buf)

	_ = enc.WriteBytes(a.Mint[:], false)
	_ = enc.WriteBytes(a.Owner[:], false)
	_ = enc.WriteUint64(a.Amount, bin.LE)
	encodeCOption(enc, a.Delegate)
	_ = enc.WriteUint8(a.State)
	if a.IsNative.IsSome {
		_ = enc.WriteUint32(1, bin.LE)
		_ = enc.WriteUint64(a.IsNative.Value, bin.LE)
	} else {
		_ = enc.WriteUint32(0, bin.LE)
		_ = enc.WriteUint64(0, bin.LE)
	}
	_ = enc.WriteUint64(a.DelegatedAmount, bin.LE)
	encodeCOption(enc, a.CloseAuthority)
	return buf.Bytes()
}

// IsFrozen returns true if the account is frozen.
func (a *TokenAccount) IsFrozen() bool {
	return a.State == AccountStateFrozen
}

// IsInitialized returns true once InitializeAccount has run.
func (a *TokenAccount) IsInitialized() bool {
	return a.State != AccountStateUninitialized
}

func decodePubkey(dec *bin.Decoder) (types.Pubkey, error) {
	var pk types.Pubkey
	b, err := dec.ReadNBytes(32)
	if err != nil {
		return pk, err
	}
	copy(pk[:], b)
	return pk, nil
}

// decodeCOption reads a COption<Pubkey>. The value bytes are always present.
func decodeCOption(dec *bin.Decoder) (COption, error) {
	tag, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return COption{}, err
	}
	pk, err := decodePubkey(dec)
	if err != nil {
		return COption{}, err
	}
	if tag != 1 {
		return COption{}, nil
	}
	return Some(pk), nil
}

// Writes into a bytes.Buffer cannot fail.
func encodeCOption(enc *bin.Encoder, opt COption) {
	if opt.IsSome {
		_ = enc.WriteUint32(1, bin.LE)
		_ = enc.WriteBytes(opt.Value[:], false)
		return
	}
	_ = enc.WriteUint32(0, bin.LE)
	_ = enc.WriteBytes(make([]byte, 32), false)
}

// NewMint creates an initialized Mint with the given authorities.
func NewMint(decimals uint8, mintAuthority *types.Pubkey, freezeAuthority *types.Pubkey) *Mint {
	mint := &Mint{
		Decimals:      decimals,
		IsInitialized: true,
	}
	if mintAuthority != nil {
		mint.MintAuthority = Some(*mintAuthority)
	}
	if freezeAuthority != nil {
		mint.FreezeAuthority = Some(*freezeAuthority)
	}
	return mint
}

// NewTokenAccount creates an initialized, empty TokenAccount.
func NewTokenAccount(mint types.Pubkey, owner types.Pubkey) *TokenAccount {
	return &TokenAccount{
		Mint:  mint,
		Owner: owner,
		State: AccountStateInitialized,
	}
}
