package staker

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/x1-staker/pkg/types"
)

// PoolStateSize is the encoded size of a pool record including its
// 8-byte discriminator.
const PoolStateSize = 8 + 32*4 + 5

// PoolStateDiscriminator prefixes every pool record.
var PoolStateDiscriminator = accountDiscriminator("StakeState")

// PoolState is the pool record stored at FindPool(StakeMint). It is written
// once by Initialize and only read afterwards.
type PoolState struct {
	Admin     types.Pubkey
	StakeMint types.Pubkey
	PosMint   types.Pubkey
	Vault     types.Pubkey

	Bump          uint8
	VaultBump     uint8
	VaultAuthBump uint8
	MintAuthBump  uint8
	PosMintBump   uint8
}

func accountDiscriminator(name string) [8]byte {
	var d [8]byte
	h := types.SHA256([]byte("account:" + name))
	copy(d[:], h[:8])
	return d
}

// MarshalWithEncoder writes the Borsh encoding without the discriminator.
func (s *PoolState) MarshalWithEncoder(enc *bin.Encoder) error {
	for _, pk := range []types.Pubkey{s.Admin, s.StakeMint, s.PosMint, s.Vault} {
		if err := enc.WriteBytes(pk[:], false); err != nil {
			return err
		}
	}
	for _, b := range []uint8{s.Bump, s.VaultBump, s.VaultAuthBump, s.MintAuthBump, s.PosMintBump} {
		if err := enc.WriteUint8(b); err != nil {
			return err
		}
	}
	return nil
}

// UnmarshalWithDecoder reads the Borsh encoding without the discriminator.
func (s *PoolState) UnmarshalWithDecoder(dec *bin.Decoder) error {
	for _, pk := range []*types.Pubkey{&s.Admin, &s.StakeMint, &s.PosMint, &s.Vault} {
		b, err := dec.ReadNBytes(32)
		if err != nil {
			return err
		}
		copy(pk[:], b)
	}
	for _, b := range []*uint8{&s.Bump, &s.VaultBump, &s.VaultAuthBump, &s.MintAuthBump, &s.PosMintBump} {
		v, err := dec.ReadUint8()
		if err != nil {
			return err
		}
		*b = v
	}
	return nil
}

// Serialize encodes the record with its discriminator.
func (s *PoolState) Serialize() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, PoolStateSize))
	buf.Write(PoolStateDiscriminator[:])
	// Writes into a bytes.Buffer do not fail.
	_ = s.MarshalWithEncoder(bin.NewBorshEncoder(buf))
	return buf.Bytes()
}

// DeserializePoolState decodes a pool record, checking the discriminator.
func DeserializePoolState(data []byte) (*PoolState, error) {
	if len(data) < PoolStateSize {
		return nil, fmt.Errorf("%w: pool record is %d bytes, need %d", ErrInvalidAccountData, len(data), PoolStateSize)
	}
	if !bytes.Equal(data[:8], PoolStateDiscriminator[:]) {
		return nil, fmt.Errorf("%w: wrong pool record discriminator", ErrInvalidAccountData)
	}
	s := &PoolState{}
	if err := s.UnmarshalWithDecoder(bin.NewBorshDecoder(data[8:PoolStateSize])); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccountData, err)
	}
	return s, nil
}

// ReadPoolState decodes the pool record held by a ledger account.
func ReadPoolState(account *types.Account) (*PoolState, error) {
	if account == nil || account.Owner != ProgramID {
		return nil, fmt.Errorf("%w: pool record must be owned by %s", ErrInvalidAccountOwner, ProgramID)
	}
	return DeserializePoolState(account.Data)
}
