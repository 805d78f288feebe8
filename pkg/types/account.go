package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
)

// Account represents a ledger account.
type Account struct {
	Lamports   Lamports // Balance in lamports
	Data       []byte   // Account data
	Owner      Pubkey   // Program that owns this account
	Executable bool     // Is this a program account?
}

// NewAccount creates a new account with no data.
func NewAccount(lamports Lamports, owner Pubkey) *Account {
	return &Account{
		Lamports: lamports,
		Owner:    owner,
	}
}

// Clone creates a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{
		Lamports:   a.Lamports,
		Owner:      a.Owner,
		Executable: a.Executable,
	}
	if a.Data != nil {
		clone.Data = make([]byte, len(a.Data))
		copy(clone.Data, a.Data)
	}
	return clone
}

// IsEmpty returns true if the account has zero lamports and no data.
// Empty accounts are treated as nonexistent by the runtime.
func (a *Account) IsEmpty() bool {
	return a == nil || (a.Lamports == 0 && len(a.Data) == 0)
}

// Equal reports whether two accounts hold identical state.
func (a *Account) Equal(b *Account) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Lamports == b.Lamports &&
		a.Owner == b.Owner &&
		a.Executable == b.Executable &&
		bytes.Equal(a.Data, b.Data)
}

// Hash computes the account hash used by the state hash.
// Format: SHA256(lamports || data || executable || owner || pubkey)
func (a *Account) Hash(pubkey Pubkey) Hash {
	h := sha256.New()

	var lamportsBuf [8]byte
	binary.LittleEndian.PutUint64(lamportsBuf[:], uint64(a.Lamports))
	h.Write(lamportsBuf[:])

	h.Write(a.Data)

	if a.Executable {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}

	h.Write(a.Owner[:])
	h.Write(pubkey[:])

	var result Hash
	copy(result[:], h.Sum(nil))
	return result
}

// RentExemptMinimum calculates the minimum lamports for rent exemption.
// Formula: (data_size + 128) * 3480 lamports/byte/year * 2 years
func RentExemptMinimum(dataSize uint64) Lamports {
	const (
		lamportsPerByteYear = 3480
		exemptionThreshold  = 2
		accountOverhead     = 128
	)
	return Lamports((dataSize + accountOverhead) * lamportsPerByteYear * exemptionThreshold)
}

// AccountMeta describes an account in an instruction.
type AccountMeta struct {
	Pubkey     Pubkey
	IsSigner   bool
	IsWritable bool
}

// NewAccountMeta is a shorthand constructor.
func NewAccountMeta(pubkey Pubkey, isSigner, isWritable bool) AccountMeta {
	return AccountMeta{Pubkey: pubkey, IsSigner: isSigner, IsWritable: isWritable}
}

// Readonly returns a read-only, non-signer meta.
func Readonly(pubkey Pubkey) AccountMeta {
	return AccountMeta{Pubkey: pubkey}
}

// Writable returns a writable, non-signer meta.
func Writable(pubkey Pubkey) AccountMeta {
	return AccountMeta{Pubkey: pubkey, IsWritable: true}
}

// AccountRef is a reference to an account with its pubkey.
type AccountRef struct {
	Pubkey  Pubkey
	Account *Account
}

// AccountDelta represents a change to an account.
type AccountDelta struct {
	Pubkey     Pubkey
	OldAccount *Account // nil if new account
	NewAccount *Account // nil if deleted
}

// IsCreation returns true if this is a new account.
func (d *AccountDelta) IsCreation() bool {
	return d.OldAccount == nil && d.NewAccount != nil
}

// IsDeletion returns true if this account was deleted.
func (d *AccountDelta) IsDeletion() bool {
	return d.OldAccount != nil && d.NewAccount == nil
}
