package staker

import (
	"github.com/fortiblox/x1-staker/pkg/svm/syscall"
	"github.com/fortiblox/x1-staker/pkg/types"
)

// Address seeds.
const (
	PositionMintSeed   = "pos-token"
	PoolSeed           = "stake-state"
	VaultSeed          = "vault"
	VaultAuthoritySeed = "vault-auth"
	MintAuthoritySeed  = "mint-auth"
)

// VaultAuthoritySeeds returns the seeds of the vault authority.
func VaultAuthoritySeeds() [][]byte {
	return [][]byte{[]byte(VaultAuthoritySeed)}
}

// MintAuthoritySeeds returns the seeds of the position mint authority.
func MintAuthoritySeeds() [][]byte {
	return [][]byte{[]byte(MintAuthoritySeed)}
}

// PoolSeeds returns the seeds of the pool record for stakeMint.
func PoolSeeds(stakeMint types.Pubkey) [][]byte {
	return [][]byte{[]byte(PoolSeed), stakeMint.Bytes()}
}

// VaultSeeds returns the seeds of the pool's custody account.
func VaultSeeds(pool types.Pubkey) [][]byte {
	return [][]byte{[]byte(VaultSeed), pool.Bytes()}
}

// PositionMintSeeds returns the seeds of the pool's position mint.
func PositionMintSeeds(pool types.Pubkey) [][]byte {
	return [][]byte{[]byte(PositionMintSeed), pool.Bytes()}
}

// UserStakeSeeds returns the seeds of user's stake asset holding.
func UserStakeSeeds(stakeMint, user types.Pubkey) [][]byte {
	return [][]byte{stakeMint.Bytes(), user.Bytes()}
}

// UserPositionSeeds returns the seeds of user's position asset holding.
func UserPositionSeeds(posMint, user types.Pubkey) [][]byte {
	return [][]byte{posMint.Bytes(), user.Bytes()}
}

// Find* search for the canonical bump. Create*WithBump recompute the address
// from a known bump and fail if the bump does not yield a valid address.

func FindVaultAuthority() (types.Pubkey, uint8, error) {
	return syscall.FindProgramAddress(VaultAuthoritySeeds(), ProgramID)
}

func CreateVaultAuthorityWithBump(bump uint8) (types.Pubkey, error) {
	return syscall.CreateProgramAddress(syscall.WithBump(VaultAuthoritySeeds(), bump), ProgramID)
}

func FindMintAuthority() (types.Pubkey, uint8, error) {
	return syscall.FindProgramAddress(MintAuthoritySeeds(), ProgramID)
}

func CreateMintAuthorityWithBump(bump uint8) (types.Pubkey, error) {
	return syscall.CreateProgramAddress(syscall.WithBump(MintAuthoritySeeds(), bump), ProgramID)
}

func FindPool(stakeMint types.Pubkey) (types.Pubkey, uint8, error) {
	return syscall.FindProgramAddress(PoolSeeds(stakeMint), ProgramID)
}

func CreatePoolWithBump(stakeMint types.Pubkey, bump uint8) (types.Pubkey, error) {
	return syscall.CreateProgramAddress(syscall.WithBump(PoolSeeds(stakeMint), bump), ProgramID)
}

func FindVault(pool types.Pubkey) (types.Pubkey, uint8, error) {
	return syscall.FindProgramAddress(VaultSeeds(pool), ProgramID)
}

func CreateVaultWithBump(pool types.Pubkey, bump uint8) (types.Pubkey, error) {
	return syscall.CreateProgramAddress(syscall.WithBump(VaultSeeds(pool), bump), ProgramID)
}

func FindPositionMint(pool types.Pubkey) (types.Pubkey, uint8, error) {
	return syscall.FindProgramAddress(PositionMintSeeds(pool), ProgramID)
}

func CreatePositionMintWithBump(pool types.Pubkey, bump uint8) (types.Pubkey, error) {
	return syscall.CreateProgramAddress(syscall.WithBump(PositionMintSeeds(pool), bump), ProgramID)
}

func FindUserStakeAccount(stakeMint, user types.Pubkey) (types.Pubkey, uint8, error) {
	return syscall.FindProgramAddress(UserStakeSeeds(stakeMint, user), ProgramID)
}

func CreateUserStakeAccountWithBump(stakeMint, user types.Pubkey, bump uint8) (types.Pubkey, error) {
	return syscall.CreateProgramAddress(syscall.WithBump(UserStakeSeeds(stakeMint, user), bump), ProgramID)
}

func FindUserPositionAccount(posMint, user types.Pubkey) (types.Pubkey, uint8, error) {
	return syscall.FindProgramAddress(UserPositionSeeds(posMint, user), ProgramID)
}

func CreateUserPositionAccountWithBump(posMint, user types.Pubkey, bump uint8) (types.Pubkey, error) {
	return syscall.CreateProgramAddress(syscall.WithBump(UserPositionSeeds(posMint, user), bump), ProgramID)
}

// PoolAddresses holds every pool-level derived address with its bump.
type PoolAddresses struct {
	StakeMint types.Pubkey

	Pool     types.Pubkey
	PoolBump uint8

	Vault     types.Pubkey
	VaultBump uint8

	VaultAuthority     types.Pubkey
	VaultAuthorityBump uint8

	MintAuthority     types.Pubkey
	MintAuthorityBump uint8

	PositionMint     types.Pubkey
	PositionMintBump uint8
}

// DerivePoolAddresses derives every address of the pool for stakeMint.
func DerivePoolAddresses(stakeMint types.Pubkey) (*PoolAddresses, error) {
	a := &PoolAddresses{StakeMint: stakeMint}
	var err error
	if a.Pool, a.PoolBump, err = FindPool(stakeMint); err != nil {
		return nil, err
	}
	if a.Vault, a.VaultBump, err = FindVault(a.Pool); err != nil {
		return nil, err
	}
	if a.VaultAuthority, a.VaultAuthorityBump, err = FindVaultAuthority(); err != nil {
		return nil, err
	}
	if a.MintAuthority, a.MintAuthorityBump, err = FindMintAuthority(); err != nil {
		return nil, err
	}
	if a.PositionMint, a.PositionMintBump, err = FindPositionMint(a.Pool); err != nil {
		return nil, err
	}
	return a, nil
}

// InitializeArgs returns the bump arguments Initialize expects.
func (a *PoolAddresses) InitializeArgs() InitializeArgs {
	return InitializeArgs{
		PosMintBump:   a.PositionMintBump,
		PoolBump:      a.PoolBump,
		VaultAuthBump: a.VaultAuthorityBump,
		VaultBump:     a.VaultBump,
		MintAuthBump:  a.MintAuthorityBump,
	}
}
