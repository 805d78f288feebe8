package syscall

import (
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"

	"github.com/fortiblox/x1-staker/pkg/types"
)

// PDA constants
const (
	// MaxSeeds is the maximum number of seeds for PDA derivation
	MaxSeeds = 16
	// MaxSeedLen is the maximum length of a single seed
	MaxSeedLen = 32
)

var (
	// ErrInvalidSeeds is returned for seed sets outside the seed limits.
	ErrInvalidSeeds = errors.New("invalid seeds")
	// ErrInvalidPDA is returned when seeds hash to a point on the ed25519 curve.
	ErrInvalidPDA = errors.New("seeds produce an address on the ed25519 curve")
)

func validateSeeds(seeds [][]byte) error {
	if len(seeds) > MaxSeeds {
		return fmt.Errorf("%w: %d seeds exceeds %d", ErrInvalidSeeds, len(seeds), MaxSeeds)
	}
	for i, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return fmt.Errorf("%w: seed %d is %d bytes", ErrInvalidSeeds, i, len(seed))
		}
	}
	return nil
}

// CreateProgramAddress derives the program address for seeds, which must
// already include the bump.
func CreateProgramAddress(seeds [][]byte, programID types.Pubkey) (types.Pubkey, error) {
	if err := validateSeeds(seeds); err != nil {
		return types.ZeroPubkey, err
	}
	addr, err := solana.CreateProgramAddress(seeds, solana.PublicKeyFromBytes(programID[:]))
	if err != nil {
		return types.ZeroPubkey, fmt.Errorf("%w: %v", ErrInvalidPDA, err)
	}
	return types.Pubkey(addr), nil
}

// FindProgramAddress searches bumps from 255 down and returns the first
// off-curve address with its bump.
func FindProgramAddress(seeds [][]byte, programID types.Pubkey) (types.Pubkey, uint8, error) {
	if err := validateSeeds(WithBump(seeds, 0)); err != nil {
		return types.ZeroPubkey, 0, err
	}
	addr, bump, err := solana.FindProgramAddress(seeds, solana.PublicKeyFromBytes(programID[:]))
	if err != nil {
		return types.ZeroPubkey, 0, fmt.Errorf("%w: %v", ErrInvalidPDA, err)
	}
	return types.Pubkey(addr), bump, nil
}

// WithBump returns seeds followed by the single-byte bump seed, without
// modifying seeds.
func WithBump(seeds [][]byte, bump uint8) [][]byte {
	out := make([][]byte, 0, len(seeds)+1)
	out = append(out, seeds...)
	return append(out, []byte{bump})
}
