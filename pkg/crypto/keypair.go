package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"

	"github.com/fortiblox/x1-staker/pkg/types"
)

// Keypair is an ed25519 signing key.
type Keypair struct {
	priv ed25519.PrivateKey
}

// NewKeypair generates a random keypair.
func NewKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// MustNewKeypair generates a random keypair or panics.
func MustNewKeypair() *Keypair {
	kp, err := NewKeypair()
	if err != nil {
		panic(err)
	}
	return kp
}

// KeypairFromSeed derives a keypair from a 32-byte seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrInvalidPrivateKey, SeedSize, len(seed))
	}
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// KeypairFromSecret builds a keypair from 64 bytes of secret key material
// (seed followed by public key).
func KeypairFromSecret(secret []byte) (*Keypair, error) {
	if len(secret) != PrivateKeySize {
		return nil, fmt.Errorf("%w: secret must be %d bytes, got %d", ErrInvalidPrivateKey, PrivateKeySize, len(secret))
	}
	kp, err := KeypairFromSeed(secret[:SeedSize])
	if err != nil {
		return nil, err
	}
	if !kp.priv.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(secret[SeedSize:])) {
		return nil, fmt.Errorf("%w: public half does not match seed", ErrInvalidPrivateKey)
	}
	return kp, nil
}

// Pubkey returns the public key.
func (k *Keypair) Pubkey() types.Pubkey {
	var pk types.Pubkey
	copy(pk[:], k.priv.Public().(ed25519.PublicKey))
	return pk
}

// Sign signs message.
func (k *Keypair) Sign(message []byte) types.Signature {
	var sig types.Signature
	copy(sig[:], ed25519.Sign(k.priv, message))
	return sig
}

// Secret returns a copy of the 64-byte secret key.
func (k *Keypair) Secret() []byte {
	out := make([]byte, len(k.priv))
	copy(out, k.priv)
	return out
}

// LoadKeypair reads a solana-keygen style JSON keypair file.
func LoadKeypair(path string) (*Keypair, error) {
	priv, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load keypair %s: %w", path, err)
	}
	return KeypairFromSecret(priv)
}

// SaveKeypair writes kp to path as a JSON array of 64 bytes, readable only
// by the owner.
func SaveKeypair(path string, kp *Keypair) error {
	secret := kp.Secret()
	ints := make([]int, len(secret))
	for i, b := range secret {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create keypair dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write keypair %s: %w", path, err)
	}
	return nil
}
