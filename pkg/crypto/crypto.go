// Package crypto provides ed25519 keypairs, transaction signing and
// signature verification for the staker ledger.
//
// Signing and verification use the standard library crypto/ed25519. Keypair
// files use the 64-byte JSON array format produced by solana-keygen.
package crypto

import (
	"errors"
	"strconv"
)

// Signature and key sizes for Ed25519.
const (
	// PublicKeySize is the size of an Ed25519 public key in bytes.
	PublicKeySize = 32

	// SignatureSize is the size of an Ed25519 signature in bytes.
	SignatureSize = 64

	// PrivateKeySize is the size of an Ed25519 private key in bytes.
	PrivateKeySize = 64

	// SeedSize is the size of an Ed25519 seed in bytes.
	SeedSize = 32
)

// Common errors returned by the crypto package.
var (
	// ErrInvalidPublicKey is returned when a public key has an invalid format.
	ErrInvalidPublicKey = errors.New("crypto: invalid public key")

	// ErrInvalidSignature is returned when a signature has an invalid format.
	ErrInvalidSignature = errors.New("crypto: invalid signature")

	// ErrInvalidPrivateKey is returned when secret key material has an invalid format.
	ErrInvalidPrivateKey = errors.New("crypto: invalid private key")

	// ErrVerificationFailed is returned when signature verification fails.
	ErrVerificationFailed = errors.New("crypto: signature verification failed")

	// ErrNoSignatures is returned when a transaction has no signatures.
	ErrNoSignatures = errors.New("crypto: transaction has no signatures")

	// ErrSignatureCountMismatch is returned when the number of signatures
	// does not match the expected number of signers.
	ErrSignatureCountMismatch = errors.New("crypto: signature count mismatch")

	// ErrMissingMessage is returned when a transaction is nil.
	ErrMissingMessage = errors.New("crypto: missing transaction message")

	// ErrMissingSigner is returned when signing a transaction without the
	// keypair for one of its required signers.
	ErrMissingSigner = errors.New("crypto: missing signer")
)

// TransactionVerificationError contains details about a transaction verification failure.
type TransactionVerificationError struct {
	// SignatureIndex is the index of the signature that failed verification.
	SignatureIndex int

	// SignerPubkey is the base58 representation of the signer's public key.
	SignerPubkey string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *TransactionVerificationError) Error() string {
	return "crypto: transaction verification failed for signer " + e.SignerPubkey +
		" (signature index " + strconv.Itoa(e.SignatureIndex) + "): " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *TransactionVerificationError) Unwrap() error {
	return e.Err
}
