package crypto

import (
	"crypto/ed25519"
	"fmt"

	"github.com/fortiblox/x1-staker/pkg/types"
)

// VerifySignature verifies a single Ed25519 signature.
// Returns false if the public key or signature have invalid lengths.
func VerifySignature(pubkey, message, signature []byte) bool {
	if len(pubkey) != PublicKeySize {
		return false
	}
	if len(signature) != SignatureSize {
		return false
	}
	return ed25519.Verify(pubkey, message, signature)
}

// VerifyTransaction verifies every signature of a transaction against the
// corresponding signer key of its message.
func VerifyTransaction(tx *types.Transaction) error {
	if tx == nil {
		return ErrMissingMessage
	}

	numSignatures := len(tx.Signatures)
	if numSignatures == 0 {
		return ErrNoSignatures
	}

	numRequired := int(tx.Message.Header.NumRequiredSignatures)
	if numSignatures != numRequired || numRequired > len(tx.Message.AccountKeys) {
		return fmt.Errorf("%w: expected %d signatures, got %d",
			ErrSignatureCountMismatch, numRequired, numSignatures)
	}

	messageBytes, err := tx.Message.Serialize()
	if err != nil {
		return fmt.Errorf("serialize message: %w", err)
	}

	for i := 0; i < numSignatures; i++ {
		pubkey := tx.Message.AccountKeys[i]
		signature := tx.Signatures[i]

		if !ed25519.Verify(pubkey[:], messageBytes, signature[:]) {
			return &TransactionVerificationError{
				SignatureIndex: i,
				SignerPubkey:   pubkey.String(),
				Err:            ErrVerificationFailed,
			}
		}
	}

	return nil
}

// SignTransaction fills in the signatures of tx. Every required signer of
// the message must be present in signers; extra keypairs are ignored.
func SignTransaction(tx *types.Transaction, signers ...*Keypair) error {
	if tx == nil {
		return ErrMissingMessage
	}

	messageBytes, err := tx.Message.Serialize()
	if err != nil {
		return fmt.Errorf("serialize message: %w", err)
	}

	byKey := make(map[types.Pubkey]*Keypair, len(signers))
	for _, kp := range signers {
		byKey[kp.Pubkey()] = kp
	}

	required := tx.Message.Signers()
	tx.Signatures = make([]types.Signature, len(required))
	for i, pk := range required {
		kp, ok := byKey[pk]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingSigner, pk)
		}
		tx.Signatures[i] = kp.Sign(messageBytes)
	}
	return nil
}
