package clients

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/x402gov/txparse"
)

// Signer holds the facilitator's fee payer key.
type Signer interface {
	PublicKey() solana.PublicKey
	Sign(message []byte) (solana.Signature, error)
}

// KeypairSigner signs with an in-process ed25519 key.
type KeypairSigner struct {
	key solana.PrivateKey
}

var _ Signer = (*KeypairSigner)(nil)

func NewKeypairSigner(key solana.PrivateKey) *KeypairSigner {
	return &KeypairSigner{key: key}
}

// KeypairSignerFromBase58 parses a base58 encoded 64-byte secret key.
func KeypairSignerFromBase58(secret string) (*KeypairSigner, error) {
	key, err := solana.PrivateKeyFromBase58(secret)
	if err != nil {
		return nil, fmt.Errorf("parse fee payer key: %w", err)
	}
	return NewKeypairSigner(key), nil
}

// LoadKeypairSigner reads a solana-keygen JSON keypair file.
func LoadKeypairSigner(path string) (*KeypairSigner, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load fee payer keypair %s: %w", path, err)
	}
	return NewKeypairSigner(key), nil
}

func (k *KeypairSigner) PublicKey() solana.PublicKey { return k.key.PublicKey() }

func (k *KeypairSigner) Sign(message []byte) (solana.Signature, error) {
	return k.key.Sign(message)
}

const signatureLength = 64

var (
	errSignerNotRequired = errors.New("fee payer is not a required signer of the transaction")
	errMissingSignatures = errors.New("transaction is missing signatures from required signers")
)

// cosign fills the signer's slot in raw and returns the new wire bytes. All
// other required signatures must already be present.
func cosign(raw []byte, tx *txparse.Transaction, s Signer) ([]byte, error) {
	idx := tx.SignerIndex(s.PublicKey())
	if idx < 0 || idx >= len(tx.Signatures) {
		return nil, errSignerNotRequired
	}
	for i, sig := range tx.Signatures {
		if i != idx && sig == (solana.Signature{}) {
			return nil, fmt.Errorf("%w: slot %d (%s)", errMissingSignatures, i, tx.AccountKeys[i])
		}
	}

	sig, err := s.Sign(raw[tx.MessageOffset:])
	if err != nil {
		return nil, fmt.Errorf("sign settlement: %w", err)
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	start := tx.MessageOffset - len(tx.Signatures)*signatureLength + idx*signatureLength
	copy(out[start:start+signatureLength], sig[:])
	return out, nil
}
