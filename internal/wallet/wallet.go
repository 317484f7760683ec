// Package wallet defines the signing capability the block producer,
// challenger, and withdrawal settler all need to authorize the L1
// transactions they assemble.
package wallet

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/gwnode/gwnode/internal/gwtypes"
)

// Signer signs digests under a lock script this node controls (the
// PoA owner lock, the stake-cell owner lock, or any other cell this
// node must authorize spending of).
type Signer interface {
	// Lock returns the script this signer authorizes spends for.
	Lock() gwtypes.Script
	// Sign produces a signature over digest.
	Sign(digest gwtypes.H256) ([]byte, error)
}

// secp256k1Signer is a Signer backed by a locally held secp256k1 key,
// the same curve the teacher's own signing path uses via
// btcsuite/btcd/btcec rather than go-ethereum's bundled copy.
type secp256k1Signer struct {
	key  *btcec.PrivateKey
	lock gwtypes.Script
}

// NewSecp256k1Signer builds a Signer from a raw private key and the
// lock script it corresponds to.
func NewSecp256k1Signer(key *ecdsa.PrivateKey, lock gwtypes.Script) Signer {
	priv, _ := btcec.PrivKeyFromBytes(key.D.Bytes())
	return &secp256k1Signer{key: priv, lock: lock}
}

func (s *secp256k1Signer) Lock() gwtypes.Script { return s.lock }

func (s *secp256k1Signer) Sign(digest gwtypes.H256) ([]byte, error) {
	sig := btcecdsa.Sign(s.key, digest[:])
	return sig.Serialize(), nil
}

// LoadPrivateKeyHex reads a hex-encoded (optionally 0x-prefixed)
// secp256k1 private key from path, the node's own key-file convention
// for the wallet used by block production, challenging, and
// withdrawal settlement.
func LoadPrivateKeyHex(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wallet: read key file %s: %w", path, err)
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(string(data)), "0x"))
	if err != nil {
		return nil, fmt.Errorf("wallet: decode key hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("wallet: private key must be 32 bytes, got %d", len(raw))
	}
	return &ecdsa.PrivateKey{D: new(big.Int).SetBytes(raw)}, nil
}

// PubKeyHash160 returns the 20-byte blake160-style hash this rollup's
// default lock script binds into its args, derived from key's
// secp256k1 public key.
func PubKeyHash160(key *ecdsa.PrivateKey) [20]byte {
	priv, pub := btcec.PrivKeyFromBytes(key.D.Bytes())
	_ = priv
	full := gwtypes.Keccak256Hash(pub.SerializeCompressed())
	var out [20]byte
	copy(out[:], full[:20])
	return out
}

// Verify checks a DER-encoded signature over digest against the given
// serialized secp256k1 public key.
func Verify(pubKeyBytes []byte, digest gwtypes.H256, signature []byte) (bool, error) {
	pub, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return false, err
	}
	sig, err := btcecdsa.ParseDERSignature(signature)
	if err != nil {
		return false, err
	}
	return sig.Verify(digest[:], pub), nil
}

// AccountLockVerifier checks an L2 withdrawal or transaction's
// signature against the 20-byte pubkey hash its sender account's lock
// script binds into its args (see PubKeyHash160). Neither
// WithdrawalRequestExtra nor L2Transaction carry the signer's public
// key, so the key is recovered from a compact, recoverable secp256k1
// signature instead of matched against one supplied up front. It
// satisfies generator.AccountLockVerifier.
type AccountLockVerifier struct{}

// VerifySignature implements generator.AccountLockVerifier.
func (AccountLockVerifier) VerifySignature(lockArgs []byte, digest gwtypes.H256, signature []byte) (bool, error) {
	if len(lockArgs) < 20 {
		return false, fmt.Errorf("wallet: lock args too short for a pubkey hash: %d bytes", len(lockArgs))
	}
	pub, _, err := btcecdsa.RecoverCompact(signature, digest[:])
	if err != nil {
		return false, err
	}
	hash := gwtypes.Keccak256Hash(pub.SerializeCompressed())
	return string(hash[:20]) == string(lockArgs[:20]), nil
}

// SignAccountLock produces the compact, recoverable secp256k1
// signature AccountLockVerifier expects: the format an L2 account
// owner signs withdrawals and transactions with, distinct from the L1
// cell-spending signatures Signer.Sign produces.
func SignAccountLock(key *ecdsa.PrivateKey, digest gwtypes.H256) ([]byte, error) {
	priv, _ := btcec.PrivKeyFromBytes(key.D.Bytes())
	return btcecdsa.SignCompact(priv, digest[:], true), nil
}
