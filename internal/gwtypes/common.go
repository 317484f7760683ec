// Package gwtypes defines the on-chain and off-chain data model of the
// rollup: GlobalState, RawL2Block, transactions, withdrawals, deposits,
// and the merkle-state types that bracket a block's execution.
package gwtypes

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

const (
	// HashLength is the byte length of an H256 hash/key.
	HashLength = 32
	// AddressLength is the byte length of an L1 lock-script hash used as
	// a short address in registry mappings (Eth registry uses 20 bytes).
	AddressLength = 20
)

// H256 is a 32-byte hash, merkle root, or SMT key.
type H256 [HashLength]byte

// BytesToH256 left-pads (or truncates from the left) b into an H256.
func BytesToH256(b []byte) H256 {
	var h H256
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// HexToH256 parses a "0x"-prefixed or bare hex string into an H256.
func HexToH256(s string) H256 { return BytesToH256(fromHex(s)) }

// Bytes returns the big-endian byte slice backing the hash.
func (h H256) Bytes() []byte { return h[:] }

// Hex renders the hash as a "0x"-prefixed hex string.
func (h H256) Hex() string { return fmt.Sprintf("0x%x", h[:]) }

// String implements fmt.Stringer.
func (h H256) String() string { return h.Hex() }

// IsZero reports whether the hash is the all-zero value.
func (h H256) IsZero() bool { return h == H256{} }

// Address is a short address: (registry_id, raw bytes) in the spec's
// terms is carried as RegistryAddress; this Address is a raw 20-byte
// L1-style identifier used for lock hashes truncated to short form.
type Address [AddressLength]byte

// BytesToAddress left-pads b into an Address.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

func (a Address) Bytes() []byte { return a[:] }
func (a Address) Hex() string  { return fmt.Sprintf("0x%x", a[:]) }
func (a Address) IsZero() bool { return a == Address{} }

// Keccak256 hashes the concatenation of the given byte slices.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash hashes the concatenation of the given byte slices into
// an H256.
func Keccak256Hash(data ...[]byte) H256 {
	return BytesToH256(Keccak256(data...))
}

func fromHex(s string) []byte {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, _ := hex.DecodeString(s)
	return b
}

// smtKeyFromNumber renders a u64 block number as a little-endian 32-byte
// SMT key, matching the CKB-style "smt_key(block_number)" encoding from
// the spec's §3 BlockSMT definition.
func smtKeyFromNumber(n uint64) H256 {
	var k H256
	for i := 0; i < 8; i++ {
		k[i] = byte(n >> (8 * i))
	}
	return k
}
