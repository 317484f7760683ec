package gwtypes

import "encoding/binary"

// StateCheckpoint is H(account_root || account_count): a commit point
// between consecutive withdrawals or transactions that the on-chain
// fraud-proof protocol challenges against.
type StateCheckpoint H256

// ComputeStateCheckpoint derives the checkpoint for a given account
// merkle state.
func ComputeStateCheckpoint(acc AccountMerkleState) StateCheckpoint {
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], acc.Count)
	return StateCheckpoint(Keccak256Hash(acc.MerkleRoot[:], countBuf[:]))
}

// Bytes returns the checkpoint as a byte slice.
func (c StateCheckpoint) Bytes() []byte { return c[:] }
