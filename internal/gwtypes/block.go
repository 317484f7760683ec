package gwtypes

import "errors"

// BlockInfo identifies a block's position and authorship, independent
// of its content (which lives in SubmitWithdrawals/SubmitTransactions).
type BlockInfo struct {
	Number    uint64
	Timestamp uint64 // ms
	BlockProducer RegistryAddress
}

// SubmitWithdrawals commits to a block's withdrawal list without
// carrying the withdrawals themselves: witness_root is the merkle root
// of the withdrawal hashes, count is the list length. The full
// WithdrawalRequestExtra values travel in the block's witness, not in
// RawL2Block, keeping the on-chain-committed struct small.
type SubmitWithdrawals struct {
	WithdrawalWitnessRoot H256
	Count                 uint32
}

// SubmitTransactions commits to a block's transaction list the same
// way SubmitWithdrawals does for withdrawals, plus the account
// checkpoint carried over from the withdrawal phase so the transaction
// phase's first checkpoint has something to chain from.
type SubmitTransactions struct {
	TxWitnessRoot        H256
	Count                uint32
	PrevStateCheckpoint  StateCheckpoint
}

// RawL2Block is the on-chain-committed block body: enough to verify
// state transitions without needing the full withdrawal/transaction
// payloads, which are reconstructed from the witness when replaying.
type RawL2Block struct {
	Info                 BlockInfo
	Parent               H256
	StateCheckpointList  []StateCheckpoint
	SubmitWithdrawals    SubmitWithdrawals
	SubmitTransactions   SubmitTransactions
	PostAccount          AccountMerkleState
}

var (
	// ErrBlockCheckpointCountMismatch is returned when the checkpoint
	// list length doesn't match withdrawals+transactions counts.
	ErrBlockCheckpointCountMismatch = errors.New("gwtypes: state checkpoint list length must equal withdrawal count plus transaction count")
	// ErrBlockLastCheckpointMismatch is returned when the final
	// checkpoint doesn't match the committed post-transaction state.
	ErrBlockLastCheckpointMismatch = errors.New("gwtypes: last state checkpoint must match post-transaction-phase account state")
)

// ValidateCheckpointList enforces the two structural invariants tying
// a block's checkpoint list to its withdrawal/transaction counts:
//
//   - |state_checkpoint_list| == |withdrawals| + |transactions|
//   - if transactions is non-empty, the last checkpoint equals
//     H(post_account); otherwise it equals prev_state_checkpoint,
//     since the transaction phase never ran and the last checkpoint
//     produced was the one the withdrawal phase handed off.
func (b RawL2Block) ValidateCheckpointList() error {
	wantLen := int(b.SubmitWithdrawals.Count) + int(b.SubmitTransactions.Count)
	if len(b.StateCheckpointList) != wantLen {
		return ErrBlockCheckpointCountMismatch
	}
	if len(b.StateCheckpointList) == 0 {
		return nil
	}
	last := b.StateCheckpointList[len(b.StateCheckpointList)-1]
	if b.SubmitTransactions.Count > 0 {
		if last != ComputeStateCheckpoint(b.PostAccount) {
			return ErrBlockLastCheckpointMismatch
		}
		return nil
	}
	if last != b.SubmitTransactions.PrevStateCheckpoint {
		return ErrBlockLastCheckpointMismatch
	}
	return nil
}

// Hash computes the block's identity hash over its committed fields.
func (b RawL2Block) Hash() H256 {
	var buf []byte
	buf = append(buf, u64LE(b.Info.Number)...)
	buf = append(buf, u64LE(b.Info.Timestamp)...)
	buf = append(buf, b.Parent[:]...)
	buf = append(buf, b.SubmitWithdrawals.WithdrawalWitnessRoot[:]...)
	buf = append(buf, u32LE(b.SubmitWithdrawals.Count)...)
	buf = append(buf, b.SubmitTransactions.TxWitnessRoot[:]...)
	buf = append(buf, u32LE(b.SubmitTransactions.Count)...)
	buf = append(buf, b.PostAccount.MerkleRoot[:]...)
	buf = append(buf, u32LE(b.PostAccount.Count)...)
	for _, c := range b.StateCheckpointList {
		buf = append(buf, c.Bytes()...)
	}
	return Keccak256Hash(buf)
}
