package gwtypes

import (
	"encoding/binary"
	"errors"
)

// Status is the on-chain rollup lifecycle flag carried in GlobalState.
type Status uint8

const (
	StatusRunning Status = iota
	StatusHalting
)

// AllWithdrawals is the sentinel withdrawal index meaning "the entire
// block is finalised", per the spec's last_finalized_withdrawal field.
const AllWithdrawals uint32 = 0xFFFFFFFF

// timepointMSFlag is the high bit that disambiguates a Timepoint as an
// ms-timestamp (set) versus a block number (clear).
const timepointMSFlag uint64 = 1 << 63

// Timepoint is the spec's "block-number OR ms timestamp disambiguated by
// a high-bit flag" encoding, used both for last_finalized_block_number
// and for custodian/withdrawal timepoints.
type Timepoint uint64

// NewBlockTimepoint builds a Timepoint carrying a block number.
func NewBlockTimepoint(n uint64) Timepoint { return Timepoint(n &^ timepointMSFlag) }

// NewTimestampTimepoint builds a Timepoint carrying an ms timestamp.
func NewTimestampTimepoint(ms uint64) Timepoint { return Timepoint(ms | timepointMSFlag) }

// IsTimestamp reports whether this Timepoint carries an ms timestamp
// rather than a block number.
func (t Timepoint) IsTimestamp() bool { return uint64(t)&timepointMSFlag != 0 }

// Value returns the encoded value with the flag bit stripped.
func (t Timepoint) Value() uint64 { return uint64(t) &^ timepointMSFlag }

// AccountMerkleState brackets a block's account state: the SMT root and
// the account count at that point.
type AccountMerkleState struct {
	MerkleRoot H256
	Count      uint32
}

// BlockMerkleState is the SMT root of blocks keyed by block number, plus
// the block count (= tip_block_number + 1).
type BlockMerkleState struct {
	MerkleRoot H256
	Count      uint64
}

// LastFinalizedWithdrawal is the pair (block_number, withdrawal_index).
// Index == AllWithdrawals means the entire block is finalised.
type LastFinalizedWithdrawal struct {
	BlockNumber     uint64
	WithdrawalIndex uint32
}

// IsBlockFullyFinalized reports whether this pointer marks the named
// block as entirely finalised.
func (w LastFinalizedWithdrawal) IsBlockFullyFinalized() bool {
	return w.WithdrawalIndex == AllWithdrawals
}

// GlobalState is the on-chain rollup digest, carried in the data field of
// the rollup cell.
type GlobalState struct {
	Account                  AccountMerkleState
	Block                    BlockMerkleState
	TipBlockHash             H256
	TipBlockTimestamp        uint64 // ms
	LastFinalizedBlockNumber Timepoint
	RevertedBlockRoot        H256
	Status                   Status
	RollupConfigHash         H256
	Version                  uint8
	LastFinalizedWithdrawal  LastFinalizedWithdrawal
}

var (
	// ErrGlobalStateBlockCountMismatch is returned by Validate when
	// block.count != tip_block_number + 1.
	ErrGlobalStateBlockCountMismatch = errors.New("gwtypes: global state block count must equal tip_block_number + 1")
	// ErrGlobalStateNotMonotonic is returned when a proposed transition
	// does not strictly increase tip number and timestamp.
	ErrGlobalStateNotMonotonic = errors.New("gwtypes: global state transition must strictly increase tip number and timestamp")
)

// TipBlockNumber derives the tip block number from block.count, which
// the invariant ties together as count = tip_block_number + 1.
func (g GlobalState) TipBlockNumber() uint64 {
	if g.Block.Count == 0 {
		return 0
	}
	return g.Block.Count - 1
}

// Validate checks the block.count = tip_block_number + 1 invariant.
// Since TipBlockNumber is derived from Count there is nothing to check
// structurally; Validate exists so callers that reconstruct a GlobalState
// from independently-sourced fields (e.g. replay) can assert consistency.
func (g GlobalState) Validate(expectedTipNumber uint64) error {
	if g.TipBlockNumber() != expectedTipNumber {
		return ErrGlobalStateBlockCountMismatch
	}
	return nil
}

// ValidateTransition checks that next strictly advances tip number and
// timestamp relative to g, per the spec's monotonic-tip invariant
// (§8 property 3).
func (g GlobalState) ValidateTransition(next GlobalState) error {
	if next.TipBlockNumber() != g.TipBlockNumber()+1 {
		return ErrGlobalStateNotMonotonic
	}
	if next.TipBlockTimestamp <= g.TipBlockTimestamp {
		return ErrGlobalStateNotMonotonic
	}
	return nil
}

// MarshalBinary renders GlobalState in the fixed-width layout used both
// as the store's on-disk tip record and as the rollup cell's L1 data
// field: GlobalState's shape is closed and stable, so a hand-rolled
// codec carries no less information than a generic one would.
func (g GlobalState) MarshalBinary() []byte {
	b := make([]byte, 0, 32+4+32+8+32+8+8+32+32+1+1+8+4)
	b = append(b, g.Account.MerkleRoot[:]...)
	b = appendU32(b, g.Account.Count)
	b = append(b, g.Block.MerkleRoot[:]...)
	b = appendU64(b, g.Block.Count)
	b = append(b, g.TipBlockHash[:]...)
	b = appendU64(b, g.TipBlockTimestamp)
	b = appendU64(b, uint64(g.LastFinalizedBlockNumber))
	b = append(b, g.RevertedBlockRoot[:]...)
	b = append(b, g.RollupConfigHash[:]...)
	b = append(b, byte(g.Status))
	b = append(b, g.Version)
	b = appendU64(b, g.LastFinalizedWithdrawal.BlockNumber)
	b = appendU32(b, g.LastFinalizedWithdrawal.WithdrawalIndex)
	return b
}

// DecodeGlobalState reverses MarshalBinary.
func DecodeGlobalState(b []byte) GlobalState {
	var g GlobalState
	off := 0
	copy(g.Account.MerkleRoot[:], b[off:off+32])
	off += 32
	g.Account.Count = binary.BigEndian.Uint32(b[off:])
	off += 4
	copy(g.Block.MerkleRoot[:], b[off:off+32])
	off += 32
	g.Block.Count = binary.BigEndian.Uint64(b[off:])
	off += 8
	copy(g.TipBlockHash[:], b[off:off+32])
	off += 32
	g.TipBlockTimestamp = binary.BigEndian.Uint64(b[off:])
	off += 8
	g.LastFinalizedBlockNumber = Timepoint(binary.BigEndian.Uint64(b[off:]))
	off += 8
	copy(g.RevertedBlockRoot[:], b[off:off+32])
	off += 32
	copy(g.RollupConfigHash[:], b[off:off+32])
	off += 32
	g.Status = Status(b[off])
	off++
	g.Version = b[off]
	off++
	g.LastFinalizedWithdrawal.BlockNumber = binary.BigEndian.Uint64(b[off:])
	off += 8
	g.LastFinalizedWithdrawal.WithdrawalIndex = binary.BigEndian.Uint32(b[off:])
	return g
}

func appendU32(b []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(b, buf[:]...)
}

func appendU64(b []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(b, buf[:]...)
}
