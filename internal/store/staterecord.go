package store

import (
	"encoding/binary"

	"github.com/gwnode/gwnode/internal/gwtypes"
)

// StateRecordRetention bounds how many trailing blocks carry a
// reversible state record. L1 reorgs beyond this depth are not
// recoverable by detaching blocks one at a time and must instead
// trigger a full resync. It is larger than the chain and mem-pool
// reorg depth bounds (64 blocks each).
const StateRecordRetention = 100

// BlockStateRecord captures the pre-image needed to undo a block's
// effect on the account tree: the GlobalState immediately before the
// block was applied, plus the touched account-tree keys and their
// prior values, so DetachBlock can restore exact prior state without
// replaying every block from genesis.
type BlockStateRecord struct {
	PreState   gwtypes.GlobalState
	TouchedKeys []gwtypes.H256
	PriorValues []gwtypes.H256
}

func encodeStateRecord(r BlockStateRecord) []byte {
	out := encodeGlobalState(r.PreState)
	out = appendU32(out, uint32(len(r.TouchedKeys)))
	for i := range r.TouchedKeys {
		out = append(out, r.TouchedKeys[i][:]...)
		out = append(out, r.PriorValues[i][:]...)
	}
	return out
}

const globalStateEncodedLen = 32 + 4 + 32 + 8 + 32 + 8 + 8 + 32 + 32 + 1 + 1 + 8 + 4

func decodeStateRecord(d []byte) BlockStateRecord {
	var r BlockStateRecord
	r.PreState = decodeGlobalState(d[:globalStateEncodedLen])
	off := globalStateEncodedLen
	count := int(binary.BigEndian.Uint32(d[off:]))
	off += 4
	r.TouchedKeys = make([]gwtypes.H256, count)
	r.PriorValues = make([]gwtypes.H256, count)
	for i := 0; i < count; i++ {
		copy(r.TouchedKeys[i][:], d[off:off+32])
		off += 32
		copy(r.PriorValues[i][:], d[off:off+32])
		off += 32
	}
	return r
}

// PutStateRecord stores the state record for a block and prunes the
// record older than StateRecordRetention blocks behind it.
func (tx *Tx) PutStateRecord(blockNumber uint64, rec BlockStateRecord) {
	tx.set(colKey(colStateRecord, numberKey(blockNumber)), encodeStateRecord(rec))
	if blockNumber >= StateRecordRetention {
		tx.delete(colKey(colStateRecord, numberKey(blockNumber-StateRecordRetention)))
	}
}

// GetStateRecord returns the state record for blockNumber, if it has
// not been pruned past the retention window.
func (tx *Tx) GetStateRecord(blockNumber uint64) (BlockStateRecord, bool) {
	v, ok := tx.get(colKey(colStateRecord, numberKey(blockNumber)))
	if !ok {
		return BlockStateRecord{}, false
	}
	return decodeStateRecord(v), true
}

// DetachBlock reverses a block's effect: it restores the pre-block
// GlobalState from the block's state record, deletes the block's
// number/hash index entries, and returns the record's touched keys so
// the caller can also roll back the live account SMT in memory.
func (tx *Tx) DetachBlock(block gwtypes.RawL2Block) (BlockStateRecord, error) {
	rec, ok := tx.GetStateRecord(block.Info.Number)
	if !ok {
		return BlockStateRecord{}, ErrStateRecordExpired
	}
	tx.DeleteBlock(block)
	tx.SetTipGlobalState(rec.PreState)
	tx.delete(colKey(colStateRecord, numberKey(block.Info.Number)))
	return rec, nil
}
