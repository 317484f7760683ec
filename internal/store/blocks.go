package store

import (
	"encoding/binary"

	"github.com/gwnode/gwnode/internal/gwtypes"
)

func encodeBlock(b gwtypes.RawL2Block) []byte {
	out := make([]byte, 0, 256)
	out = appendU64(out, b.Info.Number)
	out = appendU64(out, b.Info.Timestamp)
	out = appendU32(out, uint32(b.Info.BlockProducer.RegistryID))
	out = append(out, byte(len(b.Info.BlockProducer.Address)))
	out = append(out, b.Info.BlockProducer.Address...)
	out = append(out, b.Parent[:]...)
	out = appendU32(out, uint32(len(b.StateCheckpointList)))
	for _, c := range b.StateCheckpointList {
		out = append(out, c.Bytes()...)
	}
	out = append(out, b.SubmitWithdrawals.WithdrawalWitnessRoot[:]...)
	out = appendU32(out, b.SubmitWithdrawals.Count)
	out = append(out, b.SubmitTransactions.TxWitnessRoot[:]...)
	out = appendU32(out, b.SubmitTransactions.Count)
	out = append(out, b.SubmitTransactions.PrevStateCheckpoint.Bytes()...)
	out = append(out, b.PostAccount.MerkleRoot[:]...)
	out = appendU32(out, b.PostAccount.Count)
	return out
}

func decodeBlock(d []byte) gwtypes.RawL2Block {
	var b gwtypes.RawL2Block
	off := 0
	b.Info.Number = binary.BigEndian.Uint64(d[off:])
	off += 8
	b.Info.Timestamp = binary.BigEndian.Uint64(d[off:])
	off += 8
	b.Info.BlockProducer.RegistryID = gwtypes.RegistryID(binary.BigEndian.Uint32(d[off:]))
	off += 4
	addrLen := int(d[off])
	off++
	b.Info.BlockProducer.Address = append([]byte(nil), d[off:off+addrLen]...)
	off += addrLen
	copy(b.Parent[:], d[off:off+32])
	off += 32
	count := int(binary.BigEndian.Uint32(d[off:]))
	off += 4
	b.StateCheckpointList = make([]gwtypes.StateCheckpoint, count)
	for i := 0; i < count; i++ {
		copy(b.StateCheckpointList[i][:], d[off:off+32])
		off += 32
	}
	copy(b.SubmitWithdrawals.WithdrawalWitnessRoot[:], d[off:off+32])
	off += 32
	b.SubmitWithdrawals.Count = binary.BigEndian.Uint32(d[off:])
	off += 4
	copy(b.SubmitTransactions.TxWitnessRoot[:], d[off:off+32])
	off += 32
	b.SubmitTransactions.Count = binary.BigEndian.Uint32(d[off:])
	off += 4
	copy(b.SubmitTransactions.PrevStateCheckpoint[:], d[off:off+32])
	off += 32
	copy(b.PostAccount.MerkleRoot[:], d[off:off+32])
	off += 32
	b.PostAccount.Count = binary.BigEndian.Uint32(d[off:])
	return b
}

// InsertBlock persists a block under both its number and hash indexes
// and advances the tip pointer. It does not itself check continuity;
// callers (internal/chain) are expected to enforce that via
// gwtypes.GlobalState.ValidateTransition before calling this.
func (tx *Tx) InsertBlock(block gwtypes.RawL2Block, post gwtypes.GlobalState) {
	enc := encodeBlock(block)
	hash := block.Hash()
	tx.set(colKey(colBlockByNumber, numberKey(block.Info.Number)), enc)
	tx.set(colKey(colBlockByHash, hash[:]), enc)
	tx.set(tipKey, encodeGlobalState(post))
}

// GetBlockByNumber returns the block committed at number, if any.
func (tx *Tx) GetBlockByNumber(number uint64) (gwtypes.RawL2Block, bool) {
	v, ok := tx.get(colKey(colBlockByNumber, numberKey(number)))
	if !ok {
		return gwtypes.RawL2Block{}, false
	}
	return decodeBlock(v), true
}

// GetBlockByHash returns the block with the given hash, if any.
func (tx *Tx) GetBlockByHash(hash gwtypes.H256) (gwtypes.RawL2Block, bool) {
	v, ok := tx.get(colKey(colBlockByHash, hash[:]))
	if !ok {
		return gwtypes.RawL2Block{}, false
	}
	return decodeBlock(v), true
}

// DeleteBlock removes a block's number and hash index entries, used
// when detaching a reverted block from the tip.
func (tx *Tx) DeleteBlock(block gwtypes.RawL2Block) {
	hash := block.Hash()
	tx.delete(colKey(colBlockByNumber, numberKey(block.Info.Number)))
	tx.delete(colKey(colBlockByHash, hash[:]))
}

// GetTipGlobalState returns the most recently committed GlobalState
// visible within this transaction.
func (tx *Tx) GetTipGlobalState() (gwtypes.GlobalState, bool) {
	v, ok := tx.get(tipKey)
	if !ok {
		return gwtypes.GlobalState{}, false
	}
	return decodeGlobalState(v), true
}

// SetTipGlobalState overwrites the tip pointer directly, used when
// detaching a block restores a prior GlobalState without inserting a
// new block.
func (tx *Tx) SetTipGlobalState(g gwtypes.GlobalState) {
	tx.set(tipKey, encodeGlobalState(g))
}

// StoreTransaction indexes an L2 transaction by its hash and by the
// block number it was included in, so the mem-pool and RPC layer can
// resolve a transaction hash without scanning blocks.
func (tx *Tx) StoreTransaction(t gwtypes.L2Transaction, blockNumber uint64) {
	hash := t.Hash()
	enc := encodeTransaction(t)
	tx.set(colKey(colTxByHash, hash[:]), enc)
	tx.set(colKey(colTxBlockNumber, hash[:]), numberKey(blockNumber))
}

// GetTransaction resolves a transaction by hash.
func (tx *Tx) GetTransaction(hash gwtypes.H256) (gwtypes.L2Transaction, bool) {
	v, ok := tx.get(colKey(colTxByHash, hash[:]))
	if !ok {
		return gwtypes.L2Transaction{}, false
	}
	return decodeTransaction(v), true
}

// GetTransactionBlockNumber returns the block number a transaction was
// included in.
func (tx *Tx) GetTransactionBlockNumber(hash gwtypes.H256) (uint64, bool) {
	v, ok := tx.get(colKey(colTxBlockNumber, hash[:]))
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint64(v), true
}

func encodeTransaction(t gwtypes.L2Transaction) []byte {
	out := make([]byte, 0, 64+len(t.Raw.Args)+len(t.Signature))
	out = appendU64(out, t.Raw.ChainID)
	out = appendU32(out, t.Raw.FromID)
	out = appendU32(out, t.Raw.ToID)
	out = appendU32(out, t.Raw.Nonce)
	out = appendU32(out, uint32(len(t.Raw.Args)))
	out = append(out, t.Raw.Args...)
	out = appendU32(out, uint32(len(t.Signature)))
	out = append(out, t.Signature...)
	return out
}

func decodeTransaction(d []byte) gwtypes.L2Transaction {
	var t gwtypes.L2Transaction
	off := 0
	t.Raw.ChainID = binary.BigEndian.Uint64(d[off:])
	off += 8
	t.Raw.FromID = binary.BigEndian.Uint32(d[off:])
	off += 4
	t.Raw.ToID = binary.BigEndian.Uint32(d[off:])
	off += 4
	t.Raw.Nonce = binary.BigEndian.Uint32(d[off:])
	off += 4
	argsLen := int(binary.BigEndian.Uint32(d[off:]))
	off += 4
	t.Raw.Args = append([]byte(nil), d[off:off+argsLen]...)
	off += argsLen
	sigLen := int(binary.BigEndian.Uint32(d[off:]))
	off += 4
	t.Signature = append([]byte(nil), d[off:off+sigLen]...)
	return t
}
