package store

import (
	"encoding/binary"

	"github.com/gwnode/gwnode/internal/gwtypes"
)

func encodeWithdrawalExtra(w gwtypes.WithdrawalRequestExtra) []byte {
	out := make([]byte, 0, 32+8+32+32+32+8+4+4+8+4+len(w.Signature)+1+len(w.OwnerLock.Args))
	out = append(out, w.Raw.AccountScriptHash[:]...)
	out = appendU64(out, w.Raw.Capacity)
	out = append(out, w.Raw.Amount[:]...)
	out = append(out, w.Raw.SUDTScriptHash[:]...)
	out = append(out, w.Raw.OwnerLockHash[:]...)
	out = appendU64(out, w.Raw.Fee)
	out = appendU32(out, w.Raw.Nonce)
	out = appendU32(out, uint32(w.Raw.RegistryID))
	out = appendU64(out, w.Raw.ChainID)
	out = appendU32(out, uint32(len(w.Signature)))
	out = append(out, w.Signature...)
	out = append(out, w.OwnerLock.CodeHash[:]...)
	out = append(out, byte(w.OwnerLock.HashType))
	out = appendU32(out, uint32(len(w.OwnerLock.Args)))
	out = append(out, w.OwnerLock.Args...)
	return out
}

func decodeWithdrawalExtra(d []byte) gwtypes.WithdrawalRequestExtra {
	var w gwtypes.WithdrawalRequestExtra
	off := 0
	copy(w.Raw.AccountScriptHash[:], d[off:off+32])
	off += 32
	w.Raw.Capacity = binary.BigEndian.Uint64(d[off:])
	off += 8
	copy(w.Raw.Amount[:], d[off:off+32])
	off += 32
	copy(w.Raw.SUDTScriptHash[:], d[off:off+32])
	off += 32
	copy(w.Raw.OwnerLockHash[:], d[off:off+32])
	off += 32
	w.Raw.Fee = binary.BigEndian.Uint64(d[off:])
	off += 8
	w.Raw.Nonce = binary.BigEndian.Uint32(d[off:])
	off += 4
	w.Raw.RegistryID = gwtypes.RegistryID(binary.BigEndian.Uint32(d[off:]))
	off += 4
	w.Raw.ChainID = binary.BigEndian.Uint64(d[off:])
	off += 8
	sigLen := int(binary.BigEndian.Uint32(d[off:]))
	off += 4
	w.Signature = append([]byte(nil), d[off:off+sigLen]...)
	off += sigLen
	copy(w.OwnerLock.CodeHash[:], d[off:off+32])
	off += 32
	w.OwnerLock.HashType = gwtypes.HashType(d[off])
	off++
	argsLen := int(binary.BigEndian.Uint32(d[off:]))
	off += 4
	w.OwnerLock.Args = append([]byte(nil), d[off:off+argsLen]...)
	return w
}

// StoreBlockWithdrawals persists the withdrawal list a block's witness
// carried, indexed by block number so the finalised-withdrawal settler
// can later walk blocks in order without needing the producer's
// original mem-block.
func (tx *Tx) StoreBlockWithdrawals(blockNumber uint64, withdrawals []gwtypes.WithdrawalRequestExtra) {
	out := appendU32(nil, uint32(len(withdrawals)))
	for _, w := range withdrawals {
		enc := encodeWithdrawalExtra(w)
		out = appendU32(out, uint32(len(enc)))
		out = append(out, enc...)
	}
	tx.set(colKey(colWithdrawalByHash, numberKey(blockNumber)), out)
}

// GetBlockWithdrawals returns the withdrawal list recorded for
// blockNumber, or nil if the block carried none (or was never
// recorded, e.g. it predates this column being populated).
func (tx *Tx) GetBlockWithdrawals(blockNumber uint64) []gwtypes.WithdrawalRequestExtra {
	v, ok := tx.get(colKey(colWithdrawalByHash, numberKey(blockNumber)))
	if !ok {
		return nil
	}
	count := int(binary.BigEndian.Uint32(v))
	off := 4
	out := make([]gwtypes.WithdrawalRequestExtra, count)
	for i := 0; i < count; i++ {
		l := int(binary.BigEndian.Uint32(v[off:]))
		off += 4
		out[i] = decodeWithdrawalExtra(v[off : off+l])
		off += l
	}
	return out
}

// DeleteBlockWithdrawals removes a block's withdrawal record, used
// when DetachBlock unwinds a reverted block.
func (tx *Tx) DeleteBlockWithdrawals(blockNumber uint64) {
	tx.delete(colKey(colWithdrawalByHash, numberKey(blockNumber)))
}
