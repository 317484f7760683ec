package store

import (
	"encoding/binary"

	"github.com/gwnode/gwnode/internal/gwtypes"
)

// CustodianAsset is the L1-side capacity/SUDT balance held in custody
// for a given SUDT script hash (zero hash for native capacity),
// advanced as deposits are absorbed and withdrawals are finalised.
type CustodianAsset struct {
	Capacity uint64
	Amount   [32]byte
}

func encodeCustodianAsset(a CustodianAsset) []byte {
	out := make([]byte, 0, 40)
	out = appendU64(out, a.Capacity)
	out = append(out, a.Amount[:]...)
	return out
}

func decodeCustodianAsset(d []byte) CustodianAsset {
	var a CustodianAsset
	a.Capacity = binary.BigEndian.Uint64(d)
	copy(a.Amount[:], d[8:40])
	return a
}

// GetCustodianAsset returns the custody ledger entry for sudtScriptHash.
func (tx *Tx) GetCustodianAsset(sudtScriptHash gwtypes.H256) CustodianAsset {
	v, ok := tx.get(colKey(colCustodian, sudtScriptHash[:]))
	if !ok {
		return CustodianAsset{}
	}
	return decodeCustodianAsset(v)
}

// SetCustodianAsset overwrites the custody ledger entry for
// sudtScriptHash, used when a deposit phase credits new custody or a
// withdrawal-finalisation phase debits settled custody.
func (tx *Tx) SetCustodianAsset(sudtScriptHash gwtypes.H256, a CustodianAsset) {
	tx.set(colKey(colCustodian, sudtScriptHash[:]), encodeCustodianAsset(a))
}

// GetFinalizationFrontier returns the last finalised withdrawal
// pointer the settler has advanced to.
func (tx *Tx) GetFinalizationFrontier() gwtypes.LastFinalizedWithdrawal {
	v, ok := tx.get(finalizeFrontierKey)
	if !ok {
		return gwtypes.LastFinalizedWithdrawal{}
	}
	return gwtypes.LastFinalizedWithdrawal{
		BlockNumber:     binary.BigEndian.Uint64(v),
		WithdrawalIndex: binary.BigEndian.Uint32(v[8:]),
	}
}

// SetFinalizationFrontier advances the settler's finalisation pointer.
func (tx *Tx) SetFinalizationFrontier(f gwtypes.LastFinalizedWithdrawal) {
	out := appendU64(nil, f.BlockNumber)
	out = appendU32(out, f.WithdrawalIndex)
	tx.set(finalizeFrontierKey, out)
}

// GetLastFinalizeTxHash returns the hash of the last
// RollupFinalizeWithdrawal transaction submitted to L1, if the
// settler is waiting on one to confirm.
func (tx *Tx) GetLastFinalizeTxHash() (gwtypes.H256, bool) {
	v, ok := tx.get(lastFinalizeTxKey)
	if !ok {
		return gwtypes.H256{}, false
	}
	return gwtypes.BytesToH256(v), true
}

// SetLastFinalizeTxHash records the in-flight finalisation tx hash.
func (tx *Tx) SetLastFinalizeTxHash(h gwtypes.H256) {
	tx.set(lastFinalizeTxKey, h[:])
}

// ClearLastFinalizeTxHash drops the in-flight pointer once a
// finalisation tx is confirmed, rejected, or superseded.
func (tx *Tx) ClearLastFinalizeTxHash() {
	tx.delete(lastFinalizeTxKey)
}
