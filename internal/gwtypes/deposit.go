package gwtypes

// DepositRequest is an L1-originated value transfer into a (possibly
// new) L2 account, carried in the rollup cell's deposit inputs and
// applied by the generator before any transaction in a block.
type DepositRequest struct {
	Script         Script
	Capacity       uint64
	Amount         uint256Bytes
	SUDTScriptHash H256
	RegistryID     RegistryID
}

// Hash computes the deposit's digest, used for dedup against
// already-applied deposits when replaying L1 blocks.
func (d DepositRequest) Hash() H256 {
	var buf []byte
	buf = append(buf, d.Script.Hash().Bytes()...)
	buf = append(buf, u64LE(d.Capacity)...)
	buf = append(buf, d.Amount[:]...)
	buf = append(buf, d.SUDTScriptHash[:]...)
	buf = append(buf, u32LE(uint32(d.RegistryID))...)
	return Keccak256Hash(buf)
}

// IsCKBOnly reports whether the deposit carries no SUDT amount, i.e. it
// only credits capacity against the native asset.
func (d DepositRequest) IsCKBOnly() bool {
	return d.SUDTScriptHash == CKBSUDTScriptHash || d.Amount == (uint256Bytes{})
}
