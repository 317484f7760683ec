package gwtypes

// RawWithdrawalRequest is the unsigned intent to move value from an L2
// account back to an L1 lock, expressed against the owner's account
// script hash rather than account id so it remains valid even if the
// account is later pruned from the SMT.
type RawWithdrawalRequest struct {
	AccountScriptHash H256
	Capacity          uint64
	Amount            uint256Bytes
	SUDTScriptHash    H256
	OwnerLockHash     H256
	Fee               uint64
	Nonce             uint32
	RegistryID        RegistryID
	ChainID           uint64
}

// uint256Bytes stores a 256-bit amount as big-endian bytes; a dedicated
// type keeps withdrawal.go free of a direct holiman/uint256 import at
// the data-model layer, while internal/vm and internal/smt convert to
// uint256.Int where arithmetic is actually performed.
type uint256Bytes [32]byte

// Hash computes the raw withdrawal request's digest.
func (r RawWithdrawalRequest) Hash() H256 {
	var buf []byte
	buf = append(buf, r.AccountScriptHash[:]...)
	buf = append(buf, u64LE(r.Capacity)...)
	buf = append(buf, r.Amount[:]...)
	buf = append(buf, r.SUDTScriptHash[:]...)
	buf = append(buf, r.OwnerLockHash[:]...)
	buf = append(buf, u64LE(r.Fee)...)
	buf = append(buf, u32LE(r.Nonce)...)
	buf = append(buf, u32LE(uint32(r.RegistryID))...)
	buf = append(buf, u64LE(r.ChainID)...)
	return Keccak256Hash(buf)
}

// WithdrawalRequestExtra is a signed RawWithdrawalRequest plus the L1
// owner lock script the withdrawn capacity will be paid out to. The
// owner lock hash in the raw body must match Hash(OwnerLock); carrying
// the full script lets the settler build the output cell directly.
type WithdrawalRequestExtra struct {
	Raw       RawWithdrawalRequest
	Signature []byte
	OwnerLock Script
}

// Hash is the withdrawal's identity, equal to the raw request's hash.
func (w WithdrawalRequestExtra) Hash() H256 { return w.Raw.Hash() }

// ValidateOwnerLock checks the raw body's owner_lock_hash commits to
// the attached owner lock script.
func (w WithdrawalRequestExtra) ValidateOwnerLock() bool {
	return w.Raw.OwnerLockHash == w.OwnerLock.Hash()
}
