package gwtypes

// RawL2Transaction is the unsigned body of a layer-2 call: an account
// nonce plus a (from_id, to_id, args) dispatch triple, scoped to a
// chain id so replayed transactions can't cross rollup instances.
type RawL2Transaction struct {
	ChainID uint64
	FromID  uint32
	ToID    uint32
	Nonce   uint32
	Args    []byte
}

// Hash computes the raw transaction's digest, the value actually signed
// over and the value committed into SubmitTransactions' witness root.
func (r RawL2Transaction) Hash() H256 {
	var buf []byte
	buf = append(buf, u64LE(r.ChainID)...)
	buf = append(buf, u32LE(r.FromID)...)
	buf = append(buf, u32LE(r.ToID)...)
	buf = append(buf, u32LE(r.Nonce)...)
	buf = append(buf, r.Args...)
	return Keccak256Hash(buf)
}

// L2Transaction is a signed RawL2Transaction as it travels through the
// mem-pool and into a block's transaction list.
type L2Transaction struct {
	Raw       RawL2Transaction
	Signature []byte
}

// Hash is the transaction hash used for mem-pool dedup and the
// transaction SMT / witness root, equal to the raw transaction's hash
// (the signature is excluded, matching the spec's signed-envelope
// convention where tx identity tracks intent, not encoding).
func (tx L2Transaction) Hash() H256 { return tx.Raw.Hash() }

func u32LE(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func u64LE(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
