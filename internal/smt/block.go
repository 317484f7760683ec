package smt

import "github.com/gwnode/gwnode/internal/gwtypes"

// blockSMTKey renders a block number as the little-endian 32-byte key
// the block SMT indexes by, matching the CKB-style smt_key(number)
// encoding used throughout the rollup's on-chain structures.
func blockSMTKey(number uint64) gwtypes.H256 {
	var k gwtypes.H256
	for i := 0; i < 8; i++ {
		k[i] = byte(number >> (8 * i))
	}
	return k
}

// BlockSMT commits to the block list by block number, each leaf
// holding that block's hash. Its root, paired with a block count, is
// the GlobalState.Block field.
type BlockSMT struct {
	tree *Tree
}

// NewBlockSMT builds an empty block tree.
func NewBlockSMT(store NodeStore) *BlockSMT {
	return &BlockSMT{tree: NewTree(store)}
}

// InsertBlock records blockHash at the given block number.
func (b *BlockSMT) InsertBlock(number uint64, blockHash gwtypes.H256) gwtypes.H256 {
	return b.tree.Update(blockSMTKey(number), blockHash)
}

// BlockHash returns the hash recorded at the given block number.
func (b *BlockSMT) BlockHash(number uint64) (gwtypes.H256, bool) {
	return b.tree.Get(blockSMTKey(number))
}

// Root returns the merkle state (root, count) for this tree, where
// count is conventionally tip_block_number + 1.
func (b *BlockSMT) Root(count uint64) gwtypes.BlockMerkleState {
	return gwtypes.BlockMerkleState{MerkleRoot: b.tree.Root(), Count: count}
}

// Prove builds a membership proof that blockHash sits at number.
func (b *BlockSMT) Prove(number uint64) MembershipProof {
	return b.tree.Prove(blockSMTKey(number))
}

// VerifyBlockProof checks a claimed (number, hash) pair against root.
func VerifyBlockProof(root gwtypes.H256, number uint64, blockHash gwtypes.H256, proof MembershipProof) error {
	return VerifyProof(root, blockSMTKey(number), blockHash, proof)
}

// RevertedBlockSMT tracks the set of block hashes that have been
// reverted by a successful challenge, each present leaf holding the
// constant value 1 (i.e. any non-zero H256 suffices as a membership
// marker; we use the canonical all-but-last-byte-zero encoding to keep
// the leaf value distinguishable from an absent blockHash accidentally
// equal to the zero hash).
type RevertedBlockSMT struct {
	tree *Tree
}

var revertedMarker = func() gwtypes.H256 {
	var h gwtypes.H256
	h[31] = 1
	return h
}()

// NewRevertedBlockSMT builds an empty reverted-block tree.
func NewRevertedBlockSMT(store NodeStore) *RevertedBlockSMT {
	return &RevertedBlockSMT{tree: NewTree(store)}
}

// MarkReverted records blockHash as reverted.
func (r *RevertedBlockSMT) MarkReverted(blockHash gwtypes.H256) gwtypes.H256 {
	return r.tree.Update(blockHash, revertedMarker)
}

// IsReverted reports whether blockHash is recorded as reverted.
func (r *RevertedBlockSMT) IsReverted(blockHash gwtypes.H256) bool {
	v, ok := r.tree.Get(blockHash)
	return ok && v == revertedMarker
}

// Root returns the current reverted-block-set merkle root.
func (r *RevertedBlockSMT) Root() gwtypes.H256 {
	return r.tree.Root()
}

// Prove builds a membership proof that blockHash is marked reverted.
func (r *RevertedBlockSMT) Prove(blockHash gwtypes.H256) MembershipProof {
	return r.tree.Prove(blockHash)
}
