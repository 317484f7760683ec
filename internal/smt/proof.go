package smt

import (
	"errors"

	"github.com/gwnode/gwnode/internal/gwtypes"
)

// ErrProofVerificationFailed is returned by VerifyProof when the
// supplied siblings do not reproduce the claimed root.
var ErrProofVerificationFailed = errors.New("smt: proof does not match root")

// MembershipProof is a merkle path: one sibling hash per level,
// ordered from the leaf upward, letting a verifier recompute the root
// from (key, value, siblings) without holding the whole tree.
type MembershipProof struct {
	Siblings [256]gwtypes.H256
}

// Prove builds the membership proof for key against the tree's
// current root.
func (t *Tree) Prove(key gwtypes.H256) MembershipProof {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var proof MembershipProof
	t.provePath(t.root, key, 0, &proof)
	return proof
}

func (t *Tree) provePath(cur gwtypes.H256, key gwtypes.H256, depth int, proof *MembershipProof) {
	if depth == 256 || cur.IsZero() {
		return
	}
	data, ok := t.store.GetNode(cur)
	if !ok {
		return
	}
	n := nodeFromBytes(data)
	if bitAt(key, depth) == 0 {
		proof.Siblings[depth] = n.right
		t.provePath(n.left, key, depth+1, proof)
	} else {
		proof.Siblings[depth] = n.left
		t.provePath(n.right, key, depth+1, proof)
	}
}

// VerifyProof recomputes a root from (key, value, proof) and checks it
// against root, returning ErrProofVerificationFailed on mismatch. This
// is the primitive the fraud-proof/challenge path uses to check a
// claimed account state without trusting the block producer's SMT.
func VerifyProof(root, key, value gwtypes.H256, proof MembershipProof) error {
	cur := leafHash(key, value)
	for depth := 255; depth >= 0; depth-- {
		sib := proof.Siblings[depth]
		var n node
		if bitAt(key, depth) == 0 {
			n = node{left: cur, right: sib}
		} else {
			n = node{left: sib, right: cur}
		}
		if n.left.IsZero() && n.right.IsZero() {
			cur = gwtypes.H256{}
			continue
		}
		cur = n.hash()
	}
	if cur != root {
		return ErrProofVerificationFailed
	}
	return nil
}
