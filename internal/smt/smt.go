// Package smt implements the sparse merkle tree used to commit to
// account state, the block list, and the reverted-block set. The tree
// is a standard 256-level binary SMT keyed by gwtypes.H256, with a
// zero H256 as the default value for every unset leaf so the root of
// an empty tree is well-defined.
package smt

import (
	"errors"
	"sync"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/gwnode/gwnode/internal/gwtypes"
)

// ErrKeyNotFound names a lookup of an unset key. Tree.Get does not
// return it; Get reports an unset key through its ok result.
var ErrKeyNotFound = errors.New("smt: key not found")

// NodeStore persists the internal nodes of a tree. Implementations are
// expected to be content-addressed: Put(h, data) with h == Hash(data).
type NodeStore interface {
	GetNode(h gwtypes.H256) ([]byte, bool)
	PutNode(h gwtypes.H256, data []byte)
}

// memNodeStore is a NodeStore backed by an in-process fastcache
// instance, the same cache the teacher uses for hot trie nodes.
type memNodeStore struct {
	cache *fastcache.Cache
}

// NewCachedNodeStore builds a NodeStore with a fastcache of the given
// byte budget fronting node lookups.
func NewCachedNodeStore(maxBytes int) NodeStore {
	return &memNodeStore{cache: fastcache.New(maxBytes)}
}

func (s *memNodeStore) GetNode(h gwtypes.H256) ([]byte, bool) {
	v, ok := s.cache.HasGet(nil, h[:])
	return v, ok
}

func (s *memNodeStore) PutNode(h gwtypes.H256, data []byte) {
	s.cache.Set(h[:], data)
}

// node is an internal SMT branch: the merkle roots of its left and
// right children at the next level down.
type node struct {
	left, right gwtypes.H256
}

func (n node) hash() gwtypes.H256 {
	return gwtypes.Keccak256Hash(n.left[:], n.right[:])
}

func (n node) bytes() []byte {
	b := make([]byte, 64)
	copy(b[:32], n.left[:])
	copy(b[32:], n.right[:])
	return b
}

func nodeFromBytes(b []byte) node {
	var n node
	copy(n.left[:], b[:32])
	copy(n.right[:], b[32:])
	return n
}

// leafHash is the value committed at a tree leaf for a given key/value
// pair; hashing the key in prevents two different (key, value) pairs
// from colliding on the same leaf digest.
func leafHash(key, value gwtypes.H256) gwtypes.H256 {
	if value.IsZero() {
		return gwtypes.H256{}
	}
	return gwtypes.Keccak256Hash(key[:], value[:])
}

// Tree is a 256-level sparse merkle tree over gwtypes.H256 keys.
// Touched keys across a batch of mutations are tracked so callers
// (e.g. the mem-pool's speculative apply/rollback) can cheaply tell
// whether a given key was written in the current generation without
// re-walking the tree.
type Tree struct {
	mu      sync.RWMutex
	store   NodeStore
	root    gwtypes.H256
	touched map[gwtypes.H256]struct{}
	values  map[gwtypes.H256]gwtypes.H256
}

// NewTree builds an empty tree (root is the zero hash) backed by the
// given node store. Leaf hashes alone don't invert to values, so the
// tree keeps a parallel key->value map for Get; the node store and its
// root remain the source of truth for proofs and commitments.
func NewTree(store NodeStore) *Tree {
	return &Tree{
		store:   store,
		touched: make(map[gwtypes.H256]struct{}),
		values:  make(map[gwtypes.H256]gwtypes.H256),
	}
}

// Root returns the current merkle root.
func (t *Tree) Root() gwtypes.H256 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// TouchedKeys returns the set of keys updated since the tree was
// built or since ClearTouched was last called.
func (t *Tree) TouchedKeys() []gwtypes.H256 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]gwtypes.H256, 0, len(t.touched))
	for k := range t.touched {
		out = append(out, k)
	}
	return out
}

// ClearTouched resets the touched-key set, used after a block commits
// and the next block's mutations should be tracked independently.
func (t *Tree) ClearTouched() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touched = make(map[gwtypes.H256]struct{})
}

// Update sets key to value and returns the new root. Setting a key to
// the zero value removes it from the tree (its leaf reverts to the
// default empty hash).
func (t *Tree) Update(key, value gwtypes.H256) gwtypes.H256 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touched[key] = struct{}{}
	if value.IsZero() {
		delete(t.values, key)
	} else {
		t.values[key] = value
	}
	t.root = t.updatePath(t.root, key, 0, value)
	return t.root
}

// updatePath walks from the root (or an empty subtree) down bit by
// bit, MSB first, rebuilding nodes on the way back up.
func (t *Tree) updatePath(cur gwtypes.H256, key gwtypes.H256, depth int, value gwtypes.H256) gwtypes.H256 {
	if depth == 256 {
		return leafHash(key, value)
	}
	var n node
	if !cur.IsZero() {
		data, ok := t.store.GetNode(cur)
		if ok {
			n = nodeFromBytes(data)
		}
	}
	if bitAt(key, depth) == 0 {
		n.left = t.updatePath(n.left, key, depth+1, value)
	} else {
		n.right = t.updatePath(n.right, key, depth+1, value)
	}
	if n.left.IsZero() && n.right.IsZero() {
		return gwtypes.H256{}
	}
	h := n.hash()
	t.store.PutNode(h, n.bytes())
	return h
}

// Get looks up a key's current value. Unset keys return the zero
// value and ok=false.
func (t *Tree) Get(key gwtypes.H256) (value gwtypes.H256, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[key]
	return v, ok
}

// bitAt returns bit i of key, counting from the most significant bit
// of the first byte.
func bitAt(key gwtypes.H256, i int) byte {
	byteIdx := i / 8
	bitIdx := 7 - uint(i%8)
	return (key[byteIdx] >> bitIdx) & 1
}
