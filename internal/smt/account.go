package smt

import (
	"encoding/binary"

	set "github.com/deckarep/golang-set/v2"
	"github.com/holiman/uint256"

	"github.com/gwnode/gwnode/internal/gwtypes"
)

// field tags the different key namespaces multiplexed into the single
// account SMT keyspace, keeping nonce/script_hash/data/sudt lookups
// from colliding on the same 32-byte key space.
type field byte

const (
	fieldNonce      field = 1
	fieldScriptHash field = 2
	fieldSUDT       field = 3
	fieldRegistry   field = 4
)

// AccountSMT is the account-state sparse merkle tree: nonces and
// script hashes keyed by account id, SUDT balances keyed by (account
// id, sudt script hash), and a registry-address <-> script-hash
// mapping keyed by registry address hash. Scripts and large blobs
// referenced by hash are not merkleized fields themselves (their hash
// is) and are held in a side store keyed by content hash.
type AccountSMT struct {
	tree         *Tree
	scripts      map[gwtypes.H256]gwtypes.Script
	data         map[gwtypes.H256][]byte
	scriptOwners map[gwtypes.H256]gwtypes.AccountID
	touched      set.Set[gwtypes.H256]
	priorValues  map[gwtypes.H256]gwtypes.H256
}

// NewAccountSMT builds an empty account tree backed by the given node
// store.
func NewAccountSMT(store NodeStore) *AccountSMT {
	return &AccountSMT{
		tree:         NewTree(store),
		scripts:      make(map[gwtypes.H256]gwtypes.Script),
		data:         make(map[gwtypes.H256][]byte),
		scriptOwners: make(map[gwtypes.H256]gwtypes.AccountID),
		touched:      set.NewThreadUnsafeSet[gwtypes.H256](),
		priorValues:  make(map[gwtypes.H256]gwtypes.H256),
	}
}

// touch records key as mutated this generation and, on its first
// write this generation, snapshots the value it had beforehand so a
// later revert can restore exactly that value.
func (a *AccountSMT) touch(key gwtypes.H256) {
	if a.touched.Contains(key) {
		return
	}
	a.touched.Add(key)
	if v, ok := a.tree.Get(key); ok {
		a.priorValues[key] = v
	} else {
		a.priorValues[key] = gwtypes.H256{}
	}
}

// RollbackKeys restores each key to the given value directly, without
// further touch-tracking. Used to undo a speculative generation's
// writes (e.g. the mem-pool discarding a transaction that failed
// admission) given the touched keys and prior values an earlier
// TouchedKeys/PriorValues call captured.
func (a *AccountSMT) RollbackKeys(keys, priors []gwtypes.H256) {
	for i, k := range keys {
		a.tree.Update(k, priors[i])
	}
}

// PriorValues returns, in the same order as TouchedKeys, each touched
// key's value immediately before this generation's first write to it
// (zero if the key was previously unset). Used to build a
// BlockStateRecord a later revert can replay.
func (a *AccountSMT) PriorValues(keys []gwtypes.H256) []gwtypes.H256 {
	out := make([]gwtypes.H256, len(keys))
	for i, k := range keys {
		out[i] = a.priorValues[k]
	}
	return out
}

// ComputeStateCheckpointFromTree derives the spec's
// H(account_root || account_count) checkpoint for this tree's current
// state, at the given account count.
func ComputeStateCheckpointFromTree(a *AccountSMT, count uint32) gwtypes.StateCheckpoint {
	return gwtypes.ComputeStateCheckpoint(a.Root(count))
}

// Apply writes a raw merkle key/value pair produced by a VM run
// directly, bypassing the field-specific setters above. Used by the
// generator's transaction phase to apply a program's declared writes
// without the generator needing to know which logical field each key
// encodes.
func (a *AccountSMT) Apply(key, value gwtypes.H256) {
	a.touch(key)
	a.tree.Update(key, value)
}

// AccountIDByScriptHash resolves the account id a script hash was
// bound to via SetScriptHash, if any.
func (a *AccountSMT) AccountIDByScriptHash(hash gwtypes.H256) (gwtypes.AccountID, bool) {
	id, ok := a.scriptOwners[hash]
	return id, ok
}

// ForgetScript removes a script-hash binding SetScriptHash installed.
// RollbackKeys undoes the merkle-tree side of a speculative
// account-creation write but, since scripts/scriptOwners are plain
// side tables rather than merkleized fields, leaves them untouched;
// callers that roll back a transient generation in which a new
// account was created (mem-pool packaging previewing pending
// deposits) call this afterward to keep both views consistent.
func (a *AccountSMT) ForgetScript(hash gwtypes.H256) {
	delete(a.scriptOwners, hash)
	delete(a.scripts, hash)
}

// Root returns the merkle state (root, account count) for this tree.
func (a *AccountSMT) Root(count uint32) gwtypes.AccountMerkleState {
	return gwtypes.AccountMerkleState{MerkleRoot: a.tree.Root(), Count: count}
}

func accountKey(f field, id gwtypes.AccountID) gwtypes.H256 {
	var buf [5]byte
	buf[0] = byte(f)
	binary.BigEndian.PutUint32(buf[1:], uint32(id))
	return gwtypes.Keccak256Hash(buf[:])
}

// SetNonce records account id's nonce.
func (a *AccountSMT) SetNonce(id gwtypes.AccountID, nonce uint32) {
	k := accountKey(fieldNonce, id)
	a.touch(k)
	var v gwtypes.H256
	binary.BigEndian.PutUint32(v[28:], nonce)
	a.tree.Update(k, v)
}

// Nonce returns account id's current nonce, 0 if unset.
func (a *AccountSMT) Nonce(id gwtypes.AccountID) uint32 {
	v, ok := a.tree.Get(accountKey(fieldNonce, id))
	if !ok {
		return 0
	}
	return binary.BigEndian.Uint32(v[28:])
}

// SetScriptHash binds an account id to a script hash, and records the
// script itself so Script(hash) can resolve it later.
func (a *AccountSMT) SetScriptHash(id gwtypes.AccountID, script gwtypes.Script) {
	hash := script.Hash()
	k := accountKey(fieldScriptHash, id)
	a.touch(k)
	a.tree.Update(k, hash)
	a.scripts[hash] = script
	a.scriptOwners[hash] = id
}

// ScriptHash returns the script hash bound to account id.
func (a *AccountSMT) ScriptHash(id gwtypes.AccountID) (gwtypes.H256, bool) {
	return a.tree.Get(accountKey(fieldScriptHash, id))
}

// Script resolves a script hash to its full script, if known.
func (a *AccountSMT) Script(hash gwtypes.H256) (gwtypes.Script, bool) {
	s, ok := a.scripts[hash]
	return s, ok
}

// SetData stores an arbitrary content-addressed blob (contract code,
// account metadata) and returns its hash.
func (a *AccountSMT) SetData(blob []byte) gwtypes.H256 {
	h := gwtypes.Keccak256Hash(blob)
	a.data[h] = append([]byte(nil), blob...)
	return h
}

// Data resolves a content hash to its blob, if known.
func (a *AccountSMT) Data(hash gwtypes.H256) ([]byte, bool) {
	v, ok := a.data[hash]
	return v, ok
}

// buildSUDTKey derives the merkle key for account id's balance of the
// SUDT identified by sudtScriptHash, matching the spec's
// build_sudt_key(account_id, sudt_script_hash) convention.
func buildSUDTKey(id gwtypes.AccountID, sudtScriptHash gwtypes.H256) gwtypes.H256 {
	var idBuf [4]byte
	binary.BigEndian.PutUint32(idBuf[:], uint32(id))
	return gwtypes.Keccak256Hash([]byte{byte(fieldSUDT)}, idBuf[:], sudtScriptHash[:])
}

// SetBalance sets account id's balance of the given SUDT.
func (a *AccountSMT) SetBalance(id gwtypes.AccountID, sudtScriptHash gwtypes.H256, amount *uint256.Int) {
	k := buildSUDTKey(id, sudtScriptHash)
	a.touch(k)
	a.tree.Update(k, gwtypes.BytesToH256(amount.Bytes32()[:]))
}

// Balance returns account id's balance of the given SUDT, zero if unset.
func (a *AccountSMT) Balance(id gwtypes.AccountID, sudtScriptHash gwtypes.H256) *uint256.Int {
	v, ok := a.tree.Get(buildSUDTKey(id, sudtScriptHash))
	amount := new(uint256.Int)
	if !ok {
		return amount
	}
	amount.SetBytes(v[:])
	return amount
}

// SetRegistryAddress binds a registry address to an account's script
// hash, the mapping the Eth-address-registration operation installs.
func (a *AccountSMT) SetRegistryAddress(addr gwtypes.RegistryAddress, scriptHash gwtypes.H256) {
	k := gwtypes.Keccak256Hash([]byte{byte(fieldRegistry)}, addr.Hash().Bytes())
	a.touch(k)
	a.tree.Update(k, scriptHash)
}

// ResolveRegistryAddress looks up the script hash bound to a registry
// address, if any.
func (a *AccountSMT) ResolveRegistryAddress(addr gwtypes.RegistryAddress) (gwtypes.H256, bool) {
	k := gwtypes.Keccak256Hash([]byte{byte(fieldRegistry)}, addr.Hash().Bytes())
	return a.tree.Get(k)
}

// TouchedKeys returns the merkle keys mutated since the tree was built
// or TouchedKeys was last drained via ClearTouched.
func (a *AccountSMT) TouchedKeys() []gwtypes.H256 {
	return a.touched.ToSlice()
}

// ClearTouched resets the touched-key set and its prior-value
// snapshots, starting a new generation.
func (a *AccountSMT) ClearTouched() {
	a.touched = set.NewThreadUnsafeSet[gwtypes.H256]()
	a.priorValues = make(map[gwtypes.H256]gwtypes.H256)
	a.tree.ClearTouched()
}

// Prove builds a membership proof for a raw merkle key already
// produced by one of the key-deriving helpers above (exported so the
// generator and challenger can prove SUDT balances, nonces, etc.).
func (a *AccountSMT) Prove(key gwtypes.H256) MembershipProof {
	return a.tree.Prove(key)
}

// NonceKey, ScriptHashKey and SUDTKey expose the key derivation so
// callers outside this package (challenger fraud proofs) can address
// the same merkle slots this type writes.
func NonceKey(id gwtypes.AccountID) gwtypes.H256      { return accountKey(fieldNonce, id) }
func ScriptHashKey(id gwtypes.AccountID) gwtypes.H256 { return accountKey(fieldScriptHash, id) }
func SUDTKey(id gwtypes.AccountID, sudtScriptHash gwtypes.H256) gwtypes.H256 {
	return buildSUDTKey(id, sudtScriptHash)
}
