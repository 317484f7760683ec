package smt

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/gwnode/gwnode/internal/gwtypes"
)

func TestTreeUpdateAndGet(t *testing.T) {
	tree := NewTree(NewCachedNodeStore(1 << 20))
	require.True(t, tree.Root().IsZero())

	k1 := gwtypes.Keccak256Hash([]byte("k1"))
	v1 := gwtypes.Keccak256Hash([]byte("v1"))
	root1 := tree.Update(k1, v1)
	require.False(t, root1.IsZero())

	got, ok := tree.Get(k1)
	require.True(t, ok)
	require.Equal(t, v1, got)

	k2 := gwtypes.Keccak256Hash([]byte("k2"))
	v2 := gwtypes.Keccak256Hash([]byte("v2"))
	root2 := tree.Update(k2, v2)
	require.NotEqual(t, root1, root2)
}

func TestTreeDeterministicRoot(t *testing.T) {
	t1 := NewTree(NewCachedNodeStore(1 << 20))
	t2 := NewTree(NewCachedNodeStore(1 << 20))

	keys := []string{"a", "b", "c", "d"}
	for _, k := range keys {
		key := gwtypes.Keccak256Hash([]byte(k))
		val := gwtypes.Keccak256Hash([]byte(k + "-value"))
		t1.Update(key, val)
		t2.Update(key, val)
	}
	require.Equal(t, t1.Root(), t2.Root())
}

func TestMembershipProofRoundTrip(t *testing.T) {
	tree := NewTree(NewCachedNodeStore(1 << 20))
	keys := make([]gwtypes.H256, 0, 8)
	vals := make([]gwtypes.H256, 0, 8)
	for i := 0; i < 8; i++ {
		k := gwtypes.Keccak256Hash([]byte{byte(i)})
		v := gwtypes.Keccak256Hash([]byte{byte(i), byte(i)})
		keys = append(keys, k)
		vals = append(vals, v)
		tree.Update(k, v)
	}
	root := tree.Root()
	for i := range keys {
		proof := tree.Prove(keys[i])
		require.NoError(t, VerifyProof(root, keys[i], vals[i], proof))
	}
}

func TestMembershipProofRejectsWrongValue(t *testing.T) {
	tree := NewTree(NewCachedNodeStore(1 << 20))
	k := gwtypes.Keccak256Hash([]byte("key"))
	v := gwtypes.Keccak256Hash([]byte("value"))
	tree.Update(k, v)
	root := tree.Root()
	proof := tree.Prove(k)

	wrong := gwtypes.Keccak256Hash([]byte("not-the-value"))
	require.ErrorIs(t, VerifyProof(root, k, wrong, proof), ErrProofVerificationFailed)
}

func TestAccountSMTNonceAndScript(t *testing.T) {
	acc := NewAccountSMT(NewCachedNodeStore(1 << 20))
	id := gwtypes.AccountID(3)

	require.Equal(t, uint32(0), acc.Nonce(id))
	acc.SetNonce(id, 5)
	require.Equal(t, uint32(5), acc.Nonce(id))

	script := gwtypes.Script{CodeHash: gwtypes.Keccak256Hash([]byte("code")), HashType: gwtypes.HashTypeType, Args: []byte("args")}
	acc.SetScriptHash(id, script)
	hash, ok := acc.ScriptHash(id)
	require.True(t, ok)
	require.Equal(t, script.Hash(), hash)

	resolved, ok := acc.Script(hash)
	require.True(t, ok)
	require.Equal(t, script, resolved)
}

func TestAccountSMTBalanceAndRegistry(t *testing.T) {
	acc := NewAccountSMT(NewCachedNodeStore(1 << 20))
	id := gwtypes.AccountID(3)
	sudtHash := gwtypes.Keccak256Hash([]byte("sudt"))

	require.True(t, acc.Balance(id, sudtHash).IsZero())
	acc.SetBalance(id, sudtHash, uint256.NewInt(1000))
	require.Equal(t, uint256.NewInt(1000), acc.Balance(id, sudtHash))

	regAddr := gwtypes.RegistryAddress{RegistryID: gwtypes.RegistryIDEth, Address: []byte{1, 2, 3, 4}}
	scriptHash := gwtypes.Keccak256Hash([]byte("owner-script"))
	acc.SetRegistryAddress(regAddr, scriptHash)
	got, ok := acc.ResolveRegistryAddress(regAddr)
	require.True(t, ok)
	require.Equal(t, scriptHash, got)
}

func TestBlockSMTInsertAndProve(t *testing.T) {
	blocks := NewBlockSMT(NewCachedNodeStore(1 << 20))
	h1 := gwtypes.Keccak256Hash([]byte("block-1"))
	blocks.InsertBlock(1, h1)
	root := blocks.tree.Root()

	got, ok := blocks.BlockHash(1)
	require.True(t, ok)
	require.Equal(t, h1, got)

	proof := blocks.Prove(1)
	require.NoError(t, VerifyBlockProof(root, 1, h1, proof))
}

func TestRevertedBlockSMT(t *testing.T) {
	reverted := NewRevertedBlockSMT(NewCachedNodeStore(1 << 20))
	bh := gwtypes.Keccak256Hash([]byte("bad-block"))
	require.False(t, reverted.IsReverted(bh))
	reverted.MarkReverted(bh)
	require.True(t, reverted.IsReverted(bh))
}
