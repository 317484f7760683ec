package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gwnode/gwnode/internal/gwtypes"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTxSavepointRollback(t *testing.T) {
	s := openTestStore(t)
	tx := s.Begin()

	tx.set([]byte("k1"), []byte("v1"))
	sp := tx.SetSavepoint()
	tx.set([]byte("k1"), []byte("v2"))
	tx.set([]byte("k2"), []byte("v3"))

	v, ok := tx.get([]byte("k1"))
	require.True(t, ok)
	require.Equal(t, []byte("v2"), v)

	require.NoError(t, tx.RollbackToSavepoint(sp))

	v, ok = tx.get([]byte("k1"))
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)

	_, ok = tx.get([]byte("k2"))
	require.False(t, ok)
}

func TestBlockInsertAndLookup(t *testing.T) {
	s := openTestStore(t)
	tx := s.Begin()

	block := gwtypes.RawL2Block{
		Info: gwtypes.BlockInfo{Number: 1, Timestamp: 1000, BlockProducer: gwtypes.RegistryAddress{RegistryID: gwtypes.RegistryIDEth, Address: []byte{1, 2, 3, 4}}},
		Parent: gwtypes.Keccak256Hash([]byte("genesis")),
	}
	post := gwtypes.GlobalState{Block: gwtypes.BlockMerkleState{Count: 2}}
	tx.InsertBlock(block, post)

	got, ok := tx.GetBlockByNumber(1)
	require.True(t, ok)
	require.Equal(t, block.Info.Number, got.Info.Number)
	require.Equal(t, block.Parent, got.Parent)

	tip, ok := tx.GetTipGlobalState()
	require.True(t, ok)
	require.Equal(t, uint64(2), tip.Block.Count)
}

func TestCustodianLedger(t *testing.T) {
	s := openTestStore(t)
	tx := s.Begin()

	hash := gwtypes.Keccak256Hash([]byte("sudt"))
	require.Equal(t, CustodianAsset{}, tx.GetCustodianAsset(hash))

	tx.SetCustodianAsset(hash, CustodianAsset{Capacity: 500})
	require.Equal(t, uint64(500), tx.GetCustodianAsset(hash).Capacity)
}

func TestStateRecordDetach(t *testing.T) {
	s := openTestStore(t)
	tx := s.Begin()

	pre := gwtypes.GlobalState{Block: gwtypes.BlockMerkleState{Count: 1}}
	block := gwtypes.RawL2Block{Info: gwtypes.BlockInfo{Number: 1}}
	tx.PutStateRecord(1, BlockStateRecord{PreState: pre})
	tx.InsertBlock(block, gwtypes.GlobalState{Block: gwtypes.BlockMerkleState{Count: 2}})

	rec, err := tx.DetachBlock(block)
	require.NoError(t, err)
	require.Equal(t, pre, rec.PreState)

	tip, ok := tx.GetTipGlobalState()
	require.True(t, ok)
	require.Equal(t, uint64(1), tip.Block.Count)

	_, ok = tx.GetBlockByNumber(1)
	require.False(t, ok)
}
