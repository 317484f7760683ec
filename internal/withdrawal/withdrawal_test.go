package withdrawal

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gwnode/gwnode/internal/config"
	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/l1client"
	"github.com/gwnode/gwnode/internal/smt"
	"github.com/gwnode/gwnode/internal/store"
	"github.com/gwnode/gwnode/internal/wallet"
	"github.com/gwnode/gwnode/pkg/log"
)

func withdrawalWith(capacity uint64, ownerArgs string) gwtypes.WithdrawalRequestExtra {
	return gwtypes.WithdrawalRequestExtra{
		Raw:       gwtypes.RawWithdrawalRequest{Capacity: capacity},
		OwnerLock: gwtypes.Script{Args: []byte(ownerArgs)},
	}
}

func TestPendingQueuePushWithinLimits(t *testing.T) {
	q := NewPendingQueue(10, 50)
	b1 := BlockWithdrawals{Number: 1, Hash: gwtypes.Keccak256Hash([]byte("b1"))}
	reached, err := q.Push(b1)
	require.NoError(t, err)
	require.False(t, reached)

	b2 := BlockWithdrawals{Number: 2, Hash: gwtypes.Keccak256Hash([]byte("b2")), ParentHash: b1.Hash}
	reached, err = q.Push(b2)
	require.NoError(t, err)
	require.False(t, reached)

	start, end, ok := q.BlockRange()
	require.True(t, ok)
	require.Equal(t, uint64(1), start)
	require.Equal(t, uint64(2), end)
}

func TestPendingQueuePushHitsBlockLimit(t *testing.T) {
	q := NewPendingQueue(1, 50)
	b1 := BlockWithdrawals{Number: 1, Hash: gwtypes.Keccak256Hash([]byte("b1"))}
	reached, err := q.Push(b1)
	require.NoError(t, err)
	require.True(t, reached)

	b2 := BlockWithdrawals{Number: 2, Hash: gwtypes.Keccak256Hash([]byte("b2")), ParentHash: b1.Hash}
	reached, err = q.Push(b2)
	require.NoError(t, err)
	require.True(t, reached) // already full, reports reached without appending
	_, end, _ := q.BlockRange()
	require.Equal(t, uint64(1), end)
}

func TestPendingQueuePushShrinksAtWithdrawalLimit(t *testing.T) {
	q := NewPendingQueue(10, 2)
	b1 := BlockWithdrawals{
		Number: 1,
		Hash:   gwtypes.Keccak256Hash([]byte("b1")),
		Withdrawals: []gwtypes.WithdrawalRequestExtra{
			withdrawalWith(100, "a"),
			withdrawalWith(200, "b"),
			withdrawalWith(300, "c"),
		},
	}
	reached, err := q.Push(b1)
	require.NoError(t, err)
	require.True(t, reached)

	batch := q.Take()
	require.Len(t, batch, 1)
	require.Len(t, batch[0].Withdrawals, 2)
}

func TestPendingQueuePushDuplicateSkipped(t *testing.T) {
	q := NewPendingQueue(10, 50)
	b1 := BlockWithdrawals{Number: 1, Hash: gwtypes.Keccak256Hash([]byte("b1"))}
	_, err := q.Push(b1)
	require.NoError(t, err)

	reached, err := q.Push(b1)
	require.NoError(t, err)
	require.False(t, reached)
	_, end, _ := q.BlockRange()
	require.Equal(t, uint64(1), end)
}

func TestPendingQueuePushDiscontinuityErrors(t *testing.T) {
	q := NewPendingQueue(10, 50)
	b1 := BlockWithdrawals{Number: 1, Hash: gwtypes.Keccak256Hash([]byte("b1"))}
	_, err := q.Push(b1)
	require.NoError(t, err)

	b2 := BlockWithdrawals{Number: 2, Hash: gwtypes.Keccak256Hash([]byte("b2")), ParentHash: gwtypes.Keccak256Hash([]byte("not-b1"))}
	_, err = q.Push(b2)
	require.ErrorIs(t, err, ErrDiscontinuousPending)
}

type fakeReader struct {
	blocks      map[uint64]gwtypes.RawL2Block
	withdrawals map[uint64][]gwtypes.WithdrawalRequestExtra
}

func (f fakeReader) GetBlockByNumber(number uint64) (gwtypes.RawL2Block, bool) {
	b, ok := f.blocks[number]
	return b, ok
}

func (f fakeReader) GetBlockWithdrawals(number uint64) []gwtypes.WithdrawalRequestExtra {
	return f.withdrawals[number]
}

func chainedBlocks(n int) map[uint64]gwtypes.RawL2Block {
	out := make(map[uint64]gwtypes.RawL2Block, n)
	var parent gwtypes.H256
	for i := 1; i <= n; i++ {
		b := gwtypes.RawL2Block{Info: gwtypes.BlockInfo{Number: uint64(i)}, Parent: parent}
		out[uint64(i)] = b
		parent = b.Hash()
	}
	return out
}

func TestGetPendingFinalizedWithdrawalsWalksFromFrontier(t *testing.T) {
	r := fakeReader{
		blocks: chainedBlocks(3),
		withdrawals: map[uint64][]gwtypes.WithdrawalRequestExtra{
			1: {withdrawalWith(100, "a")},
			2: {withdrawalWith(200, "b")},
			3: {withdrawalWith(300, "c")},
		},
	}
	cfg := config.WithdrawalConfig{MaxFinalizeBlocks: 10, MaxFinalizeWithdrawals: 50}

	batch, err := GetPendingFinalizedWithdrawals(r, gwtypes.LastFinalizedWithdrawal{BlockNumber: 0, WithdrawalIndex: gwtypes.AllWithdrawals}, 3, cfg)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	require.Equal(t, uint64(1), batch[0].Number)
	require.Equal(t, uint64(3), batch[2].Number)
}

func TestGetPendingFinalizedWithdrawalsResumesPartialBlock(t *testing.T) {
	r := fakeReader{
		blocks: chainedBlocks(1),
		withdrawals: map[uint64][]gwtypes.WithdrawalRequestExtra{
			1: {withdrawalWith(100, "a"), withdrawalWith(200, "b"), withdrawalWith(300, "c")},
		},
	}
	cfg := config.WithdrawalConfig{MaxFinalizeBlocks: 10, MaxFinalizeWithdrawals: 50}

	batch, err := GetPendingFinalizedWithdrawals(r, gwtypes.LastFinalizedWithdrawal{BlockNumber: 1, WithdrawalIndex: 1}, 1, cfg)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.Len(t, batch[0].Withdrawals, 2) // index 0 already finalized, resumes at 1
}

func TestGetPendingFinalizedWithdrawalsStopsWhenStoreNotCaughtUp(t *testing.T) {
	r := fakeReader{blocks: chainedBlocks(2)}
	cfg := config.WithdrawalConfig{MaxFinalizeBlocks: 10, MaxFinalizeWithdrawals: 50}

	batch, err := GetPendingFinalizedWithdrawals(r, gwtypes.LastFinalizedWithdrawal{BlockNumber: 0, WithdrawalIndex: gwtypes.AllWithdrawals}, 10, cfg)
	require.NoError(t, err)
	require.Len(t, batch, 2)
}

// --- Settler tests ---

type stubSigner struct{ lock gwtypes.Script }

func (s stubSigner) Lock() gwtypes.Script                { return s.lock }
func (s stubSigner) Sign(d gwtypes.H256) ([]byte, error) { return []byte("sig"), nil }

var _ wallet.Signer = stubSigner{}

type stubL1 struct {
	rollupCell l1client.Cell
	cellsByLock map[string]l1client.Cell
	txStatus   l1client.TxStatus
	sendErr    error
	estimateErr error
	sent       []gwtypes.H256
}

func (s *stubL1) GetBlock(ctx context.Context, hash gwtypes.H256) (l1client.Block, error) {
	return l1client.Block{}, nil
}
func (s *stubL1) GetBlockByNumber(ctx context.Context, number uint64) (l1client.Block, error) {
	return l1client.Block{}, nil
}
func (s *stubL1) GetTipBlockNumber(ctx context.Context) (uint64, error) { return 0, nil }
func (s *stubL1) GetCell(ctx context.Context, point l1client.OutPoint) (l1client.Cell, error) {
	return l1client.Cell{}, nil
}
func (s *stubL1) GetLiveCell(ctx context.Context, point l1client.OutPoint, withData bool) (l1client.LiveCell, error) {
	return l1client.LiveCell{}, nil
}
func (s *stubL1) EstimateCycles(ctx context.Context, tx l1client.Transaction) (uint64, error) {
	if s.estimateErr != nil {
		return 0, s.estimateErr
	}
	return 1000, nil
}
func (s *stubL1) SendTransaction(ctx context.Context, tx l1client.Transaction) (gwtypes.H256, error) {
	if s.sendErr != nil {
		return gwtypes.H256{}, s.sendErr
	}
	s.sent = append(s.sent, tx.Hash)
	return tx.Hash, nil
}
func (s *stubL1) GetTransactionStatus(ctx context.Context, hash gwtypes.H256) (l1client.TxStatus, error) {
	return s.txStatus, nil
}
func (s *stubL1) GetCells(ctx context.Context, key l1client.SearchKey, order l1client.SortOrder, limit uint32, cursor string) (l1client.CellPage, error) {
	if key.ScriptType == l1client.ScriptTypeLock {
		cell, ok := s.cellsByLock[string(key.Script.Args)]
		if !ok {
			return l1client.CellPage{}, nil
		}
		return l1client.CellPage{Cells: []l1client.Cell{cell}}, nil
	}
	return l1client.CellPage{Cells: []l1client.Cell{s.rollupCell}}, nil
}

var _ l1client.Client = (*stubL1)(nil)

func newTestSettler(t *testing.T, l1 *stubL1, blocks *smt.BlockSMT) (*Settler, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	rollup := config.RollupConfig{RollupTypeHash: gwtypes.Keccak256Hash([]byte("rollup-type")).Hex()}
	cfg := config.WithdrawalConfig{MaxFinalizeBlocks: 10, MaxFinalizeWithdrawals: 50}
	if blocks == nil {
		blocks = smt.NewBlockSMT(smt.NewCachedNodeStore(1 << 16))
	}
	s := New(st, blocks, l1, stubSigner{}, rollup, cfg, nil, log.NewStderr(slog.LevelError))
	return s, st
}

func rollupCellWithState(state gwtypes.GlobalState) l1client.Cell {
	return l1client.Cell{
		OutPoint: l1client.OutPoint{TxHash: gwtypes.Keccak256Hash([]byte("rollup")), Index: 0},
		Data:     state.MarshalBinary(),
	}
}

func TestSettlerTryFinalizeErrorsWhenNoTip(t *testing.T) {
	l1 := &stubL1{rollupCell: rollupCellWithState(gwtypes.GlobalState{Version: 2, Status: gwtypes.StatusRunning})}
	s, _ := newTestSettler(t, l1, nil)

	err := s.TryFinalize(context.Background())
	require.Error(t, err) // no local tip recorded yet
}

func TestSettlerTryFinalizeSkipsWhenNotRunning(t *testing.T) {
	l1 := &stubL1{rollupCell: rollupCellWithState(gwtypes.GlobalState{Version: 2, Status: gwtypes.StatusHalting})}
	s, _ := newTestSettler(t, l1, nil)

	err := s.TryFinalize(context.Background())
	require.ErrorIs(t, err, ErrNotFinalizable)
}

func TestSettlerTryFinalizeSkipsWhenVersionTooOld(t *testing.T) {
	l1 := &stubL1{rollupCell: rollupCellWithState(gwtypes.GlobalState{Version: 1, Status: gwtypes.StatusRunning})}
	s, _ := newTestSettler(t, l1, nil)

	err := s.TryFinalize(context.Background())
	require.ErrorIs(t, err, ErrNotFinalizable)
}

func TestSettlerTryFinalizePendingTxBlocksProgress(t *testing.T) {
	l1 := &stubL1{
		rollupCell: rollupCellWithState(gwtypes.GlobalState{Version: 2, Status: gwtypes.StatusRunning}),
		txStatus:   l1client.TxStatusProposed,
	}
	s, st := newTestSettler(t, l1, nil)

	wtx := st.Begin()
	wtx.SetLastFinalizeTxHash(gwtypes.Keccak256Hash([]byte("in-flight")))
	require.NoError(t, wtx.Commit())

	err := s.TryFinalize(context.Background())
	require.ErrorIs(t, err, ErrFinalizeTxPending)
}

func TestSettlerTryFinalizeClearsResolvedTxThenProceeds(t *testing.T) {
	blocks := smt.NewBlockSMT(smt.NewCachedNodeStore(1 << 16))
	block := gwtypes.RawL2Block{Info: gwtypes.BlockInfo{Number: 1}}
	blocks.InsertBlock(1, block.Hash())

	rollupState := gwtypes.GlobalState{
		Version: 2, Status: gwtypes.StatusRunning,
		Block:                    gwtypes.BlockMerkleState{MerkleRoot: blocks.Root(2).MerkleRoot, Count: 2},
		LastFinalizedBlockNumber: gwtypes.NewBlockTimepoint(1),
		LastFinalizedWithdrawal:  gwtypes.LastFinalizedWithdrawal{BlockNumber: 0, WithdrawalIndex: gwtypes.AllWithdrawals},
	}
	owner := gwtypes.Script{Args: []byte("owner-1")}
	l1 := &stubL1{
		rollupCell: rollupCellWithState(rollupState),
		txStatus:   l1client.TxStatusCommitted,
		cellsByLock: map[string]l1client.Cell{
			"owner-1": {OutPoint: l1client.OutPoint{TxHash: gwtypes.Keccak256Hash([]byte("wd-cell")), Index: 0}},
		},
	}
	s, st := newTestSettler(t, l1, blocks)

	wtx := st.Begin()
	wtx.SetLastFinalizeTxHash(gwtypes.Keccak256Hash([]byte("already-committed")))
	wtx.InsertBlock(block, gwtypes.GlobalState{Block: gwtypes.BlockMerkleState{Count: 2}})
	wtx.StoreBlockWithdrawals(1, []gwtypes.WithdrawalRequestExtra{{Raw: gwtypes.RawWithdrawalRequest{Capacity: 500}, OwnerLock: owner}})
	require.NoError(t, wtx.Commit())

	err := s.TryFinalize(context.Background())
	require.NoError(t, err)
	require.Len(t, l1.sent, 1)

	readTx := st.Begin()
	defer readTx.Rollback()
	hash, hasLast := readTx.GetLastFinalizeTxHash()
	require.True(t, hasLast)
	require.Equal(t, l1.sent[0], hash)
}

func TestIsTransientResolveError(t *testing.T) {
	require.True(t, isTransientResolveError(errors.New("json-rpc error: TransactionFailedToResolve")))
	require.False(t, isTransientResolveError(errors.New("some other failure")))
	require.False(t, isTransientResolveError(nil))
}
