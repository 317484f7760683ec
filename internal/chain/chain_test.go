package chain

import (
	"context"
	"log/slog"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/gwnode/gwnode/internal/generator"
	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/l1client"
	"github.com/gwnode/gwnode/internal/smt"
	"github.com/gwnode/gwnode/internal/store"
	"github.com/gwnode/gwnode/internal/vm"
	"github.com/gwnode/gwnode/pkg/log"
)

type nopBackend struct{}

func (nopBackend) BackendType(h gwtypes.H256) (vm.BackendType, bool) { return vm.BackendMeta, true }

func newTestSynchroniser(t *testing.T) (*Synchroniser, *store.Store, *smt.AccountSMT) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	acc := smt.NewAccountSMT(smt.NewCachedNodeStore(1 << 20))
	blocks := smt.NewBlockSMT(smt.NewCachedNodeStore(1 << 20))
	reverted := smt.NewRevertedBlockSMT(smt.NewCachedNodeStore(1 << 20))
	cfg := generator.Config{VM: vm.NewMockVM(), Backend: nopBackend{}, FeeRate: uint256.NewInt(1), MaxCycles: 1000}
	s := New(st, acc, blocks, reverted, nil, cfg, log.NewStderr(slog.LevelInfo))
	return s, st, acc
}

func TestClassifyEvent(t *testing.T) {
	require.Equal(t, ActionUpdate, ClassifyEvent(EventSubmitBlock))
	require.Equal(t, ActionUpdate, ClassifyEvent(EventChallenge))
	require.Equal(t, ActionUpdate, ClassifyEvent(EventCancelChallenge))
	require.Equal(t, ActionRevert, ClassifyEvent(EventRevert))
}

func TestHandleSubmitBlockGenesis(t *testing.T) {
	s, st, acc := newTestSynchroniser(t)

	block := &gwtypes.RawL2Block{
		Info:        gwtypes.BlockInfo{Number: 0, Timestamp: 1},
		PostAccount: acc.Root(0),
	}
	err := s.HandleEvent(context.Background(), Event{Kind: EventSubmitBlock, Block: block})
	require.NoError(t, err)

	tx := st.Begin()
	defer tx.Rollback()
	tip, ok := tx.GetTipGlobalState()
	require.True(t, ok)
	require.Equal(t, uint64(1), tip.Block.Count)
}

func TestHandleSubmitBlockDiscontinuous(t *testing.T) {
	s, _, acc := newTestSynchroniser(t)

	genesis := &gwtypes.RawL2Block{Info: gwtypes.BlockInfo{Number: 0}, PostAccount: acc.Root(0)}
	require.NoError(t, s.HandleEvent(context.Background(), Event{Kind: EventSubmitBlock, Block: genesis}))

	badNext := &gwtypes.RawL2Block{
		Info:   gwtypes.BlockInfo{Number: 1},
		Parent: gwtypes.Keccak256Hash([]byte("not-genesis")),
	}
	err := s.HandleEvent(context.Background(), Event{Kind: EventSubmitBlock, Block: badNext})
	require.Error(t, err)
}

var _ l1client.Client = nil
