package blockproducer

import (
	"context"
	"log/slog"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/gwnode/gwnode/internal/config"
	"github.com/gwnode/gwnode/internal/generator"
	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/l1client"
	"github.com/gwnode/gwnode/internal/mempool"
	"github.com/gwnode/gwnode/internal/smt"
	"github.com/gwnode/gwnode/internal/store"
	"github.com/gwnode/gwnode/internal/vm"
	"github.com/gwnode/gwnode/pkg/log"
)

type nopBackend struct{}

func (nopBackend) BackendType(h gwtypes.H256) (vm.BackendType, bool) { return vm.BackendMeta, true }

type stubVerifier struct{ ok bool }

func (s stubVerifier) VerifySignature(lockArgs []byte, digest gwtypes.H256, signature []byte) (bool, error) {
	return s.ok, nil
}

type stubSigner struct{ lock gwtypes.Script }

func (s stubSigner) Lock() gwtypes.Script               { return s.lock }
func (s stubSigner) Sign(d gwtypes.H256) ([]byte, error) { return []byte("sig"), nil }

type stubL1 struct {
	rollupCell l1client.Cell
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
	return 1000, nil
}
func (s *stubL1) SendTransaction(ctx context.Context, tx l1client.Transaction) (gwtypes.H256, error) {
	return gwtypes.Keccak256Hash([]byte("sent")), nil
}
func (s *stubL1) GetTransactionStatus(ctx context.Context, hash gwtypes.H256) (l1client.TxStatus, error) {
	return l1client.TxStatusCommitted, nil
}
func (s *stubL1) GetCells(ctx context.Context, key l1client.SearchKey, order l1client.SortOrder, limit uint32, cursor string) (l1client.CellPage, error) {
	return l1client.CellPage{Cells: []l1client.Cell{s.rollupCell}}, nil
}

func newTestProducer(t *testing.T) (*Producer, *store.Store, *smt.AccountSMT) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	acc := smt.NewAccountSMT(smt.NewCachedNodeStore(1 << 20))
	genesisRoot := acc.Root(0)
	tx := st.Begin()
	tx.SetTipGlobalState(gwtypes.GlobalState{Account: genesisRoot, Block: gwtypes.BlockMerkleState{Count: 0}})
	require.NoError(t, tx.Commit())

	pool := mempool.New(acc, generator.Config{VM: vm.NewMockVM(), Backend: nopBackend{}, Verifier: stubVerifier{ok: true}, FeeRate: uint256.NewInt(1), MaxCycles: 1000}, 100, 1_000_000, log.NewStderr(slog.LevelError))

	l1 := &stubL1{rollupCell: l1client.Cell{OutPoint: l1client.OutPoint{TxHash: gwtypes.Keccak256Hash([]byte("rollup")), Index: 0}}}
	signer := stubSigner{}

	gen := generator.Config{VM: vm.NewMockVM(), Backend: nopBackend{}, Verifier: stubVerifier{ok: true}, FeeRate: uint256.NewInt(1), MaxCycles: 1000}
	cfg := config.BlockProducerConfig{}
	mpCfg := config.MemPoolConfig{FeePriorityBatchSize: 20}
	rollup := config.RollupConfig{RollupTypeHash: gwtypes.Keccak256Hash([]byte("rollup-type")).Hex()}

	p := New(st, acc, pool, l1, signer, gen, cfg, mpCfg, rollup, nil, log.NewStderr(slog.LevelError))
	return p, st, acc
}

func TestProduceAndSubmitEmptyBlock(t *testing.T) {
	p, _, _ := newTestProducer(t)
	hash, err := p.ProduceAndSubmit(context.Background(), 0)
	require.NoError(t, err)
	require.False(t, hash.IsZero())
}

func TestCheckTurnNoPoAConfigured(t *testing.T) {
	p, _, _ := newTestProducer(t)
	turn, err := p.checkTurn(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, turn)
}
