package mempool

import (
	"context"
	"log/slog"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/gwnode/gwnode/internal/generator"
	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/smt"
	"github.com/gwnode/gwnode/internal/vm"
	"github.com/gwnode/gwnode/pkg/log"
)

type nopBackend struct{}

func (nopBackend) BackendType(h gwtypes.H256) (vm.BackendType, bool) { return vm.BackendMeta, true }

type stubVerifier struct{ ok bool }

func (s stubVerifier) VerifySignature(lockArgs []byte, digest gwtypes.H256, signature []byte) (bool, error) {
	return s.ok, nil
}

func newTestPool(t *testing.T, maxPending int) (*Pool, *smt.AccountSMT) {
	t.Helper()
	acc := smt.NewAccountSMT(smt.NewCachedNodeStore(1 << 20))
	fromScript := gwtypes.Script{CodeHash: gwtypes.Keccak256Hash([]byte("from")), HashType: gwtypes.HashTypeType, Args: []byte{1}}
	toScript := gwtypes.Script{CodeHash: gwtypes.Keccak256Hash([]byte("to")), HashType: gwtypes.HashTypeType, Args: []byte{2}}
	acc.SetScriptHash(0, fromScript)
	acc.SetScriptHash(1, toScript)
	acc.SetBalance(0, gwtypes.CKBSUDTScriptHash, uint256.NewInt(1_000_000))
	acc.ClearTouched()

	mockVM := vm.NewMockVM()
	mockVM.Register(toScript.Hash(), 10, func(ctx context.Context, tx gwtypes.RawL2Transaction, view vm.AccountView) (vm.RunResult, error) {
		return vm.RunResult{Cycles: 5}, nil
	})
	cfg := generator.Config{VM: mockVM, Backend: nopBackend{}, Verifier: stubVerifier{ok: true}, FeeRate: uint256.NewInt(1), MaxCycles: 10_000}
	pool := New(acc, cfg, maxPending, 1_000_000, log.NewStderr(slog.LevelError))
	return pool, acc
}

func newTx(nonce uint32) gwtypes.L2Transaction {
	return gwtypes.L2Transaction{Raw: gwtypes.RawL2Transaction{FromID: 0, ToID: 1, Nonce: nonce}}
}

func TestAdmitAndSize(t *testing.T) {
	pool, _ := newTestPool(t, 10)
	require.NoError(t, pool.Admit(context.Background(), newTx(0)))
	require.Equal(t, 1, pool.Size())
}

func TestAdmitRejectsDuplicate(t *testing.T) {
	pool, _ := newTestPool(t, 10)
	tx := newTx(0)
	require.NoError(t, pool.Admit(context.Background(), tx))
	require.ErrorIs(t, pool.Admit(context.Background(), tx), ErrDuplicateTx)
}

func TestAdmitRejectsOversizedArgs(t *testing.T) {
	pool, _ := newTestPool(t, 10)
	tx := newTx(0)
	tx.Raw.Args = make([]byte, MaxTxArgsBytes+1)
	require.ErrorIs(t, pool.Admit(context.Background(), tx), ErrTxTooLarge)
}

func TestAdmitRejectsPoolFull(t *testing.T) {
	pool, acc := newTestPool(t, 1)
	require.NoError(t, pool.Admit(context.Background(), newTx(0)))
	acc.SetNonce(0, 1)
	require.ErrorIs(t, pool.Admit(context.Background(), newTx(1)), ErrPoolFull)
}

func TestAdmitRollsBackOnFailure(t *testing.T) {
	pool, acc := newTestPool(t, 10)
	before := acc.Root(2)
	err := pool.Admit(context.Background(), newTx(7)) // wrong nonce
	require.ErrorIs(t, err, generator.ErrNonceMismatch)
	require.Equal(t, before, acc.Root(2))
	require.Equal(t, 0, pool.Size())
}

func TestOutputMemBlockIncludesAdmittedTx(t *testing.T) {
	pool, _ := newTestPool(t, 10)
	require.NoError(t, pool.Admit(context.Background(), newTx(0)))
	_, block := pool.OutputMemBlock(context.Background(), 0)
	require.Len(t, block.Txs, 1)
}

func TestRemoveRollsBackWrites(t *testing.T) {
	pool, acc := newTestPool(t, 10)
	before := acc.Root(2)
	require.NoError(t, pool.Admit(context.Background(), newTx(0)))
	tx := newTx(0)
	pool.Remove(tx.Hash())
	require.Equal(t, before, acc.Root(2))
	require.Equal(t, 0, pool.Size())
}
