package generator

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/smt"
	"github.com/gwnode/gwnode/internal/vm"
)

type stubBackend struct {
	scriptHash gwtypes.H256
	backend    vm.BackendType
}

func (s stubBackend) BackendType(h gwtypes.H256) (vm.BackendType, bool) {
	if h == s.scriptHash {
		return s.backend, true
	}
	return 0, false
}

// stubVerifier reports its ok field for VerifySignature, standing in for
// internal/wallet.AccountLockVerifier in tests that aren't exercising
// signature verification itself.
type stubVerifier struct{ ok bool }

func (s stubVerifier) VerifySignature(lockArgs []byte, digest gwtypes.H256, signature []byte) (bool, error) {
	return s.ok, nil
}

func newTestAccount(t *testing.T) (*smt.AccountSMT, gwtypes.AccountID, gwtypes.AccountID) {
	t.Helper()
	acc := smt.NewAccountSMT(smt.NewCachedNodeStore(1 << 20))
	payerScript := gwtypes.Script{CodeHash: gwtypes.Keccak256Hash([]byte("payer")), Args: []byte{1}}
	contractScript := gwtypes.Script{CodeHash: gwtypes.Keccak256Hash([]byte("contract")), Args: []byte{2}}

	payerID := gwtypes.AccountID(0)
	contractID := gwtypes.AccountID(1)
	acc.SetScriptHash(payerID, payerScript)
	acc.SetScriptHash(contractID, contractScript)
	acc.SetBalance(payerID, gwtypes.CKBSUDTScriptHash, uint256.NewInt(10000))
	return acc, payerID, contractID
}

func TestProduceAndVerifyBlockRoundTrip(t *testing.T) {
	acc, payerID, contractID := newTestAccount(t)
	contractHash, _ := acc.ScriptHash(contractID)

	mvm := vm.NewMockVM()
	mvm.Register(contractHash, 10, func(ctx context.Context, tx gwtypes.RawL2Transaction, view vm.AccountView) (vm.RunResult, error) {
		return vm.RunResult{Cycles: 5, ExitCode: 0}, nil
	})

	cfg := Config{VM: mvm, Backend: stubBackend{scriptHash: contractHash, backend: vm.BackendMeta}, Verifier: stubVerifier{ok: true}, FeeRate: uint256.NewInt(1), MaxCycles: 1000}

	tx := gwtypes.L2Transaction{Raw: gwtypes.RawL2Transaction{FromID: uint32(payerID), ToID: uint32(contractID), Nonce: 0}}

	block, result := ProduceBlock(context.Background(), acc, cfg, gwtypes.BlockInfo{Number: 1}, gwtypes.H256{}, nil, nil,
		[]gwtypes.L2Transaction{tx}, 2, gwtypes.H256{}, gwtypes.H256{}, gwtypes.StateCheckpoint{})
	require.Equal(t, OutcomeSuccess, result.Outcome)
	require.Len(t, block.StateCheckpointList, 1)

	verifyAcc := smt.NewAccountSMT(smt.NewCachedNodeStore(1 << 20))
	verifyAcc.SetScriptHash(payerID, gwtypes.Script{CodeHash: gwtypes.Keccak256Hash([]byte("payer")), Args: []byte{1}})
	verifyAcc.SetScriptHash(contractID, gwtypes.Script{CodeHash: gwtypes.Keccak256Hash([]byte("contract")), Args: []byte{2}})
	verifyAcc.SetBalance(payerID, gwtypes.CKBSUDTScriptHash, uint256.NewInt(10000))

	verifyResult := VerifyAndApplyBlock(context.Background(), verifyAcc, cfg, block, nil, nil, []gwtypes.L2Transaction{tx}, 2)
	require.Equal(t, OutcomeSuccess, verifyResult.Outcome)
	require.Equal(t, result.PostAccount, verifyResult.PostAccount)
}

func TestVerifyBlockNonceMismatchIsChallenge(t *testing.T) {
	acc, payerID, contractID := newTestAccount(t)
	contractHash, _ := acc.ScriptHash(contractID)
	mvm := vm.NewMockVM()
	cfg := Config{VM: mvm, Backend: stubBackend{scriptHash: contractHash, backend: vm.BackendMeta}, Verifier: stubVerifier{ok: true}, FeeRate: uint256.NewInt(1), MaxCycles: 1000}

	tx := gwtypes.L2Transaction{Raw: gwtypes.RawL2Transaction{FromID: uint32(payerID), ToID: uint32(contractID), Nonce: 5}}
	block := gwtypes.RawL2Block{
		SubmitTransactions: gwtypes.SubmitTransactions{Count: 1},
		StateCheckpointList: []gwtypes.StateCheckpoint{{}},
	}

	result := VerifyAndApplyBlock(context.Background(), acc, cfg, block, nil, nil, []gwtypes.L2Transaction{tx}, 2)
	require.Equal(t, OutcomeChallenge, result.Outcome)
	require.ErrorIs(t, result.Err, ErrNonceMismatch)
}

func TestApplyWithdrawalPhaseInsufficientBalance(t *testing.T) {
	acc, payerID, _ := newTestAccount(t)
	payerHash, _ := acc.ScriptHash(payerID)

	w := gwtypes.WithdrawalRequestExtra{Raw: gwtypes.RawWithdrawalRequest{AccountScriptHash: payerHash, Capacity: 999999}}
	var checkpoints []gwtypes.StateCheckpoint
	cfg := Config{Verifier: stubVerifier{ok: true}}
	_, err := applyWithdrawalPhase(acc, cfg, []gwtypes.WithdrawalRequestExtra{w}, 2, &checkpoints)
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestApplyWithdrawalPhaseBadSignatureIsChallenge(t *testing.T) {
	acc, payerID, _ := newTestAccount(t)
	payerHash, _ := acc.ScriptHash(payerID)

	w := gwtypes.WithdrawalRequestExtra{Raw: gwtypes.RawWithdrawalRequest{AccountScriptHash: payerHash, Capacity: 1}}
	var checkpoints []gwtypes.StateCheckpoint
	cfg := Config{Verifier: stubVerifier{ok: false}}
	_, err := applyWithdrawalPhase(acc, cfg, []gwtypes.WithdrawalRequestExtra{w}, 2, &checkpoints)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyBlockBadWithdrawalSignatureIsChallenge(t *testing.T) {
	acc, payerID, contractID := newTestAccount(t)
	contractHash, _ := acc.ScriptHash(contractID)
	payerHash, _ := acc.ScriptHash(payerID)
	mvm := vm.NewMockVM()
	cfg := Config{VM: mvm, Backend: stubBackend{scriptHash: contractHash, backend: vm.BackendMeta}, Verifier: stubVerifier{ok: false}, FeeRate: uint256.NewInt(1), MaxCycles: 1000}

	w := gwtypes.WithdrawalRequestExtra{Raw: gwtypes.RawWithdrawalRequest{AccountScriptHash: payerHash, Capacity: 1}}
	block := gwtypes.RawL2Block{
		SubmitWithdrawals:   gwtypes.SubmitWithdrawals{Count: 1},
		StateCheckpointList: []gwtypes.StateCheckpoint{{}},
	}

	result := VerifyAndApplyBlock(context.Background(), acc, cfg, block, []gwtypes.WithdrawalRequestExtra{w}, nil, nil, 2)
	require.Equal(t, OutcomeChallenge, result.Outcome)
	require.ErrorIs(t, result.Err, ErrInvalidSignature)
	require.Equal(t, gwtypes.ChallengeTargetWithdrawal, result.Target.TargetType)
	require.Equal(t, uint32(0), result.Target.TargetIndex)
	require.Equal(t, block.Hash(), result.Target.BlockHash)
}

func TestVerifyBlockPostStateMismatchIsError(t *testing.T) {
	acc, payerID, contractID := newTestAccount(t)
	contractHash, _ := acc.ScriptHash(contractID)
	mvm := vm.NewMockVM()
	cfg := Config{VM: mvm, Backend: stubBackend{scriptHash: contractHash, backend: vm.BackendMeta}, Verifier: stubVerifier{ok: true}, FeeRate: uint256.NewInt(1), MaxCycles: 1000}
	_ = payerID

	block := gwtypes.RawL2Block{PostAccount: gwtypes.AccountMerkleState{Count: 999}}
	result := VerifyAndApplyBlock(context.Background(), acc, cfg, block, nil, nil, nil, 2)
	require.Equal(t, OutcomeError, result.Outcome)
	require.ErrorIs(t, result.Err, ErrPostStateMismatch)
}

func TestApplyDepositPhaseCreatesAccount(t *testing.T) {
	acc := smt.NewAccountSMT(smt.NewCachedNodeStore(1 << 20))
	count := uint32(0)
	var checkpoints []gwtypes.StateCheckpoint

	d := gwtypes.DepositRequest{
		Script:   gwtypes.Script{CodeHash: gwtypes.Keccak256Hash([]byte("new-account")), Args: []byte{9}},
		Capacity: 500,
	}
	_, err := applyDepositPhase(acc, []gwtypes.DepositRequest{d}, &count, &checkpoints)
	require.NoError(t, err)
	require.Equal(t, uint32(1), count)
	require.Len(t, checkpoints, 1)

	id, ok := acc.AccountIDByScriptHash(d.Script.Hash())
	require.True(t, ok)
	require.Equal(t, uint256.NewInt(500), acc.Balance(id, gwtypes.CKBSUDTScriptHash))
}
