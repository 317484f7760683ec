// Package generator implements block production and verification: the
// withdrawal -> deposit -> transaction state-transition pipeline that
// both ProduceBlock (building a new block from the mem-pool) and
// VerifyAndApplyBlock (replaying a submitted block) run, so producer
// and verifier can never disagree about what a block means.
package generator

import (
	"context"
	"errors"

	"github.com/holiman/uint256"

	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/smt"
	"github.com/gwnode/gwnode/internal/vm"
)

var (
	// ErrUnknownAccount is a Challenge-class failure: a withdrawal or
	// transaction referenced an account script hash or id the tree
	// has no record of.
	ErrUnknownAccount = errors.New("generator: unknown account")
	// ErrInsufficientBalance is a Challenge-class failure: a
	// withdrawal requested more capacity or SUDT amount than the
	// account holds.
	ErrInsufficientBalance = errors.New("generator: insufficient balance")
	// ErrNonceMismatch is a Challenge-class failure: a transaction's
	// nonce does not equal the sender's current nonce.
	ErrNonceMismatch = errors.New("generator: transaction nonce mismatch")
	// ErrCKBSUDTDeposit is a Challenge-class failure: a deposit named
	// the native-capacity SUDT script hash with a non-zero amount.
	ErrCKBSUDTDeposit = errors.New("generator: deposit must not carry an amount for the native asset")
	// ErrPostStateMismatch is an Error-class failure: the block's
	// claimed post-state does not match what replay actually produced.
	ErrPostStateMismatch = errors.New("generator: claimed post account state does not match replay")
	// ErrInvalidSignature is a Challenge-class failure: a withdrawal or
	// transaction's signature does not recover to the sender account's
	// lock.
	ErrInvalidSignature = errors.New("generator: invalid account lock signature")
)

// Backend resolves which vm.BackendType a given script hash maps to,
// the binding the chain's rollup_config fixes at
// genesis (meta/SUDT/registry contracts plus any registered backends
// such as Polyjuice).
type Backend interface {
	BackendType(scriptHash gwtypes.H256) (vm.BackendType, bool)
}

// AccountLockVerifier checks a withdrawal or transaction's signature
// against the lock args (a pubkey hash) bound to the sender account's
// script, the check every withdrawal and transaction must pass before
// anything else about it is trusted.
type AccountLockVerifier interface {
	VerifySignature(lockArgs []byte, digest gwtypes.H256, signature []byte) (bool, error)
}

// Config bundles the pieces VerifyAndApplyBlock and ProduceBlock both
// need beyond the account tree itself.
type Config struct {
	VM       vm.VM
	Backend  Backend
	Verifier AccountLockVerifier
	FeeRate  *uint256.Int
	MaxCycles uint64
}

// Outcome classifies how a block's verification concluded, mirroring
// the spec's three-way split between accepted blocks, blocks whose
// producer can be challenged, and transient/infra errors that say
// nothing about block validity.
type Outcome int

const (
	// OutcomeSuccess: the block replayed cleanly and its claimed
	// post-state matches.
	OutcomeSuccess Outcome = iota
	// OutcomeChallenge: replay hit a Challenge-class error — a
	// deterministic, provable fault in the block's content (bad
	// nonce, insufficient balance, unknown account). The block is
	// rejected and its producer is challengeable on L1.
	OutcomeChallenge
	// OutcomeError: replay hit something that is not a challengeable
	// fault: a failure that says nothing about block validity (VM
	// backend unavailable, store I/O failure), or a replayed
	// post-state or checkpoint list that disagrees with the block's
	// claim (ErrPostStateMismatch). The caller does not challenge.
	OutcomeError
)

// Result is VerifyAndApplyBlock's/ProduceBlock's outcome, carrying the
// specific error for the Challenge/Error cases and the resulting
// checkpoint list for Success.
type Result struct {
	Outcome          Outcome
	Err              error
	StateCheckpoints []gwtypes.StateCheckpoint
	PostAccount      gwtypes.AccountMerkleState
	// Target pins the exact withdrawal/transaction that failed replay.
	// Only meaningful when Outcome == OutcomeChallenge; the caller
	// fills in Target.BlockHash since phase code only knows the index.
	Target gwtypes.ChallengeTarget
}

func challengeResult(err error) Result { return Result{Outcome: OutcomeChallenge, Err: err} }
func errorResult(err error) Result     { return Result{Outcome: OutcomeError, Err: err} }

// classify maps an internal failure to a Challenge or Error outcome:
// anything listed above as a Challenge-class sentinel is provable
// misbehavior, everything else is assumed transient. idx/targetType
// pin the failing step so a Challenge-class Result carries a usable
// ChallengeTarget.
func classify(err error, idx uint32, targetType gwtypes.ChallengeTargetType) Result {
	switch {
	case errors.Is(err, ErrUnknownAccount),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrNonceMismatch),
		errors.Is(err, ErrCKBSUDTDeposit),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, vm.ErrCyclesExceeded),
		errors.Is(err, vm.ErrWriteDataTooLarge),
		errors.Is(err, vm.ErrReadDataTooLarge):
		r := challengeResult(err)
		r.Target = gwtypes.ChallengeTarget{TargetIndex: idx, TargetType: targetType}
		return r
	default:
		return errorResult(err)
	}
}

// applyWithdrawalPhase debits each withdrawal's account in order,
// appending a state checkpoint after every one. On failure it returns
// the index of the withdrawal that failed, for ChallengeTarget.
func applyWithdrawalPhase(acc *smt.AccountSMT, cfg Config, withdrawals []gwtypes.WithdrawalRequestExtra, accountCount uint32, checkpoints *[]gwtypes.StateCheckpoint) (uint32, error) {
	for i, w := range withdrawals {
		if _, err := ApplyWithdrawal(acc, cfg, w); err != nil {
			return uint32(i), err
		}
		*checkpoints = append(*checkpoints, smt.ComputeStateCheckpointFromTree(acc, accountCount))
	}
	return 0, nil
}

// ApplyWithdrawal verifies and applies a single withdrawal against
// acc: the sender's lock signature first, then the balance debit. It
// is the unit applyWithdrawalPhase loops over, exported so
// internal/mempool can speculatively apply one withdrawal request at
// a time the same way it does for transactions via ApplyTransaction.
func ApplyWithdrawal(acc *smt.AccountSMT, cfg Config, w gwtypes.WithdrawalRequestExtra) (gwtypes.AccountID, error) {
	scriptHash := w.Raw.AccountScriptHash
	id, ok := acc.AccountIDByScriptHash(scriptHash)
	if !ok {
		return 0, ErrUnknownAccount
	}
	script, _ := acc.Script(scriptHash)
	if err := verifyAccountLock(cfg, script.Args, w.Raw.Hash(), w.Signature); err != nil {
		return 0, err
	}
	if err := debitWithdrawal(acc, id, w); err != nil {
		return 0, err
	}
	return id, nil
}

// verifyAccountLock checks signature against lockArgs via cfg.Verifier,
// the account-lock authorization every withdrawal and transaction must
// pass before anything else about it is trusted.
func verifyAccountLock(cfg Config, lockArgs []byte, digest gwtypes.H256, signature []byte) error {
	ok, err := cfg.Verifier.VerifySignature(lockArgs, digest, signature)
	if err != nil || !ok {
		return ErrInvalidSignature
	}
	return nil
}

func debitWithdrawal(acc *smt.AccountSMT, id gwtypes.AccountID, w gwtypes.WithdrawalRequestExtra) error {
	capBal := acc.Balance(id, gwtypes.CKBSUDTScriptHash)
	need := new(uint256.Int).SetUint64(w.Raw.Capacity)
	if capBal.Cmp(need) < 0 {
		return ErrInsufficientBalance
	}
	acc.SetBalance(id, gwtypes.CKBSUDTScriptHash, new(uint256.Int).Sub(capBal, need))

	if w.Raw.SUDTScriptHash != gwtypes.CKBSUDTScriptHash {
		var amount uint256.Int
		amount.SetBytes(w.Raw.Amount[:])
		sudtBal := acc.Balance(id, w.Raw.SUDTScriptHash)
		if sudtBal.Cmp(&amount) < 0 {
			return ErrInsufficientBalance
		}
		acc.SetBalance(id, w.Raw.SUDTScriptHash, new(uint256.Int).Sub(sudtBal, &amount))
	}
	acc.SetNonce(id, w.Raw.Nonce+1)
	return nil
}

// applyDepositPhase credits each deposit, creating a new account if
// the deposit's script hash has never been seen. On failure it returns
// the index of the deposit that failed; the spec's ChallengeTarget has
// no dedicated deposit variant (deposits carry no signature to
// dispute), so callers fold this into the withdrawal target type with
// that caveat.
func applyDepositPhase(acc *smt.AccountSMT, deposits []gwtypes.DepositRequest, accountCount *uint32, checkpoints *[]gwtypes.StateCheckpoint) (uint32, error) {
	for i, d := range deposits {
		if err := ApplyDeposit(acc, d, accountCount); err != nil {
			return uint32(i), err
		}
		*checkpoints = append(*checkpoints, smt.ComputeStateCheckpointFromTree(acc, *accountCount))
	}
	return 0, nil
}

// ApplyDeposit credits a single deposit against acc, creating a new
// account and advancing accountCount if the deposit's script hash has
// never been seen. It is the unit applyDepositPhase loops over,
// exported so internal/mempool can preview the effect of pending
// deposits one at a time the same way it already does for withdrawals
// and transactions.
func ApplyDeposit(acc *smt.AccountSMT, d gwtypes.DepositRequest, accountCount *uint32) error {
	if d.SUDTScriptHash == gwtypes.CKBSUDTScriptHash {
		var zero [32]byte
		if d.Amount != zero {
			return ErrCKBSUDTDeposit
		}
	}
	scriptHash := d.Script.Hash()
	id, ok := accountIDByScriptHash(acc, *accountCount, scriptHash)
	if !ok {
		id = gwtypes.AccountID(*accountCount)
		acc.SetScriptHash(id, d.Script)
		*accountCount++
	}
	capBal := acc.Balance(id, gwtypes.CKBSUDTScriptHash)
	acc.SetBalance(id, gwtypes.CKBSUDTScriptHash, new(uint256.Int).Add(capBal, new(uint256.Int).SetUint64(d.Capacity)))
	if !d.IsCKBOnly() {
		var amount uint256.Int
		amount.SetBytes(d.Amount[:])
		sudtBal := acc.Balance(id, d.SUDTScriptHash)
		acc.SetBalance(id, d.SUDTScriptHash, new(uint256.Int).Add(sudtBal, &amount))
	}
	return nil
}

// applyTransactionPhase runs each transaction through the VM backend
// resolved for its recipient, applying writes and debiting the fee.
// On failure it returns the index of the transaction that failed, for
// ChallengeTarget.
func applyTransactionPhase(ctx context.Context, acc *smt.AccountSMT, cfg Config, txs []gwtypes.L2Transaction, accountCount uint32, checkpoints *[]gwtypes.StateCheckpoint) (uint32, error) {
	for i, tx := range txs {
		if _, err := ApplyTransaction(ctx, acc, cfg, tx); err != nil {
			return uint32(i), err
		}
		*checkpoints = append(*checkpoints, smt.ComputeStateCheckpointFromTree(acc, accountCount))
	}
	return 0, nil
}

// ApplyTransaction runs a single transaction against acc: resolves the
// recipient's backend, runs it through the VM, applies its writes, and
// debits the sender's fee. It is the unit applyTransactionPhase loops
// over, exported so internal/mempool can speculatively try one
// transaction at a time without assembling a whole block around it.
func ApplyTransaction(ctx context.Context, acc *smt.AccountSMT, cfg Config, tx gwtypes.L2Transaction) (vm.RunResult, error) {
	fromID := gwtypes.AccountID(tx.Raw.FromID)
	fromScriptHash, ok := acc.ScriptHash(fromID)
	if !ok {
		return vm.RunResult{}, ErrUnknownAccount
	}
	fromScript, _ := acc.Script(fromScriptHash)
	if err := verifyAccountLock(cfg, fromScript.Args, tx.Raw.Hash(), tx.Signature); err != nil {
		return vm.RunResult{}, err
	}
	if acc.Nonce(fromID) != tx.Raw.Nonce {
		return vm.RunResult{}, ErrNonceMismatch
	}
	toScriptHash, ok := acc.ScriptHash(gwtypes.AccountID(tx.Raw.ToID))
	if !ok {
		return vm.RunResult{}, ErrUnknownAccount
	}
	backendType, ok := cfg.Backend.BackendType(toScriptHash)
	if !ok {
		return vm.RunResult{}, ErrUnknownAccount
	}
	program, err := cfg.VM.LoadProgram(ctx, toScriptHash, acc)
	if err != nil {
		return vm.RunResult{}, err
	}
	result, err := cfg.VM.Run(ctx, program, tx.Raw, acc, cfg.MaxCycles)
	if err != nil {
		return vm.RunResult{}, err
	}
	for _, w := range result.Writes {
		acc.Apply(w.Key, w.Value)
	}
	fee := vm.ComputeFee(backendType, result, cfg.FeeRate)
	bal := acc.Balance(fromID, gwtypes.CKBSUDTScriptHash)
	if bal.Cmp(fee) < 0 {
		return vm.RunResult{}, ErrInsufficientBalance
	}
	acc.SetBalance(fromID, gwtypes.CKBSUDTScriptHash, new(uint256.Int).Sub(bal, fee))
	acc.SetNonce(fromID, tx.Raw.Nonce+1)
	return result, nil
}

func accountIDByScriptHash(acc *smt.AccountSMT, _ uint32, scriptHash gwtypes.H256) (gwtypes.AccountID, bool) {
	return acc.AccountIDByScriptHash(scriptHash)
}

// ApplyCommittedPhases runs the withdrawal and deposit phases alone,
// against already-committed withdrawals/deposits, returning the
// resulting account count. It is what internal/mempool calls to
// advance its speculative baseline to a new chain tip without
// re-deriving the withdrawal/deposit logic itself.
func ApplyCommittedPhases(acc *smt.AccountSMT, cfg Config, withdrawals []gwtypes.WithdrawalRequestExtra, deposits []gwtypes.DepositRequest, accountCount uint32) (uint32, error) {
	var checkpoints []gwtypes.StateCheckpoint
	if _, err := applyWithdrawalPhase(acc, cfg, withdrawals, accountCount, &checkpoints); err != nil {
		return accountCount, err
	}
	if _, err := applyDepositPhase(acc, deposits, &accountCount, &checkpoints); err != nil {
		return accountCount, err
	}
	return accountCount, nil
}
