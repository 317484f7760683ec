// Package mempool implements the speculative transaction pool: a
// fee-ordered holding area where each admitted transaction has already
// been replayed once, speculatively, against the live account tree, so
// whatever the pool emits as a mem-block has a high chance of
// surviving the generator's real VerifyAndApplyBlock pass unchanged.
package mempool

import (
	"context"
	"errors"
	"sync"

	"github.com/holiman/uint256"

	"github.com/gwnode/gwnode/internal/generator"
	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/smt"
	"github.com/gwnode/gwnode/internal/vm"
	"github.com/gwnode/gwnode/pkg/log"
)

// MaxTxArgsBytes bounds a single transaction's args payload, rejecting
// oversized calls before they ever reach the VM.
const MaxTxArgsBytes = 24 * 1024

var (
	// ErrTxTooLarge is returned when a transaction's args exceed
	// MaxTxArgsBytes.
	ErrTxTooLarge = errors.New("mempool: transaction payload too large")
	// ErrDuplicateTx is returned for a transaction hash already pending.
	ErrDuplicateTx = errors.New("mempool: transaction already pending")
	// ErrPoolFull is returned when the pool is at MaxPendingTxs.
	ErrPoolFull = errors.New("mempool: pool at capacity")
	// ErrDuplicateWithdrawal is returned for a withdrawal request hash
	// already pending.
	ErrDuplicateWithdrawal = errors.New("mempool: withdrawal already pending")
	// ErrInsufficientCustodian is returned by PushWithdrawal when the
	// requested capacity or SUDT amount exceeds the pool's current view
	// of remaining finalised custodian balance for that asset.
	ErrInsufficientCustodian = errors.New("mempool: requested amount exceeds remaining finalised custodian")
)

// pendingEntry is one admitted transaction plus the bookkeeping needed
// to undo its speculative application and to order it for packaging.
type pendingEntry struct {
	tx          gwtypes.L2Transaction
	fee         uint64
	touchedKeys []gwtypes.H256
	priorValues []gwtypes.H256
	cycles      uint64
	checkpoint  gwtypes.StateCheckpoint
	seq         uint64
}

// pendingWithdrawal is one admitted withdrawal request plus the
// bookkeeping needed to undo its speculative application, mirroring
// pendingEntry for transactions.
type pendingWithdrawal struct {
	w           gwtypes.WithdrawalRequestExtra
	touchedKeys []gwtypes.H256
	priorValues []gwtypes.H256
	checkpoint  gwtypes.StateCheckpoint
	seq         uint64
}

// Pool is the mem-pool: a speculative account tree plus the pending
// withdrawals and transactions admitted against it, guarded by a
// single mutex per the cooperative concurrency model (exactly one
// goroutine — the mem-pool owner — mutates Pool at a time; every
// caller goes through Admit/PushWithdrawal/OutputMemBlock/Reset).
type Pool struct {
	mu  sync.Mutex
	acc *smt.AccountSMT
	gen generator.Config
	log log.Logger

	maxPending   int
	accountCount uint32

	byHash map[gwtypes.H256]*pendingEntry
	order  []gwtypes.H256 // admission order, kept for reset replay
	seq    uint64

	withdrawals     map[gwtypes.H256]*pendingWithdrawal
	withdrawalOrder []gwtypes.H256

	// deposits are pending, not-yet-committed deposits the caller
	// refreshes from its L1 deposit-cell scan via SetPendingDeposits;
	// unlike withdrawals and transactions they are never speculatively
	// applied until packaging previews them.
	deposits []gwtypes.DepositRequest

	// custodians is the pool's view of remaining finalised custodian
	// balance available to back new withdrawal admissions, keyed by
	// SUDT script hash (gwtypes.CKBSUDTScriptHash for native capacity).
	custodians map[gwtypes.H256]*uint256.Int

	lastTip gwtypes.H256

	feeQueue  *FeeQueue
	cyclePool *CyclePool
}

// New builds an empty pool over acc (a speculative account tree the
// caller seeds from the chain's committed tip before use).
func New(acc *smt.AccountSMT, gen generator.Config, maxPending int, maxCyclesPerBlock uint64, logger log.Logger) *Pool {
	return &Pool{
		acc:         acc,
		gen:         gen,
		log:         logger.Module("mempool"),
		maxPending:  maxPending,
		byHash:      make(map[gwtypes.H256]*pendingEntry),
		withdrawals: make(map[gwtypes.H256]*pendingWithdrawal),
		custodians:  make(map[gwtypes.H256]*uint256.Int),
		feeQueue:    NewFeeQueue(),
		cyclePool:   NewCyclePool(maxCyclesPerBlock),
	}
}

// SetAccountCount records the account tree's current account count,
// the baseline packaging and deposit previews advance from. Callers
// update this whenever Reset reports a new count.
func (p *Pool) SetAccountCount(count uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accountCount = count
}

// Admit speculatively applies tx against the pool's account tree and,
// if it succeeds, keeps the result pending; if it fails, the tree is
// rolled back to exactly its pre-admission state so a rejected
// transaction never leaks partial effects into later admissions.
func (p *Pool) Admit(ctx context.Context, tx gwtypes.L2Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	hash := tx.Hash()
	if len(tx.Raw.Args) > MaxTxArgsBytes {
		return ErrTxTooLarge
	}
	if _, exists := p.byHash[hash]; exists {
		return ErrDuplicateTx
	}
	if len(p.byHash) >= p.maxPending {
		return ErrPoolFull
	}

	fromID := gwtypes.AccountID(tx.Raw.FromID)
	balBefore := p.acc.Balance(fromID, gwtypes.CKBSUDTScriptHash)

	p.acc.ClearTouched()
	result, err := generator.ApplyTransaction(ctx, p.acc, p.gen, tx)
	if err != nil {
		touched := p.acc.TouchedKeys()
		p.acc.RollbackKeys(touched, p.acc.PriorValues(touched))
		return err
	}

	touched := p.acc.TouchedKeys()
	priors := p.acc.PriorValues(touched)
	balAfter := p.acc.Balance(fromID, gwtypes.CKBSUDTScriptHash)
	fee := new(uint256.Int).Sub(balBefore, balAfter).Uint64()

	p.seq++
	entry := &pendingEntry{
		tx:          tx,
		fee:         fee,
		touchedKeys: touched,
		priorValues: priors,
		cycles:      result.Cycles,
		checkpoint:  smt.ComputeStateCheckpointFromTree(p.acc, p.accountCount),
		seq:         p.seq,
	}
	p.byHash[hash] = entry
	p.order = append(p.order, hash)
	p.feeQueue.Push(feeQueueItem{hash: hash, fee: fee, seq: p.seq})
	p.log.Debug("transaction admitted", "hash", hash.Hex(), "cycles", result.Cycles, "fee", fee)
	return nil
}

// PushWithdrawal speculatively applies a withdrawal request against
// the pool's account tree the same way Admit does for a transaction —
// signature verified, balance debited, rolled back on failure — with
// one extra check first: the requested capacity/SUDT amount must not
// exceed the pool's remaining finalised custodian balance for that
// asset (SetFinalizedCustodians), so a withdrawal the rollup could
// never actually settle never occupies a block slot.
func (p *Pool) PushWithdrawal(ctx context.Context, w gwtypes.WithdrawalRequestExtra) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	hash := w.Raw.Hash()
	if _, exists := p.withdrawals[hash]; exists {
		return ErrDuplicateWithdrawal
	}
	if len(p.withdrawals) >= p.maxPending {
		return ErrPoolFull
	}
	if err := p.reserveCustodian(w); err != nil {
		return err
	}

	p.acc.ClearTouched()
	if _, err := generator.ApplyWithdrawal(p.acc, p.gen, w); err != nil {
		touched := p.acc.TouchedKeys()
		p.acc.RollbackKeys(touched, p.acc.PriorValues(touched))
		p.releaseCustodian(w)
		return err
	}

	touched := p.acc.TouchedKeys()
	priors := p.acc.PriorValues(touched)
	p.seq++
	entry := &pendingWithdrawal{
		w:           w,
		touchedKeys: touched,
		priorValues: priors,
		checkpoint:  smt.ComputeStateCheckpointFromTree(p.acc, p.accountCount),
		seq:         p.seq,
	}
	p.withdrawals[hash] = entry
	p.withdrawalOrder = append(p.withdrawalOrder, hash)
	p.log.Debug("withdrawal admitted", "hash", hash.Hex(), "capacity", w.Raw.Capacity)
	return nil
}

// reserveCustodian debits w's requested capacity/SUDT amount from the
// pool's custodian ledger, failing if either asset's remaining balance
// would go negative.
func (p *Pool) reserveCustodian(w gwtypes.WithdrawalRequestExtra) error {
	capBal := p.custodianBalance(gwtypes.CKBSUDTScriptHash)
	need := new(uint256.Int).SetUint64(w.Raw.Capacity)
	if capBal.Cmp(need) < 0 {
		return ErrInsufficientCustodian
	}
	if w.Raw.SUDTScriptHash != gwtypes.CKBSUDTScriptHash {
		var amount uint256.Int
		amount.SetBytes(w.Raw.Amount[:])
		sudtBal := p.custodianBalance(w.Raw.SUDTScriptHash)
		if sudtBal.Cmp(&amount) < 0 {
			return ErrInsufficientCustodian
		}
		p.custodians[w.Raw.SUDTScriptHash] = new(uint256.Int).Sub(sudtBal, &amount)
	}
	p.custodians[gwtypes.CKBSUDTScriptHash] = new(uint256.Int).Sub(capBal, need)
	return nil
}

// releaseCustodian undoes reserveCustodian, used when a withdrawal
// that passed the custodian check fails speculative application for
// another reason (bad signature, insufficient account balance).
func (p *Pool) releaseCustodian(w gwtypes.WithdrawalRequestExtra) {
	need := new(uint256.Int).SetUint64(w.Raw.Capacity)
	p.custodians[gwtypes.CKBSUDTScriptHash] = new(uint256.Int).Add(p.custodianBalance(gwtypes.CKBSUDTScriptHash), need)
	if w.Raw.SUDTScriptHash != gwtypes.CKBSUDTScriptHash {
		var amount uint256.Int
		amount.SetBytes(w.Raw.Amount[:])
		p.custodians[w.Raw.SUDTScriptHash] = new(uint256.Int).Add(p.custodianBalance(w.Raw.SUDTScriptHash), &amount)
	}
}

func (p *Pool) custodianBalance(sudtScriptHash gwtypes.H256) *uint256.Int {
	if bal, ok := p.custodians[sudtScriptHash]; ok {
		return bal
	}
	return new(uint256.Int)
}

// snapshotCustodians returns a defensive copy of the pool's current
// custodian ledger view, the finalized_custodians half of
// OutputMemBlock's (finalized_custodians, BlockParam) return value.
func (p *Pool) snapshotCustodians() map[gwtypes.H256]*uint256.Int {
	out := make(map[gwtypes.H256]*uint256.Int, len(p.custodians))
	for k, v := range p.custodians {
		out[k] = new(uint256.Int).Set(v)
	}
	return out
}

// SetFinalizedCustodians replaces the pool's view of remaining
// finalised custodian balances available to back new withdrawal
// requests, keyed by SUDT script hash. Callers refresh this from
// internal/store's custodian ledger whenever the finalised tip
// advances.
func (p *Pool) SetFinalizedCustodians(custodians map[gwtypes.H256]*uint256.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.custodians = make(map[gwtypes.H256]*uint256.Int, len(custodians))
	for k, v := range custodians {
		p.custodians[k] = new(uint256.Int).Set(v)
	}
}

// SetPendingDeposits replaces the pool's cached view of deposits seen
// on L1 but not yet absorbed into a committed block, refreshed by the
// caller each cycle from the deposit-cell provider.
func (p *Pool) SetPendingDeposits(deposits []gwtypes.DepositRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deposits = append([]gwtypes.DepositRequest(nil), deposits...)
}

// NotifyNewTip records the chain's current committed tip hash so
// callers deciding whether the pool's baseline is stale can compare
// against it; rebuilding the speculative state itself for a new tip is
// Reset's job once the newly committed withdrawals/deposits are known.
func (p *Pool) NotifyNewTip(tipHash gwtypes.H256) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastTip = tipHash
}

// LastNotifiedTip returns the tip hash most recently passed to
// NotifyNewTip.
func (p *Pool) LastNotifiedTip() gwtypes.H256 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTip
}

// ExecuteRawTransaction runs raw through the VM once against the
// pool's current speculative state and returns the result without
// applying its writes or touching any admission bookkeeping — the
// read-only query callers use to preview a call's effect without it
// ever entering the pool.
func (p *Pool) ExecuteRawTransaction(ctx context.Context, raw gwtypes.RawL2Transaction) (vm.RunResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	toScriptHash, ok := p.acc.ScriptHash(gwtypes.AccountID(raw.ToID))
	if !ok {
		return vm.RunResult{}, generator.ErrUnknownAccount
	}
	if _, ok := p.gen.Backend.BackendType(toScriptHash); !ok {
		return vm.RunResult{}, generator.ErrUnknownAccount
	}
	program, err := p.gen.VM.LoadProgram(ctx, toScriptHash, p.acc)
	if err != nil {
		return vm.RunResult{}, err
	}
	return p.gen.VM.Run(ctx, program, raw, p.acc, p.gen.MaxCycles)
}

// Remove drops tx from the pool, rolling its speculative writes back
// so later-ordered transactions that read its effects are also
// invalidated by the caller (reset protocols always re-admit from
// scratch rather than trying to patch around a single removal).
func (p *Pool) Remove(hash gwtypes.H256) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(hash)
}

func (p *Pool) removeLocked(hash gwtypes.H256) {
	entry, ok := p.byHash[hash]
	if !ok {
		return
	}
	p.acc.RollbackKeys(entry.touchedKeys, entry.priorValues)
	delete(p.byHash, hash)
	p.feeQueue.Remove(hash)
	for i, h := range p.order {
		if h == hash {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// RemoveWithdrawal drops a pending withdrawal request, rolling its
// speculative writes and custodian reservation back, mirroring Remove
// for transactions.
func (p *Pool) RemoveWithdrawal(hash gwtypes.H256) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeWithdrawalLocked(hash)
}

func (p *Pool) removeWithdrawalLocked(hash gwtypes.H256) {
	entry, ok := p.withdrawals[hash]
	if !ok {
		return
	}
	p.acc.RollbackKeys(entry.touchedKeys, entry.priorValues)
	p.releaseCustodian(entry.w)
	delete(p.withdrawals, hash)
	for i, h := range p.withdrawalOrder {
		if h == hash {
			p.withdrawalOrder = append(p.withdrawalOrder[:i], p.withdrawalOrder[i+1:]...)
			break
		}
	}
}

// Size returns the number of pending transactions.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byHash)
}

// Get returns a pending transaction by hash.
func (p *Pool) Get(hash gwtypes.H256) (gwtypes.L2Transaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byHash[hash]
	if !ok {
		return gwtypes.L2Transaction{}, false
	}
	return e.tx, true
}
