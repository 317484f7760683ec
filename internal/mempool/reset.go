package mempool

import (
	"context"

	"github.com/gwnode/gwnode/internal/generator"
	"github.com/gwnode/gwnode/internal/gwtypes"
)

// MaxReorgReplayDepth bounds how many previously pending transactions
// Reset will attempt to replay after an L1 reorg, matching the
// synchroniser's own MaxReorgDepth so the mem-pool never tries to
// recover further back than the chain itself can.
const MaxReorgReplayDepth = 64

// Reset rebuilds the pool's speculative state after the chain's
// committed tip moves: every currently pending transaction's
// speculative writes are unwound first (the pool's account tree must
// return to exactly the state it had before any pending transaction
// touched it), freshly committed withdrawals and deposits are applied
// so the pool's baseline matches the new tip, and previously pending
// transactions are replayed against that new baseline, dropping any
// that no longer admit (stale nonce, now-unknown account, and so on).
// Returns the admission errors for transactions that failed to
// re-admit, and the account count after the committed withdrawals and
// deposits were applied.
func (p *Pool) Reset(ctx context.Context, withdrawals []gwtypes.WithdrawalRequestExtra, deposits []gwtypes.DepositRequest, accountCount uint32) (uint32, []error) {
	p.mu.Lock()

	// Unwind newest first, transactions before withdrawals (the same
	// order repackageFromScratch uses): each entry's prior values were
	// captured on top of everything admitted before it, so the whole
	// speculative generation must come apart in reverse before
	// ApplyCommittedPhases lays down the new baseline.
	for i := len(p.order) - 1; i >= 0; i-- {
		entry := p.byHash[p.order[i]]
		p.acc.RollbackKeys(entry.touchedKeys, entry.priorValues)
	}
	for i := len(p.withdrawalOrder) - 1; i >= 0; i-- {
		entry := p.withdrawals[p.withdrawalOrder[i]]
		p.acc.RollbackKeys(entry.touchedKeys, entry.priorValues)
	}
	carryOverWithdrawals := make([]gwtypes.WithdrawalRequestExtra, 0, len(p.withdrawalOrder))
	for _, hash := range p.withdrawalOrder {
		carryOverWithdrawals = append(carryOverWithdrawals, p.withdrawals[hash].w)
	}
	p.withdrawals = make(map[gwtypes.H256]*pendingWithdrawal)
	p.withdrawalOrder = nil

	carryOver := make([]gwtypes.L2Transaction, 0, len(p.order))
	for _, hash := range p.order {
		carryOver = append(carryOver, p.byHash[hash].tx)
	}
	p.byHash = make(map[gwtypes.H256]*pendingEntry)
	p.order = nil
	p.feeQueue = NewFeeQueue()
	p.cyclePool.Reset()

	if len(carryOver) > MaxReorgReplayDepth {
		carryOver = carryOver[:MaxReorgReplayDepth]
	}
	if len(carryOverWithdrawals) > MaxReorgReplayDepth {
		carryOverWithdrawals = carryOverWithdrawals[:MaxReorgReplayDepth]
	}

	p.acc.ClearTouched()
	newCount, err := generator.ApplyCommittedPhases(p.acc, p.gen, withdrawals, deposits, accountCount)
	p.acc.ClearTouched()
	p.accountCount = newCount
	p.mu.Unlock()

	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	for _, w := range carryOverWithdrawals {
		if pushErr := p.PushWithdrawal(ctx, w); pushErr != nil {
			errs = append(errs, pushErr)
		}
	}
	for _, tx := range carryOver {
		if admitErr := p.Admit(ctx, tx); admitErr != nil {
			errs = append(errs, admitErr)
		}
	}
	return newCount, errs
}
