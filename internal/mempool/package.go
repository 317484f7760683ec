package mempool

import (
	"context"

	"github.com/holiman/uint256"

	"github.com/gwnode/gwnode/internal/generator"
	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/smt"
)

// MemBlock is the packaged next-block candidate OutputMemBlock
// assembles: every withdrawal, deposit, and transaction selected for
// inclusion, in the withdrawal -> deposit -> transaction submission
// order the generator's own pipeline expects, plus the per-step
// checkpoints and post-state a ProduceBlock call over the same inputs
// is expected to reproduce exactly.
type MemBlock struct {
	Withdrawals []gwtypes.WithdrawalRequestExtra
	Deposits    []gwtypes.DepositRequest
	Txs         []gwtypes.L2Transaction
	Cycles      uint64
	Checkpoints []gwtypes.StateCheckpoint
	PostAccount gwtypes.AccountMerkleState
}

// OutputMemBlock packages the pool's pending withdrawals, its cached
// pending deposits, and its fee-ordered transactions into a MemBlock,
// alongside a snapshot of the pool's remaining finalised custodian
// balances.
//
// retryCount == 0 packages the whole pending set, reusing the
// checkpoints already cached at admission time plus a transient
// preview of the pending deposits (which, unlike withdrawals and
// transactions, are never speculatively applied until packaging asks
// for them). A positive retryCount — the caller's previous candidate
// was rejected — shrinks the candidate to remain = total/(retry_count+1)
// items, keeping withdrawals first, then deposits, then transactions,
// and re-executes the kept subset from scratch against a momentarily
// unwound tree to recompute its checkpoints and post-state, since the
// excluded items' effects must not leak into them.
func (p *Pool) OutputMemBlock(ctx context.Context, retryCount int) (map[gwtypes.H256]*uint256.Int, MemBlock) {
	p.mu.Lock()
	defer p.mu.Unlock()

	withdrawals := make([]gwtypes.WithdrawalRequestExtra, len(p.withdrawalOrder))
	wEntries := make([]*pendingWithdrawal, len(p.withdrawalOrder))
	for i, h := range p.withdrawalOrder {
		e := p.withdrawals[h]
		withdrawals[i] = e.w
		wEntries[i] = e
	}
	deposits := append([]gwtypes.DepositRequest(nil), p.deposits...)

	txs, txEntries := p.selectTxsByFee()

	total := len(withdrawals) + len(deposits) + len(txs)
	remain := total
	if retryCount > 0 {
		remain = total / (retryCount + 1)
	}
	keepW := min(len(withdrawals), remain)
	remain -= keepW
	keepD := min(len(deposits), remain)
	remain -= keepD
	keepT := min(len(txs), remain)

	shrunk := keepW < len(withdrawals) || keepD < len(deposits) || keepT < len(txs)

	block := MemBlock{
		Withdrawals: withdrawals[:keepW],
		Deposits:    deposits[:keepD],
		Txs:         txs[:keepT],
	}
	for _, e := range txEntries[:keepT] {
		block.Cycles += e.cycles
	}

	if !shrunk {
		block.Checkpoints, block.PostAccount = p.packageFull(wEntries, deposits, txEntries)
	} else {
		block.Checkpoints, block.PostAccount = p.repackageFromScratch(ctx, wEntries, deposits[:keepD], txEntries, keepW, keepT)
	}
	return p.snapshotCustodians(), block
}

// selectTxsByFee drains the fee-priority queue into a candidate
// ordering, reserving each entry's cycles against the per-block
// budget and skipping (without dropping) anything that would exceed
// it, then restores the queue to exactly its pre-call contents —
// packaging previews a candidate, it does not consume the pool's
// pending set.
func (p *Pool) selectTxsByFee() ([]gwtypes.L2Transaction, []*pendingEntry) {
	p.cyclePool.Reset()
	var txs []gwtypes.L2Transaction
	var entries []*pendingEntry
	var drained []gwtypes.H256
	for p.feeQueue.Len() > 0 {
		batch := p.feeQueue.PopBatch(1)
		if len(batch) == 0 {
			break
		}
		hash := batch[0]
		drained = append(drained, hash)
		entry, ok := p.byHash[hash]
		if !ok || !p.cyclePool.TryReserve(entry.cycles) {
			continue
		}
		txs = append(txs, entry.tx)
		entries = append(entries, entry)
	}
	for _, hash := range drained {
		if entry, ok := p.byHash[hash]; ok {
			p.feeQueue.Push(feeQueueItem{hash: hash, fee: entry.fee, seq: entry.seq})
		}
	}
	return txs, entries
}

// packageFull builds the MemBlock when nothing needs to shrink: every
// pending withdrawal and transaction is already reflected in the live
// tree, so their checkpoints are exactly what admission cached. Only
// the pending deposits need a transient apply to compute their
// checkpoints and the resulting post-state, rolled back immediately
// afterward since they are not yet committed.
func (p *Pool) packageFull(wEntries []*pendingWithdrawal, deposits []gwtypes.DepositRequest, txEntries []*pendingEntry) ([]gwtypes.StateCheckpoint, gwtypes.AccountMerkleState) {
	var checkpoints []gwtypes.StateCheckpoint
	for _, e := range wEntries {
		checkpoints = append(checkpoints, e.checkpoint)
	}

	p.acc.ClearTouched()
	accountCount := p.accountCount
	depositCheckpoints, created := previewDeposits(p.acc, &accountCount, deposits)
	checkpoints = append(checkpoints, depositCheckpoints...)
	for _, e := range txEntries {
		checkpoints = append(checkpoints, e.checkpoint)
	}
	postAccount := p.acc.Root(accountCount)

	touched := p.acc.TouchedKeys()
	p.acc.RollbackKeys(touched, p.acc.PriorValues(touched))
	for _, h := range created {
		p.acc.ForgetScript(h)
	}
	p.acc.ClearTouched()

	return checkpoints, postAccount
}

// repackageFromScratch rebuilds a shrunk packaging candidate: every
// pending withdrawal and transaction currently speculatively applied
// against the live tree is unwound back to the pre-admission
// baseline, the kept subset (withdrawals, then deposits, then
// transactions, in that priority order) is re-applied to compute
// fresh checkpoints and the resulting post-state, and finally every
// pending withdrawal and transaction — including the ones this shrink
// excluded — is re-applied so the pool's persistent speculative state
// is left exactly as it was before packaging previewed a smaller
// candidate.
func (p *Pool) repackageFromScratch(ctx context.Context, wEntries []*pendingWithdrawal, keptDeposits []gwtypes.DepositRequest, txEntries []*pendingEntry, keepW, keepT int) ([]gwtypes.StateCheckpoint, gwtypes.AccountMerkleState) {
	for i := len(txEntries) - 1; i >= 0; i-- {
		p.acc.RollbackKeys(txEntries[i].touchedKeys, txEntries[i].priorValues)
	}
	for i := len(wEntries) - 1; i >= 0; i-- {
		p.acc.RollbackKeys(wEntries[i].touchedKeys, wEntries[i].priorValues)
	}
	p.acc.ClearTouched()

	accountCount := p.accountCount
	var checkpoints []gwtypes.StateCheckpoint
	for _, e := range wEntries[:keepW] {
		if _, err := generator.ApplyWithdrawal(p.acc, p.gen, e.w); err == nil {
			checkpoints = append(checkpoints, smt.ComputeStateCheckpointFromTree(p.acc, accountCount))
		}
	}
	depositCheckpoints, created := previewDeposits(p.acc, &accountCount, keptDeposits)
	checkpoints = append(checkpoints, depositCheckpoints...)
	for _, e := range txEntries[:keepT] {
		if _, err := generator.ApplyTransaction(ctx, p.acc, p.gen, e.tx); err == nil {
			checkpoints = append(checkpoints, smt.ComputeStateCheckpointFromTree(p.acc, accountCount))
		}
	}
	postAccount := p.acc.Root(accountCount)

	touched := p.acc.TouchedKeys()
	p.acc.RollbackKeys(touched, p.acc.PriorValues(touched))
	for _, h := range created {
		p.acc.ForgetScript(h)
	}
	p.acc.ClearTouched()

	for _, e := range wEntries {
		if _, err := generator.ApplyWithdrawal(p.acc, p.gen, e.w); err != nil {
			p.log.Warn("failed to reapply withdrawal after packaging preview", "err", err)
		}
	}
	for _, e := range txEntries {
		if _, err := generator.ApplyTransaction(ctx, p.acc, p.gen, e.tx); err != nil {
			p.log.Warn("failed to reapply transaction after packaging preview", "err", err)
		}
	}
	p.acc.ClearTouched()

	return checkpoints, postAccount
}

// previewDeposits applies each deposit against acc, advancing
// accountCount as new accounts are created, and returns the resulting
// per-deposit checkpoints plus the script hashes of any account this
// call itself created (so the caller can undo the side-table
// scripts/scriptOwners bindings SetScriptHash installs once the
// merkle-tree writes themselves are rolled back).
func previewDeposits(acc *smt.AccountSMT, accountCount *uint32, deposits []gwtypes.DepositRequest) ([]gwtypes.StateCheckpoint, []gwtypes.H256) {
	var checkpoints []gwtypes.StateCheckpoint
	var created []gwtypes.H256
	for _, d := range deposits {
		scriptHash := d.Script.Hash()
		_, existed := acc.AccountIDByScriptHash(scriptHash)
		if err := generator.ApplyDeposit(acc, d, accountCount); err != nil {
			continue
		}
		if !existed {
			created = append(created, scriptHash)
		}
		checkpoints = append(checkpoints, smt.ComputeStateCheckpointFromTree(acc, *accountCount))
	}
	return checkpoints, created
}
