package withdrawal

import (
	"github.com/gwnode/gwnode/internal/config"
	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/store"
)

// reader is the subset of *store.Tx this package needs, narrowed so
// gatherPending can be exercised against a snapshot-style fake in
// tests without pulling in a real pebble-backed Tx.
type reader interface {
	GetBlockByNumber(number uint64) (gwtypes.RawL2Block, bool)
	GetBlockWithdrawals(number uint64) []gwtypes.WithdrawalRequestExtra
}

var _ reader = (*store.Tx)(nil)

// GetPendingFinalizedWithdrawals walks committed blocks starting just
// after last (or, if last left a block partially finalised, starting
// from its first unfinalised withdrawal) up to tipNumber, batching
// them into a queue bounded by cfg's block/withdrawal limits. It stops
// early if a bound is hit or if the local store runs out of blocks to
// offer (the synchroniser hasn't caught up yet).
func GetPendingFinalizedWithdrawals(r reader, last gwtypes.LastFinalizedWithdrawal, tipNumber uint64, cfg config.WithdrawalConfig) ([]BlockWithdrawals, error) {
	queue := NewPendingQueue(cfg.MaxFinalizeBlocks, cfg.MaxFinalizeWithdrawals)

	start := last.BlockNumber
	if last.IsBlockFullyFinalized() {
		start++
	}

	for n := start; n <= tipNumber; n++ {
		block, ok := r.GetBlockByNumber(n)
		if !ok {
			break
		}
		withdrawals := r.GetBlockWithdrawals(n)
		if n == last.BlockNumber && !last.IsBlockFullyFinalized() {
			idx := int(last.WithdrawalIndex)
			if idx < len(withdrawals) {
				withdrawals = withdrawals[idx:]
			} else {
				withdrawals = nil
			}
		}

		bw := BlockWithdrawals{
			Number:      n,
			Hash:        block.Hash(),
			ParentHash:  block.Parent,
			Withdrawals: withdrawals,
		}
		reached, err := queue.Push(bw)
		if err != nil {
			queue.Reset()
			return nil, err
		}
		if reached {
			break
		}
	}

	return queue.Take(), nil
}
