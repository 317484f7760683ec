// Package withdrawal implements the finalised-withdrawal settler: once
// a block passes the challenge period, its withdrawals become
// eligible for an L1 transaction that pays out their owner locks
// directly, freeing the custody their withdrawal cells held. The
// settler walks blocks in order, batches their withdrawals into a
// bounded pending queue, proves the batch's last block against the
// rollup cell's committed block root, and submits one
// RollupFinalizeWithdrawal transaction per batch.
package withdrawal

import (
	"errors"
	"sync"

	"github.com/gwnode/gwnode/internal/gwtypes"
)

// ErrDiscontinuousPending means the next block handed to Push does not
// chain from the last block already queued: its parent hash doesn't
// match. The caller should reset the queue and retry from the current
// finalisation frontier rather than trust a queue built from
// out-of-order blocks.
var ErrDiscontinuousPending = errors.New("withdrawal: pending block withdrawals are not sequential")

// BlockWithdrawals is one block's worth of withdrawals awaiting
// finalisation, carried together with the block identity needed to
// prove it against the rollup cell's block root.
type BlockWithdrawals struct {
	Number      uint64
	Hash        gwtypes.H256
	ParentHash  gwtypes.H256
	Withdrawals []gwtypes.WithdrawalRequestExtra
}

// Len reports how many withdrawals this block carries.
func (b BlockWithdrawals) Len() int { return len(b.Withdrawals) }

func (b BlockWithdrawals) shrink(n int) BlockWithdrawals {
	out := b
	out.Withdrawals = append([]gwtypes.WithdrawalRequestExtra(nil), b.Withdrawals[:n]...)
	return out
}

// PendingQueue is the bounded FIFO of block withdrawals awaiting a
// single finalisation transaction: at most maxBlocks blocks and
// maxWithdrawals withdrawals total, whichever limit is hit first.
type PendingQueue struct {
	mu             sync.Mutex
	blocks         []BlockWithdrawals
	maxBlocks      int
	maxWithdrawals int
}

// NewPendingQueue builds an empty queue bounded by maxBlocks/maxWithdrawals.
func NewPendingQueue(maxBlocks, maxWithdrawals int) *PendingQueue {
	return &PendingQueue{
		blocks:         make([]BlockWithdrawals, 0, maxBlocks),
		maxBlocks:      maxBlocks,
		maxWithdrawals: maxWithdrawals,
	}
}

// BlockRange reports the (first, last) block numbers currently queued.
func (q *PendingQueue) BlockRange() (start, end uint64, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.blocks) == 0 {
		return 0, 0, false
	}
	return q.blocks[0].Number, q.blocks[len(q.blocks)-1].Number, true
}

// Push appends bw to the queue, shrinking its withdrawal list if it
// would overrun the withdrawal limit. It reports whether either bound
// (block count or withdrawal count) has now been reached, in which
// case the caller should Take the batch rather than push further. A
// block identical to the one last pushed is silently skipped (reports
// false, nil): re-observing the same tip is not an error. A block
// whose parent hash doesn't match the last queued block's hash is
// rejected with ErrDiscontinuousPending.
func (q *PendingQueue) Push(bw BlockWithdrawals) (limitReached bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	blockLeft := q.maxBlocks - len(q.blocks)
	if blockLeft <= 0 {
		return true, nil
	}
	withdrawalsCount := 0
	for _, b := range q.blocks {
		withdrawalsCount += b.Len()
	}
	wthdrLeft := q.maxWithdrawals - withdrawalsCount
	if wthdrLeft <= 0 {
		return true, nil
	}

	if len(q.blocks) > 0 {
		last := q.blocks[len(q.blocks)-1]
		switch {
		case last.Hash == bw.Hash:
			return false, nil
		case last.Hash != bw.ParentHash:
			return false, ErrDiscontinuousPending
		}
	}
	blockLeft--

	if bw.Len() >= wthdrLeft {
		q.blocks = append(q.blocks, bw.shrink(wthdrLeft))
		wthdrLeft = 0
	} else {
		wthdrLeft -= bw.Len()
		q.blocks = append(q.blocks, bw)
	}

	return blockLeft == 0 || wthdrLeft == 0, nil
}

// Take drains and returns the queued batch, resetting the queue to
// empty.
func (q *PendingQueue) Take() []BlockWithdrawals {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.blocks
	q.blocks = make([]BlockWithdrawals, 0, q.maxBlocks)
	return out
}

// Reset discards whatever is queued without returning it, used when a
// discontinuity is detected and the batch can't be trusted.
func (q *PendingQueue) Reset() { q.Take() }
