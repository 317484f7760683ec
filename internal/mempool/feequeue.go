package mempool

import (
	"container/heap"

	"github.com/gwnode/gwnode/internal/gwtypes"
)

// feeQueueItem is one entry in the fee-priority heap: higher fee wins,
// ties broken by earlier admission so the queue stays FIFO-stable
// within a fee tier.
type feeQueueItem struct {
	hash gwtypes.H256
	fee  uint64
	seq  uint64
	index int
}

// feeHeap is a max-heap on fee, min-heap on seq as a tiebreaker.
type feeHeap []*feeQueueItem

func (h feeHeap) Len() int { return len(h) }
func (h feeHeap) Less(i, j int) bool {
	if h[i].fee != h[j].fee {
		return h[i].fee > h[j].fee
	}
	return h[i].seq < h[j].seq
}
func (h feeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *feeHeap) Push(x any) {
	item := x.(*feeQueueItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *feeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// FeeQueue orders pending transaction hashes by fee, highest first,
// the order OutputMemBlock selects transactions in.
type FeeQueue struct {
	h     feeHeap
	index map[gwtypes.H256]*feeQueueItem
}

// NewFeeQueue builds an empty fee-priority queue.
func NewFeeQueue() *FeeQueue {
	return &FeeQueue{index: make(map[gwtypes.H256]*feeQueueItem)}
}

// Push inserts a transaction's fee-priority entry.
func (q *FeeQueue) Push(item feeQueueItem) {
	entry := &item
	q.index[item.hash] = entry
	heap.Push(&q.h, entry)
}

// Remove drops a transaction from the queue, if present.
func (q *FeeQueue) Remove(hash gwtypes.H256) {
	entry, ok := q.index[hash]
	if !ok {
		return
	}
	heap.Remove(&q.h, entry.index)
	delete(q.index, hash)
}

// PopBatch removes and returns up to n highest-fee transaction hashes.
func (q *FeeQueue) PopBatch(n int) []gwtypes.H256 {
	out := make([]gwtypes.H256, 0, n)
	for len(out) < n && q.h.Len() > 0 {
		entry := heap.Pop(&q.h).(*feeQueueItem)
		delete(q.index, entry.hash)
		out = append(out, entry.hash)
	}
	return out
}

// Len reports how many transactions are queued.
func (q *FeeQueue) Len() int { return q.h.Len() }
