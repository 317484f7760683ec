package chain

import (
	"context"

	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/l1client"
)

// Decoder parses an L1 transaction that touches the rollup cell into a
// classified Event. The concrete binary witness layout (the canonical
// serialisation framework section 6 describes: tagged unions,
// fixed-width vectors, big-endian tag bytes) belongs to the L1
// RPC/indexer client, an external collaborator this module treats as
// an injected dependency rather than something it reimplements.
// Decoder is the seam a real deployment plugs a concrete parser into;
// without one, Poller observes L1 blocks but never decodes them.
type Decoder interface {
	// Decode inspects tx (already known to touch the rollup cell) and
	// returns the classified Event plus true, or false if tx does not
	// in fact carry a rollup action this node understands.
	Decode(ctx context.Context, tx l1client.Transaction) (Event, bool, error)
}

// Poller implements the poll callback Synchroniser.Run expects: it
// walks L1 blocks after the last observed number looking for a
// transaction whose output carries the rollup type script, and hands
// any match to dec for decoding.
type Poller struct {
	l1             l1client.Client
	dec            Decoder
	rollupTypeHash gwtypes.H256
	lastNumber     uint64
}

// NewPoller builds a Poller that starts scanning after startNumber
// (typically the L1 block height at which the local tip was last
// synced).
func NewPoller(l1 l1client.Client, dec Decoder, rollupTypeHash gwtypes.H256, startNumber uint64) *Poller {
	return &Poller{l1: l1, dec: dec, rollupTypeHash: rollupTypeHash, lastNumber: startNumber}
}

// LastNumber reports the highest L1 block number scanned so far.
func (p *Poller) LastNumber() uint64 { return p.lastNumber }

// Poll fetches every L1 block after lastNumber up to the current tip,
// decodes any rollup-cell transaction found, and advances lastNumber
// regardless of whether a match was found (so an L1 block with no
// rollup activity doesn't get re-scanned next tick).
func (p *Poller) Poll(ctx context.Context) ([]Event, error) {
	tip, err := p.l1.GetTipBlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	var events []Event
	for n := p.lastNumber + 1; n <= tip; n++ {
		block, err := p.l1.GetBlockByNumber(ctx, n)
		if err != nil {
			return events, err
		}
		for _, tx := range block.Transactions {
			if !touchesRollup(tx, p.rollupTypeHash) {
				continue
			}
			if p.dec == nil {
				continue
			}
			ev, ok, err := p.dec.Decode(ctx, tx)
			if err != nil {
				return events, err
			}
			if !ok {
				continue
			}
			ev.L1BlockHash = block.Hash
			ev.L1BlockNumber = n
			events = append(events, ev)
		}
		p.lastNumber = n
	}
	return events, nil
}

func touchesRollup(tx l1client.Transaction, rollupTypeHash gwtypes.H256) bool {
	for _, out := range tx.Outputs {
		if out.Type != nil && out.Type.Hash() == rollupTypeHash {
			return true
		}
	}
	return false
}
