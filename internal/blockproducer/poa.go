package blockproducer

import (
	"context"

	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/l1client"
)

// checkTurn reports whether this node currently holds the PoA
// production slot for the given next block number: it resolves the
// live PoA owner cell via the L1 indexer and checks that cell's lock
// hash against this producer's configured owner lock hash. A missing
// or unrecognised PoA cell is treated as "not my turn" rather than an
// error, since block production should simply wait for the next poll
// rather than crash the worker.
func (p *Producer) checkTurn(ctx context.Context, nextBlockNumber uint64) (bool, error) {
	if p.cfg.PoAOwnerLockHash == "" {
		// No PoA gate configured: single-sequencer deployment, always
		// this node's turn.
		return true, nil
	}

	ownerLockHash := gwtypes.HexToH256(p.cfg.PoAOwnerLockHash)
	page, err := p.l1.GetCells(ctx, l1client.SearchKey{
		Script:     gwtypes.Script{},
		ScriptType: l1client.ScriptTypeLock,
	}, l1client.SortDesc, 1, "")
	if err != nil {
		return false, err
	}
	if len(page.Cells) == 0 {
		return false, nil
	}

	cellLockHash := page.Cells[0].Output.Lock.Hash()
	return cellLockHash == ownerLockHash, nil
}
