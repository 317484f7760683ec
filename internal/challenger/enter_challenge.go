package challenger

import (
	"context"

	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/l1client"
)

// HandleBadBlock files a challenge against ev.Target: consume the
// rollup cell, re-produce it with status flipped to Halting, and
// create a challenge cell encoding the disputed target and this
// challenger's reward-receiver lock. If the rollup is already halting
// (someone else's challenge beat this one), it is a no-op, matching
// the original's idempotent re-check against the freshly queried
// rollup cell.
func (c *Challenger) HandleBadBlock(ctx context.Context, ev BadBlockEvent) (gwtypes.H256, error) {
	target := ev.Target
	if c.testMode != nil {
		if forced, ok := c.testMode.ForcedTarget(); ok {
			target = forced
		}
	}

	rollup, err := c.queryRollupState(ctx)
	if err != nil {
		return gwtypes.H256{}, err
	}
	if rollup.state.Status == gwtypes.StatusHalting {
		return gwtypes.H256{}, ErrAlreadyHalting
	}

	next := rollup.state
	next.Status = gwtypes.StatusHalting

	lockArgs := gwtypes.ChallengeLockArgs{
		RollupTypeHash:      gwtypes.HexToH256(c.rollup.RollupTypeHash),
		Target:              target,
		RewardsReceiverLock: gwtypes.Script{Args: []byte(c.cfg.RewardsReceiverLock)},
	}
	challengeCell := l1client.CellOutput{
		Capacity: 0,
		Lock:     gwtypes.Script{Args: lockArgs.RewardsReceiverLock.Args},
	}

	tx := l1client.Transaction{
		Inputs:      []l1client.OutPoint{rollup.outPoint},
		Outputs:     []l1client.CellOutput{rollup.output, challengeCell},
		OutputsData: [][]byte{next.MarshalBinary(), target.MarshalBinary()},
	}

	digest := gwtypes.Keccak256Hash(tx.OutputsData[0], tx.OutputsData[1])
	sig, err := c.signer.Sign(digest)
	if err != nil {
		return gwtypes.H256{}, err
	}
	tx.Witnesses = [][]byte{sig}
	tx.Hash = digest

	return c.dryRunAndSend(ctx, tx, "enter_challenge")
}
