package generator

import (
	"context"

	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/smt"
)

// VerifyAndApplyBlock replays a submitted block's withdrawal, deposit,
// and transaction phases against acc, in that fixed order, and checks
// the resulting post-state and checkpoint list against what the block
// claims. The order matters: withdrawals can only spend balances a
// prior deposit or transaction already credited, and the transaction
// phase's first checkpoint chains from whatever the withdrawal phase
// last produced (or prev_state_checkpoint if there were no
// withdrawals), per RawL2Block.ValidateCheckpointList.
func VerifyAndApplyBlock(
	ctx context.Context,
	acc *smt.AccountSMT,
	cfg Config,
	block gwtypes.RawL2Block,
	withdrawals []gwtypes.WithdrawalRequestExtra,
	deposits []gwtypes.DepositRequest,
	txs []gwtypes.L2Transaction,
	accountCount uint32,
) Result {
	if err := block.ValidateCheckpointList(); err != nil {
		return challengeResult(err)
	}

	var checkpoints []gwtypes.StateCheckpoint
	blockHash := block.Hash()

	if idx, err := applyWithdrawalPhase(acc, cfg, withdrawals, accountCount, &checkpoints); err != nil {
		r := classify(err, idx, gwtypes.ChallengeTargetWithdrawal)
		r.Target.BlockHash = blockHash
		return r
	}
	if idx, err := applyDepositPhase(acc, deposits, &accountCount, &checkpoints); err != nil {
		r := classify(err, idx, gwtypes.ChallengeTargetWithdrawal)
		r.Target.BlockHash = blockHash
		return r
	}
	if idx, err := applyTransactionPhase(ctx, acc, cfg, txs, accountCount, &checkpoints); err != nil {
		r := classify(err, idx, gwtypes.ChallengeTargetTransaction)
		r.Target.BlockHash = blockHash
		return r
	}

	postAccount := acc.Root(accountCount)
	if postAccount != block.PostAccount {
		return errorResult(ErrPostStateMismatch)
	}
	for i, c := range checkpoints {
		if i >= len(block.StateCheckpointList) || c != block.StateCheckpointList[i] {
			return errorResult(ErrPostStateMismatch)
		}
	}

	return Result{
		Outcome:          OutcomeSuccess,
		StateCheckpoints: checkpoints,
		PostAccount:      postAccount,
	}
}
