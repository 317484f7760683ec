package generator

import (
	"context"

	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/smt"
)

// ProduceBlock runs the same withdrawal -> deposit -> transaction
// pipeline VerifyAndApplyBlock uses to replay a block, but against a
// mem-pool-selected input set, and assembles the resulting RawL2Block
// instead of checking one. Producer and verifier sharing this pipeline
// is what guarantees a locally-produced block always passes its own
// later verification.
func ProduceBlock(
	ctx context.Context,
	acc *smt.AccountSMT,
	cfg Config,
	info gwtypes.BlockInfo,
	parent gwtypes.H256,
	withdrawals []gwtypes.WithdrawalRequestExtra,
	deposits []gwtypes.DepositRequest,
	txs []gwtypes.L2Transaction,
	accountCount uint32,
	withdrawalWitnessRoot, txWitnessRoot gwtypes.H256,
	prevStateCheckpoint gwtypes.StateCheckpoint,
) (gwtypes.RawL2Block, Result) {
	var checkpoints []gwtypes.StateCheckpoint

	if idx, err := applyWithdrawalPhase(acc, cfg, withdrawals, accountCount, &checkpoints); err != nil {
		return gwtypes.RawL2Block{}, classify(err, idx, gwtypes.ChallengeTargetWithdrawal)
	}
	if idx, err := applyDepositPhase(acc, deposits, &accountCount, &checkpoints); err != nil {
		return gwtypes.RawL2Block{}, classify(err, idx, gwtypes.ChallengeTargetWithdrawal)
	}
	if idx, err := applyTransactionPhase(ctx, acc, cfg, txs, accountCount, &checkpoints); err != nil {
		return gwtypes.RawL2Block{}, classify(err, idx, gwtypes.ChallengeTargetTransaction)
	}

	postAccount := acc.Root(accountCount)

	block := gwtypes.RawL2Block{
		Info:                info,
		Parent:              parent,
		StateCheckpointList: checkpoints,
		SubmitWithdrawals: gwtypes.SubmitWithdrawals{
			WithdrawalWitnessRoot: withdrawalWitnessRoot,
			Count:                 uint32(len(withdrawals)),
		},
		SubmitTransactions: gwtypes.SubmitTransactions{
			TxWitnessRoot:       txWitnessRoot,
			Count:               uint32(len(txs)),
			PrevStateCheckpoint: prevStateCheckpoint,
		},
		PostAccount: postAccount,
	}

	return block, Result{
		Outcome:          OutcomeSuccess,
		StateCheckpoints: checkpoints,
		PostAccount:      postAccount,
	}
}

// AssembleBlock builds a RawL2Block from inputs whose checkpoints and
// post-state were already computed elsewhere — internal/mempool's
// OutputMemBlock packages a candidate against the same live account
// tree the block producer submits against, so
// replaying the withdrawal/deposit/transaction phases a second time
// here would double-apply their effects. Unlike ProduceBlock this
// never touches an account tree; it only assembles the wire struct.
func AssembleBlock(
	info gwtypes.BlockInfo,
	parent gwtypes.H256,
	withdrawals []gwtypes.WithdrawalRequestExtra,
	deposits []gwtypes.DepositRequest,
	txs []gwtypes.L2Transaction,
	checkpoints []gwtypes.StateCheckpoint,
	postAccount gwtypes.AccountMerkleState,
	withdrawalWitnessRoot, txWitnessRoot gwtypes.H256,
	prevStateCheckpoint gwtypes.StateCheckpoint,
) (gwtypes.RawL2Block, Result) {
	block := gwtypes.RawL2Block{
		Info:                info,
		Parent:              parent,
		StateCheckpointList: checkpoints,
		SubmitWithdrawals: gwtypes.SubmitWithdrawals{
			WithdrawalWitnessRoot: withdrawalWitnessRoot,
			Count:                 uint32(len(withdrawals)),
		},
		SubmitTransactions: gwtypes.SubmitTransactions{
			TxWitnessRoot:       txWitnessRoot,
			Count:               uint32(len(txs)),
			PrevStateCheckpoint: prevStateCheckpoint,
		},
		PostAccount: postAccount,
	}
	return block, Result{
		Outcome:          OutcomeSuccess,
		StateCheckpoints: checkpoints,
		PostAccount:      postAccount,
	}
}
