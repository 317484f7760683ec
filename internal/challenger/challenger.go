// Package challenger drives the five-state rollup lifecycle
// (Running -> EnterChallenge(Halting) -> CancelChallenge -> Running, or
// Running -> EnterChallenge(Halting) -> Revert -> Running): filing a
// challenge against a locally-detected bad block, cancelling a
// challenge filed against a block this node believes is valid, and
// reverting once a challenge it agrees with has matured. Every
// transaction it assembles is dry-run via the L1 client before being
// sent, matching the rest of this module's submit-transaction
// discipline.
package challenger

import (
	"context"
	"errors"

	"github.com/gwnode/gwnode/internal/config"
	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/l1client"
	"github.com/gwnode/gwnode/internal/wallet"
	"github.com/gwnode/gwnode/pkg/log"
)

var (
	// ErrRollupCellNotFound means the current rollup cell could not be
	// located via the L1 indexer.
	ErrRollupCellNotFound = errors.New("challenger: rollup cell not found")
	// ErrAlreadyHalting means a challenge was already entered against
	// the current tip; EnterChallenge sends nothing and returns this
	// error in that case.
	ErrAlreadyHalting = errors.New("challenger: rollup already halting")
	// ErrAlreadyRunning means the rollup already returned to Running;
	// CancelChallenge/Revert are no-ops in this case.
	ErrAlreadyRunning = errors.New("challenger: rollup already running")
	// ErrChallengeImmature means Revert was called before
	// challenge_maturity_blocks elapsed since the challenge transaction.
	ErrChallengeImmature = errors.New("challenger: challenge has not reached maturity")
	// ErrOwnerCellNotFound means no spendable cell under this
	// challenger's own lock could be found to unlock a verifier cell.
	ErrOwnerCellNotFound = errors.New("challenger: no owner cell available to unlock verifier")
	// ErrDryRunFailed means EstimateCycles rejected the assembled
	// transaction.
	ErrDryRunFailed = errors.New("challenger: dry run rejected assembled transaction")
	// ErrVerifierTxNotFound means the verifier cell's transaction was
	// rejected or dropped, or had not reached Proposed when the wait
	// deadline passed, while HandleBadChallenge waited for it.
	ErrVerifierTxNotFound = errors.New("challenger: verifier transaction not found")
)

// Challenger owns the EnterChallenge/CancelChallenge/Revert
// transaction builders plus the best-effort verifier-cell reclaim path.
type Challenger struct {
	l1       l1client.Client
	signer   wallet.Signer
	rollup   config.RollupConfig
	cfg      config.ChallengerConfig
	bp       config.BlockProducerConfig
	testMode *TestModeControl
	log      log.Logger
}

// New builds a Challenger.
func New(l1 l1client.Client, signer wallet.Signer, rollup config.RollupConfig, cfg config.ChallengerConfig, bp config.BlockProducerConfig, logger log.Logger) *Challenger {
	return &Challenger{
		l1: l1, signer: signer, rollup: rollup, cfg: cfg, bp: bp,
		log: logger.Module("challenger"),
	}
}

// WithTestMode installs an optional TestModeControl hook that can force
// challenge-target selection outside production builds, without
// altering the production decision path.
func (c *Challenger) WithTestMode(t *TestModeControl) { c.testMode = t }

// BadBlockEvent is what the chain worker feeds HandleBadBlock when
// local replay marks a synced block bad.
type BadBlockEvent struct {
	Target gwtypes.ChallengeTarget
	Block  gwtypes.RawL2Block
}

// BadChallengeEvent is fed to HandleBadChallenge when a challenge was
// filed against one of this node's own blocks that its local replay
// still considers valid: the producer must cancel it.
type BadChallengeEvent struct {
	Cell    ChallengeCellInfo
	Context VerifyContext
}

// WaitChallengeEvent is fed to HandleWaitChallenge when local replay
// agrees a challenged block really is bad: wait for maturity, then
// revert.
type WaitChallengeEvent struct {
	Cell           ChallengeCellInfo
	Context        RevertContext
	TipBlockNumber uint64
}

// ChallengeCellInfo is the on-chain challenge cell a cancel or revert
// transaction must consume.
type ChallengeCellInfo struct {
	OutPoint l1client.OutPoint
	Output   l1client.CellOutput
	Data     []byte
}

// VerifyContext carries what CancelChallenge needs to prove the
// disputed step actually succeeded: the expected post-state a verifier
// cell encodes and is checked against on-chain.
type VerifyContext struct {
	Target            gwtypes.ChallengeTarget
	ExpectedPostState gwtypes.AccountMerkleState
}

// RevertedBlockInfo is one block being unwound by a revert: its hash
// and the stake cell owner lock hash its producer must forfeit.
type RevertedBlockInfo struct {
	BlockHash          gwtypes.H256
	StakeOwnerLockHash gwtypes.H256
}

// RevertContext carries the reverted blocks and the account state to
// restore to, needed to settle stake and mint reward/burn cells.
type RevertContext struct {
	RevertedBlocks         []RevertedBlockInfo
	RestoredAccount        gwtypes.AccountMerkleState
	RevertedBlockRoot      gwtypes.H256
	ChallengeTxBlockNumber uint64
}

// rollupState is the decoded current rollup cell, queried fresh for
// every transaction this package builds so it always consumes the
// live cell rather than a stale view.
type rollupState struct {
	outPoint l1client.OutPoint
	output   l1client.CellOutput
	state    gwtypes.GlobalState
}

func (c *Challenger) queryRollupState(ctx context.Context) (rollupState, error) {
	rollupTypeHash := gwtypes.HexToH256(c.rollup.RollupTypeHash)
	page, err := c.l1.GetCells(ctx, l1client.SearchKey{
		Script:     gwtypes.Script{CodeHash: rollupTypeHash, HashType: gwtypes.HashTypeType},
		ScriptType: l1client.ScriptTypeType,
	}, l1client.SortDesc, 1, "")
	if err != nil {
		return rollupState{}, err
	}
	if len(page.Cells) == 0 {
		return rollupState{}, ErrRollupCellNotFound
	}
	cell := page.Cells[0]
	return rollupState{
		outPoint: cell.OutPoint,
		output:   cell.Output,
		state:    gwtypes.DecodeGlobalState(cell.Data),
	}, nil
}

// dryRunAndSend runs the assembled transaction through EstimateCycles
// before ever calling SendTransaction, the discipline every L1
// transaction builder in this module follows.
func (c *Challenger) dryRunAndSend(ctx context.Context, tx l1client.Transaction, label string) (gwtypes.H256, error) {
	if _, err := c.l1.EstimateCycles(ctx, tx); err != nil {
		c.log.Warn("dry run rejected transaction", "label", label, "err", err)
		return gwtypes.H256{}, errors.Join(ErrDryRunFailed, err)
	}
	hash, err := c.l1.SendTransaction(ctx, tx)
	if err != nil {
		return gwtypes.H256{}, err
	}
	c.log.Info("transaction sent", "label", label, "hash", hash.Hex())
	return hash, nil
}
