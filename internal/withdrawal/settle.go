package withdrawal

import (
	"context"
	"errors"
	"strings"

	"github.com/gwnode/gwnode/internal/config"
	"github.com/gwnode/gwnode/internal/gwerrors"
	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/l1client"
	"github.com/gwnode/gwnode/internal/smt"
	"github.com/gwnode/gwnode/internal/store"
	"github.com/gwnode/gwnode/internal/wallet"
	"github.com/gwnode/gwnode/pkg/log"
	"github.com/gwnode/gwnode/pkg/metrics"
)

var (
	// ErrRollupCellNotFound means the current rollup cell could not be
	// located via the L1 indexer.
	ErrRollupCellNotFound = errors.New("withdrawal: rollup cell not found")
	// ErrNotFinalizable means the rollup cell's committed version or
	// status doesn't currently allow finalisation (version < 2, or the
	// rollup is halted by a live challenge).
	ErrNotFinalizable = errors.New("withdrawal: rollup cell is not in a finalizable state")
	// ErrFinalizeTxPending means a previously sent finalisation
	// transaction hasn't resolved yet; TryFinalize is a no-op until it
	// does, rather than racing a second one against the same cell.
	ErrFinalizeTxPending = errors.New("withdrawal: a finalisation transaction is still pending")
	// ErrDryRunFailed means EstimateCycles rejected the assembled
	// transaction.
	ErrDryRunFailed = errors.New("withdrawal: dry run rejected assembled transaction")
)

// transactionFailedToResolveMarker is the substring the original
// finaliser string-matches to distinguish a transient "inputs not yet
// indexed" dry-run failure from a real protocol error, carried over
// unchanged since this client's dry-run errors originate from the same
// L1 node behavior.
const transactionFailedToResolveMarker = "TransactionFailedToResolve"

func isTransientResolveError(err error) bool {
	return err != nil && strings.Contains(err.Error(), transactionFailedToResolveMarker)
}

// Settler owns the finalised-withdrawal settlement loop: on each
// TryFinalize call it checks on any in-flight finalisation
// transaction, then gathers and submits the next batch if the rollup
// cell is in a state that allows it.
type Settler struct {
	store  *store.Store
	blocks *smt.BlockSMT
	l1     l1client.Client
	signer wallet.Signer
	rollup config.RollupConfig
	cfg    config.WithdrawalConfig
	metrics *metrics.Registry
	log    log.Logger
}

// New builds a Settler.
func New(st *store.Store, blocks *smt.BlockSMT, l1 l1client.Client, signer wallet.Signer, rollup config.RollupConfig, cfg config.WithdrawalConfig, reg *metrics.Registry, logger log.Logger) *Settler {
	return &Settler{
		store: st, blocks: blocks, l1: l1, signer: signer,
		rollup: rollup, cfg: cfg, metrics: reg,
		log: logger.Module("withdrawal"),
	}
}

// TryFinalize advances withdrawal finalisation by exactly one step:
// resolve any in-flight transaction first (clearing it if it landed or
// died, returning ErrFinalizeTxPending if it's still in flight),
// then, if the rollup cell currently allows it, gather the next batch
// of pending withdrawals and submit a finalisation transaction for it.
// A nil return with no batch sent means there was simply nothing to
// do this tick.
func (s *Settler) TryFinalize(ctx context.Context) error {
	if err := s.resolveLastFinalizeTx(ctx); err != nil {
		return err
	}

	rollup, err := s.queryRollupState(ctx)
	if err != nil {
		return err
	}
	if rollup.state.Version < 2 || rollup.state.Status != gwtypes.StatusRunning {
		return ErrNotFinalizable
	}

	tx := s.store.Begin()
	defer tx.Rollback()
	tip, ok := tx.GetTipGlobalState()
	if !ok {
		return gwerrors.Wrap(gwerrors.ClassInvariant, "withdrawal.TryFinalize", errors.New("no local tip to finalise against"))
	}

	// The on-chain finality boundary (blocks whose challenge period has
	// passed) caps how far a batch may reach even when the local store
	// is further ahead; the local tip caps it the other way when the
	// synchroniser hasn't caught up to that boundary yet.
	boundary := rollup.state.LastFinalizedBlockNumber.Value()
	upTo := tip.TipBlockNumber()
	if boundary < upTo {
		upTo = boundary
	}

	batch, err := GetPendingFinalizedWithdrawals(tx, rollup.state.LastFinalizedWithdrawal, upTo, s.cfg)
	if err != nil {
		return gwerrors.Wrap(gwerrors.ClassInvariant, "withdrawal.TryFinalize.gather", err)
	}
	if len(batch) == 0 {
		return nil
	}

	last := batch[len(batch)-1]
	proof := s.blocks.Prove(last.Number)
	if err := smt.VerifyBlockProof(rollup.state.Block.MerkleRoot, last.Number, last.Hash, proof); err != nil {
		return gwerrors.Wrap(gwerrors.ClassInvariant, "withdrawal.TryFinalize.proof", err)
	}

	finalizeTx, totalWithdrawals, err := s.assembleFinalizeTx(ctx, rollup, batch, last)
	if err != nil {
		return err
	}

	if _, err := s.l1.EstimateCycles(ctx, finalizeTx); err != nil {
		if isTransientResolveError(err) {
			s.log.Warn("finalize dry run hit unresolved inputs, retrying later", "err", err)
			return gwerrors.Wrap(gwerrors.ClassTransientL1, "withdrawal.TryFinalize.dryrun", err)
		}
		s.log.Warn("dry run rejected finalize transaction", "err", err)
		return errors.Join(ErrDryRunFailed, err)
	}

	hash, err := s.l1.SendTransaction(ctx, finalizeTx)
	if err != nil {
		if isTransientResolveError(err) {
			return gwerrors.Wrap(gwerrors.ClassTransientL1, "withdrawal.TryFinalize.send", err)
		}
		return err
	}

	wtx := s.store.Begin()
	wtx.SetLastFinalizeTxHash(hash)
	wtx.SetFinalizationFrontier(gwtypes.LastFinalizedWithdrawal{BlockNumber: last.Number, WithdrawalIndex: gwtypes.AllWithdrawals})
	if err := wtx.Commit(); err != nil {
		return gwerrors.Wrap(gwerrors.ClassTransientL1, "withdrawal.TryFinalize.commit", err)
	}

	if s.metrics != nil {
		s.metrics.WithdrawalsFinalized.Add(float64(totalWithdrawals))
		s.metrics.FinalizationFrontier.Set(float64(last.Number))
	}
	s.log.Info("withdrawal batch finalized", "through_block", last.Number, "withdrawals", totalWithdrawals, "l1_tx", hash.Hex())
	return nil
}

// resolveLastFinalizeTx checks whether a previously sent finalisation
// transaction has settled: Pending/Proposed means still in flight
// (returns ErrFinalizeTxPending); Committed, Unknown, or Rejected all
// clear the pointer, the first because it succeeded and the latter two
// because nothing more will happen to that transaction and the next
// tick should simply try again.
func (s *Settler) resolveLastFinalizeTx(ctx context.Context) error {
	tx := s.store.Begin()
	defer tx.Rollback()

	hash, hasLast := tx.GetLastFinalizeTxHash()
	if !hasLast {
		return nil
	}

	status, err := s.l1.GetTransactionStatus(ctx, hash)
	if err != nil {
		return gwerrors.Wrap(gwerrors.ClassTransientL1, "withdrawal.resolveLastFinalizeTx", err)
	}

	switch status {
	case l1client.TxStatusPending, l1client.TxStatusProposed:
		return ErrFinalizeTxPending
	case l1client.TxStatusCommitted, l1client.TxStatusUnknown, l1client.TxStatusRejected:
		clear := s.store.Begin()
		clear.ClearLastFinalizeTxHash()
		if err := clear.Commit(); err != nil {
			return gwerrors.Wrap(gwerrors.ClassTransientL1, "withdrawal.resolveLastFinalizeTx.commit", err)
		}
		return nil
	default:
		return nil
	}
}

// rollupState is the decoded current rollup cell, fetched fresh for
// every finalisation attempt.
type rollupState struct {
	outPoint l1client.OutPoint
	output   l1client.CellOutput
	state    gwtypes.GlobalState
}

func (s *Settler) queryRollupState(ctx context.Context) (rollupState, error) {
	rollupTypeHash := gwtypes.HexToH256(s.rollup.RollupTypeHash)
	page, err := s.l1.GetCells(ctx, l1client.SearchKey{
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

// assembleFinalizeTx builds the RollupFinalizeWithdrawal transaction:
// the rollup cell is consumed and recreated with its
// last_finalized_withdrawal pointer advanced through the batch's last
// block, and every withdrawal cell in the batch is consumed and
// replaced with a plain capacity cell paid directly to its owner lock.
func (s *Settler) assembleFinalizeTx(ctx context.Context, rollup rollupState, batch []BlockWithdrawals, last BlockWithdrawals) (l1client.Transaction, int, error) {
	inputs := []l1client.OutPoint{rollup.outPoint}
	outputs := []l1client.CellOutput{rollup.output}

	next := rollup.state
	next.LastFinalizedWithdrawal = gwtypes.LastFinalizedWithdrawal{BlockNumber: last.Number, WithdrawalIndex: gwtypes.AllWithdrawals}
	outputsData := [][]byte{next.MarshalBinary()}

	total := 0
	for _, block := range batch {
		for _, w := range block.Withdrawals {
			point, err := s.findWithdrawalCell(ctx, w)
			if err != nil {
				return l1client.Transaction{}, 0, err
			}
			inputs = append(inputs, point)
			outputs = append(outputs, l1client.CellOutput{Capacity: w.Raw.Capacity, Lock: w.OwnerLock})
			outputsData = append(outputsData, w.Raw.Amount[:])
			total++
		}
	}

	tx := l1client.Transaction{Inputs: inputs, Outputs: outputs, OutputsData: outputsData}
	digest := gwtypes.Keccak256Hash(next.MarshalBinary())
	sig, err := s.signer.Sign(digest)
	if err != nil {
		return l1client.Transaction{}, 0, err
	}
	tx.Witnesses = [][]byte{sig}
	tx.Hash = digest
	return tx, total, nil
}

// findWithdrawalCell resolves the L1 cell holding a withdrawal's
// locked capacity, searched by its owner lock the same way the block
// producer resolves custodian cells by deposit script.
func (s *Settler) findWithdrawalCell(ctx context.Context, w gwtypes.WithdrawalRequestExtra) (l1client.OutPoint, error) {
	page, err := s.l1.GetCells(ctx, l1client.SearchKey{
		Script:     w.OwnerLock,
		ScriptType: l1client.ScriptTypeLock,
	}, l1client.SortAsc, 1, "")
	if err != nil {
		return l1client.OutPoint{}, err
	}
	if len(page.Cells) == 0 {
		return l1client.OutPoint{}, errors.New("withdrawal: no on-chain cell found for withdrawal owner lock")
	}
	return page.Cells[0].OutPoint, nil
}
