package chain

import (
	"context"
	"errors"
	"time"

	"github.com/gwnode/gwnode/internal/generator"
	"github.com/gwnode/gwnode/internal/gwerrors"
	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/l1client"
	"github.com/gwnode/gwnode/internal/smt"
	"github.com/gwnode/gwnode/internal/store"
	"github.com/gwnode/gwnode/pkg/log"
)

// MaxReorgDepth bounds how far back the synchroniser will walk to find
// a common ancestor during an L1 reorg before giving up and requiring
// a full resync, matching the mem-pool's own reorg replay bound.
const MaxReorgDepth = 64

var (
	// ErrReorgTooDeep is returned when no common ancestor is found
	// within MaxReorgDepth blocks.
	ErrReorgTooDeep = errors.New("chain: reorg exceeds maximum recoverable depth")
	// ErrDiscontinuousBlock is a Protocol-class error: a submitted
	// block's parent does not match the current tip.
	ErrDiscontinuousBlock = errors.New("chain: submitted block does not extend current tip")
)

// ChallengeError is the error HandleEvent returns (wrapped in a
// gwerrors.ClassProtocol Error) when a submitted block fails replay:
// it carries the disputed target so the node's event loop can hand it
// to the challenger instead of just logging a bare message, matching
// the spec's SyncEvent::BadBlock{context}. Use errors.As to recover it
// from the wrapped error HandleEvent returns.
type ChallengeError struct {
	Target gwtypes.ChallengeTarget
	Block  gwtypes.RawL2Block
	Err    error
}

func (e *ChallengeError) Error() string { return e.Err.Error() }
func (e *ChallengeError) Unwrap() error { return e.Err }

// Synchroniser owns the single chain worker thread: it is the only
// component that mutates the store's tip and the live account tree,
// matching the cooperative single-thread-per-role concurrency model
// (every other subsystem reads a snapshot or sends the synchroniser
// work instead of mutating state directly).
type Synchroniser struct {
	store  *store.Store
	acc    *smt.AccountSMT
	blocks *smt.BlockSMT
	reverted *smt.RevertedBlockSMT
	l1     l1client.Client
	gen    generator.Config
	log    log.Logger

	backoff time.Duration
	maxBackoff time.Duration
}

// New builds a Synchroniser over the given store/account tree and L1
// client.
func New(st *store.Store, acc *smt.AccountSMT, blocks *smt.BlockSMT, reverted *smt.RevertedBlockSMT, l1 l1client.Client, gen generator.Config, logger log.Logger) *Synchroniser {
	return &Synchroniser{
		store: st, acc: acc, blocks: blocks, reverted: reverted, l1: l1, gen: gen,
		log:        logger.Module("chain"),
		backoff:    100 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
}

// HandleEvent applies a single classified L1 event to local state,
// dispatching to the Update or Revert path per ClassifyEvent.
func (s *Synchroniser) HandleEvent(ctx context.Context, ev Event) error {
	switch ClassifyEvent(ev.Kind) {
	case ActionRevert:
		return s.handleRevert(ctx, ev)
	default:
		if ev.Kind == EventSubmitBlock {
			return s.handleSubmitBlock(ctx, ev)
		}
		// Challenge/CancelChallenge carry no local state effect; they
		// are surfaced to internal/challenger via its own L1 watch
		// rather than mutating chain state here.
		return nil
	}
}

// handleSubmitBlock verifies continuity against the current tip, then
// replays the block through the shared generator pipeline and
// persists the result if it succeeds.
func (s *Synchroniser) handleSubmitBlock(ctx context.Context, ev Event) error {
	if ev.Block == nil {
		return gwerrors.Wrap(gwerrors.ClassInvariant, "chain.handleSubmitBlock", errors.New("nil block in SubmitBlock event"))
	}
	tx := s.store.Begin()
	sp := tx.SetSavepoint()

	tip, hasTip := tx.GetTipGlobalState()
	if hasTip && ev.Block.Parent != tip.TipBlockHash {
		_ = tx.RollbackToSavepoint(sp)
		_ = tx.Rollback()
		return gwerrors.Wrap(gwerrors.ClassProtocol, "chain.handleSubmitBlock", ErrDiscontinuousBlock)
	}

	accountCount := ev.Block.PostAccount.Count - uint32(len(ev.Deposits))
	result := generator.VerifyAndApplyBlock(ctx, s.acc, s.gen, *ev.Block, ev.Withdrawals, ev.Deposits, ev.Txs, accountCount)

	switch result.Outcome {
	case generator.OutcomeSuccess:
		next := nextGlobalState(tip, *ev.Block)
		touchedKeys := s.acc.TouchedKeys()
		rec := store.BlockStateRecord{PreState: tip, TouchedKeys: touchedKeys, PriorValues: s.acc.PriorValues(touchedKeys)}
		tx.PutStateRecord(ev.Block.Info.Number, rec)
		tx.InsertBlock(*ev.Block, next)
		tx.StoreBlockWithdrawals(ev.Block.Info.Number, ev.Withdrawals)
		s.blocks.InsertBlock(ev.Block.Info.Number, ev.Block.Hash())
		for _, t := range ev.Txs {
			tx.StoreTransaction(t, ev.Block.Info.Number)
		}
		s.acc.ClearTouched()
		if err := tx.Commit(); err != nil {
			return gwerrors.Wrap(gwerrors.ClassTransientL1, "chain.handleSubmitBlock.commit", err)
		}
		s.log.Info("block applied", "number", ev.Block.Info.Number, "hash", ev.Block.Hash().Hex())
		return nil
	case generator.OutcomeChallenge:
		_ = tx.RollbackToSavepoint(sp)
		_ = tx.Rollback()
		s.log.Warn("block failed replay, challengeable", "number", ev.Block.Info.Number, "err", result.Err)
		cerr := &ChallengeError{Target: result.Target, Block: *ev.Block, Err: result.Err}
		return gwerrors.Wrap(gwerrors.ClassProtocol, "chain.handleSubmitBlock.replay", cerr)
	default:
		_ = tx.RollbackToSavepoint(sp)
		_ = tx.Rollback()
		return gwerrors.Wrap(gwerrors.ClassTransientL1, "chain.handleSubmitBlock.replay", result.Err)
	}
}

func nextGlobalState(prev gwtypes.GlobalState, block gwtypes.RawL2Block) gwtypes.GlobalState {
	next := prev
	next.Account = block.PostAccount
	next.Block = gwtypes.BlockMerkleState{Count: block.Info.Number + 1}
	next.TipBlockHash = block.Hash()
	next.TipBlockTimestamp = block.Info.Timestamp
	return next
}

// handleRevert unwinds local state back to RevertedToNumber: it
// detaches every block after that number in descending order,
// restoring each one's pre-state from its BlockStateRecord, and marks
// the reverted blocks in the reverted-block SMT.
func (s *Synchroniser) handleRevert(ctx context.Context, ev Event) error {
	tx := s.store.Begin()
	tip, ok := tx.GetTipGlobalState()
	if !ok {
		_ = tx.Rollback()
		return gwerrors.Wrap(gwerrors.ClassInvariant, "chain.handleRevert", errors.New("no tip to revert from"))
	}

	for n := tip.TipBlockNumber(); n > ev.RevertedToNumber; n-- {
		block, ok := tx.GetBlockByNumber(n)
		if !ok {
			_ = tx.Rollback()
			return gwerrors.Wrap(gwerrors.ClassInvariant, "chain.handleRevert", errors.New("missing block during revert walk"))
		}
		rec, err := tx.DetachBlock(block)
		if err != nil {
			_ = tx.Rollback()
			return gwerrors.Wrap(gwerrors.ClassResource, "chain.handleRevert.detach", err)
		}
		tx.DeleteBlockWithdrawals(block.Info.Number)
		for i, k := range rec.TouchedKeys {
			s.acc.Apply(k, rec.PriorValues[i])
		}
		s.reverted.MarkReverted(block.Hash())
	}

	if err := tx.Commit(); err != nil {
		return gwerrors.Wrap(gwerrors.ClassTransientL1, "chain.handleRevert.commit", err)
	}
	s.log.Warn("chain reverted", "to_number", ev.RevertedToNumber)
	return nil
}

// FindCommonAncestor walks back from the local tip comparing against
// L1 block hashes to find the reorg point, bounded by MaxReorgDepth.
func (s *Synchroniser) FindCommonAncestor(ctx context.Context, localTipNumber uint64) (uint64, error) {
	tx := s.store.Begin()
	defer tx.Rollback()

	for depth := uint64(0); depth < MaxReorgDepth; depth++ {
		number := localTipNumber - depth
		local, ok := tx.GetBlockByNumber(number)
		if !ok {
			break
		}
		l1Block, err := s.l1.GetBlockByNumber(ctx, number)
		if err != nil {
			return 0, gwerrors.Wrap(gwerrors.ClassTransientL1, "chain.FindCommonAncestor", err)
		}
		if local.Hash() == l1Block.Hash {
			return number, nil
		}
	}
	return 0, ErrReorgTooDeep
}

// Run is the synchroniser's scheduling loop: poll for new L1 events,
// handle each one, and back off exponentially on transient errors so
// a flaky L1 RPC doesn't spin the worker thread.
func (s *Synchroniser) Run(ctx context.Context, poll func(context.Context) ([]Event, error), tick time.Duration) {
	backoff := s.backoff
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			events, err := poll(ctx)
			if err != nil {
				s.log.Warn("poll failed", "err", err, "backoff", backoff)
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return
				}
				backoff *= 2
				if backoff > s.maxBackoff {
					backoff = s.maxBackoff
				}
				continue
			}
			backoff = s.backoff
			for _, ev := range events {
				if err := s.HandleEvent(ctx, ev); err != nil && !gwerrors.Is(err, gwerrors.ClassProtocol) {
					s.log.Error("event handling failed", "err", err)
				}
			}
		}
	}
}
