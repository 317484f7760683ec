package challenger

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gwnode/gwnode/internal/config"
	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/l1client"
	"github.com/gwnode/gwnode/pkg/log"
)

type stubSigner struct{ lock gwtypes.Script }

func (s stubSigner) Lock() gwtypes.Script               { return s.lock }
func (s stubSigner) Sign(d gwtypes.H256) ([]byte, error) { return []byte("sig"), nil }

type stubL1 struct {
	rollupCell   l1client.Cell
	txStatus     l1client.TxStatus
	sendErr      error
	estimateErr  error
	sentHashes   []gwtypes.H256
}

func (s *stubL1) GetBlock(ctx context.Context, hash gwtypes.H256) (l1client.Block, error) {
	return l1client.Block{}, nil
}
func (s *stubL1) GetBlockByNumber(ctx context.Context, number uint64) (l1client.Block, error) {
	return l1client.Block{}, nil
}
func (s *stubL1) GetTipBlockNumber(ctx context.Context) (uint64, error) { return 0, nil }
func (s *stubL1) GetCell(ctx context.Context, point l1client.OutPoint) (l1client.Cell, error) {
	return l1client.Cell{}, nil
}
func (s *stubL1) GetLiveCell(ctx context.Context, point l1client.OutPoint, withData bool) (l1client.LiveCell, error) {
	return l1client.LiveCell{}, nil
}
func (s *stubL1) EstimateCycles(ctx context.Context, tx l1client.Transaction) (uint64, error) {
	if s.estimateErr != nil {
		return 0, s.estimateErr
	}
	return 1000, nil
}
func (s *stubL1) SendTransaction(ctx context.Context, tx l1client.Transaction) (gwtypes.H256, error) {
	if s.sendErr != nil {
		return gwtypes.H256{}, s.sendErr
	}
	s.sentHashes = append(s.sentHashes, tx.Hash)
	return tx.Hash, nil
}
func (s *stubL1) GetTransactionStatus(ctx context.Context, hash gwtypes.H256) (l1client.TxStatus, error) {
	return s.txStatus, nil
}
func (s *stubL1) GetCells(ctx context.Context, key l1client.SearchKey, order l1client.SortOrder, limit uint32, cursor string) (l1client.CellPage, error) {
	return l1client.CellPage{Cells: []l1client.Cell{s.rollupCell}}, nil
}

func newTestChallenger(t *testing.T, l1 *stubL1) *Challenger {
	t.Helper()
	rollup := config.RollupConfig{
		RollupTypeHash:          gwtypes.Keccak256Hash([]byte("rollup-type")).Hex(),
		ChallengeMaturityBlocks: 10,
	}
	cfg := config.ChallengerConfig{RewardsReceiverLock: "reward", BurnLock: "burn"}
	bp := config.BlockProducerConfig{}
	return New(l1, stubSigner{}, rollup, cfg, bp, log.NewStderr(slog.LevelError))
}

func runningRollupCell(t *testing.T) l1client.Cell {
	t.Helper()
	state := gwtypes.GlobalState{Status: gwtypes.StatusRunning}
	return l1client.Cell{
		OutPoint: l1client.OutPoint{TxHash: gwtypes.Keccak256Hash([]byte("rollup")), Index: 0},
		Data:     state.MarshalBinary(),
	}
}

func haltingRollupCell(t *testing.T) l1client.Cell {
	t.Helper()
	state := gwtypes.GlobalState{Status: gwtypes.StatusHalting}
	return l1client.Cell{
		OutPoint: l1client.OutPoint{TxHash: gwtypes.Keccak256Hash([]byte("rollup")), Index: 0},
		Data:     state.MarshalBinary(),
	}
}

func TestHandleBadBlockEntersChallenge(t *testing.T) {
	l1 := &stubL1{rollupCell: runningRollupCell(t)}
	c := newTestChallenger(t, l1)

	ev := BadBlockEvent{
		Target: gwtypes.ChallengeTarget{BlockHash: gwtypes.Keccak256Hash([]byte("bad-block")), TargetIndex: 0, TargetType: gwtypes.ChallengeTargetWithdrawal},
	}
	hash, err := c.HandleBadBlock(context.Background(), ev)
	require.NoError(t, err)
	require.False(t, hash.IsZero())
	require.Len(t, l1.sentHashes, 1)
}

func TestHandleBadBlockNoopWhenAlreadyHalting(t *testing.T) {
	l1 := &stubL1{rollupCell: haltingRollupCell(t)}
	c := newTestChallenger(t, l1)

	_, err := c.HandleBadBlock(context.Background(), BadBlockEvent{})
	require.ErrorIs(t, err, ErrAlreadyHalting)
}

func TestHandleBadChallengeCancels(t *testing.T) {
	l1 := &stubL1{rollupCell: haltingRollupCell(t), txStatus: l1client.TxStatusProposed}
	c := newTestChallenger(t, l1)

	ev := BadChallengeEvent{
		Cell: ChallengeCellInfo{OutPoint: l1client.OutPoint{TxHash: gwtypes.Keccak256Hash([]byte("challenge")), Index: 0}},
		Context: VerifyContext{
			ExpectedPostState: gwtypes.AccountMerkleState{MerkleRoot: gwtypes.Keccak256Hash([]byte("post-state"))},
		},
	}
	hash, err := c.HandleBadChallenge(context.Background(), ev)
	require.NoError(t, err)
	require.False(t, hash.IsZero())
	require.Len(t, l1.sentHashes, 2) // verifier cell tx, then cancellation tx
}

func TestHandleBadChallengeReclaimsOnCancelFailure(t *testing.T) {
	l1 := &stubL1{rollupCell: haltingRollupCell(t), txStatus: l1client.TxStatusProposed}
	wrapped := &countingL1{stubL1: l1, failAfter: 1}
	c := newTestChallenger(t, wrapped.stubL1)
	c.l1 = wrapped

	ev := BadChallengeEvent{
		Cell: ChallengeCellInfo{OutPoint: l1client.OutPoint{TxHash: gwtypes.Keccak256Hash([]byte("challenge")), Index: 0}},
		Context: VerifyContext{
			ExpectedPostState: gwtypes.AccountMerkleState{MerkleRoot: gwtypes.Keccak256Hash([]byte("post-state"))},
		},
	}
	_, err := c.HandleBadChallenge(context.Background(), ev)
	require.ErrorIs(t, err, errFakeSendFailure)
	// verifier send succeeded, cancel send failed, reclaim send failed too
	require.Equal(t, 3, wrapped.sent)
}

// countingL1 fails every SendTransaction call after the first
// failAfter successes, used to exercise the reclaim-verifier fallback.
type countingL1 struct {
	*stubL1
	failAfter int
	sent      int
}

func (c *countingL1) SendTransaction(ctx context.Context, tx l1client.Transaction) (gwtypes.H256, error) {
	c.sent++
	if c.sent > c.failAfter {
		return gwtypes.H256{}, errFakeSendFailure
	}
	return c.stubL1.SendTransaction(ctx, tx)
}

var errFakeSendFailure = errors.New("challenger test: forced send failure")

func TestHandleWaitChallengeRevertsAfterMaturity(t *testing.T) {
	l1 := &stubL1{rollupCell: haltingRollupCell(t)}
	c := newTestChallenger(t, l1)

	ev := WaitChallengeEvent{
		Cell:           ChallengeCellInfo{OutPoint: l1client.OutPoint{TxHash: gwtypes.Keccak256Hash([]byte("challenge")), Index: 0}},
		TipBlockNumber: 20,
		Context: RevertContext{
			ChallengeTxBlockNumber: 5,
			RestoredAccount:        gwtypes.AccountMerkleState{MerkleRoot: gwtypes.Keccak256Hash([]byte("restored"))},
			RevertedBlockRoot:      gwtypes.Keccak256Hash([]byte("reverted-root")),
			RevertedBlocks: []RevertedBlockInfo{
				{BlockHash: gwtypes.Keccak256Hash([]byte("bad-block")), StakeOwnerLockHash: gwtypes.Keccak256Hash([]byte("stake-owner"))},
			},
		},
	}
	hash, err := c.HandleWaitChallenge(context.Background(), ev)
	require.NoError(t, err)
	require.False(t, hash.IsZero())
}

func TestHandleWaitChallengeImmature(t *testing.T) {
	l1 := &stubL1{rollupCell: haltingRollupCell(t)}
	c := newTestChallenger(t, l1)

	ev := WaitChallengeEvent{
		TipBlockNumber: 6,
		Context:        RevertContext{ChallengeTxBlockNumber: 5},
	}
	_, err := c.HandleWaitChallenge(context.Background(), ev)
	require.ErrorIs(t, err, ErrChallengeImmature)
}

func TestTestModeControlForcesTarget(t *testing.T) {
	tm := NewTestModeControl()
	_, ok := tm.ForcedTarget()
	require.False(t, ok)

	target := gwtypes.ChallengeTarget{BlockHash: gwtypes.Keccak256Hash([]byte("forced"))}
	tm.ForceTarget(target)
	got, ok := tm.ForcedTarget()
	require.True(t, ok)
	require.Equal(t, target, got)

	tm.Clear()
	_, ok = tm.ForcedTarget()
	require.False(t, ok)
}
