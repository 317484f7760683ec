package challenger

import (
	"context"
	"time"

	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/l1client"
)

// waitTxProposedTimeout and waitTxProposedPoll bound how long
// HandleBadChallenge waits for the verifier transaction to reach the
// Proposed stage before giving up, matching the original's 30s
// deadline polled every 3s.
const (
	waitTxProposedTimeout = 30 * time.Second
	waitTxProposedPoll    = 3 * time.Second
)

// HandleBadChallenge cancels a challenge filed against a block this
// node's local replay still considers valid. This is a two-phase
// process: first a verifier cell is created encoding the expected
// post-state of the disputed step and sent alone, so it can mature to
// Proposed (CKB requires a cell to be proposed before it can be spent
// in the same transaction that also spends its creating output);
// only then is the cancellation transaction built, consuming the
// rollup cell, the challenge cell, and the now-proposed verifier cell.
// If the cancellation transaction itself fails to send, a best-effort
// reclaim-verifier transaction is submitted so the verifier cell's
// capacity isn't left permanently locked.
func (c *Challenger) HandleBadChallenge(ctx context.Context, ev BadChallengeEvent) (gwtypes.H256, error) {
	rollup, err := c.queryRollupState(ctx)
	if err != nil {
		return gwtypes.H256{}, err
	}
	if rollup.state.Status == gwtypes.StatusRunning {
		return gwtypes.H256{}, ErrAlreadyRunning
	}

	verifierOutput := l1client.CellOutput{Capacity: 0, Lock: c.signer.Lock()}
	verifierData := ev.Context.ExpectedPostState.MerkleRoot.Bytes()

	verifierTx := l1client.Transaction{
		Outputs:     []l1client.CellOutput{verifierOutput},
		OutputsData: [][]byte{verifierData},
	}
	verifierDigest := gwtypes.Keccak256Hash(verifierData)
	verifierSig, err := c.signer.Sign(verifierDigest)
	if err != nil {
		return gwtypes.H256{}, err
	}
	verifierTx.Witnesses = [][]byte{verifierSig}
	verifierTx.Hash = verifierDigest

	verifierTxHash, err := c.dryRunAndSend(ctx, verifierTx, "cancel_challenge.verifier")
	if err != nil {
		return gwtypes.H256{}, err
	}

	if err := c.waitTxProposed(ctx, verifierTxHash); err != nil {
		return gwtypes.H256{}, err
	}

	verifierOutPoint := l1client.OutPoint{TxHash: verifierTxHash, Index: 0}

	next := rollup.state
	next.Status = gwtypes.StatusRunning

	cancelTx := l1client.Transaction{
		Inputs: []l1client.OutPoint{
			rollup.outPoint,
			ev.Cell.OutPoint,
			verifierOutPoint,
		},
		Outputs:     []l1client.CellOutput{rollup.output},
		OutputsData: [][]byte{next.MarshalBinary()},
	}
	cancelDigest := gwtypes.Keccak256Hash(cancelTx.OutputsData[0])
	cancelSig, err := c.signer.Sign(cancelDigest)
	if err != nil {
		return gwtypes.H256{}, err
	}
	cancelTx.Witnesses = [][]byte{cancelSig}
	cancelTx.Hash = cancelDigest

	hash, sendErr := c.dryRunAndSend(ctx, cancelTx, "cancel_challenge.cancel")
	if sendErr != nil {
		c.log.Error("cancel challenge failed, reclaiming verifier", "err", sendErr)
		if _, reclaimErr := c.ReclaimVerifier(ctx, verifierOutPoint, verifierOutput); reclaimErr != nil {
			c.log.Error("reclaim verifier also failed", "err", reclaimErr)
		}
		return gwtypes.H256{}, sendErr
	}
	return hash, nil
}

// waitTxProposed polls GetTransactionStatus until txHash reaches
// Proposed or Committed, or returns an error once either the deadline
// elapses or the transaction is reported unknown.
func (c *Challenger) waitTxProposed(ctx context.Context, txHash gwtypes.H256) error {
	deadline := waitTxProposedTimeout
	elapsed := time.Duration(0)
	for {
		status, err := c.l1.GetTransactionStatus(ctx, txHash)
		if err != nil {
			return err
		}
		switch status {
		case l1client.TxStatusProposed, l1client.TxStatusCommitted:
			return nil
		case l1client.TxStatusUnknown, l1client.TxStatusRejected:
			return ErrVerifierTxNotFound
		}
		if elapsed >= deadline {
			return ErrVerifierTxNotFound
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTxProposedPoll):
		}
		elapsed += waitTxProposedPoll
	}
}

// ReclaimVerifier submits a best-effort transaction reclaiming a
// verifier cell's capacity when it was never consumed by a
// cancellation transaction.
//
// FIXME: Support reclaim signature verifier cell. Remove additional
// signature requirement to unlock.
func (c *Challenger) ReclaimVerifier(ctx context.Context, verifierOutPoint l1client.OutPoint, verifierOutput l1client.CellOutput) (gwtypes.H256, error) {
	tx := l1client.Transaction{
		Inputs:      []l1client.OutPoint{verifierOutPoint},
		Outputs:     []l1client.CellOutput{{Capacity: verifierOutput.Capacity, Lock: c.signer.Lock()}},
		OutputsData: [][]byte{{}},
	}
	digest := gwtypes.Keccak256Hash([]byte("reclaim-verifier"), verifierOutPoint.TxHash[:])
	sig, err := c.signer.Sign(digest)
	if err != nil {
		return gwtypes.H256{}, err
	}
	tx.Witnesses = [][]byte{sig}
	tx.Hash = digest
	return c.dryRunAndSend(ctx, tx, "reclaim_verifier")
}
