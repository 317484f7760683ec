// Package blockproducer turns a packaged mem-block into a submitted
// L1 transaction: gate the PoA turn, build a RawL2Block from the
// mem-block's already computed checkpoints and post-state
// (generator.AssembleBlock), assemble the L1 cells that commit it, and
// dry-run before ever sending.
package blockproducer

import (
	"context"
	"errors"
	"time"

	"github.com/gwnode/gwnode/internal/config"
	"github.com/gwnode/gwnode/internal/generator"
	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/l1client"
	"github.com/gwnode/gwnode/internal/mempool"
	"github.com/gwnode/gwnode/internal/smt"
	"github.com/gwnode/gwnode/internal/store"
	"github.com/gwnode/gwnode/internal/wallet"
	"github.com/gwnode/gwnode/pkg/log"
	"github.com/gwnode/gwnode/pkg/metrics"
)

var (
	// ErrNotMyTurn is returned by ProduceAndSubmit when the PoA gate
	// determines this node does not hold the current production slot.
	ErrNotMyTurn = errors.New("blockproducer: not this node's PoA turn")
	// ErrDryRunFailed means EstimateCycles rejected the assembled
	// transaction; it is never sent to SendTransaction.
	ErrDryRunFailed = errors.New("blockproducer: dry run rejected assembled transaction")
	// ErrRollupCellNotFound means the current rollup cell could not be
	// located via the L1 indexer.
	ErrRollupCellNotFound = errors.New("blockproducer: rollup cell not found")
)

// Producer owns L2 block production and its L1 settlement.
type Producer struct {
	store  *store.Store
	acc    *smt.AccountSMT
	pool   *mempool.Pool
	l1     l1client.Client
	signer wallet.Signer
	gen    generator.Config
	cfg    config.BlockProducerConfig
	mpCfg  config.MemPoolConfig
	rollup config.RollupConfig
	metrics *metrics.Registry
	log    log.Logger
}

// New builds a Producer.
func New(st *store.Store, acc *smt.AccountSMT, pool *mempool.Pool, l1 l1client.Client, signer wallet.Signer, gen generator.Config, cfg config.BlockProducerConfig, mpCfg config.MemPoolConfig, rollup config.RollupConfig, reg *metrics.Registry, logger log.Logger) *Producer {
	return &Producer{
		store: st, acc: acc, pool: pool, l1: l1, signer: signer, gen: gen,
		cfg: cfg, mpCfg: mpCfg, rollup: rollup, metrics: reg,
		log: logger.Module("blockproducer"),
	}
}

// ProduceAndSubmit builds the next L2 block from the mem-pool's
// currently pending withdrawals, cached deposits, and fee-ordered
// transactions, assembles and signs the L1 transaction that commits
// it, dry-runs it, and sends it. retryCount is the packaging attempt
// number, supplied by the caller — 0 packages the pool's full pending
// set, a positive value asks OutputMemBlock to shrink the candidate.
// It returns the produced block's hash on success.
func (p *Producer) ProduceAndSubmit(ctx context.Context, retryCount int) (gwtypes.H256, error) {
	tx := p.store.Begin()
	defer tx.Rollback()

	tip, hasTip := tx.GetTipGlobalState()
	if !hasTip {
		return gwtypes.H256{}, errors.New("blockproducer: no tip to build on")
	}

	turn, err := p.checkTurn(ctx, tip.TipBlockNumber()+1)
	if err != nil {
		return gwtypes.H256{}, err
	}
	if !turn {
		return gwtypes.H256{}, ErrNotMyTurn
	}

	_, memBlock := p.pool.OutputMemBlock(ctx, retryCount)

	info := gwtypes.BlockInfo{
		Number:    tip.TipBlockNumber() + 1,
		Timestamp: uint64(time.Now().UnixMilli()),
	}
	withdrawalRoot := withdrawalWitnessRoot(memBlock.Withdrawals)
	txRoot := txWitnessRoot(memBlock.Txs)
	prevCheckpoint := smt.ComputeStateCheckpointFromTree(p.acc, tip.Account.Count)

	block, result := generator.AssembleBlock(info, tip.TipBlockHash, memBlock.Withdrawals, memBlock.Deposits, memBlock.Txs, memBlock.Checkpoints, memBlock.PostAccount, withdrawalRoot, txRoot, prevCheckpoint)
	if result.Outcome != generator.OutcomeSuccess {
		return gwtypes.H256{}, result.Err
	}

	l1tx, err := p.assembleSubmitBlockTx(ctx, block, memBlock.Withdrawals, memBlock.Deposits)
	if err != nil {
		return gwtypes.H256{}, err
	}

	if _, err := p.l1.EstimateCycles(ctx, l1tx); err != nil {
		p.log.Warn("dry run rejected block submission", "number", block.Info.Number, "err", err)
		return gwtypes.H256{}, errors.Join(ErrDryRunFailed, err)
	}

	hash, err := p.l1.SendTransaction(ctx, l1tx)
	if err != nil {
		return gwtypes.H256{}, err
	}

	if p.metrics != nil {
		p.metrics.BlocksProduced.Inc()
	}
	p.log.Info("block submitted", "number", block.Info.Number, "hash", block.Hash().Hex(), "l1_tx", hash.Hex())
	return block.Hash(), nil
}

func withdrawalWitnessRoot(withdrawals []gwtypes.WithdrawalRequestExtra) gwtypes.H256 {
	if len(withdrawals) == 0 {
		return gwtypes.H256{}
	}
	hashes := make([][]byte, len(withdrawals))
	for i, w := range withdrawals {
		h := w.Hash()
		hashes[i] = h[:]
	}
	return gwtypes.Keccak256Hash(hashes...)
}

func txWitnessRoot(txs []gwtypes.L2Transaction) gwtypes.H256 {
	if len(txs) == 0 {
		return gwtypes.H256{}
	}
	hashes := make([][]byte, len(txs))
	for i, t := range txs {
		h := t.Hash()
		hashes[i] = h[:]
	}
	return gwtypes.Keccak256Hash(hashes...)
}
