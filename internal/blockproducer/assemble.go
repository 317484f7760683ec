package blockproducer

import (
	"context"

	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/l1client"
)

// assembleSubmitBlockTx builds the L1 transaction that commits block:
// the rollup cell is consumed and recreated with the block's
// post-account merkle root as its data, the cell found for each
// deposit's script is added as an input, and each withdrawal gets its
// own withdrawal cell output. The rollup output's data is not a full
// encoded GlobalState, and the transaction has no stake cell input or
// output and no custodian cell outputs. It is signed here; the
// assembled transaction is always run through a dry-run estimate
// before being sent (see ProduceAndSubmit).
func (p *Producer) assembleSubmitBlockTx(ctx context.Context, block gwtypes.RawL2Block, withdrawals []gwtypes.WithdrawalRequestExtra, deposits []gwtypes.DepositRequest) (l1client.Transaction, error) {
	rollupOut, err := p.findRollupCell(ctx)
	if err != nil {
		return l1client.Transaction{}, err
	}

	inputs := []l1client.OutPoint{rollupOut}
	custodianCells, err := p.findCustodianCells(ctx, deposits)
	if err != nil {
		return l1client.Transaction{}, err
	}
	inputs = append(inputs, custodianCells...)

	outputs := []l1client.CellOutput{p.rollupCellOutput(block)}
	outputsData := [][]byte{block.PostAccount.MerkleRoot[:]}

	for _, w := range withdrawals {
		outputs = append(outputs, p.withdrawalCellOutput(w))
		outputsData = append(outputsData, w.Raw.Amount[:])
	}

	tx := l1client.Transaction{
		Inputs:      inputs,
		Outputs:     outputs,
		OutputsData: outputsData,
	}

	digest := gwtypes.Keccak256Hash(block.Hash().Bytes())
	sig, err := p.signer.Sign(digest)
	if err != nil {
		return l1client.Transaction{}, err
	}
	tx.Witnesses = [][]byte{sig}
	tx.Hash = digest
	return tx, nil
}

// findRollupCell locates the current rollup cell by its type script
// hash, the cell every submit_block transaction must consume.
func (p *Producer) findRollupCell(ctx context.Context) (l1client.OutPoint, error) {
	rollupTypeHash := gwtypes.HexToH256(p.rollup.RollupTypeHash)
	page, err := p.l1.GetCells(ctx, l1client.SearchKey{
		Script:     gwtypes.Script{CodeHash: rollupTypeHash, HashType: gwtypes.HashTypeType},
		ScriptType: l1client.ScriptTypeType,
	}, l1client.SortDesc, 1, "")
	if err != nil {
		return l1client.OutPoint{}, err
	}
	if len(page.Cells) == 0 {
		return l1client.OutPoint{}, ErrRollupCellNotFound
	}
	return page.Cells[0].OutPoint, nil
}

// findCustodianCells resolves the custodian cells backing this
// block's deposits, one per deposit script.
func (p *Producer) findCustodianCells(ctx context.Context, deposits []gwtypes.DepositRequest) ([]l1client.OutPoint, error) {
	points := make([]l1client.OutPoint, 0, len(deposits))
	for _, d := range deposits {
		page, err := p.l1.GetCells(ctx, l1client.SearchKey{
			Script:     d.Script,
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

func (p *Producer) rollupCellOutput(block gwtypes.RawL2Block) l1client.CellOutput {
	rollupTypeHash := gwtypes.HexToH256(p.rollup.RollupTypeHash)
	return l1client.CellOutput{
		Capacity: 0,
		Type:     &gwtypes.Script{CodeHash: rollupTypeHash, HashType: gwtypes.HashTypeType},
	}
}

func (p *Producer) withdrawalCellOutput(w gwtypes.WithdrawalRequestExtra) l1client.CellOutput {
	return l1client.CellOutput{
		Capacity: w.Raw.Capacity,
		Lock:     w.OwnerLock,
	}
}
