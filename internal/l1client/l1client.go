// Package l1client defines the settlement-layer RPC and indexer
// surface the rest of this node calls against. Only interfaces live
// here: the concrete client (a JSON-RPC implementation over the L1
// node's API) is intentionally out of scope, matching the spec's
// treatment of L1 connectivity as an injected dependency rather than
// something this module reimplements.
package l1client

import (
	"context"

	"github.com/gwnode/gwnode/internal/gwtypes"
)

// OutPoint identifies a single cell: the transaction that created it
// plus its output index.
type OutPoint struct {
	TxHash gwtypes.H256
	Index  uint32
}

// CellOutput is a cell's lock/type scripts and capacity, without its
// data payload.
type CellOutput struct {
	Capacity uint64
	Lock     gwtypes.Script
	Type     *gwtypes.Script
}

// Cell bundles a cell's location, output, and data.
type Cell struct {
	OutPoint OutPoint
	Output   CellOutput
	Data     []byte
}

// LiveCell is a Cell plus the block it currently lives in, returned by
// GetLiveCell for cells the caller intends to consume as a tx input.
type LiveCell struct {
	Cell
	BlockHash   gwtypes.H256
	BlockNumber uint64
}

// Transaction is a minimal L1 transaction view: its inputs (by
// out-point) and its outputs plus their data, sufficient to replay a
// rollup-cell state transition without a full L1 node's transaction
// model.
type Transaction struct {
	Hash    gwtypes.H256
	Inputs  []OutPoint
	Outputs []CellOutput
	OutputsData [][]byte
	Witnesses [][]byte
}

// Block is a minimal L1 block view.
type Block struct {
	Hash         gwtypes.H256
	ParentHash   gwtypes.H256
	Number       uint64
	Timestamp    uint64
	Transactions []Transaction
}

// SortOrder is the indexer query result ordering.
type SortOrder uint8

const (
	SortAsc SortOrder = iota
	SortDesc
)

// SearchKey selects cells by lock or type script, the same shape the
// teacher's indexer client
// exposes for CKB-style cell queries.
type SearchKey struct {
	Script     gwtypes.Script
	ScriptType ScriptType
}

// ScriptType distinguishes whether SearchKey.Script matches as a lock
// or a type script.
type ScriptType uint8

const (
	ScriptTypeLock ScriptType = iota
	ScriptTypeType
)

// CellPage is one page of an indexer cell query, with an opaque cursor
// for fetching the next page.
type CellPage struct {
	Cells  []Cell
	Cursor string
}

// Client is the settlement-layer RPC surface: direct node queries plus
// indexer-backed cell search, everything the chain synchroniser,
// block producer, challenger, and withdrawal settler need to observe
// and mutate L1 state.
type Client interface {
	GetBlock(ctx context.Context, hash gwtypes.H256) (Block, error)
	GetBlockByNumber(ctx context.Context, number uint64) (Block, error)
	GetTipBlockNumber(ctx context.Context) (uint64, error)
	GetCell(ctx context.Context, point OutPoint) (Cell, error)
	GetLiveCell(ctx context.Context, point OutPoint, withData bool) (LiveCell, error)
	EstimateCycles(ctx context.Context, tx Transaction) (uint64, error)
	SendTransaction(ctx context.Context, tx Transaction) (gwtypes.H256, error)
	GetTransactionStatus(ctx context.Context, hash gwtypes.H256) (TxStatus, error)

	// GetCells runs an indexer cell search, paginating via cursor
	// (empty cursor starts from the beginning).
	GetCells(ctx context.Context, key SearchKey, order SortOrder, limit uint32, cursor string) (CellPage, error)
}

// TxStatus is an L1 transaction's confirmation state.
type TxStatus uint8

const (
	TxStatusUnknown TxStatus = iota
	TxStatusPending
	TxStatusProposed
	TxStatusCommitted
	TxStatusRejected
)
