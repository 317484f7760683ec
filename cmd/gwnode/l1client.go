package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/l1client"
)

// shutdownTimeout bounds how long Stop waits for subsystem goroutines
// to exit cleanly before giving up and returning anyway.
const shutdownTimeout = 15 * time.Second

// unconfiguredL1Client satisfies l1client.Client so gwnode can start
// and exercise its wiring without a concrete L1 RPC/indexer
// implementation linked in (out of scope for this module, see
// internal/l1client's package doc). Every call fails with a message
// naming the configured endpoint, so a real deployment notices
// immediately rather than getting silent zero values.
type unconfiguredL1Client struct {
	rpcURL     string
	indexerURL string
}

func (u unconfiguredL1Client) err() error {
	return fmt.Errorf("l1client: no concrete client configured (rpc=%q indexer=%q); link one in cmd/gwnode before running against a real chain", u.rpcURL, u.indexerURL)
}

func (u unconfiguredL1Client) GetBlock(ctx context.Context, hash gwtypes.H256) (l1client.Block, error) {
	return l1client.Block{}, u.err()
}

func (u unconfiguredL1Client) GetBlockByNumber(ctx context.Context, number uint64) (l1client.Block, error) {
	return l1client.Block{}, u.err()
}

func (u unconfiguredL1Client) GetTipBlockNumber(ctx context.Context) (uint64, error) {
	return 0, u.err()
}

func (u unconfiguredL1Client) GetCell(ctx context.Context, point l1client.OutPoint) (l1client.Cell, error) {
	return l1client.Cell{}, u.err()
}

func (u unconfiguredL1Client) GetLiveCell(ctx context.Context, point l1client.OutPoint, withData bool) (l1client.LiveCell, error) {
	return l1client.LiveCell{}, u.err()
}

func (u unconfiguredL1Client) EstimateCycles(ctx context.Context, tx l1client.Transaction) (uint64, error) {
	return 0, u.err()
}

func (u unconfiguredL1Client) SendTransaction(ctx context.Context, tx l1client.Transaction) (gwtypes.H256, error) {
	return gwtypes.H256{}, u.err()
}

func (u unconfiguredL1Client) GetTransactionStatus(ctx context.Context, hash gwtypes.H256) (l1client.TxStatus, error) {
	return l1client.TxStatusUnknown, u.err()
}

func (u unconfiguredL1Client) GetCells(ctx context.Context, key l1client.SearchKey, order l1client.SortOrder, limit uint32, cursor string) (l1client.CellPage, error) {
	return l1client.CellPage{}, u.err()
}
