// Package store persists chain state: blocks, transactions,
// withdrawals, the custodian asset ledger, and the block-state-record
// index used to detach reverted blocks. It is backed by pebble, the
// same LSM-tree store the teacher uses for its trie/state backend.
package store

import (
	"github.com/cockroachdb/pebble"

	"github.com/gwnode/gwnode/internal/gwtypes"
)

// Column prefixes multiplex pebble's single flat keyspace the way a
// column-family store would, one byte per logical table.
const (
	colBlockByNumber   byte = 0x01
	colBlockByHash     byte = 0x02
	colTxByHash        byte = 0x03
	colTxBlockNumber   byte = 0x04
	colWithdrawalByHash byte = 0x05
	colTip             byte = 0x06
	colCustodian       byte = 0x07
	colFinalizeFrontier byte = 0x08
	colStateRecord     byte = 0x09
	colLastFinalizeTx  byte = 0x0a
)

var tipKey = []byte{colTip}
var finalizeFrontierKey = []byte{colFinalizeFrontier}
var lastFinalizeTxKey = []byte{colLastFinalizeTx}

// Store is the chain's persistent backing store.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if absent) a pebble database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func colKey(col byte, key []byte) []byte {
	b := make([]byte, 1+len(key))
	b[0] = col
	copy(b[1:], key)
	return b
}

func numberKey(n uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(n >> (8 * i))
	}
	return b
}

// Begin starts a new transaction with its own save-point stack.
func (s *Store) Begin() *Tx {
	return &Tx{store: s, batch: s.db.NewIndexedBatch()}
}

// Snapshot returns a read-only, point-in-time view of the store.
func (s *Store) Snapshot() *Snapshot {
	return &Snapshot{snap: s.db.NewSnapshot()}
}

// Snapshot is a consistent read-only view, used by RPC reads and by
// the mem-pool when it needs to read committed state while a
// speculative transaction is open.
type Snapshot struct {
	snap *pebble.Snapshot
}

// Close releases the snapshot.
func (s *Snapshot) Close() error { return s.snap.Close() }

func (s *Snapshot) get(key []byte) ([]byte, bool) {
	v, closer, err := s.snap.Get(key)
	if err != nil {
		return nil, false
	}
	defer closer.Close()
	out := append([]byte(nil), v...)
	return out, true
}

// GetTipGlobalState returns the most recently committed GlobalState.
func (s *Snapshot) GetTipGlobalState() (gwtypes.GlobalState, bool) {
	v, ok := s.get(tipKey)
	if !ok {
		return gwtypes.GlobalState{}, false
	}
	return decodeGlobalState(v), true
}
