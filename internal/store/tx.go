package store

import "github.com/cockroachdb/pebble"

// undoOp records enough to reverse a single write: the absolute key,
// whether it had a prior value, and that value if so.
type undoOp struct {
	key      []byte
	hadPrior bool
	prior    []byte
}

// Tx is a speculative transaction over the store, used for block
// commits. Save-points let a caller (the chain synchroniser) undo part
// of a batch without discarding the whole of it. The mem-pool does not
// use Tx or its save-points: it undoes its speculative writes on the
// account tree itself (smt.AccountSMT.RollbackKeys).
type Tx struct {
	store     *Store
	batch     *pebble.Batch
	undo      []undoOp
	savepoints []int
}

func (tx *Tx) priorValue(key []byte) ([]byte, bool) {
	v, closer, err := tx.batch.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false
	}
	if err != nil {
		return nil, false
	}
	defer closer.Close()
	return append([]byte(nil), v...), true
}

func (tx *Tx) set(key, value []byte) {
	prior, had := tx.priorValue(key)
	tx.undo = append(tx.undo, undoOp{key: key, hadPrior: had, prior: prior})
	_ = tx.batch.Set(key, value, nil)
}

func (tx *Tx) delete(key []byte) {
	prior, had := tx.priorValue(key)
	if !had {
		return
	}
	tx.undo = append(tx.undo, undoOp{key: key, hadPrior: true, prior: prior})
	_ = tx.batch.Delete(key, nil)
}

func (tx *Tx) get(key []byte) ([]byte, bool) {
	v, ok := tx.priorValue(key)
	if ok {
		return v, true
	}
	val, closer, err := tx.store.db.Get(key)
	if err != nil {
		return nil, false
	}
	defer closer.Close()
	return append([]byte(nil), val...), true
}

// SetSavepoint marks the current point in the undo log so a later
// RollbackToSavepoint can undo everything written since.
func (tx *Tx) SetSavepoint() int {
	tx.savepoints = append(tx.savepoints, len(tx.undo))
	return len(tx.savepoints) - 1
}

// RollbackToSavepoint undoes every write made since the given
// save-point, unwinding back to before those writes touched anything.
func (tx *Tx) RollbackToSavepoint(sp int) error {
	if sp < 0 || sp >= len(tx.savepoints) {
		return ErrInvalidSavepoint
	}
	mark := tx.savepoints[sp]
	for i := len(tx.undo) - 1; i >= mark; i-- {
		op := tx.undo[i]
		if op.hadPrior {
			if err := tx.batch.Set(op.key, op.prior, nil); err != nil {
				return err
			}
		} else {
			if err := tx.batch.Delete(op.key, nil); err != nil {
				return err
			}
		}
	}
	tx.undo = tx.undo[:mark]
	tx.savepoints = tx.savepoints[:sp]
	return nil
}

// Commit applies the batch durably and discards the undo log.
func (tx *Tx) Commit() error {
	return tx.batch.Commit(pebble.Sync)
}

// Rollback discards the batch entirely without touching the store.
func (tx *Tx) Rollback() error {
	return tx.batch.Close()
}
