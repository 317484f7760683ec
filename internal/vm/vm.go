// Package vm defines the deterministic, cycle-metered execution
// interface the generator calls to run a layer-2 transaction or
// withdrawal/deposit side effect against a loaded program, plus a
// conservative reference backend used for tests and local dry-runs.
package vm

import (
	"context"
	"errors"

	"github.com/holiman/uint256"

	"github.com/gwnode/gwnode/internal/gwtypes"
)

const (
	// MaxWriteDataBytes bounds the total bytes a single run may write
	// to account data cells, matching the on-chain script's own limit
	// on witness size.
	MaxWriteDataBytes = 25 * 1024
	// MaxReadDataBytes bounds the total bytes a single run may read.
	MaxReadDataBytes = 25 * 1024
)

var (
	// ErrWriteDataTooLarge is returned when a run's accumulated writes
	// exceed MaxWriteDataBytes.
	ErrWriteDataTooLarge = errors.New("vm: write data exceeds size limit")
	// ErrReadDataTooLarge is returned when a run's accumulated reads
	// exceed MaxReadDataBytes.
	ErrReadDataTooLarge = errors.New("vm: read data exceeds size limit")
	// ErrProgramNotLoaded is returned by LoadProgram when no program is
	// loaded for the account being called.
	ErrProgramNotLoaded = errors.New("vm: no program loaded for account")
	// ErrCyclesExceeded is returned when a run's metered cycles exceed
	// the caller's supplied budget.
	ErrCyclesExceeded = errors.New("vm: cycle budget exceeded")
)

// ExitCode is the program's termination status. Zero is success;
// non-zero values are program-defined and surface unchanged to the
// generator's fraud-proof path, which only cares whether it is zero.
type ExitCode int8

// WriteOp is a single account-tree write a run produced: either a
// value-field write (nonce, script hash, SUDT balance, registry
// mapping) or a content-addressed data write.
type WriteOp struct {
	Key   gwtypes.H256
	Value gwtypes.H256
}

// RunResult is everything a VM run produces: the account-tree writes
// and any written data blobs, the keys/blobs it read along the way
// (needed to build a minimal fraud-proof witness), any emitted logs,
// a return value, the exit code, and the cycles actually consumed.
type RunResult struct {
	Writes     []WriteOp
	WriteData  map[gwtypes.H256][]byte
	Reads      []gwtypes.H256
	ReadData   map[gwtypes.H256][]byte
	Logs       []Log
	ReturnData []byte
	ExitCode   ExitCode
	Cycles     uint64
}

// Log is a single contract-emitted log entry, plain bytes whose
// interpretation is contract-specific (e.g. a Polyjuice system log
// encoding the actual EVM gas used).
type Log struct {
	AccountID gwtypes.AccountID
	Service   uint8
	Data      []byte
}

// TotalWriteBytes sums the bytes in WriteData, the figure
// MaxWriteDataBytes bounds.
func (r RunResult) TotalWriteBytes() int {
	n := 0
	for _, b := range r.WriteData {
		n += len(b)
	}
	return n
}

// TotalReadBytes sums the bytes in ReadData, the figure
// MaxReadDataBytes bounds.
func (r RunResult) TotalReadBytes() int {
	n := 0
	for _, b := range r.ReadData {
		n += len(b)
	}
	return n
}

// Validate enforces the write/read data size bounds on a completed run.
func (r RunResult) Validate() error {
	if r.TotalWriteBytes() > MaxWriteDataBytes {
		return ErrWriteDataTooLarge
	}
	if r.TotalReadBytes() > MaxReadDataBytes {
		return ErrReadDataTooLarge
	}
	return nil
}

// AccountView is the read-only account-tree surface a VM run is given;
// it is satisfied by internal/smt.AccountSMT and by any wrapper the
// mem-pool uses to overlay speculative state on top of it.
type AccountView interface {
	Nonce(id gwtypes.AccountID) uint32
	ScriptHash(id gwtypes.AccountID) (gwtypes.H256, bool)
	Script(hash gwtypes.H256) (gwtypes.Script, bool)
	Data(hash gwtypes.H256) ([]byte, bool)
	Balance(id gwtypes.AccountID, sudtScriptHash gwtypes.H256) *uint256.Int
	ResolveRegistryAddress(addr gwtypes.RegistryAddress) (gwtypes.H256, bool)
}

// VM executes a single transaction or context call against a loaded
// program. Implementations must be deterministic: the same (program,
// call context, account view) must always produce the same RunResult,
// since block verification replays runs on-chain implicitly via the
// fraud-proof protocol.
type VM interface {
	// LoadProgram resolves the executable bytecode for a script hash,
	// returning ErrProgramNotLoaded if the account's script isn't a
	// runnable program this backend recognizes.
	LoadProgram(ctx context.Context, scriptHash gwtypes.H256, view AccountView) (Program, error)
	// Run executes tx against the loaded program and the given
	// account view, metering cycles against maxCycles.
	Run(ctx context.Context, program Program, tx gwtypes.RawL2Transaction, view AccountView, maxCycles uint64) (RunResult, error)
}

// Program is an opaque loaded, runnable executable handle.
type Program interface {
	// LoadCycles reports the cycle cost of loading this program, charged
	// once per run against the caller's cycle budget.
	LoadCycles() uint64
}
