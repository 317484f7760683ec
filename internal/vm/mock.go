package vm

import (
	"context"

	"github.com/gwnode/gwnode/internal/gwtypes"
)

// HandlerFunc computes a deterministic RunResult for a transaction
// against an account view, the shape a registered program actually
// implements under MockVM. Real backends would load and interpret
// bytecode; this one dispatches straight to Go functions registered
// per script hash, which is sufficient for a deterministic,
// cycle-metered execution model where "the program" is a fixed,
// known builtin (meta contract, SUDT contract, registry contract) or a
// test fixture.
type HandlerFunc func(ctx context.Context, tx gwtypes.RawL2Transaction, view AccountView) (RunResult, error)

// mockProgram wraps a HandlerFunc as a Program with a fixed load cost.
type mockProgram struct {
	handler    HandlerFunc
	loadCycles uint64
}

func (p mockProgram) LoadCycles() uint64 { return p.loadCycles }

// MockVM is a deterministic reference VM backend: each script hash
// maps to a registered handler function, and running a transaction
// simply invokes it and meters the handler-declared cycle cost plus
// the program's load cost against maxCycles.
type MockVM struct {
	programs map[gwtypes.H256]mockProgram
}

// NewMockVM builds an empty registry of script-hash -> handler.
func NewMockVM() *MockVM {
	return &MockVM{programs: make(map[gwtypes.H256]mockProgram)}
}

// Register binds scriptHash to a handler and its fixed load cost.
func (m *MockVM) Register(scriptHash gwtypes.H256, loadCycles uint64, handler HandlerFunc) {
	m.programs[scriptHash] = mockProgram{handler: handler, loadCycles: loadCycles}
}

// LoadProgram resolves the registered handler for the account's
// script hash.
func (m *MockVM) LoadProgram(ctx context.Context, scriptHash gwtypes.H256, view AccountView) (Program, error) {
	p, ok := m.programs[scriptHash]
	if !ok {
		return nil, ErrProgramNotLoaded
	}
	return p, nil
}

// Run invokes the loaded program's handler and enforces the cycle
// budget and data-size bounds on its result.
func (m *MockVM) Run(ctx context.Context, program Program, tx gwtypes.RawL2Transaction, view AccountView, maxCycles uint64) (RunResult, error) {
	p := program.(mockProgram)
	result, err := p.handler(ctx, tx, view)
	if err != nil {
		return RunResult{}, err
	}
	result.Cycles += p.loadCycles
	if result.Cycles > maxCycles {
		return RunResult{}, ErrCyclesExceeded
	}
	if err := result.Validate(); err != nil {
		return RunResult{}, err
	}
	return result, nil
}
