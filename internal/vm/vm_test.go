package vm

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/gwnode/gwnode/internal/gwtypes"
)

func TestMockVMRunMeteringAndExceeded(t *testing.T) {
	m := NewMockVM()
	scriptHash := gwtypes.Keccak256Hash([]byte("meta"))
	m.Register(scriptHash, 100, func(ctx context.Context, tx gwtypes.RawL2Transaction, view AccountView) (RunResult, error) {
		return RunResult{Cycles: 50, ExitCode: 0}, nil
	})

	program, err := m.LoadProgram(context.Background(), scriptHash, nil)
	require.NoError(t, err)

	result, err := m.Run(context.Background(), program, gwtypes.RawL2Transaction{}, nil, 1000)
	require.NoError(t, err)
	require.Equal(t, uint64(150), result.Cycles)

	_, err = m.Run(context.Background(), program, gwtypes.RawL2Transaction{}, nil, 100)
	require.ErrorIs(t, err, ErrCyclesExceeded)
}

func TestMockVMUnregisteredProgram(t *testing.T) {
	m := NewMockVM()
	_, err := m.LoadProgram(context.Background(), gwtypes.H256{}, nil)
	require.ErrorIs(t, err, ErrProgramNotLoaded)
}

func TestRunResultValidateBounds(t *testing.T) {
	big := make([]byte, MaxWriteDataBytes+1)
	result := RunResult{WriteData: map[gwtypes.H256][]byte{{}: big}}
	require.ErrorIs(t, result.Validate(), ErrWriteDataTooLarge)
}

func TestComputeFeePolyjuiceUsesSystemLog(t *testing.T) {
	result := RunResult{
		Cycles: 10000,
		Logs: []Log{
			{Service: polyjuiceSystemLogService, Data: []byte{100, 0, 0, 0, 0, 0, 0, 0}},
		},
	}
	fee := ComputeFee(BackendPolyjuice, result, uint256.NewInt(2))
	require.Equal(t, uint256.NewInt(200), fee)
}

func TestComputeFeePolyjuiceFallsBackToCycles(t *testing.T) {
	result := RunResult{Cycles: 10000}
	fee := ComputeFee(BackendPolyjuice, result, uint256.NewInt(2))
	require.Equal(t, uint256.NewInt(20000), fee)
}

func TestComputeFeeMetaUsesCycles(t *testing.T) {
	result := RunResult{Cycles: 500}
	fee := ComputeFee(BackendMeta, result, uint256.NewInt(3))
	require.Equal(t, uint256.NewInt(1500), fee)
}
