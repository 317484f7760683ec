package vm

import (
	"encoding/binary"

	"github.com/holiman/uint256"
)

// BackendType distinguishes the built-in account backends a
// transaction's to_id script hash resolves to, each of which charges
// fees differently.
type BackendType uint8

const (
	BackendMeta BackendType = iota
	BackendSUDT
	BackendEthAddrReg
	BackendPolyjuice
)

// polyjuiceSystemLogService identifies the Polyjuice system log that
// carries the actual EVM gas used, distinct from user-emitted logs.
const polyjuiceSystemLogService uint8 = 0xff

// ComputeFee derives the fee (in the native SUDT) owed for a run,
// dispatching on the backend the transaction's to_id resolved to.
// Meta, SUDT, and EthAddrReg transactions charge a fixed cost per
// cycle consumed; Polyjuice charges per unit of EVM gas actually used,
// which is reported via a system log rather than the VM's own cycle
// count (Polyjuice's cycle cost reflects interpreter overhead, not the
// gas model a caller is billed under).
func ComputeFee(backend BackendType, result RunResult, feeRate *uint256.Int) *uint256.Int {
	switch backend {
	case BackendPolyjuice:
		gasUsed := polyjuiceGasUsed(result)
		return new(uint256.Int).Mul(uint256.NewInt(gasUsed), feeRate)
	default:
		return new(uint256.Int).Mul(uint256.NewInt(result.Cycles), feeRate)
	}
}

// polyjuiceGasUsed extracts the EVM gas used from the run's system
// log. If no system log is present (e.g. the call reverted before the
// interpreter emitted one), it falls back to charging for the full
// cycle count, which over-charges relative to metered-gas billing but
// never under-charges a failed call.
func polyjuiceGasUsed(result RunResult) uint64 {
	for _, log := range result.Logs {
		if log.Service == polyjuiceSystemLogService && len(log.Data) >= 8 {
			return binary.LittleEndian.Uint64(log.Data[:8])
		}
	}
	return result.Cycles
}
