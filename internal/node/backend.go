package node

import (
	"github.com/gwnode/gwnode/internal/config"
	"github.com/gwnode/gwnode/internal/gwtypes"
	"github.com/gwnode/gwnode/internal/vm"
)

// configBackend implements generator.Backend by looking a script
// hash up in a fixed table built from config.BackendsConfig at
// startup - the rollup's builtin contracts (meta, SUDT, eth address
// registry, Polyjuice) never change script hash without a redeploy,
// so a static map is sufficient and avoids a live L1 lookup on every
// transaction.
type configBackend struct {
	table map[gwtypes.H256]vm.BackendType
}

// NewConfigBackend builds a generator.Backend from the configured
// builtin contract script hashes.
func NewConfigBackend(cfg config.BackendsConfig) *configBackend {
	b := &configBackend{table: make(map[gwtypes.H256]vm.BackendType)}
	if cfg.MetaScriptHash != "" {
		b.table[gwtypes.HexToH256(cfg.MetaScriptHash)] = vm.BackendMeta
	}
	if cfg.SUDTScriptHash != "" {
		b.table[gwtypes.HexToH256(cfg.SUDTScriptHash)] = vm.BackendSUDT
	}
	if cfg.EthAddrRegScriptHash != "" {
		b.table[gwtypes.HexToH256(cfg.EthAddrRegScriptHash)] = vm.BackendEthAddrReg
	}
	for _, h := range cfg.PolyjuiceScriptHashes {
		b.table[gwtypes.HexToH256(h)] = vm.BackendPolyjuice
	}
	return b
}

// BackendType implements generator.Backend.
func (b *configBackend) BackendType(scriptHash gwtypes.H256) (vm.BackendType, bool) {
	t, ok := b.table[scriptHash]
	return t, ok
}
