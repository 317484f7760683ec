// Package config defines the node's on-disk configuration and its YAML
// loading. Command-line flags are parsed separately, in cmd/gwnode.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NodeMode selects which roles this process runs: a read-only
// follower never produces blocks or challenges; a full node also
// participates in block production, challenging, and withdrawal
// finalisation.
type NodeMode string

const (
	NodeModeReadOnly NodeMode = "readonly"
	NodeModeFullNode NodeMode = "fullnode"
)

// RollupConfig mirrors the on-chain rollup configuration cell: the
// parameters that must match exactly what the L1 rollup type script
// was deployed with.
type RollupConfig struct {
	RollupTypeHash      string   `yaml:"rollup_type_hash"`
	ChainID             uint64   `yaml:"chain_id"`
	FinalityBlocks      uint64   `yaml:"finality_blocks"`
	ChallengeMaturityBlocks uint64 `yaml:"challenge_maturity_blocks"`
	RewardBurnRateMilli uint32   `yaml:"reward_burn_rate_milli"`
	AllowedEOATypeHashes []string `yaml:"allowed_eoa_type_hashes"`
}

// ChallengerConfig configures the challenger's reward/burn destinations
// for a successful revert.
type ChallengerConfig struct {
	RewardsReceiverLock string `yaml:"rewards_receiver_lock"`
	BurnLock            string `yaml:"burn_lock"`
}

// BlockProducerConfig configures block production cadence and the
// PoA gate check.
type BlockProducerConfig struct {
	BlockIntervalMS uint64 `yaml:"block_interval_ms"`
	PoAOwnerLockHash string `yaml:"poa_owner_lock_hash"`
}

// MemPoolConfig configures mem-pool admission and packaging limits.
type MemPoolConfig struct {
	MaxPendingTxs      int    `yaml:"max_pending_txs"`
	MaxCyclesPerBlock  uint64 `yaml:"max_cycles_per_block"`
	FeePriorityBatchSize int  `yaml:"fee_priority_batch_size"`
	FeePriorityPeriodMS  int  `yaml:"fee_priority_period_ms"`
	ReorgReplayDepth     uint64 `yaml:"reorg_replay_depth"`
}

// WithdrawalConfig configures the finalised-withdrawal settler.
type WithdrawalConfig struct {
	MaxFinalizeBlocks     int `yaml:"max_finalize_blocks"`
	MaxFinalizeWithdrawals int `yaml:"max_finalize_withdrawals"`
}

// BackendsConfig binds the well-known contract script hashes deployed
// alongside this rollup to the vm.BackendType the generator dispatches
// fee computation and cycle accounting by, since nothing about a
// script hash intrinsically says which builtin account it is.
type BackendsConfig struct {
	MetaScriptHash        string   `yaml:"meta_script_hash"`
	SUDTScriptHash        string   `yaml:"sudt_script_hash"`
	EthAddrRegScriptHash  string   `yaml:"eth_addr_reg_script_hash"`
	PolyjuiceScriptHashes []string `yaml:"polyjuice_script_hashes"`
}

// WalletConfig names the lock script this node's signer authorizes
// spends under; its args are derived from the loaded private key's
// public key hash at startup, so only the code hash/hash type (which
// contract the lock script runs) are configured here.
type WalletConfig struct {
	LockCodeHash string `yaml:"lock_code_hash"`
	LockHashType string `yaml:"lock_hash_type"` // "data" or "type"
}

// Config is the node's complete configuration.
type Config struct {
	Mode         NodeMode            `yaml:"mode"`
	StorePath    string              `yaml:"store_path"`
	L1RPCURL     string              `yaml:"l1_rpc_url"`
	L1IndexerURL string              `yaml:"l1_indexer_url"`
	PrivateKeyPath string            `yaml:"private_key_path"`
	Rollup       RollupConfig        `yaml:"rollup"`
	BlockProducer BlockProducerConfig `yaml:"block_producer"`
	Challenger   ChallengerConfig    `yaml:"challenger"`
	MemPool      MemPoolConfig       `yaml:"mem_pool"`
	Withdrawal   WithdrawalConfig    `yaml:"withdrawal"`
	Wallet       WalletConfig        `yaml:"wallet"`
	Backends     BackendsConfig      `yaml:"backends"`
	MetricsAddr  string              `yaml:"metrics_addr"`
	LogFilePath  string              `yaml:"log_file_path"`
	PollIntervalMS uint64            `yaml:"poll_interval_ms"`
}

// Default returns a Config with the spec's documented default bounds
// filled in, to be overridden by a loaded file.
func Default() Config {
	return Config{
		Mode:      NodeModeReadOnly,
		StorePath: "./data",
		Rollup: RollupConfig{
			ChallengeMaturityBlocks: 100,
		},
		MemPool: MemPoolConfig{
			MaxPendingTxs:         10000,
			MaxCyclesPerBlock:     7_000_000,
			FeePriorityBatchSize:  20,
			FeePriorityPeriodMS:   100,
			ReorgReplayDepth:      64,
		},
		Withdrawal: WithdrawalConfig{
			MaxFinalizeBlocks:      10,
			MaxFinalizeWithdrawals: 50,
		},
		Wallet: WalletConfig{
			LockHashType: "type",
		},
		MetricsAddr:    "127.0.0.1:9090",
		PollIntervalMS: 3000,
	}
}

// Load reads and parses a YAML config file, starting from Default()
// so an incomplete file still yields workable bounds.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the handful of invariants the rest of this module
// assumes hold without re-checking.
func (c Config) Validate() error {
	if c.Mode != NodeModeReadOnly && c.Mode != NodeModeFullNode {
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.Mode == NodeModeFullNode && c.PrivateKeyPath == "" {
		return fmt.Errorf("config: fullnode mode requires private_key_path")
	}
	if c.MemPool.ReorgReplayDepth == 0 {
		return fmt.Errorf("config: mem_pool.reorg_replay_depth must be positive")
	}
	if c.Withdrawal.MaxFinalizeWithdrawals <= 0 {
		return fmt.Errorf("config: withdrawal.max_finalize_withdrawals must be positive")
	}
	return nil
}
