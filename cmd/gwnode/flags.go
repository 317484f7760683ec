package main

import (
	"github.com/urfave/cli/v2"

	"github.com/gwnode/gwnode/internal/config"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to the node's YAML configuration file",
	}
	modeFlag = &cli.StringFlag{
		Name:  "mode",
		Usage: "node mode: readonly or fullnode (overrides config file)",
	}
	storePathFlag = &cli.StringFlag{
		Name:  "store-path",
		Usage: "pebble store directory (overrides config file)",
	}
	l1RPCFlag = &cli.StringFlag{
		Name:  "l1-rpc-url",
		Usage: "L1 JSON-RPC endpoint (overrides config file)",
	}
	l1IndexerFlag = &cli.StringFlag{
		Name:  "l1-indexer-url",
		Usage: "L1 cell indexer endpoint (overrides config file)",
	}
	privateKeyFlag = &cli.StringFlag{
		Name:  "private-key-path",
		Usage: "hex-encoded secp256k1 private key file (fullnode mode only)",
	}
	metricsAddrFlag = &cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "address to serve Prometheus metrics on, empty to disable",
	}
	logFileFlag = &cli.StringFlag{
		Name:  "log-file",
		Usage: "rotating log file path; empty logs to stderr",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "log level: debug, info, warn, error",
		Value: "info",
	}
)

// nodeFlags is the full flag set gwnode accepts, grouped the way the
// teacher's own newFlagSet binds flags directly onto a Config.
var nodeFlags = []cli.Flag{
	configFlag,
	modeFlag,
	storePathFlag,
	l1RPCFlag,
	l1IndexerFlag,
	privateKeyFlag,
	metricsAddrFlag,
	logFileFlag,
	logLevelFlag,
}

// loadConfig builds a Config starting from any --config file, then
// applies flag overrides on top - the same "defaults, then file, then
// explicit override" layering the teacher's own config loading uses.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String(configFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if v := c.String(modeFlag.Name); v != "" {
		cfg.Mode = config.NodeMode(v)
	}
	if v := c.String(storePathFlag.Name); v != "" {
		cfg.StorePath = v
	}
	if v := c.String(l1RPCFlag.Name); v != "" {
		cfg.L1RPCURL = v
	}
	if v := c.String(l1IndexerFlag.Name); v != "" {
		cfg.L1IndexerURL = v
	}
	if v := c.String(privateKeyFlag.Name); v != "" {
		cfg.PrivateKeyPath = v
	}
	if v := c.String(metricsAddrFlag.Name); v != "" {
		cfg.MetricsAddr = v
	}
	if v := c.String(logFileFlag.Name); v != "" {
		cfg.LogFilePath = v
	}

	return cfg, cfg.Validate()
}
