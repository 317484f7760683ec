// Command gwnode is the off-chain rollup node: depending on its
// configured mode it follows the L1 rollup cell as a read-only
// observer, or additionally produces blocks, challenges bad ones, and
// finalises withdrawals.
//
// Usage:
//
//	gwnode --config gwnode.yaml
//	gwnode --mode fullnode --store-path ./data --private-key-path ./key.hex
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/gwnode/gwnode/internal/l1client"
	"github.com/gwnode/gwnode/internal/node"
	"github.com/gwnode/gwnode/pkg/log"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.1.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "gwnode",
		Usage:   "optimistic rollup off-chain node",
		Version: fmt.Sprintf("%s (commit %s)", version, commit),
		Flags:   nodeFlags,
		Action:  run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "gwnode: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := parseLevel(c.String(logLevelFlag.Name))
	var logger log.Logger
	if cfg.LogFilePath != "" {
		logger = log.NewRotating(cfg.LogFilePath, level)
	} else {
		logger = log.NewStderr(level)
	}

	logger.Info("gwnode starting",
		"version", version, "commit", commit,
		"mode", cfg.Mode, "store_path", cfg.StorePath,
		"metrics_addr", cfg.MetricsAddr)

	// The concrete L1 JSON-RPC/indexer client is an injected
	// dependency this module does not implement (see
	// internal/l1client's doc comment); without one, gwnode still
	// starts but every L1-touching operation fails immediately. A real
	// deployment links a concrete l1client.Client implementation in
	// here instead of unconfiguredL1Client.
	l1 := newConfiguredL1Client(cfg.L1RPCURL, cfg.L1IndexerURL)

	n, err := node.New(cfg, node.Deps{L1: l1}, logger)
	if err != nil {
		return fmt.Errorf("build node: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := n.Start(ctx); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := n.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop node: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newConfiguredL1Client returns a usable l1client.Client even when no
// concrete RPC/indexer implementation is linked in: a client that
// fails every call with a clear configuration error rather than a nil
// pointer panic, so a misconfigured or library-only deployment gets a
// diagnosable error instead of a crash.
func newConfiguredL1Client(rpcURL, indexerURL string) l1client.Client {
	return unconfiguredL1Client{rpcURL: rpcURL, indexerURL: indexerURL}
}
