// Package main runs the swap service: HTTP API, websocket event push and
// Prometheus metrics in front of one orchestrator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aptos-vault-swap/internal/api"
	"aptos-vault-swap/internal/app"
	"aptos-vault-swap/internal/config"
	"aptos-vault-swap/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "swapd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	// Flags take their defaults from the loaded config, so the config path
	// comes from the environment.
	cfg, err := config.Load(os.Getenv("SWAP_CONFIG"))
	if err != nil {
		return err
	}
	cfg.RegisterFlags(flag.CommandLine)
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger, closeLog := logging.Setup(logging.Options{
		Service: "swapd",
		Env:     cfg.Env,
		File:    cfg.Log.File,
		Level:   level,
	})
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := api.NewServer(api.Config{
		Swapper: a.Orchestrator,
		Health:  a.Ledger,
		Info: api.Info{
			Account:        a.Account,
			VaultAddress:   cfg.VaultAddress,
			RouterAddress:  cfg.RouterAddress,
			SourceAsset:    cfg.SourceAsset,
			TargetAsset:    cfg.TargetAsset,
			MaxSlippage:    cfg.Swap.MaxSlippage,
			MinAmount:      cfg.Swap.MinAmount,
			MaxAmount:      cfg.Swap.MaxAmount,
			CooldownPeriod: int64(cfg.Swap.Cooldown.Seconds()),
			MaxRetries:     cfg.Swap.MaxRetries,
		},
		Events:     a.Events.Handler(),
		Limiter:    api.NewRateLimiter(cfg.Server.RequestsPerMinute, cfg.Server.Burst),
		Logger:     logger,
		TrustProxy: cfg.Server.TrustProxy,
	})
	if err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, initiating graceful shutdown", "signal", sig.String())
			cancel()
		case <-done:
			return
		}

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing immediate shutdown", "signal", sig.String())
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	logger.Info("swap service starting",
		"account", a.Account,
		"node_url", cfg.NodeURL,
		"vault", cfg.VaultAddress,
		"router", cfg.RouterAddress,
		"memory_journal", cfg.Storage.UseMemory,
	)
	err = srv.Run(ctx, cfg.Server.ListenAddress)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
