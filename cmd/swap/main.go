// Package main performs one retried swap from the command line: it prints the
// initial balances and vault status, runs the swap with monitoring and prints
// the final balances.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"aptos-vault-swap/internal/app"
	"aptos-vault-swap/internal/config"
	"aptos-vault-swap/internal/domain"
	"aptos-vault-swap/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg, err := config.Load(os.Getenv("SWAP_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	cfg.RegisterFlags(flag.CommandLine)
	amount := flag.Uint64("amount", 100_000, "Source asset amount in smallest units")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	logger, closeLog := logging.Setup(logging.Options{
		Service: "swap",
		Env:     cfg.Env,
		File:    cfg.Log.File,
		Level:   slog.LevelInfo,
	})
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer a.Close()

	logger.Info("vault swap client", "account", a.Account, "amount", *amount)

	initial := a.Orchestrator.Status(ctx)
	logger.Info("initial balances", "balances", initial.Balances)
	logger.Info("vault status",
		"vault_info", initial.Vault,
		"integration_info", initial.Integration,
		"swap_stats", initial.Swaps,
		"errors", initial.Errors,
	)

	report := a.Orchestrator.Run(ctx, *amount, cfg.Monitor.Enabled)

	out := struct {
		RunID   string                  `json:"run_id"`
		Result  domain.AttemptResponse  `json:"result"`
		Monitor *domain.MonitorResponse `json:"monitor,omitempty"`
	}{RunID: report.RunID, Result: report.Response()}
	if report.Monitor != nil {
		m := domain.NewMonitorResponse(report.Monitor.Handle, report.Monitor.Outcome)
		out.Monitor = &m
	}

	final := a.Orchestrator.Status(ctx)
	logger.Info("final balances", "balances", final.Balances)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error("encode result", "error", err)
	}

	if !report.Succeeded() {
		return 1
	}
	return 0
}
