package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/frederikgramkortegaard/tribune/internal/coordinator"
	"github.com/frederikgramkortegaard/tribune/internal/crypto"
	"github.com/frederikgramkortegaard/tribune/internal/logger"
	"github.com/frederikgramkortegaard/tribune/internal/mpc"
)

// Exit codes: 1 for config or bind failures, 2 for crypto init failures.
const (
	exitStartup = 1
	exitCrypto  = 2
)

func main() {
	cfg := parseFlags()

	minLevel := slog.LevelInfo
	if cfg.Verbose {
		minLevel = slog.LevelDebug
	}

	logger.Init(minLevel)

	os.Exit(run(cfg))
}

// run is the main entry point with error handling.
func run(cfg *cliConfig) int {
	keys, err := crypto.LoadOrGenerateKeyPair(cfg.KeyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load key: %v\n", err)
		return exitCrypto
	}

	coord, err := coordinator.New(cfg.Config, keys)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: create coordinator: %v\n", err)
		return exitStartup
	}

	coord.Registry().Register(mpc.SecureSum{})

	if err := coord.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "error: start coordinator: %v\n", err)
		return exitStartup
	}

	go coord.RunAnnouncer(cfg.Computation, nil)

	logger.Info("coordinator running",
		"public_key", keys.Public,
		"computation", cfg.Computation,
		"min_participants", cfg.MinParticipants,
	)

	waitForSignal()

	if err := coord.Stop(); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("coordinator stopped")

	return 0
}

// waitForSignal blocks until SIGINT or SIGTERM.
func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}
