package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/frederikgramkortegaard/tribune/internal/crypto"
	"github.com/frederikgramkortegaard/tribune/internal/logger"
	"github.com/frederikgramkortegaard/tribune/internal/mpc"
	"github.com/frederikgramkortegaard/tribune/internal/participant"
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

	var source mpc.DataSource = &mpc.FixedSource{Value: cfg.Value}
	if cfg.Random {
		source = &mpc.RandomSource{Max: cfg.Value}
	}

	part, err := participant.New(cfg.Config, keys, source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: create participant: %v\n", err)
		return exitStartup
	}

	part.Registry().Register(mpc.SecureSum{})

	if err := part.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "error: start participant: %v\n", err)
		return exitStartup
	}

	if err := part.Connect(); err != nil {
		// The pinger retries registration, so a cold coordinator is not fatal.
		logger.Warn("initial connect failed", "error", err)
	}

	logger.Info("participant running",
		"participant", part.ID(),
		"coordinator", cfg.Coordinator.String(),
		"listen", cfg.Listen.String(),
	)

	waitForSignal()

	if err := part.Stop(); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("participant stopped")

	return 0
}

// waitForSignal blocks until SIGINT or SIGTERM.
func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}
