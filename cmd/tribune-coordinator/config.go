package main

import (
	"flag"

	"github.com/frederikgramkortegaard/tribune/internal/coordinator"
)

// cliConfig holds the coordinator command-line configuration.
type cliConfig struct {
	coordinator.Config

	// KeyPath is the path to the hex-encoded Ed25519 private key file.
	KeyPath string

	// Computation is the computation type announced by the periodic loop.
	Computation string

	// Verbose enables debug logging.
	Verbose bool
}

// parseFlags parses command-line flags into cliConfig.
func parseFlags() *cliConfig {
	cfg := &cliConfig{Config: coordinator.DefaultConfig()}

	flag.StringVar(&cfg.Host, "host", cfg.Host, "Listen host")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "Listen port")
	flag.IntVar(&cfg.MinParticipants, "min-participants", cfg.MinParticipants, "Minimum roster size for an event")
	flag.IntVar(&cfg.MaxParticipants, "max-participants", cfg.MaxParticipants, "Maximum participants per event")
	flag.DurationVar(&cfg.AnnounceInterval, "announce-interval", cfg.AnnounceInterval, "Interval between announced events")
	flag.DurationVar(&cfg.EventTimeout, "event-timeout", cfg.EventTimeout, "How long an event may wait for partials")
	flag.DurationVar(&cfg.PingInterval, "ping-interval", cfg.PingInterval, "Liveness loop interval")
	flag.DurationVar(&cfg.ClientTimeout, "client-timeout", cfg.ClientTimeout, "How long a silent participant stays registered")
	flag.BoolVar(&cfg.UseTLS, "tls", false, "Serve over TLS")
	flag.StringVar(&cfg.CertFile, "cert", "", "TLS certificate path (self-signed if empty)")
	flag.StringVar(&cfg.KeyFile, "cert-key", "", "TLS private key path")
	flag.StringVar(&cfg.KeyPath, "key", "", "Ed25519 private key path (generates new if missing)")
	flag.StringVar(&cfg.Computation, "computation", "sum", "Computation type for the periodic announcer")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	return cfg
}
