package main

import (
	"flag"

	"github.com/frederikgramkortegaard/tribune/internal/participant"
	"github.com/frederikgramkortegaard/tribune/internal/protocol"
)

// cliConfig holds the participant command-line configuration.
type cliConfig struct {
	participant.Config

	// KeyPath is the path to the hex-encoded Ed25519 private key file.
	KeyPath string

	// Value is the fixed private input contributed to sum events. With
	// -random the input is drawn uniformly in [0, value) per event instead.
	Value int64

	// Random draws a fresh random input per event.
	Random bool

	// Verbose enables debug logging.
	Verbose bool
}

// parseFlags parses command-line flags into cliConfig.
func parseFlags() *cliConfig {
	cfg := &cliConfig{Config: participant.DefaultConfig()}

	var coordHost, listenHost string
	var coordPort, listenPort int

	flag.StringVar(&coordHost, "coordinator-host", cfg.Coordinator.Host, "Coordinator host")
	flag.IntVar(&coordPort, "coordinator-port", cfg.Coordinator.Port, "Coordinator port")
	flag.StringVar(&listenHost, "host", cfg.Listen.Host, "Listen host, advertised to peers")
	flag.IntVar(&listenPort, "port", cfg.Listen.Port, "Listen port")
	flag.DurationVar(&cfg.HealthCheckInterval, "health-interval", cfg.HealthCheckInterval, "Coordinator ping interval")
	flag.DurationVar(&cfg.CoordinatorTimeout, "coordinator-timeout", cfg.CoordinatorTimeout, "Coordinator request timeout")
	flag.DurationVar(&cfg.ConnectionTimeout, "connect-timeout", cfg.ConnectionTimeout, "Peer connection timeout")
	flag.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "Peer request timeout")
	flag.DurationVar(&cfg.EventTimeout, "event-timeout", cfg.EventTimeout, "Oldest accepted event age")
	flag.BoolVar(&cfg.UseTLS, "tls", false, "Speak https to coordinator and peers")
	flag.StringVar(&cfg.KeyPath, "key", "", "Ed25519 private key path (generates new if missing)")
	flag.Int64Var(&cfg.Value, "value", 42, "Private input value")
	flag.BoolVar(&cfg.Random, "random", false, "Draw a random input per event instead of -value")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	cfg.Coordinator = protocol.Endpoint{Host: coordHost, Port: coordPort}
	cfg.Listen = protocol.Endpoint{Host: listenHost, Port: listenPort}

	return cfg
}
