package coordinator

import (
	"fmt"
	"time"
)

// Config holds the coordinator configuration.
type Config struct {
	// Host is the listen host.
	Host string

	// Port is the listen port.
	Port int

	// MinParticipants is the smallest roster an event may be created from.
	MinParticipants int

	// MaxParticipants caps how many participants one event selects.
	MaxParticipants int

	// AnnounceInterval is how often the periodic announcement loop fires.
	AnnounceInterval time.Duration

	// EventTimeout is how long an active event may wait for partials.
	EventTimeout time.Duration

	// PingInterval is how often the liveness loop runs.
	PingInterval time.Duration

	// ClientTimeout is how long a silent participant stays in the roster.
	ClientTimeout time.Duration

	// UseTLS serves the endpoints over TLS. With empty cert and key files
	// a self-signed certificate is generated from the coordinator key.
	UseTLS bool

	// CertFile is the TLS certificate path.
	CertFile string

	// KeyFile is the TLS private key path.
	KeyFile string
}

// DefaultConfig returns the defaults, matching the documented knobs.
func DefaultConfig() Config {
	return Config{
		Host:             "localhost",
		Port:             8080,
		MinParticipants:  3,
		MaxParticipants:  10,
		AnnounceInterval: 40 * time.Second,
		EventTimeout:     120 * time.Second,
		PingInterval:     10 * time.Second,
		ClientTimeout:    30 * time.Second,
	}
}

// Validate rejects configurations the coordinator cannot run with.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("config: host must not be empty")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}

	if c.MinParticipants < 1 {
		return fmt.Errorf("config: min_participants %d, must be at least 1", c.MinParticipants)
	}

	if c.MaxParticipants < c.MinParticipants {
		return fmt.Errorf("config: max_participants %d below min_participants %d",
			c.MaxParticipants, c.MinParticipants)
	}

	if c.EventTimeout < time.Second {
		return fmt.Errorf("config: event_timeout %v, must be at least 1s", c.EventTimeout)
	}

	if c.PingInterval < time.Second {
		return fmt.Errorf("config: ping_interval %v, must be at least 1s", c.PingInterval)
	}

	if c.ClientTimeout < c.PingInterval {
		return fmt.Errorf("config: client_timeout %v below ping_interval %v",
			c.ClientTimeout, c.PingInterval)
	}

	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("config: cert_file and key_file must be set together")
	}

	return nil
}
