package participant

import (
	"fmt"
	"time"

	"github.com/frederikgramkortegaard/tribune/internal/protocol"
)

// Config holds the participant configuration.
type Config struct {
	// Coordinator is the coordinator's endpoint.
	Coordinator protocol.Endpoint

	// Listen is the endpoint this participant serves and advertises.
	Listen protocol.Endpoint

	// HealthCheckInterval is how often the participant pings the coordinator.
	HealthCheckInterval time.Duration

	// CoordinatorTimeout bounds requests to the coordinator.
	CoordinatorTimeout time.Duration

	// ConnectionTimeout bounds connection establishment to peers.
	ConnectionTimeout time.Duration

	// ReadTimeout bounds peer request round trips.
	ReadTimeout time.Duration

	// EventTimeout is the oldest event age still accepted for processing.
	EventTimeout time.Duration

	// UseTLS speaks https to the coordinator and peers.
	UseTLS bool
}

// DefaultConfig returns the defaults, matching the documented knobs.
func DefaultConfig() Config {
	return Config{
		Coordinator:         protocol.Endpoint{Host: "localhost", Port: 8080},
		Listen:              protocol.Endpoint{Host: "localhost", Port: 9000},
		HealthCheckInterval: 10 * time.Second,
		CoordinatorTimeout:  5 * time.Second,
		ConnectionTimeout:   2 * time.Second,
		ReadTimeout:         5 * time.Second,
		EventTimeout:        30 * time.Second,
	}
}

// Validate rejects configurations the participant cannot run with.
func (c Config) Validate() error {
	if c.Coordinator.Host == "" || c.Coordinator.Port < 1 || c.Coordinator.Port > 65535 {
		return fmt.Errorf("config: invalid coordinator_endpoint %q", c.Coordinator.String())
	}

	if c.Listen.Host == "" || c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("config: invalid listen_endpoint %q", c.Listen.String())
	}

	if c.HealthCheckInterval < time.Second {
		return fmt.Errorf("config: health_check_interval %v, must be at least 1s", c.HealthCheckInterval)
	}

	if c.CoordinatorTimeout < time.Second {
		return fmt.Errorf("config: coordinator_timeout %v, must be at least 1s", c.CoordinatorTimeout)
	}

	if c.ConnectionTimeout <= 0 {
		return fmt.Errorf("config: connection_timeout %v, must be positive", c.ConnectionTimeout)
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("config: read_timeout %v, must be positive", c.ReadTimeout)
	}

	if c.EventTimeout < time.Second {
		return fmt.Errorf("config: event_timeout %v, must be at least 1s", c.EventTimeout)
	}

	return nil
}
