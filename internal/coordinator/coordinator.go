// Package coordinator implements the event-issuing side of the platform:
// it registers participants, announces signed events, collects partial
// results and aggregates them into final outcomes.
package coordinator

import (
	"context"
	crand "crypto/rand"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/frederikgramkortegaard/tribune/internal/crypto"
	"github.com/frederikgramkortegaard/tribune/internal/logger"
	"github.com/frederikgramkortegaard/tribune/internal/mpc"
	"github.com/frederikgramkortegaard/tribune/internal/pool"
	"github.com/frederikgramkortegaard/tribune/internal/roster"
	"github.com/jonboulle/clockwork"
)

// Coordinator ties the roster, the aggregation engine and the HTTP
// endpoints together. Create with New, then Start and Stop.
type Coordinator struct {
	cfg      Config
	keys     crypto.KeyPair
	roster   *roster.Roster
	engine   *Engine
	registry *mpc.Registry
	pool     *pool.Pool
	clock    clockwork.Clock

	rng   *rand.Rand // rng drives participant selection
	rngMu sync.Mutex

	server   *http.Server
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a coordinator from the given config and key material.
func New(cfg Config, keys crypto.KeyPair) (*Coordinator, error) {
	return NewWithClock(cfg, keys, clockwork.NewRealClock())
}

// NewWithClock creates a coordinator using the given clock. Used by tests.
func NewWithClock(cfg Config, keys crypto.KeyPair, clock clockwork.Clock) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry := mpc.NewRegistry()
	ros := roster.NewWithClock(clock)

	var seed [8]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("seed selection rng: %w", err)
	}

	return &Coordinator{
		cfg:      cfg,
		keys:     keys,
		roster:   ros,
		engine:   NewEngine(registry, ros, cfg.EventTimeout, clock),
		registry: registry,
		pool: pool.New(pool.Options{
			TLS: cfg.UseTLS,
		}),
		clock: clock,
		rng:   rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(seed[:])))),
		stop:  make(chan struct{}),
	}, nil
}

// Registry exposes the computation registry so callers can register
// computation types before Start.
func (c *Coordinator) Registry() *mpc.Registry {
	return c.registry
}

// PublicKey returns the coordinator's hex-encoded public key.
func (c *Coordinator) PublicKey() string {
	return c.keys.Public
}

// Start binds the listen address and launches the HTTP server, the event
// sweeper and the liveness loop. Bind errors are reported synchronously.
func (c *Coordinator) Start() error {
	addr := net.JoinHostPort(c.cfg.Host, fmt.Sprintf("%d", c.cfg.Port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}

	c.server = &http.Server{
		Handler:      c.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	if c.cfg.UseTLS {
		tlsConfig, err := c.tlsConfig()
		if err != nil {
			listener.Close()
			return err
		}

		listener = tls.NewListener(listener, tlsConfig)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		logger.Info("coordinator listening",
			"addr", addr,
			"tls", c.cfg.UseTLS,
			"public_key", c.keys.Public[:8],
		)

		if err := c.server.Serve(listener); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.engine.RunSweeper(c.stop)
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runLiveness()
	}()

	return nil
}

// Stop shuts the server down and waits for the background loops. Safe to
// call more than once.
func (c *Coordinator) Stop() error {
	var err error

	c.stopOnce.Do(func() {
		close(c.stop)

		if c.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			err = c.server.Shutdown(ctx)
		}

		c.wg.Wait()
	})

	return err
}

// tlsConfig builds the server TLS config from the configured files, or a
// self-signed certificate derived from the coordinator key.
func (c *Coordinator) tlsConfig() (*tls.Config, error) {
	if c.cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.cfg.CertFile, c.cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load tls keypair: %w", err)
		}

		return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
	}

	cert, err := crypto.SelfSignedCertificate(c.keys.Private, []string{c.cfg.Host})
	if err != nil {
		return nil, fmt.Errorf("self-signed certificate: %w", err)
	}

	logger.Warn("serving with self-signed certificate", "host", c.cfg.Host)

	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}
