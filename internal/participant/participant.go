// Package participant implements the share-holding side of the platform:
// it registers with the coordinator, shards its private input for announced
// events, exchanges shares with peers and submits its partial result.
package participant

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/frederikgramkortegaard/tribune/internal/crypto"
	"github.com/frederikgramkortegaard/tribune/internal/dedup"
	"github.com/frederikgramkortegaard/tribune/internal/logger"
	"github.com/frederikgramkortegaard/tribune/internal/mpc"
	"github.com/frederikgramkortegaard/tribune/internal/pool"
	"github.com/frederikgramkortegaard/tribune/internal/protocol"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// coalesceDelay gives peers time to register an event locally before their
// shares for it arrive.
const coalesceDelay = 100 * time.Millisecond

// eventState tracks one locally known event and its collected shares.
// Shares are keyed by sender id; the self-share sits in the same map.
// State lives until the finalization task consumes it or the sweeper
// evicts it past the event timeout.
type eventState struct {
	event        *protocol.Event
	shares       map[string][]byte
	registeredAt time.Time
	computing    bool
}

// Participant is one member of the fleet. Create with New, register
// computations and a data source, then Connect and Start.
type Participant struct {
	id       string
	cfg      Config
	keys     crypto.KeyPair
	registry *mpc.Registry
	source   mpc.DataSource
	clock    clockwork.Clock

	coordKey string // coordKey is the coordinator's public key, set by Connect
	coordMu  sync.RWMutex

	active map[string]*eventState
	mu     sync.RWMutex

	recentEvents *dedup.Cache
	recentShares *dedup.Cache

	coordPool *pool.Pool // coordPool talks to the coordinator
	peerPool  *pool.Pool // peerPool talks to fleet peers

	server   *http.Server
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a participant with a fresh random identifier.
func New(cfg Config, keys crypto.KeyPair, source mpc.DataSource) (*Participant, error) {
	return NewWithClock(cfg, keys, source, clockwork.NewRealClock())
}

// NewWithClock creates a participant using the given clock. Used by tests.
func NewWithClock(cfg Config, keys crypto.KeyPair, source mpc.DataSource, clock clockwork.Clock) (*Participant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if source == nil {
		return nil, fmt.Errorf("participant: nil data source")
	}

	return &Participant{
		id:           "participant-" + uuid.NewString(),
		cfg:          cfg,
		keys:         keys,
		registry:     mpc.NewRegistry(),
		source:       source,
		clock:        clock,
		active:       make(map[string]*eventState),
		recentEvents: dedup.NewWithClock(dedup.DefaultTTL, dedup.DefaultScanEvery, clock),
		recentShares: dedup.NewWithClock(dedup.DefaultTTL, dedup.DefaultScanEvery, clock),
		coordPool: pool.New(pool.Options{
			ConnectTimeout: cfg.ConnectionTimeout,
			RequestTimeout: cfg.CoordinatorTimeout,
			TLS:            cfg.UseTLS,
		}),
		peerPool: pool.New(pool.Options{
			ConnectTimeout: cfg.ConnectionTimeout,
			RequestTimeout: cfg.ReadTimeout,
			TLS:            cfg.UseTLS,
		}),
		stop: make(chan struct{}),
	}, nil
}

// ID returns the participant's identifier.
func (p *Participant) ID() string {
	return p.id
}

// PublicKey returns the participant's hex-encoded public key.
func (p *Participant) PublicKey() string {
	return p.keys.Public
}

// Listen returns the endpoint this participant serves on.
func (p *Participant) Listen() protocol.Endpoint {
	return p.cfg.Listen
}

// Registry exposes the computation registry so callers can register
// computation types before Start.
func (p *Participant) Registry() *mpc.Registry {
	return p.registry
}

// Start binds the listen endpoint and launches the HTTP server and the
// ping loop. Bind errors are reported synchronously. Call Connect first so
// the coordinator key is known before events arrive.
func (p *Participant) Start() error {
	addr := p.cfg.Listen.String()

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}

	p.server = &http.Server{
		Handler:      p.routes(),
		ReadTimeout:  p.cfg.ReadTimeout,
		WriteTimeout: p.cfg.ReadTimeout,
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		logger.Info("participant listening", "participant", p.id, "addr", addr)

		if err := p.server.Serve(listener); err != http.ErrServerClosed {
			logger.Error("http server error", "participant", p.id, "error", err)
		}
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runPinger()
	}()

	return nil
}

// Stop shuts the server down and waits for the background loops. Safe to
// call more than once.
func (p *Participant) Stop() error {
	var err error

	p.stopOnce.Do(func() {
		close(p.stop)

		if p.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			err = p.server.Shutdown(ctx)
		}

		p.wg.Wait()
	})

	return err
}

// coordinatorKey returns the coordinator public key learned at Connect.
func (p *Participant) coordinatorKey() string {
	p.coordMu.RLock()
	defer p.coordMu.RUnlock()

	return p.coordKey
}
