package coordinator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/frederikgramkortegaard/tribune/internal/logger"
	"github.com/frederikgramkortegaard/tribune/internal/mpc"
	"github.com/frederikgramkortegaard/tribune/internal/protocol"
	"github.com/frederikgramkortegaard/tribune/internal/roster"
	"github.com/frederikgramkortegaard/tribune/internal/telemetry"
	"github.com/jonboulle/clockwork"
)

// sweepInterval is how often the engine checks active events for expiry.
const sweepInterval = 5 * time.Second

// ErrEventTimeout reports that an event expired before all partials arrived.
var ErrEventTimeout = errors.New("event timed out before completion")

// Outcome is what an event's result sink eventually carries: the final
// aggregated bytes, or the error that ended the event.
type Outcome struct {
	Value []byte
	Err   error
}

// activeEvent tracks one announced event until completion or expiry.
type activeEvent struct {
	event      *protocol.Event
	expected   int
	createdAt  time.Time
	partials   map[string][]byte
	sink       chan Outcome
	finalizing bool
}

// Engine collects partial results for active events and aggregates them
// once every expected partial has arrived. A background sweeper evicts
// events older than the configured timeout.
type Engine struct {
	events   map[string]*activeEvent
	mu       sync.RWMutex
	registry *mpc.Registry
	roster   *roster.Roster
	clock    clockwork.Clock
	timeout  time.Duration
}

// NewEngine creates an aggregation engine over the given roster and registry.
func NewEngine(reg *mpc.Registry, ros *roster.Roster, timeout time.Duration, clock clockwork.Clock) *Engine {
	return &Engine{
		events:   make(map[string]*activeEvent),
		registry: reg,
		roster:   ros,
		clock:    clock,
		timeout:  timeout,
	}
}

// Register creates the active-event record and returns its result sink.
// Must be called before any announce I/O so in-flight partials find a slot.
func (g *Engine) Register(event *protocol.Event) <-chan Outcome {
	ae := &activeEvent{
		event:     event,
		expected:  len(event.Participants),
		createdAt: g.clock.Now(),
		partials:  make(map[string][]byte),
		sink:      make(chan Outcome, 1),
	}

	g.mu.Lock()
	g.events[event.EventID] = ae
	g.mu.Unlock()

	telemetry.ActiveEvents.Inc()

	return ae.sink
}

// OnPartial ingests one participant's partial result. Senders outside the
// roster are rejected; duplicates and partials for unknown events or from
// non-participants are ignored silently.
func (g *Engine) OnPartial(eventID, participantID string, partial []byte) error {
	if !g.roster.Contains(participantID) {
		telemetry.Partials.WithLabelValues("rejected").Inc()
		return fmt.Errorf("partial for %s: %w", eventID, roster.ErrNotFound)
	}

	finalize := false

	g.mu.Lock()

	ae, ok := g.events[eventID]

	switch {
	case !ok:
		// Unknown or already finalized event.
	case ae.event.ParticipantIndex(participantID) < 0:
		ok = false
	case ae.partials[participantID] != nil:
		// At most one partial per participant per event.
		ok = false
	default:
		ae.partials[participantID] = partial

		if len(ae.partials) >= ae.expected && !ae.finalizing {
			ae.finalizing = true
			finalize = true
		}
	}

	g.mu.Unlock()

	if !ok {
		telemetry.Partials.WithLabelValues("ignored").Inc()
		return nil
	}

	telemetry.Partials.WithLabelValues("accepted").Inc()

	if finalize {
		go g.finalize(eventID)
	}

	return nil
}

// Len returns the number of active events.
func (g *Engine) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.events)
}

// References reports whether any active event lists the participant.
// Liveness eviction must not remove referenced roster entries.
func (g *Engine) References(participantID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, ae := range g.events {
		if ae.event.ParticipantIndex(participantID) >= 0 {
			return true
		}
	}

	return false
}

// RunSweeper evicts expired events until stop is closed.
func (g *Engine) RunSweeper(stop <-chan struct{}) {
	ticker := g.clock.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			g.sweep()
		case <-stop:
			return
		}
	}
}

// sweep removes events older than the timeout and reports the timeout to
// their sinks.
func (g *Engine) sweep() {
	now := g.clock.Now()

	var expired []*activeEvent

	g.mu.Lock()

	for id, ae := range g.events {
		if now.Sub(ae.createdAt) > g.timeout && !ae.finalizing {
			delete(g.events, id)
			expired = append(expired, ae)
		}
	}

	g.mu.Unlock()

	for _, ae := range expired {
		logger.Warn("event timed out",
			"event", ae.event.EventID,
			"received", len(ae.partials),
			"expected", ae.expected,
		)

		telemetry.ActiveEvents.Dec()
		ae.sink <- Outcome{Err: ErrEventTimeout}
	}
}

// finalize aggregates a completed event and publishes the outcome.
// Runs in its own goroutine, at most once per event.
func (g *Engine) finalize(eventID string) {
	g.mu.Lock()

	ae, ok := g.events[eventID]
	if !ok {
		g.mu.Unlock()
		return
	}

	delete(g.events, eventID)

	// Collect partials in participant order for deterministic aggregation.
	ordered := make([][]byte, 0, ae.expected)
	for _, p := range ae.event.Participants {
		if partial, ok := ae.partials[p.ID]; ok {
			ordered = append(ordered, partial)
		}
	}

	g.mu.Unlock()

	telemetry.ActiveEvents.Dec()

	comp, err := g.registry.Lookup(ae.event.ComputationType)
	if err != nil {
		logger.Error("cannot aggregate event",
			"event", eventID,
			"type", ae.event.ComputationType,
			"error", err,
		)

		ae.sink <- Outcome{Err: err}

		return
	}

	result, err := comp.Aggregate(ordered, ae.event.Metadata)
	if err != nil {
		logger.Error("aggregation failed", "event", eventID, "error", err)
		ae.sink <- Outcome{Err: fmt.Errorf("aggregate %s: %w", eventID, err)}

		return
	}

	logger.Info("event aggregated",
		"event", eventID,
		"type", ae.event.ComputationType,
		"participants", ae.expected,
	)

	ae.sink <- Outcome{Value: result}
}
