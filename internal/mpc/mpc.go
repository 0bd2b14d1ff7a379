// Package mpc defines the capabilities the coordination core consumes:
// computations that combine and aggregate opaque shares, and data sources
// that produce and shard private input. The core never inspects share bytes
// or event metadata; both flow through to the registered Computation.
package mpc

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/frederikgramkortegaard/tribune/internal/protocol"
)

// ErrUnknownComputation is returned when no Computation is registered for
// an event's computation type.
var ErrUnknownComputation = errors.New("no computation registered for type")

// Computation implements one MPC computation kind.
type Computation interface {
	// Type returns the computation type string events carry.
	Type() string

	// Combine folds the shares a participant collected (one per event
	// participant, in participant order) into its partial result.
	Combine(shares [][]byte, metadata json.RawMessage) ([]byte, error)

	// Aggregate folds all participants' partials (in participant order)
	// into the final result.
	Aggregate(partials [][]byte, metadata json.RawMessage) ([]byte, error)
}

// DataSource produces a participant's private input for an event and splits
// it into shares.
type DataSource interface {
	// Collect produces the raw private value for the event.
	Collect(event *protocol.Event) ([]byte, error)

	// Shard splits value into n shares that reconstruct it under the
	// paired Computation's algebra. Share i goes to event.Participants[i].
	Shard(value []byte, n int, event *protocol.Event) ([][]byte, error)
}

// Registry maps computation type strings to Computation implementations.
// Registration happens at startup; lookups are concurrent afterwards.
type Registry struct {
	computations map[string]Computation
	mu           sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{computations: make(map[string]Computation)}
}

// Register adds a computation under its type, replacing any prior one.
func (r *Registry) Register(c Computation) {
	r.mu.Lock()
	r.computations[c.Type()] = c
	r.mu.Unlock()
}

// Lookup returns the computation for the given type.
func (r *Registry) Lookup(computationType string) (Computation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.computations[computationType]
	if !ok {
		return nil, ErrUnknownComputation
	}

	return c, nil
}
