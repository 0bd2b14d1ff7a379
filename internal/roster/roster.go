// Package roster tracks the participants currently known to the coordinator.
package roster

import (
	"errors"
	"sync"
	"time"

	"github.com/frederikgramkortegaard/tribune/internal/protocol"
	"github.com/jonboulle/clockwork"
)

// ErrNotFound is returned when an operation references an unknown participant.
var ErrNotFound = errors.New("participant not in roster")

// Entry is one registered participant.
type Entry struct {
	ID        string            // ID is the participant's self-assigned identifier
	Endpoint  protocol.Endpoint // Endpoint is where the participant listens
	PublicKey string            // PublicKey is the hex-encoded Ed25519 public key
	LastPing  time.Time         // LastPing is the last evidence of liveness
}

// Alive reports whether the entry showed liveness within timeout of now.
func (e Entry) Alive(now time.Time, timeout time.Duration) bool {
	return now.Sub(e.LastPing) < timeout
}

// Roster is a concurrent map of participant id to Entry. Reads dominate:
// selection, authorization and membership checks all snapshot or look up.
type Roster struct {
	entries map[string]Entry
	mu      sync.RWMutex
	clock   clockwork.Clock
}

// New creates an empty roster.
func New() *Roster {
	return NewWithClock(clockwork.NewRealClock())
}

// NewWithClock creates an empty roster using the given clock. Used by tests.
func NewWithClock(clock clockwork.Clock) *Roster {
	return &Roster{
		entries: make(map[string]Entry),
		clock:   clock,
	}
}

// Insert adds or replaces the entry for its id and stamps LastPing.
func (r *Roster) Insert(e Entry) {
	e.LastPing = r.clock.Now()

	r.mu.Lock()
	r.entries[e.ID] = e
	r.mu.Unlock()
}

// Touch refreshes LastPing for the given id.
func (r *Roster) Touch(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return ErrNotFound
	}

	e.LastPing = r.clock.Now()
	r.entries[id] = e

	return nil
}

// Get returns the entry for the given id.
func (r *Roster) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]

	return e, ok
}

// Contains reports whether the id is registered.
func (r *Roster) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[id]

	return ok
}

// Snapshot returns a copy of all entries for iteration without the lock.
func (r *Roster) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}

	return entries
}

// Remove deletes the entry for the given id. The caller must have verified
// that no active event references the id.
func (r *Roster) Remove(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// Len returns the number of registered participants.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}
