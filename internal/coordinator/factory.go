package coordinator

import (
	"errors"
	"fmt"

	"github.com/frederikgramkortegaard/tribune/internal/crypto"
	"github.com/frederikgramkortegaard/tribune/internal/protocol"
	"github.com/frederikgramkortegaard/tribune/internal/roster"
)

// ErrInsufficientParticipants reports that the roster is too small for an
// event to be created.
var ErrInsufficientParticipants = errors.New("not enough participants for event")

// CreateEvent builds and signs a new event of the given computation type.
// Participants are a random subset of the roster, capped at the configured
// maximum. Fails if the roster is below the configured minimum.
func (c *Coordinator) CreateEvent(eventID, computationType string, metadata []byte) (*protocol.Event, error) {
	if _, err := c.registry.Lookup(computationType); err != nil {
		return nil, err
	}

	entries := c.roster.Snapshot()
	if len(entries) < c.cfg.MinParticipants {
		return nil, fmt.Errorf("%w: have %d, need %d",
			ErrInsufficientParticipants, len(entries), c.cfg.MinParticipants)
	}

	selected := c.selectParticipants(entries)

	participants := make([]protocol.ParticipantInfo, len(selected))
	for i, e := range selected {
		participants[i] = protocol.ParticipantInfo{
			ID:        e.ID,
			Endpoint:  e.Endpoint,
			PublicKey: e.PublicKey,
		}
	}

	event := &protocol.Event{
		EventID:         eventID,
		ComputationType: computationType,
		Participants:    participants,
		Metadata:        metadata,
		CreatedAt:       c.clock.Now().UnixMilli(),
	}

	signature, err := crypto.Sign(event.Digest(), c.keys.Private)
	if err != nil {
		return nil, fmt.Errorf("sign event %s: %w", eventID, err)
	}

	event.CoordinatorSignature = signature

	return event, nil
}

// selectParticipants shuffles the entries and takes up to the configured
// maximum.
func (c *Coordinator) selectParticipants(entries []roster.Entry) []roster.Entry {
	c.rngMu.Lock()
	c.rng.Shuffle(len(entries), func(i, j int) {
		entries[i], entries[j] = entries[j], entries[i]
	})
	c.rngMu.Unlock()

	if len(entries) > c.cfg.MaxParticipants {
		entries = entries[:c.cfg.MaxParticipants]
	}

	return entries
}
