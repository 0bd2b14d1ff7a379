package participant

import (
	"net/http"

	"github.com/frederikgramkortegaard/tribune/internal/logger"
	"github.com/frederikgramkortegaard/tribune/internal/protocol"
)

// finalize combines the completed shard set into this participant's partial
// result and submits it to the coordinator. Runs in its own goroutine, at
// most once per event.
func (p *Participant) finalize(eventID string) {
	p.mu.Lock()

	state, ok := p.active[eventID]
	if !ok {
		p.mu.Unlock()
		return
	}

	delete(p.active, eventID)

	event := state.event

	// Canonical participant order keeps combine input deterministic.
	ordered := make([][]byte, 0, len(event.Participants))
	for _, participant := range event.Participants {
		if share, ok := state.shares[participant.ID]; ok {
			ordered = append(ordered, share)
		}
	}

	p.mu.Unlock()

	comp, err := p.registry.Lookup(event.ComputationType)
	if err != nil {
		logger.Error("cannot combine event",
			"participant", p.id,
			"event", eventID,
			"type", event.ComputationType,
			"error", err,
		)

		return
	}

	partial, err := comp.Combine(ordered, event.Metadata)
	if err != nil {
		logger.Error("combine failed", "participant", p.id, "event", eventID, "error", err)
		return
	}

	p.submitPartial(eventID, partial)
}

// submitPartial posts the partial result to the coordinator. Failures are
// logged; the coordinator's event timeout catches missing contributions.
func (p *Participant) submitPartial(eventID string, partial []byte) {
	resp := protocol.EventResponse{
		EventID:       eventID,
		ParticipantID: p.id,
		Partial:       partial,
		Timestamp:     p.clock.Now().UnixMilli(),
	}

	status, _, err := p.coordPool.PostJSON(p.cfg.Coordinator, "/submit", resp)
	if err != nil {
		logger.Warn("partial submission failed",
			"participant", p.id,
			"event", eventID,
			"error", err,
		)

		return
	}

	if status != http.StatusOK {
		logger.Warn("partial submission rejected",
			"participant", p.id,
			"event", eventID,
			"status", status,
		)

		return
	}

	logger.Info("partial submitted", "participant", p.id, "event", eventID)
}
