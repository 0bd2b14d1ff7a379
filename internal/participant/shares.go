package participant

import (
	"errors"
	"fmt"
	"time"

	"github.com/frederikgramkortegaard/tribune/internal/crypto"
	"github.com/frederikgramkortegaard/tribune/internal/logger"
	"github.com/frederikgramkortegaard/tribune/internal/protocol"
	"github.com/frederikgramkortegaard/tribune/internal/telemetry"
)

// ErrUnauthorizedSender reports a share whose sender is not listed in the
// event's participants.
var ErrUnauthorizedSender = errors.New("sender not an event participant")

// ErrUnknownEvent reports a share for an event this participant never
// learned about.
var ErrUnknownEvent = errors.New("share for unknown event")

// HandlePeerShare processes one incoming peer share. Duplicates are
// suppressed before signature verification; an unknown event is recovered
// from the embedded original event when present. Completion of the shard
// set spawns a single finalization task.
func (p *Participant) HandlePeerShare(msg *protocol.PeerShare) error {
	if p.clock.Now().Sub(time.UnixMilli(msg.Timestamp)) > p.cfg.EventTimeout {
		telemetry.Shares.WithLabelValues("ignored").Inc()
		return fmt.Errorf("share for %s from %s: %w", msg.EventID, msg.FromParticipant, ErrEventExpired)
	}

	if p.recentShares.Seen(msg.DedupKey()) {
		telemetry.Shares.WithLabelValues("ignored").Inc()
		logger.Debug("duplicate share dropped",
			"participant", p.id,
			"event", msg.EventID,
			"from", msg.FromParticipant,
		)

		return nil
	}

	if !p.knowsEvent(msg.EventID) && msg.OriginalEvent != nil {
		if err := p.HandleEvent(msg.OriginalEvent, false); err != nil {
			logger.Warn("propagated event rejected",
				"participant", p.id,
				"event", msg.EventID,
				"error", err,
			)
		}
	}

	p.mu.Lock()

	state, ok := p.active[msg.EventID]
	if !ok {
		p.mu.Unlock()
		telemetry.Shares.WithLabelValues("ignored").Inc()

		return fmt.Errorf("share from %s: %w", msg.FromParticipant, ErrUnknownEvent)
	}

	sender, listed := state.event.Participant(msg.FromParticipant)

	p.mu.Unlock()

	if !listed {
		telemetry.Shares.WithLabelValues("rejected").Inc()
		return fmt.Errorf("share for %s from %s: %w", msg.EventID, msg.FromParticipant, ErrUnauthorizedSender)
	}

	digest := protocol.ShareDigest(msg.EventID, msg.FromParticipant, msg.Share)
	if !crypto.Verify(digest, msg.Signature, sender.PublicKey) {
		telemetry.Shares.WithLabelValues("rejected").Inc()
		return fmt.Errorf("share for %s from %s: %w", msg.EventID, msg.FromParticipant, ErrBadSignature)
	}

	telemetry.Shares.WithLabelValues("accepted").Inc()

	logger.Debug("share accepted",
		"participant", p.id,
		"event", msg.EventID,
		"from", msg.FromParticipant,
	)

	p.storeShare(msg.EventID, msg.FromParticipant, msg.Share)

	return nil
}

// knowsEvent reports whether the event is locally registered.
func (p *Participant) knowsEvent(eventID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	_, ok := p.active[eventID]

	return ok
}

// sweepActive evicts events whose shard set never completed within the
// event timeout, such as when a listed peer died or its share was lost.
// Without this, state for stalled events would accumulate for the life of
// the process.
func (p *Participant) sweepActive() {
	now := p.clock.Now()

	var evicted []*eventState

	p.mu.Lock()

	for id, state := range p.active {
		if now.Sub(state.registeredAt) > p.cfg.EventTimeout && !state.computing {
			delete(p.active, id)
			evicted = append(evicted, state)
		}
	}

	p.mu.Unlock()

	for _, state := range evicted {
		logger.Warn("event stalled, evicting",
			"participant", p.id,
			"event", state.event.EventID,
			"shares", len(state.shares),
			"expected", len(state.event.Participants),
		)
	}
}

// storeShare records one share and spawns the finalization task when the
// shard set completes. The self-share flows through here too, so received
// and own shares live in the same map.
func (p *Participant) storeShare(eventID, from string, share []byte) {
	compute := false

	p.mu.Lock()

	state, ok := p.active[eventID]
	if ok {
		if _, dup := state.shares[from]; !dup {
			state.shares[from] = share
		}

		if len(state.shares) == len(state.event.Participants) && !state.computing {
			state.computing = true
			compute = true
		}
	}

	p.mu.Unlock()

	if compute {
		go p.finalize(eventID)
	}
}
