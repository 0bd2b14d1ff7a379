package participant

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/frederikgramkortegaard/tribune/internal/crypto"
	"github.com/frederikgramkortegaard/tribune/internal/logger"
	"github.com/frederikgramkortegaard/tribune/internal/protocol"
)

// ErrBadSignature reports a message whose signature did not verify.
var ErrBadSignature = errors.New("signature verification failed")

// ErrEventExpired reports an event or share older than the event timeout.
var ErrEventExpired = errors.New("event past age bound")

// HandleEvent processes an announced event: it verifies the coordinator
// signature, shards this participant's input and distributes shares to the
// other participants. With relay false the outbound shares omit the embedded
// original event so a propagated event is not relayed further.
func (p *Participant) HandleEvent(event *protocol.Event, relay bool) error {
	coordKey := p.coordinatorKey()
	if coordKey == "" {
		return fmt.Errorf("event %s: coordinator key unknown, connect first", event.EventID)
	}

	if !crypto.Verify(event.Digest(), event.CoordinatorSignature, coordKey) {
		return fmt.Errorf("event %s: coordinator %w", event.EventID, ErrBadSignature)
	}

	if event.Age(p.clock.Now()) > p.cfg.EventTimeout {
		return fmt.Errorf("event %s: %w", event.EventID, ErrEventExpired)
	}

	if p.recentEvents.Seen(event.EventID) {
		logger.Debug("duplicate event dropped", "participant", p.id, "event", event.EventID)
		return nil
	}

	if event.ParticipantIndex(p.id) < 0 {
		logger.Warn("event does not list this participant",
			"participant", p.id,
			"event", event.EventID,
		)

		return nil
	}

	p.mu.Lock()

	if _, ok := p.active[event.EventID]; ok {
		p.mu.Unlock()
		return nil
	}

	p.active[event.EventID] = &eventState{
		event:        event,
		shares:       make(map[string][]byte),
		registeredAt: p.clock.Now(),
	}

	p.mu.Unlock()

	logger.Info("event accepted",
		"participant", p.id,
		"event", event.EventID,
		"type", event.ComputationType,
		"relay", relay,
	)

	shares, err := p.shardInput(event)
	if err != nil {
		return err
	}

	// The self-share lands before any outbound send, so a completion
	// triggered by fast peers sees the full shard set.
	selfIndex := event.ParticipantIndex(p.id)
	p.storeShare(event.EventID, p.id, shares[selfIndex])

	p.clock.Sleep(coalesceDelay)

	p.distributeShares(event, shares, relay)

	return nil
}

// shardInput collects this participant's private value and splits it into
// one share per event participant.
func (p *Participant) shardInput(event *protocol.Event) ([][]byte, error) {
	value, err := p.source.Collect(event)
	if err != nil {
		return nil, fmt.Errorf("collect for %s: %w", event.EventID, err)
	}

	shares, err := p.source.Shard(value, len(event.Participants), event)
	if err != nil {
		return nil, fmt.Errorf("shard for %s: %w", event.EventID, err)
	}

	if len(shares) != len(event.Participants) {
		return nil, fmt.Errorf("shard for %s: got %d shares for %d participants",
			event.EventID, len(shares), len(event.Participants))
	}

	return shares, nil
}

// distributeShares sends each peer its signed share. Sends run in parallel
// so one slow or unreachable peer does not stall delivery to the rest, and
// the caller's handler stays inside the announcer's per-attempt timeout.
// Send failures are logged; the coordinator's event timeout catches lost
// contributions.
func (p *Participant) distributeShares(event *protocol.Event, shares [][]byte, relay bool) {
	var wg sync.WaitGroup

	for i, peer := range event.Participants {
		if peer.ID == p.id {
			continue
		}

		signature, err := crypto.Sign(protocol.ShareDigest(event.EventID, p.id, shares[i]), p.keys.Private)
		if err != nil {
			logger.Error("share signing failed",
				"participant", p.id,
				"event", event.EventID,
				"error", err,
			)

			return
		}

		msg := &protocol.PeerShare{
			EventID:         event.EventID,
			FromParticipant: p.id,
			Share:           shares[i],
			Signature:       signature,
			Timestamp:       p.clock.Now().UnixMilli(),
		}

		if relay {
			msg.OriginalEvent = event
		}

		wg.Add(1)

		go func(peer protocol.ParticipantInfo, msg *protocol.PeerShare) {
			defer wg.Done()

			status, _, err := p.peerPool.PostJSON(peer.Endpoint, "/peer-data", msg)
			if err != nil {
				logger.Warn("share delivery failed",
					"participant", p.id,
					"event", event.EventID,
					"peer", peer.ID,
					"error", err,
				)

				return
			}

			if status != http.StatusOK {
				logger.Warn("share delivery rejected",
					"participant", p.id,
					"event", event.EventID,
					"peer", peer.ID,
					"status", status,
				)
			}
		}(peer, msg)
	}

	wg.Wait()
}

// ActiveEvents returns the number of locally tracked events.
func (p *Participant) ActiveEvents() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.active)
}
