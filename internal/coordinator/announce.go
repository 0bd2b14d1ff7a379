package coordinator

import (
	"errors"
	"net/http"
	"sync"

	"github.com/frederikgramkortegaard/tribune/internal/logger"
	"github.com/frederikgramkortegaard/tribune/internal/protocol"
	"github.com/frederikgramkortegaard/tribune/internal/telemetry"
	"github.com/google/uuid"
)

// announceConcurrency bounds parallel event deliveries.
const announceConcurrency = 8

// Announce registers the event with the aggregation engine and delivers it
// to every selected participant. Registration happens before any network
// I/O so partials from fast participants always find their slot. Delivery
// failures are logged and left to peer-assisted propagation.
func (c *Coordinator) Announce(event *protocol.Event) <-chan Outcome {
	sink := c.engine.Register(event)

	telemetry.EventsAnnounced.Inc()

	logger.Info("announcing event",
		"event", event.EventID,
		"type", event.ComputationType,
		"participants", len(event.Participants),
	)

	sem := make(chan struct{}, announceConcurrency)

	var wg sync.WaitGroup

	for _, p := range event.Participants {
		wg.Add(1)
		sem <- struct{}{}

		go func(p protocol.ParticipantInfo) {
			defer wg.Done()
			defer func() { <-sem }()

			status, _, err := c.pool.PostJSON(p.Endpoint, "/event", event)
			if err != nil {
				logger.Warn("event delivery failed",
					"event", event.EventID,
					"participant", p.ID,
					"error", err,
				)

				return
			}

			if status != http.StatusOK {
				logger.Warn("event delivery rejected",
					"event", event.EventID,
					"participant", p.ID,
					"status", status,
				)
			}
		}(p)
	}

	wg.Wait()

	return sink
}

// RunAnnouncer creates and announces an event of the given computation type
// every announce interval until Stop is called. Rounds where the roster is
// too small are skipped.
func (c *Coordinator) RunAnnouncer(computationType string, metadata []byte) {
	ticker := c.clock.NewTicker(c.cfg.AnnounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			c.announceRound(computationType, metadata)
		case <-c.stop:
			return
		}
	}
}

// announceRound runs one creation and announcement round and logs its
// eventual outcome.
func (c *Coordinator) announceRound(computationType string, metadata []byte) {
	event, err := c.CreateEvent(uuid.NewString(), computationType, metadata)
	if err != nil {
		if errors.Is(err, ErrInsufficientParticipants) {
			logger.Debug("skipping announcement round", "reason", err)
			return
		}

		logger.Error("event creation failed", "type", computationType, "error", err)

		return
	}

	sink := c.Announce(event)

	go func() {
		outcome := <-sink
		if outcome.Err != nil {
			logger.Warn("event ended without result",
				"event", event.EventID,
				"error", outcome.Err,
			)

			return
		}

		logger.Info("computation result",
			"event", event.EventID,
			"type", event.ComputationType,
			"result", string(outcome.Value),
		)
	}()
}
