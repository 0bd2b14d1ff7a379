package participant

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/frederikgramkortegaard/tribune/internal/logger"
	"github.com/frederikgramkortegaard/tribune/internal/protocol"
)

// Connect registers this participant with the coordinator and learns the
// coordinator's public key. Must succeed before events can be verified.
func (p *Participant) Connect() error {
	req := protocol.ConnectRequest{
		ParticipantID: p.id,
		Endpoint:      p.cfg.Listen,
		PublicKey:     p.keys.Public,
	}

	status, body, err := p.coordPool.PostJSON(p.cfg.Coordinator, "/connect", req)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", p.cfg.Coordinator, err)
	}

	if status != http.StatusOK {
		return fmt.Errorf("connect to %s: status %d", p.cfg.Coordinator, status)
	}

	ack, err := protocol.ParseConnectAck(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("connect to %s: %w", p.cfg.Coordinator, err)
	}

	if !ack.Accepted {
		return fmt.Errorf("connect to %s: registration refused", p.cfg.Coordinator)
	}

	p.coordMu.Lock()
	p.coordKey = ack.CoordinatorPublicKey
	p.coordMu.Unlock()

	logger.Info("connected to coordinator",
		"participant", p.id,
		"coordinator", p.cfg.Coordinator.String(),
		"coordinator_key", ack.CoordinatorPublicKey[:8],
	)

	return nil
}

// runPinger refreshes this participant's roster liveness every health check
// interval until Stop is called. The same tick evicts event state that
// stalled past the event timeout.
func (p *Participant) runPinger() {
	ticker := p.clock.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			p.ping()
			p.sweepActive()
		case <-p.stop:
			return
		}
	}
}

// ping sends one liveness refresh and cleans expired pooled clients.
func (p *Participant) ping() {
	// No coordinator key means registration never succeeded; retry it.
	if p.coordinatorKey() == "" {
		if err := p.Connect(); err != nil {
			logger.Warn("connect retry failed", "participant", p.id, "error", err)
		}

		return
	}

	msg := protocol.Ping{
		ParticipantID: p.id,
		Timestamp:     p.clock.Now().UnixMilli(),
	}

	status, _, err := p.coordPool.PostJSON(p.cfg.Coordinator, "/ping", msg)
	if err != nil {
		logger.Warn("ping failed", "participant", p.id, "error", err)
		return
	}

	// An unknown-participant reply means the coordinator restarted or
	// evicted us; re-register to rejoin the roster.
	if status == http.StatusNotFound {
		logger.Info("roster entry lost, reconnecting", "participant", p.id)

		if err := p.Connect(); err != nil {
			logger.Warn("reconnect failed", "participant", p.id, "error", err)
		}
	}

	p.peerPool.Cleanup()
	p.coordPool.Cleanup()
}
