package coordinator

import (
	"github.com/frederikgramkortegaard/tribune/internal/logger"
	"github.com/frederikgramkortegaard/tribune/internal/telemetry"
)

// runLiveness periodically evicts silent participants and expired pooled
// clients until Stop is called.
func (c *Coordinator) runLiveness() {
	ticker := c.clock.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			c.evictDead()
			c.pool.Cleanup()
		case <-c.stop:
			return
		}
	}
}

// evictDead removes roster entries that have been silent longer than the
// client timeout. Entries referenced by an active event are kept so their
// partials can still be attributed.
func (c *Coordinator) evictDead() {
	now := c.clock.Now()

	for _, e := range c.roster.Snapshot() {
		if e.Alive(now, c.cfg.ClientTimeout) {
			continue
		}

		if c.engine.References(e.ID) {
			logger.Debug("keeping silent participant with active event", "participant", e.ID)
			continue
		}

		logger.Info("evicting silent participant",
			"participant", e.ID,
			"last_ping", e.LastPing.Format("15:04:05"),
		)

		c.roster.Remove(e.ID)
		c.pool.Remove(e.Endpoint)
	}

	telemetry.RosterSize.Set(float64(c.roster.Len()))
}
