package coordinator

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/frederikgramkortegaard/tribune/internal/logger"
	"github.com/frederikgramkortegaard/tribune/internal/protocol"
	"github.com/frederikgramkortegaard/tribune/internal/roster"
	"github.com/frederikgramkortegaard/tribune/internal/telemetry"
)

// routes builds the coordinator's HTTP mux with instrumented handlers.
func (c *Coordinator) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /connect", telemetry.Instrument("connect", http.HandlerFunc(c.handleConnect)))
	mux.Handle("POST /submit", telemetry.Instrument("submit", http.HandlerFunc(c.handleSubmit)))
	mux.Handle("POST /ping", telemetry.Instrument("ping", http.HandlerFunc(c.handlePing)))
	mux.Handle("GET /peers", telemetry.Instrument("peers", http.HandlerFunc(c.handlePeers)))
	mux.HandleFunc("GET /health", c.handleHealth)
	mux.Handle("GET /metrics", telemetry.MetricsHandler())

	return mux
}

// handleConnect handles POST /connect requests.
func (c *Coordinator) handleConnect(w http.ResponseWriter, r *http.Request) {
	req, err := protocol.ParseConnectRequest(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid connect request: %v", err))
		return
	}

	c.roster.Insert(roster.Entry{
		ID:        req.ParticipantID,
		Endpoint:  req.Endpoint,
		PublicKey: req.PublicKey,
	})

	telemetry.RosterSize.Set(float64(c.roster.Len()))

	logger.Info("participant connected",
		"participant", req.ParticipantID,
		"endpoint", req.Endpoint.String(),
	)

	writeJSON(w, http.StatusOK, protocol.ConnectAck{
		Accepted:             true,
		CoordinatorPublicKey: c.keys.Public,
	})
}

// handleSubmit handles POST /submit requests carrying partial results.
func (c *Coordinator) handleSubmit(w http.ResponseWriter, r *http.Request) {
	resp, err := protocol.ParseEventResponse(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid submit: %v", err))
		return
	}

	if err := c.engine.OnPartial(resp.EventID, resp.ParticipantID, resp.Partial); err != nil {
		if errors.Is(err, roster.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "unknown participant")
			return
		}

		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	logger.Debug("partial received",
		"event", resp.EventID,
		"participant", resp.ParticipantID,
	)

	writeJSON(w, http.StatusOK, protocol.SubmitAck{Received: true})
}

// handlePing handles POST /ping liveness refreshes.
func (c *Coordinator) handlePing(w http.ResponseWriter, r *http.Request) {
	ping, err := protocol.ParsePing(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid ping: %v", err))
		return
	}

	if err := c.roster.Touch(ping.ParticipantID); err != nil {
		writeError(w, http.StatusNotFound, "unknown participant")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePeers handles GET /peers, listing registered endpoints.
func (c *Coordinator) handlePeers(w http.ResponseWriter, r *http.Request) {
	entries := c.roster.Snapshot()

	peers := make([]string, 0, len(entries))
	for _, e := range entries {
		peers = append(peers, e.Endpoint.String())
	}

	writeJSON(w, http.StatusOK, map[string][]string{"peers": peers})
}

// handleHealth handles GET /health requests.
func (c *Coordinator) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"participants":  c.roster.Len(),
		"active_events": c.engine.Len(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
