package participant

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/frederikgramkortegaard/tribune/internal/logger"
	"github.com/frederikgramkortegaard/tribune/internal/protocol"
	"github.com/frederikgramkortegaard/tribune/internal/telemetry"
)

// routes builds the participant's HTTP mux with instrumented handlers.
func (p *Participant) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /event", telemetry.Instrument("event", http.HandlerFunc(p.handleEvent)))
	mux.Handle("POST /peer-data", telemetry.Instrument("peer_data", http.HandlerFunc(p.handlePeerData)))
	mux.HandleFunc("GET /health", p.handleHealth)
	mux.Handle("GET /metrics", telemetry.MetricsHandler())

	return mux
}

// handleEvent handles POST /event announcements from the coordinator.
func (p *Participant) handleEvent(w http.ResponseWriter, r *http.Request) {
	event, err := protocol.ParseEvent(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid event: %v", err))
		return
	}

	if err := p.HandleEvent(event, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePeerData handles POST /peer-data shares from fleet peers. Dropped
// and deduplicated shares still answer 200; only malformed bodies are 400.
func (p *Participant) handlePeerData(w http.ResponseWriter, r *http.Request) {
	msg, err := protocol.ParsePeerShare(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid peer share: %v", err))
		return
	}

	if err := p.HandlePeerShare(msg); err != nil {
		logger.Debug("peer share dropped", "participant", p.id, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHealth handles GET /health requests.
func (p *Participant) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"participant":   p.id,
		"active_events": p.ActiveEvents(),
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
