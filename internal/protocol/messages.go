// Package protocol defines the wire messages exchanged between the
// coordinator and participants, and the canonical byte strings that
// coordinator and sender signatures cover.
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Endpoint is a routable host/port pair.
type Endpoint struct {
	Host string `json:"host"` // Host is a hostname or IP address
	Port int    `json:"port"` // Port is the TCP listen port
}

// String returns the endpoint as "host:port".
func (e Endpoint) String() string {
	return e.Host + ":" + strconv.Itoa(e.Port)
}

// ParticipantInfo identifies one participant inside an event.
type ParticipantInfo struct {
	ID        string   `json:"participant_id"` // ID is the participant's self-assigned identifier
	Endpoint  Endpoint `json:"endpoint"`       // Endpoint is where the participant listens
	PublicKey string   `json:"public_key"`     // PublicKey is the hex-encoded Ed25519 public key
}

// Event is a coordinator-issued unit of work. Immutable once signed.
type Event struct {
	EventID              string            `json:"event_id"`
	ComputationType      string            `json:"computation_type"`
	Participants         []ParticipantInfo `json:"participants"`
	Metadata             json.RawMessage   `json:"metadata,omitempty"` // opaque to the core
	CreatedAt            int64             `json:"created_at"`         // unix milliseconds
	CoordinatorSignature string            `json:"coordinator_signature"`
}

// Digest returns the canonical byte string the coordinator signature covers:
// event_id | computation_type | decimal participant count.
func (e *Event) Digest() []byte {
	return []byte(e.EventID + "|" + e.ComputationType + "|" + strconv.Itoa(len(e.Participants)))
}

// Age returns how long ago the event was created relative to now.
func (e *Event) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(e.CreatedAt))
}

// ParticipantIndex returns the position of the given participant id in the
// event's participant list, or -1 if absent.
func (e *Event) ParticipantIndex(id string) int {
	for i, p := range e.Participants {
		if p.ID == id {
			return i
		}
	}

	return -1
}

// Participant returns the ParticipantInfo for the given id.
func (e *Event) Participant(id string) (ParticipantInfo, bool) {
	if i := e.ParticipantIndex(id); i >= 0 {
		return e.Participants[i], true
	}

	return ParticipantInfo{}, false
}

// Validate checks the structural fields an event must carry on the wire.
func (e *Event) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event: missing event_id")
	}

	if e.ComputationType == "" {
		return fmt.Errorf("event %s: missing computation_type", e.EventID)
	}

	if len(e.Participants) == 0 {
		return fmt.Errorf("event %s: no participants", e.EventID)
	}

	if e.CoordinatorSignature == "" {
		return fmt.Errorf("event %s: missing coordinator_signature", e.EventID)
	}

	if e.CreatedAt == 0 {
		return fmt.Errorf("event %s: missing created_at", e.EventID)
	}

	for i, p := range e.Participants {
		if p.ID == "" || p.PublicKey == "" || p.Endpoint.Host == "" || p.Endpoint.Port == 0 {
			return fmt.Errorf("event %s: participant %d incomplete", e.EventID, i)
		}
	}

	return nil
}

// PeerShare carries one additive share from one participant to another.
// The sender signature covers ShareDigest(event_id, from, share).
type PeerShare struct {
	EventID         string `json:"event_id"`
	FromParticipant string `json:"from_participant"`
	Share           []byte `json:"share"`
	Signature       string `json:"sender_signature"`
	OriginalEvent   *Event `json:"original_event,omitempty"` // embedded for peer-assisted propagation
	Timestamp       int64  `json:"timestamp"`                // unix milliseconds
}

// ShareDigest returns the canonical byte string a sender signature covers:
// event_id | from_participant | share bytes as sent.
func ShareDigest(eventID, from string, share []byte) []byte {
	digest := make([]byte, 0, len(eventID)+len(from)+len(share)+2)
	digest = append(digest, eventID...)
	digest = append(digest, '|')
	digest = append(digest, from...)
	digest = append(digest, '|')
	digest = append(digest, share...)

	return digest
}

// DedupKey returns the key under which duplicate deliveries of this share
// are suppressed.
func (m *PeerShare) DedupKey() string {
	return m.EventID + "|" + m.FromParticipant
}

// Validate checks the structural fields a peer share must carry.
func (m *PeerShare) Validate() error {
	if m.EventID == "" {
		return fmt.Errorf("peer share: missing event_id")
	}

	if m.FromParticipant == "" {
		return fmt.Errorf("peer share %s: missing from_participant", m.EventID)
	}

	if len(m.Share) == 0 {
		return fmt.Errorf("peer share %s from %s: empty share", m.EventID, m.FromParticipant)
	}

	if m.Signature == "" {
		return fmt.Errorf("peer share %s from %s: missing sender_signature", m.EventID, m.FromParticipant)
	}

	return nil
}

// ConnectRequest registers a participant with the coordinator.
type ConnectRequest struct {
	ParticipantID string   `json:"participant_id"`
	Endpoint      Endpoint `json:"endpoint"`
	PublicKey     string   `json:"public_key"`
}

// Validate checks the structural fields of a connect request.
func (c *ConnectRequest) Validate() error {
	if c.ParticipantID == "" {
		return fmt.Errorf("connect: missing participant_id")
	}

	if c.PublicKey == "" {
		return fmt.Errorf("connect %s: missing public_key", c.ParticipantID)
	}

	if c.Endpoint.Host == "" || c.Endpoint.Port == 0 {
		return fmt.Errorf("connect %s: incomplete endpoint", c.ParticipantID)
	}

	return nil
}

// ConnectAck is the coordinator's reply to a connect request.
type ConnectAck struct {
	Accepted             bool   `json:"accepted"`
	CoordinatorPublicKey string `json:"coordinator_public_key"`
}

// Validate checks the structural fields of a connect reply.
func (a *ConnectAck) Validate() error {
	if a.Accepted && a.CoordinatorPublicKey == "" {
		return fmt.Errorf("connect ack: accepted without coordinator_public_key")
	}

	return nil
}

// EventResponse carries a participant's partial result (POST /submit) and
// doubles as the ping body (POST /ping, only participant_id is used).
type EventResponse struct {
	EventID       string `json:"event_id"`
	ParticipantID string `json:"participant_id"`
	Partial       []byte `json:"partial"`
	Timestamp     int64  `json:"timestamp"` // unix milliseconds
}

// Validate checks the structural fields of a submit body.
func (r *EventResponse) Validate() error {
	if r.EventID == "" {
		return fmt.Errorf("submit: missing event_id")
	}

	if r.ParticipantID == "" {
		return fmt.Errorf("submit %s: missing participant_id", r.EventID)
	}

	if len(r.Partial) == 0 {
		return fmt.Errorf("submit %s from %s: empty partial", r.EventID, r.ParticipantID)
	}

	return nil
}

// SubmitAck is the coordinator's reply to a submit.
type SubmitAck struct {
	Received bool `json:"received"`
}

// Ping identifies a participant refreshing its roster liveness.
type Ping struct {
	ParticipantID string `json:"participant_id"`
	Timestamp     int64  `json:"timestamp"`
}

// Validate checks the structural fields of a ping body.
func (p *Ping) Validate() error {
	if p.ParticipantID == "" {
		return fmt.Errorf("ping: missing participant_id")
	}

	return nil
}
