package protocol

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// testEvent builds a structurally valid event with n participants.
func testEvent(n int) *Event {
	participants := make([]ParticipantInfo, n)
	for i := range participants {
		participants[i] = ParticipantInfo{
			ID:        "participant-" + string(rune('a'+i)),
			Endpoint:  Endpoint{Host: "localhost", Port: 9000 + i},
			PublicKey: "aabbcc",
		}
	}

	return &Event{
		EventID:              "e-1",
		ComputationType:      "sum",
		Participants:         participants,
		CreatedAt:            time.Now().UnixMilli(),
		CoordinatorSignature: "deadbeef",
	}
}

func TestEventDigest(t *testing.T) {
	event := testEvent(3)

	got := string(event.Digest())
	want := "e-1|sum|3"

	if got != want {
		t.Errorf("digest = %q, want %q", got, want)
	}
}

func TestShareDigest(t *testing.T) {
	got := string(ShareDigest("e-1", "p-1", []byte("42")))
	want := "e-1|p-1|42"

	if got != want {
		t.Errorf("share digest = %q, want %q", got, want)
	}
}

func TestEventAge(t *testing.T) {
	event := testEvent(3)
	event.CreatedAt = time.Now().Add(-10 * time.Second).UnixMilli()

	age := event.Age(time.Now())
	if age < 9*time.Second || age > 11*time.Second {
		t.Errorf("age = %v, want about 10s", age)
	}
}

func TestParticipantIndex(t *testing.T) {
	event := testEvent(3)

	if got := event.ParticipantIndex("participant-b"); got != 1 {
		t.Errorf("index = %d, want 1", got)
	}

	if got := event.ParticipantIndex("stranger"); got != -1 {
		t.Errorf("index for stranger = %d, want -1", got)
	}
}

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Event)
		valid  bool
	}{
		{"complete", func(e *Event) {}, true},
		{"missing id", func(e *Event) { e.EventID = "" }, false},
		{"missing type", func(e *Event) { e.ComputationType = "" }, false},
		{"no participants", func(e *Event) { e.Participants = nil }, false},
		{"missing signature", func(e *Event) { e.CoordinatorSignature = "" }, false},
		{"missing created_at", func(e *Event) { e.CreatedAt = 0 }, false},
		{"incomplete participant", func(e *Event) { e.Participants[1].PublicKey = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := testEvent(3)
			tt.mutate(event)

			err := event.Validate()
			if tt.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if !tt.valid && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestPeerShareValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PeerShare)
		valid  bool
	}{
		{"complete", func(m *PeerShare) {}, true},
		{"missing event", func(m *PeerShare) { m.EventID = "" }, false},
		{"missing sender", func(m *PeerShare) { m.FromParticipant = "" }, false},
		{"empty share", func(m *PeerShare) { m.Share = nil }, false},
		{"missing signature", func(m *PeerShare) { m.Signature = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &PeerShare{
				EventID:         "e-1",
				FromParticipant: "p-1",
				Share:           []byte("42"),
				Signature:       "deadbeef",
				Timestamp:       time.Now().UnixMilli(),
			}
			tt.mutate(msg)

			err := msg.Validate()
			if tt.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if !tt.valid && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDedupKey(t *testing.T) {
	msg := &PeerShare{EventID: "e-1", FromParticipant: "p-1"}

	if got := msg.DedupKey(); got != "e-1|p-1" {
		t.Errorf("dedup key = %q, want %q", got, "e-1|p-1")
	}
}

func TestParseEventRoundTrip(t *testing.T) {
	event := testEvent(3)

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	parsed, err := ParseEvent(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if parsed.EventID != event.EventID || len(parsed.Participants) != 3 {
		t.Errorf("parsed event mismatch: %+v", parsed)
	}
}

func TestParseEventRejectsInvalid(t *testing.T) {
	if _, err := ParseEvent(strings.NewReader("not json")); err == nil {
		t.Error("expected error for malformed body")
	}

	if _, err := ParseEvent(strings.NewReader(`{"event_id": "e-1"}`)); err == nil {
		t.Error("expected error for incomplete event")
	}
}

func TestParsePingFromSubmitShape(t *testing.T) {
	// The ping endpoint accepts a submit-shaped body; only participant_id
	// is used.
	body := `{"event_id":"e-1","participant_id":"p-1","partial":"NDI=","timestamp":123}`

	ping, err := ParsePing(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if ping.ParticipantID != "p-1" {
		t.Errorf("participant = %q, want p-1", ping.ParticipantID)
	}
}
