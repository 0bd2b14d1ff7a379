package participant

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/frederikgramkortegaard/tribune/internal/crypto"
	"github.com/frederikgramkortegaard/tribune/internal/mpc"
	"github.com/frederikgramkortegaard/tribune/internal/protocol"
)

// fakeCoordinator records submitted partials behind a stub HTTP server.
type fakeCoordinator struct {
	server   *httptest.Server
	mu       sync.Mutex
	partials map[string][]byte // participant id to partial
}

func newFakeCoordinator(t *testing.T) *fakeCoordinator {
	t.Helper()

	fc := &fakeCoordinator{partials: make(map[string][]byte)}

	fc.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/submit" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var resp protocol.EventResponse
		if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		fc.mu.Lock()
		fc.partials[resp.ParticipantID] = resp.Partial
		fc.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(protocol.SubmitAck{Received: true})
	}))

	t.Cleanup(fc.server.Close)

	return fc
}

// endpoint returns the stub server's endpoint.
func (fc *fakeCoordinator) endpoint(t *testing.T) protocol.Endpoint {
	t.Helper()

	host, portStr, err := net.SplitHostPort(fc.server.Listener.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}

	port, _ := strconv.Atoi(portStr)

	return protocol.Endpoint{Host: host, Port: port}
}

// count returns how many partials have been submitted.
func (fc *fakeCoordinator) count() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	return len(fc.partials)
}

// sum adds up all submitted partials as decimal integers.
func (fc *fakeCoordinator) sum(t *testing.T) int64 {
	t.Helper()

	fc.mu.Lock()
	defer fc.mu.Unlock()

	var total int64

	for id, partial := range fc.partials {
		v, err := strconv.ParseInt(string(partial), 10, 64)
		if err != nil {
			t.Fatalf("partial from %s: %v", id, err)
		}

		total += v
	}

	return total
}

// newTestParticipant builds a participant wired to the fake coordinator and
// trusting the given coordinator key.
func newTestParticipant(t *testing.T, coordKeys crypto.KeyPair, coord protocol.Endpoint, value int64) *Participant {
	t.Helper()

	keys, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Coordinator = coord
	cfg.ConnectionTimeout = 200 * time.Millisecond
	cfg.ReadTimeout = 2 * time.Second

	p, err := New(cfg, keys, &mpc.FixedSource{Value: value})
	if err != nil {
		t.Fatalf("create participant: %v", err)
	}

	p.Registry().Register(mpc.SecureSum{})
	p.coordKey = coordKeys.Public

	return p
}

// signedEvent builds a coordinator-signed event listing the given
// participants.
func signedEvent(t *testing.T, coordKeys crypto.KeyPair, id string, participants ...*Participant) *protocol.Event {
	t.Helper()

	infos := make([]protocol.ParticipantInfo, len(participants))
	for i, p := range participants {
		infos[i] = protocol.ParticipantInfo{
			ID:        p.id,
			Endpoint:  p.cfg.Listen,
			PublicKey: p.keys.Public,
		}
	}

	event := &protocol.Event{
		EventID:         id,
		ComputationType: mpc.SumType,
		Participants:    infos,
		CreatedAt:       time.Now().UnixMilli(),
	}

	signature, err := crypto.Sign(event.Digest(), coordKeys.Private)
	if err != nil {
		t.Fatalf("sign event: %v", err)
	}

	event.CoordinatorSignature = signature

	return event
}

// signedShare builds a share message signed with the given private key.
func signedShare(t *testing.T, eventID, from, privateKey string, share []byte) *protocol.PeerShare {
	t.Helper()

	signature, err := crypto.Sign(protocol.ShareDigest(eventID, from, share), privateKey)
	if err != nil {
		t.Fatalf("sign share: %v", err)
	}

	return &protocol.PeerShare{
		EventID:         eventID,
		FromParticipant: from,
		Share:           share,
		Signature:       signature,
		Timestamp:       time.Now().UnixMilli(),
	}
}

func TestHandleEventRejectsBadSignature(t *testing.T) {
	coordKeys, _ := crypto.GenerateKeyPair()
	wrongKeys, _ := crypto.GenerateKeyPair()
	fc := newFakeCoordinator(t)

	p := newTestParticipant(t, coordKeys, fc.endpoint(t), 10)
	event := signedEvent(t, wrongKeys, "e-1", p)

	err := p.HandleEvent(event, true)
	if !errors.Is(err, ErrBadSignature) {
		t.Errorf("err = %v, want ErrBadSignature", err)
	}

	if p.ActiveEvents() != 0 {
		t.Error("rejected event was registered")
	}
}

func TestHandleEventRejectsStale(t *testing.T) {
	coordKeys, _ := crypto.GenerateKeyPair()
	fc := newFakeCoordinator(t)

	p := newTestParticipant(t, coordKeys, fc.endpoint(t), 10)

	event := signedEvent(t, coordKeys, "e-1", p)
	event.CreatedAt = time.Now().Add(-time.Minute).UnixMilli()

	signature, err := crypto.Sign(event.Digest(), coordKeys.Private)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	event.CoordinatorSignature = signature

	if err := p.HandleEvent(event, true); !errors.Is(err, ErrEventExpired) {
		t.Errorf("err = %v, want ErrEventExpired", err)
	}
}

func TestHandleEventIgnoresUnlisted(t *testing.T) {
	coordKeys, _ := crypto.GenerateKeyPair()
	fc := newFakeCoordinator(t)

	p := newTestParticipant(t, coordKeys, fc.endpoint(t), 10)
	other := newTestParticipant(t, coordKeys, fc.endpoint(t), 20)

	event := signedEvent(t, coordKeys, "e-1", other)

	if err := p.HandleEvent(event, true); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if p.ActiveEvents() != 0 {
		t.Error("unlisted event was registered")
	}
}

func TestSelfOnlyEventSubmitsPartial(t *testing.T) {
	coordKeys, _ := crypto.GenerateKeyPair()
	fc := newFakeCoordinator(t)

	p := newTestParticipant(t, coordKeys, fc.endpoint(t), 42)
	event := signedEvent(t, coordKeys, "e-1", p)

	if err := p.HandleEvent(event, true); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool { return fc.count() == 1 })

	if got := fc.sum(t); got != 42 {
		t.Errorf("submitted partial sums to %d, want 42", got)
	}
}

func TestDuplicateEventSingleSubmission(t *testing.T) {
	coordKeys, _ := crypto.GenerateKeyPair()
	fc := newFakeCoordinator(t)

	p := newTestParticipant(t, coordKeys, fc.endpoint(t), 7)
	event := signedEvent(t, coordKeys, "e-5", p)

	if err := p.HandleEvent(event, true); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	if err := p.HandleEvent(event, true); err != nil {
		t.Fatalf("duplicate delivery: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool { return fc.count() == 1 })
	time.Sleep(200 * time.Millisecond)

	if fc.count() != 1 {
		t.Errorf("partials = %d, want 1", fc.count())
	}
}

func TestHandlePeerShareForgedSender(t *testing.T) {
	coordKeys, _ := crypto.GenerateKeyPair()
	attackerKeys, _ := crypto.GenerateKeyPair()
	fc := newFakeCoordinator(t)

	p1 := newTestParticipant(t, coordKeys, fc.endpoint(t), 10)
	p2 := newTestParticipant(t, coordKeys, fc.endpoint(t), 20)

	event := signedEvent(t, coordKeys, "e-1", p1, p2)
	if err := p1.HandleEvent(event, true); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	// Claims to be p2 but signs with the attacker's key.
	forged := signedShare(t, "e-1", p2.id, attackerKeys.Private, []byte("999"))

	if err := p1.HandlePeerShare(forged); !errors.Is(err, ErrBadSignature) {
		t.Errorf("err = %v, want ErrBadSignature", err)
	}

	if p1.ActiveEvents() != 1 {
		t.Error("forged share changed active event state")
	}
}

func TestHandlePeerShareUnauthorizedSender(t *testing.T) {
	coordKeys, _ := crypto.GenerateKeyPair()
	fc := newFakeCoordinator(t)

	p1 := newTestParticipant(t, coordKeys, fc.endpoint(t), 10)
	p2 := newTestParticipant(t, coordKeys, fc.endpoint(t), 20)
	outsider := newTestParticipant(t, coordKeys, fc.endpoint(t), 30)

	event := signedEvent(t, coordKeys, "e-1", p1, p2)
	if err := p1.HandleEvent(event, true); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	share := signedShare(t, "e-1", outsider.id, outsider.keys.Private, []byte("5"))

	if err := p1.HandlePeerShare(share); !errors.Is(err, ErrUnauthorizedSender) {
		t.Errorf("err = %v, want ErrUnauthorizedSender", err)
	}
}

func TestHandlePeerShareUnknownEvent(t *testing.T) {
	coordKeys, _ := crypto.GenerateKeyPair()
	senderKeys, _ := crypto.GenerateKeyPair()
	fc := newFakeCoordinator(t)

	p := newTestParticipant(t, coordKeys, fc.endpoint(t), 10)
	share := signedShare(t, "ghost", "someone", senderKeys.Private, []byte("5"))

	if err := p.HandlePeerShare(share); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("err = %v, want ErrUnknownEvent", err)
	}
}

func TestHandlePeerShareDuplicateDropped(t *testing.T) {
	coordKeys, _ := crypto.GenerateKeyPair()
	fc := newFakeCoordinator(t)

	p1 := newTestParticipant(t, coordKeys, fc.endpoint(t), 10)
	p2 := newTestParticipant(t, coordKeys, fc.endpoint(t), 20)
	p3 := newTestParticipant(t, coordKeys, fc.endpoint(t), 30)

	event := signedEvent(t, coordKeys, "e-1", p1, p2, p3)
	if err := p1.HandleEvent(event, true); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	share := signedShare(t, "e-1", p2.id, p2.keys.Private, []byte("5"))

	if err := p1.HandlePeerShare(share); err != nil {
		t.Fatalf("first share: %v", err)
	}

	// The dedup mark lands before signature checks, so even a re-signed
	// variant from the same sender is dropped.
	variant := signedShare(t, "e-1", p2.id, p2.keys.Private, []byte("777"))

	if err := p1.HandlePeerShare(variant); err != nil {
		t.Errorf("duplicate share: %v", err)
	}
}

func TestSweepEvictsStalledEvent(t *testing.T) {
	coordKeys, _ := crypto.GenerateKeyPair()
	fc := newFakeCoordinator(t)

	p1 := newTestParticipant(t, coordKeys, fc.endpoint(t), 10)
	p2 := newTestParticipant(t, coordKeys, fc.endpoint(t), 20)

	// p2 never serves, so its share never arrives and the shard set
	// stays incomplete.
	event := signedEvent(t, coordKeys, "e-1", p1, p2)
	if err := p1.HandleEvent(event, true); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	if p1.ActiveEvents() != 1 {
		t.Fatalf("active events = %d, want 1", p1.ActiveEvents())
	}

	// A fresh entry survives the sweep.
	p1.sweepActive()

	if p1.ActiveEvents() != 1 {
		t.Fatal("fresh event was evicted")
	}

	// Past the event timeout the stalled entry goes.
	p1.mu.Lock()
	p1.active["e-1"].registeredAt = time.Now().Add(-2 * p1.cfg.EventTimeout)
	p1.mu.Unlock()

	p1.sweepActive()

	if p1.ActiveEvents() != 0 {
		t.Errorf("active events = %d, want 0 after sweep", p1.ActiveEvents())
	}

	if fc.count() != 0 {
		t.Errorf("evicted event submitted a partial")
	}
}

func TestSweepEvictsFailedShardState(t *testing.T) {
	coordKeys, _ := crypto.GenerateKeyPair()
	fc := newFakeCoordinator(t)

	keys, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate keys: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Coordinator = fc.endpoint(t)
	cfg.ConnectionTimeout = 200 * time.Millisecond

	p, err := New(cfg, keys, failingSource{})
	if err != nil {
		t.Fatalf("create participant: %v", err)
	}

	p.Registry().Register(mpc.SecureSum{})
	p.coordKey = coordKeys.Public

	event := signedEvent(t, coordKeys, "e-1", p)

	// Registration happens before sharding, so the entry is left behind
	// when the data source fails.
	if err := p.HandleEvent(event, true); err == nil {
		t.Fatal("expected shard failure")
	}

	if p.ActiveEvents() != 1 {
		t.Fatalf("active events = %d, want 1", p.ActiveEvents())
	}

	p.mu.Lock()
	p.active["e-1"].registeredAt = time.Now().Add(-2 * p.cfg.EventTimeout)
	p.mu.Unlock()

	p.sweepActive()

	if p.ActiveEvents() != 0 {
		t.Errorf("active events = %d, want 0 after sweep", p.ActiveEvents())
	}
}

// failingSource collects nothing; used to exercise shard failure paths.
type failingSource struct{}

func (failingSource) Collect(_ *protocol.Event) ([]byte, error) {
	return nil, errors.New("collection unavailable")
}

func (failingSource) Shard(_ []byte, _ int, _ *protocol.Event) ([][]byte, error) {
	return nil, errors.New("collection unavailable")
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(20 * time.Millisecond)
	}

	t.Fatal("condition not reached before deadline")
}
