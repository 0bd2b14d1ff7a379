package roster

import (
	"testing"
	"time"

	"github.com/frederikgramkortegaard/tribune/internal/protocol"
	"github.com/jonboulle/clockwork"
)

func testEntry(id string) Entry {
	return Entry{
		ID:        id,
		Endpoint:  protocol.Endpoint{Host: "localhost", Port: 9000},
		PublicKey: "aabbcc",
	}
}

func TestInsertAndGet(t *testing.T) {
	r := New()
	r.Insert(testEntry("p-1"))

	e, ok := r.Get("p-1")
	if !ok {
		t.Fatal("entry not found")
	}

	if e.LastPing.IsZero() {
		t.Error("insert did not stamp LastPing")
	}

	if !r.Contains("p-1") || r.Contains("p-2") {
		t.Error("membership check wrong")
	}

	if r.Len() != 1 {
		t.Errorf("len = %d, want 1", r.Len())
	}
}

func TestInsertReplaces(t *testing.T) {
	r := New()
	r.Insert(testEntry("p-1"))

	updated := testEntry("p-1")
	updated.Endpoint.Port = 9999
	r.Insert(updated)

	e, _ := r.Get("p-1")
	if e.Endpoint.Port != 9999 {
		t.Errorf("port = %d, want 9999", e.Endpoint.Port)
	}

	if r.Len() != 1 {
		t.Errorf("len = %d, want 1", r.Len())
	}
}

func TestTouch(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewWithClock(clock)
	r.Insert(testEntry("p-1"))

	clock.Advance(10 * time.Second)

	if err := r.Touch("p-1"); err != nil {
		t.Fatalf("touch: %v", err)
	}

	e, _ := r.Get("p-1")
	if !e.LastPing.Equal(clock.Now()) {
		t.Error("touch did not advance LastPing")
	}

	if err := r.Touch("stranger"); err != ErrNotFound {
		t.Errorf("touch stranger = %v, want ErrNotFound", err)
	}
}

func TestAlive(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewWithClock(clock)
	r.Insert(testEntry("p-1"))

	e, _ := r.Get("p-1")

	if !e.Alive(clock.Now().Add(20*time.Second), 30*time.Second) {
		t.Error("entry should be alive within timeout")
	}

	if e.Alive(clock.Now().Add(40*time.Second), 30*time.Second) {
		t.Error("entry should be dead past timeout")
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	r := New()
	r.Insert(testEntry("p-1"))
	r.Insert(testEntry("p-2"))

	snapshot := r.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("snapshot len = %d, want 2", len(snapshot))
	}

	r.Remove("p-1")

	if len(snapshot) != 2 {
		t.Error("snapshot changed after removal")
	}

	if r.Len() != 1 {
		t.Errorf("len = %d, want 1", r.Len())
	}
}
