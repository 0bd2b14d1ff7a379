package dedup

import (
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestSeenFirstAndSecond(t *testing.T) {
	cache := New(DefaultTTL, DefaultScanEvery)

	if cache.Seen("e-1|p-1") {
		t.Error("first check should be unseen")
	}

	if !cache.Seen("e-1|p-1") {
		t.Error("second check should be seen")
	}

	if cache.Seen("e-1|p-2") {
		t.Error("different key should be unseen")
	}
}

func TestSeenExpiresAfterTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := NewWithClock(time.Minute, DefaultScanEvery, clock)

	cache.Seen("e-1|p-1")

	clock.Advance(30 * time.Second)

	if !cache.Seen("e-1|p-1") {
		t.Error("key expired before TTL")
	}

	clock.Advance(time.Minute)

	if cache.Seen("e-1|p-1") {
		t.Error("key survived past TTL")
	}
}

func TestScanEvictsOnNthCheck(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := NewWithClock(time.Minute, 10, clock)

	for i := 0; i < 5; i++ {
		cache.Seen(fmt.Sprintf("key-%d", i))
	}

	clock.Advance(2 * time.Minute)

	// Entries are expired but still resident until a scan runs.
	if cache.Len() != 5 {
		t.Fatalf("len = %d, want 5 before scan", cache.Len())
	}

	// Checks 6..9 do not trigger a scan; the 10th does.
	for i := 5; i < 9; i++ {
		cache.Seen(fmt.Sprintf("key-%d", i))
	}

	if cache.Len() != 9 {
		t.Fatalf("len = %d, want 9 before scan", cache.Len())
	}

	cache.Seen("key-9")

	// The five expired entries are gone; the five fresh ones remain.
	if cache.Len() != 5 {
		t.Errorf("len = %d, want 5 after scan", cache.Len())
	}
}

func TestSeenWithinTTLRefreshesNothing(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := NewWithClock(time.Minute, DefaultScanEvery, clock)

	cache.Seen("e-1")
	clock.Advance(45 * time.Second)

	// Duplicate check does not extend the entry's life.
	if !cache.Seen("e-1") {
		t.Fatal("key should still be present")
	}

	clock.Advance(20 * time.Second)

	if cache.Seen("e-1") {
		t.Error("entry lifetime was extended by a duplicate check")
	}
}

func BenchmarkSeen(b *testing.B) {
	cache := New(DefaultTTL, DefaultScanEvery)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		cache.Seen(fmt.Sprintf("e-%d|p-%d", i%1000, i%7))
	}
}
