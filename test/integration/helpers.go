package integration

import (
	"net"
	"testing"
	"time"

	"github.com/frederikgramkortegaard/tribune/internal/coordinator"
	"github.com/frederikgramkortegaard/tribune/internal/crypto"
	"github.com/frederikgramkortegaard/tribune/internal/mpc"
	"github.com/frederikgramkortegaard/tribune/internal/participant"
	"github.com/frederikgramkortegaard/tribune/internal/protocol"
)

// freePort grabs an ephemeral loopback port.
func freePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	return l.Addr().(*net.TCPAddr).Port
}

// startCoordinator launches a coordinator on a loopback port with the sum
// computation registered.
func startCoordinator(t *testing.T, minParticipants int) (*coordinator.Coordinator, protocol.Endpoint) {
	t.Helper()

	keys, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate coordinator keys: %v", err)
	}

	cfg := coordinator.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = freePort(t)
	cfg.MinParticipants = minParticipants
	cfg.EventTimeout = 10 * time.Second

	coord, err := coordinator.New(cfg, keys)
	if err != nil {
		t.Fatalf("create coordinator: %v", err)
	}

	coord.Registry().Register(mpc.SecureSum{})

	if err := coord.Start(); err != nil {
		t.Fatalf("start coordinator: %v", err)
	}

	t.Cleanup(func() { coord.Stop() })

	return coord, protocol.Endpoint{Host: cfg.Host, Port: cfg.Port}
}

// startParticipant launches a connected participant contributing the given
// fixed value to sum events.
func startParticipant(t *testing.T, coord protocol.Endpoint, value int64) *participant.Participant {
	t.Helper()

	keys, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate participant keys: %v", err)
	}

	cfg := participant.DefaultConfig()
	cfg.Coordinator = coord
	cfg.Listen = protocol.Endpoint{Host: "127.0.0.1", Port: freePort(t)}
	cfg.ConnectionTimeout = 500 * time.Millisecond

	p, err := participant.New(cfg, keys, &mpc.FixedSource{Value: value})
	if err != nil {
		t.Fatalf("create participant: %v", err)
	}

	p.Registry().Register(mpc.SecureSum{})

	if err := p.Start(); err != nil {
		t.Fatalf("start participant: %v", err)
	}

	t.Cleanup(func() { p.Stop() })

	if err := p.Connect(); err != nil {
		t.Fatalf("connect participant: %v", err)
	}

	return p
}

// awaitOutcome reads the event outcome or fails after the timeout.
func awaitOutcome(t *testing.T, sink <-chan coordinator.Outcome, timeout time.Duration) coordinator.Outcome {
	t.Helper()

	select {
	case outcome := <-sink:
		return outcome
	case <-time.After(timeout):
		t.Fatal("no outcome before deadline")
		return coordinator.Outcome{}
	}
}
