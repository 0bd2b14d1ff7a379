// Package pool maintains reusable per-endpoint HTTP clients with expiry.
package pool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/frederikgramkortegaard/tribune/internal/protocol"
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultConnectTimeout bounds connection establishment.
	DefaultConnectTimeout = 2 * time.Second

	// DefaultRequestTimeout bounds a full request/response round trip.
	DefaultRequestTimeout = 5 * time.Second

	// DefaultEntryTTL is how long an idle pooled client survives.
	DefaultEntryTTL = 60 * time.Second
)

// Options configure a Pool. Zero fields fall back to the defaults above.
type Options struct {
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	EntryTTL       time.Duration
	TLS            bool // TLS selects https scheme for pooled endpoints
}

// Pool hands out pooled HTTP clients keyed by endpoint. Idle entries expire
// after EntryTTL and are dropped by Cleanup or replaced on next use.
type Pool struct {
	entries map[string]*entry
	mu      sync.RWMutex
	opts    Options
	clock   clockwork.Clock
}

// entry is one pooled client plus its last-used stamp.
type entry struct {
	client   *http.Client
	base     string
	lastUsed time.Time
}

// New creates a pool with the given options.
func New(opts Options) *Pool {
	return NewWithClock(opts, clockwork.NewRealClock())
}

// NewWithClock creates a pool using the given clock. Used by tests.
func NewWithClock(opts Options, clock clockwork.Clock) *Pool {
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}

	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	if opts.EntryTTL == 0 {
		opts.EntryTTL = DefaultEntryTTL
	}

	return &Pool{
		entries: make(map[string]*entry),
		opts:    opts,
		clock:   clock,
	}
}

// PostJSON posts payload as JSON to path on the given endpoint and returns
// the response status and body. One delivery attempt, bounded by the pool's
// timeouts.
func (p *Pool) PostJSON(endpoint protocol.Endpoint, path string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode payload: %w", err)
	}

	e := p.acquire(endpoint)

	resp, err := e.client.Post(e.base+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("post %s%s: %w", endpoint, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response from %s%s: %w", endpoint, path, err)
	}

	return resp.StatusCode, data, nil
}

// Remove drops the pooled client for the given endpoint.
func (p *Pool) Remove(endpoint protocol.Endpoint) {
	p.mu.Lock()
	delete(p.entries, endpoint.String())
	p.mu.Unlock()
}

// Cleanup drops all entries idle longer than the entry TTL.
func (p *Pool) Cleanup() {
	now := p.clock.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	for key, e := range p.entries {
		if now.Sub(e.lastUsed) >= p.opts.EntryTTL {
			delete(p.entries, key)
		}
	}
}

// Len returns the number of pooled clients.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.entries)
}

// acquire returns a live pooled entry for the endpoint, creating or
// replacing an expired one.
func (p *Pool) acquire(endpoint protocol.Endpoint) *entry {
	key := endpoint.String()
	now := p.clock.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[key]
	if ok && now.Sub(e.lastUsed) < p.opts.EntryTTL {
		e.lastUsed = now
		return e
	}

	e = &entry{
		client:   p.newClient(),
		base:     p.scheme() + key,
		lastUsed: now,
	}
	p.entries[key] = e

	return e
}

// newClient builds an HTTP client with the pool's timeouts.
func (p *Pool) newClient() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: p.opts.ConnectTimeout,
		}).DialContext,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     p.opts.EntryTTL,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   p.opts.RequestTimeout,
	}
}

// scheme returns the URL scheme prefix for pooled endpoints.
func (p *Pool) scheme() string {
	if p.opts.TLS {
		return "https://"
	}

	return "http://"
}
