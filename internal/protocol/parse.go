package protocol

import (
	"encoding/json"
	"fmt"
	"io"
)

// maxBodySize bounds how much of a request body is read (1 MB).
const maxBodySize = 1 << 20

// validator is implemented by all wire messages.
type validator interface {
	Validate() error
}

// decode reads a JSON body into v and runs its structural validation.
func decode(r io.Reader, v validator) error {
	data, err := io.ReadAll(io.LimitReader(r, maxBodySize))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse body: %w", err)
	}

	return v.Validate()
}

// ParseEvent decodes and validates an Event body.
func ParseEvent(r io.Reader) (*Event, error) {
	var e Event
	if err := decode(r, &e); err != nil {
		return nil, err
	}

	return &e, nil
}

// ParsePeerShare decodes and validates a PeerShare body.
func ParsePeerShare(r io.Reader) (*PeerShare, error) {
	var m PeerShare
	if err := decode(r, &m); err != nil {
		return nil, err
	}

	return &m, nil
}

// ParseConnectRequest decodes and validates a ConnectRequest body.
func ParseConnectRequest(r io.Reader) (*ConnectRequest, error) {
	var c ConnectRequest
	if err := decode(r, &c); err != nil {
		return nil, err
	}

	return &c, nil
}

// ParseConnectAck decodes and validates a ConnectAck body.
func ParseConnectAck(r io.Reader) (*ConnectAck, error) {
	var a ConnectAck
	if err := decode(r, &a); err != nil {
		return nil, err
	}

	return &a, nil
}

// ParseEventResponse decodes and validates an EventResponse body.
func ParseEventResponse(r io.Reader) (*EventResponse, error) {
	var resp EventResponse
	if err := decode(r, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// ParsePing decodes and validates a Ping body.
func ParsePing(r io.Reader) (*Ping, error) {
	var p Ping
	if err := decode(r, &p); err != nil {
		return nil, err
	}

	return &p, nil
}
