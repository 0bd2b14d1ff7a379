package mpc

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/frederikgramkortegaard/tribune/internal/protocol"
)

// FixedSource is a DataSource producing the same integer value for every
// event, sharded additively. Pairs with SecureSum.
type FixedSource struct {
	Value int64 // Value is the private input contributed to every event
}

// Collect returns the configured value.
func (s *FixedSource) Collect(_ *protocol.Event) ([]byte, error) {
	return []byte(strconv.FormatInt(s.Value, 10)), nil
}

// Shard splits the value into n additive shares.
func (s *FixedSource) Shard(value []byte, n int, _ *protocol.Event) ([][]byte, error) {
	v, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse value %q: %w", value, err)
	}

	return SplitAdditive(v, n)
}

// RandomSource is a DataSource producing a uniform random value in
// [0, Max) per event, sharded additively. Pairs with SecureSum.
type RandomSource struct {
	Max int64 // Max bounds the produced value, exclusive
}

// Collect draws a fresh random value.
func (s *RandomSource) Collect(_ *protocol.Event) ([]byte, error) {
	max := s.Max
	if max <= 0 {
		max = 100
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, fmt.Errorf("read randomness: %w", err)
	}

	v := int64(binary.LittleEndian.Uint64(buf[:]) % uint64(max))

	return []byte(strconv.FormatInt(v, 10)), nil
}

// Shard splits the value into n additive shares.
func (s *RandomSource) Shard(value []byte, n int, _ *protocol.Event) ([][]byte, error) {
	v, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse value %q: %w", value, err)
	}

	return SplitAdditive(v, n)
}
