package mpc

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
)

// SumType is the computation type string for the additive sum.
const SumType = "sum"

// shareBound bounds the magnitude of random additive shares.
const shareBound = int64(1) << 40

// SecureSum is the additive-sum computation: shares and partials are
// decimal-encoded signed integers, combined and aggregated by addition.
type SecureSum struct{}

// Type returns the computation type string.
func (SecureSum) Type() string {
	return SumType
}

// Combine sums the collected shares into the participant's partial result.
func (SecureSum) Combine(shares [][]byte, _ json.RawMessage) ([]byte, error) {
	total, err := sumValues(shares)
	if err != nil {
		return nil, fmt.Errorf("combine shares: %w", err)
	}

	return []byte(strconv.FormatInt(total, 10)), nil
}

// Aggregate sums all participants' partials into the final result.
func (SecureSum) Aggregate(partials [][]byte, _ json.RawMessage) ([]byte, error) {
	total, err := sumValues(partials)
	if err != nil {
		return nil, fmt.Errorf("aggregate partials: %w", err)
	}

	return []byte(strconv.FormatInt(total, 10)), nil
}

// sumValues parses each value as a decimal integer and sums them.
func sumValues(values [][]byte) (int64, error) {
	var total int64

	for i, v := range values {
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value %d %q: %w", i, v, err)
		}

		total += n
	}

	return total, nil
}

// SplitAdditive splits value into n decimal-encoded shares that sum to it.
// The first n-1 shares are uniform random; the last balances the total.
func SplitAdditive(value int64, n int) ([][]byte, error) {
	if n < 1 {
		return nil, fmt.Errorf("split into %d shares", n)
	}

	shares := make([][]byte, n)

	var sum int64

	for i := 0; i < n-1; i++ {
		r, err := randomShare()
		if err != nil {
			return nil, err
		}

		shares[i] = []byte(strconv.FormatInt(r, 10))
		sum += r
	}

	shares[n-1] = []byte(strconv.FormatInt(value-sum, 10))

	return shares, nil
}

// randomShare draws a uniform random value in (-shareBound, shareBound).
func randomShare() (int64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("read randomness: %w", err)
	}

	r := int64(binary.LittleEndian.Uint64(buf[:]) % uint64(2*shareBound))

	return r - shareBound, nil
}
