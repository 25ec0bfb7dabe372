package exchange

import (
	"sync"
	"time"
)

// Backoff produces non-decreasing reconnect delays up to Max and restarts from
// Initial after Reset.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64

	mu      sync.Mutex
	current time.Duration
}

// DefaultBackoff returns the stream reconnect policy: 3s, x1.8, capped at 60s.
func DefaultBackoff() *Backoff {
	return NewBackoff(3*time.Second, 60*time.Second, 1.8)
}

// NewBackoff builds a policy, clamping nonsensical inputs.
func NewBackoff(initial, max time.Duration, multiplier float64) *Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	if multiplier < 1 {
		multiplier = 1
	}
	return &Backoff{Initial: initial, Max: max, Multiplier: multiplier}
}

// Next returns the delay to wait now and advances the policy.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current <= 0 {
		b.current = b.Initial
	}
	wait := b.current
	next := time.Duration(float64(b.current) * b.Multiplier)
	if next > b.Max || next <= 0 {
		next = b.Max
	}
	b.current = next
	return wait
}

// Reset restarts the sequence at Initial.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.current = 0
	b.mu.Unlock()
}
