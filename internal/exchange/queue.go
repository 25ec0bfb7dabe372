package exchange

import (
	"context"

	"alphabot-go/internal/signal"
)

// dropQueue is a bounded per-symbol buffer that evicts the oldest event when full.
// Push never blocks, so the socket read loop is never stalled by slow consumers.
type dropQueue struct {
	ch chan signal.NormalizedEvent
}

func newDropQueue(capacity int) *dropQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &dropQueue{ch: make(chan signal.NormalizedEvent, capacity)}
}

// Push enqueues ev and reports whether an older event was evicted to make room.
func (q *dropQueue) Push(ev signal.NormalizedEvent) bool {
	dropped := false
	for {
		select {
		case q.ch <- ev:
			return dropped
		default:
		}
		select {
		case <-q.ch:
			dropped = true
		default:
		}
	}
}

// Len reports buffered events.
func (q *dropQueue) Len() int { return len(q.ch) }

// Forward moves events to out until ctx is done.
func (q *dropQueue) Forward(ctx context.Context, out chan<- signal.NormalizedEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-q.ch:
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}
