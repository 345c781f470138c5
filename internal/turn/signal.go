package turn

import "context"

// Signal is a single-slot handoff between a producer that may fire at
// any time and a consumer that waits for it. Fire never blocks; when a
// value is already pending the new one is dropped. Each fired value is
// consumed by exactly one Wait.
type Signal struct {
	ch chan string
}

// NewSignal returns an empty signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan string, 1)}
}

// Fire deposits v if the slot is empty. It reports whether v was taken.
func (s *Signal) Fire(v string) bool {
	select {
	case s.ch <- v:
		return true
	default:
		return false
	}
}

// Wait blocks until a value is available or ctx is done.
func (s *Signal) Wait(ctx context.Context) (string, error) {
	select {
	case v := <-s.ch:
		return v, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Drain discards a pending value, if any.
func (s *Signal) Drain() {
	select {
	case <-s.ch:
	default:
	}
}

// C exposes the slot for use in a select.
func (s *Signal) C() <-chan string { return s.ch }
