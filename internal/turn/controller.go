// Package turn owns the assistant's turn-taking state.
//
// A Controller is the only place the Idle/Listening/Muted state lives.
// It is changed exclusively through its transition methods, so "muted"
// and "listening" can never be observed at the same time.
package turn

import (
	"fmt"
	"sync"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
)

// Observer is called after every successful transition, outside the
// controller's lock.
type Observer func(from, to domain.TurnState)

// Controller is safe for concurrent use.
type Controller struct {
	mu        sync.Mutex
	state     domain.TurnState
	observers []Observer
	log       *logger.Logger
}

// NewController returns a controller in the Idle state.
func NewController(log *logger.Logger) *Controller {
	return &Controller{state: domain.TurnIdle, log: log}
}

// OnChange registers an observer.
func (c *Controller) OnChange(fn Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// State returns the current state.
func (c *Controller) State() domain.TurnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Listening reports whether transcripts should currently be accepted.
func (c *Controller) Listening() bool { return c.State() == domain.TurnListening }

// Muted reports whether the assistant is currently speaking.
func (c *Controller) Muted() bool { return c.State() == domain.TurnMuted }

// Activate opens a listening window after the wake word. Idle -> Listening.
func (c *Controller) Activate() error {
	return c.transition(domain.TurnListening, domain.TurnIdle)
}

// Mute closes the listening path before playback. Listening -> Muted.
func (c *Controller) Mute() error {
	return c.transition(domain.TurnMuted, domain.TurnListening)
}

// Unmute reopens listening after playback. Muted -> Listening.
func (c *Controller) Unmute() error {
	return c.transition(domain.TurnListening, domain.TurnMuted)
}

// End returns to Idle from any state. Ending an idle controller is a no-op.
func (c *Controller) End() {
	_ = c.transition(domain.TurnIdle, domain.TurnIdle, domain.TurnListening, domain.TurnMuted)
}

func (c *Controller) transition(to domain.TurnState, allowed ...domain.TurnState) error {
	c.mu.Lock()
	from := c.state
	ok := false
	for _, a := range allowed {
		if from == a {
			ok = true
			break
		}
	}
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("turn: %s -> %s: %w", from, to, domain.ErrInvalidTransition)
	}
	if from == to {
		c.mu.Unlock()
		return nil
	}
	c.state = to
	obs := append([]Observer(nil), c.observers...)
	c.mu.Unlock()

	c.log.Debug("%s -> %s", from, to)
	for _, fn := range obs {
		fn(from, to)
	}
	return nil
}
