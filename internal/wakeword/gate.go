package wakeword

import (
	"context"

	"github.com/hammamikhairi/james/internal/logger"
	"github.com/hammamikhairi/james/internal/turn"
)

// Gate blocks the conversation loop until its trigger fires. The trigger
// and the loop talk through a single-slot signal, so an activation is
// consumed exactly once and nothing fires while nobody is waiting.
type Gate struct {
	trigger Trigger
	signal  *turn.Signal
	log     *logger.Logger
}

// NewGate wraps a trigger. trigger may be nil for a gate that only opens
// through Fire.
func NewGate(trigger Trigger, log *logger.Logger) *Gate {
	return &Gate{trigger: trigger, signal: turn.NewSignal(), log: log}
}

// Run drives the trigger until ctx is done.
func (g *Gate) Run(ctx context.Context) error {
	if g.trigger == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return g.trigger.Run(ctx, func(phrase string) { g.signal.Fire(phrase) })
}

// Wait arms the trigger and blocks until one activation arrives. The
// trigger is disarmed again before Wait returns.
func (g *Gate) Wait(ctx context.Context) (string, error) {
	g.signal.Drain()
	if g.trigger != nil {
		g.trigger.Resume()
		defer g.trigger.Pause()
	}
	g.log.Debug("waiting for wake word")
	return g.signal.Wait(ctx)
}

// Fire opens the gate without the trigger (keyboard or remote
// activation). It reports false when an activation is already pending.
func (g *Gate) Fire(reason string) bool {
	return g.signal.Fire(reason)
}
