// Package engine runs the conversation: it turns transcripts into replies,
// speaks them with the listening path muted, and drives wake-word sessions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
	"github.com/hammamikhairi/james/internal/memory"
	"github.com/hammamikhairi/james/internal/tts"
	"github.com/hammamikhairi/james/internal/turn"
)

// Fixed lines.
const (
	DefaultGreeting = "Hello! I'm James, how can I help you today?"
	DefaultFarewell = "Goodbye! Just say my name if you need anything else."
	DefaultSettle   = 500 * time.Millisecond
)

// ErrDropped is returned when a transcript arrives outside a listening
// window and is discarded.
var ErrDropped = errors.New("engine: not listening, transcript dropped")

// Option configures the engine.
type Option func(*Engine)

// WithSpeech enables spoken replies. Without it the engine is text-only.
func WithSpeech(synth domain.TextToSpeech, sink domain.AudioSink) Option {
	return func(e *Engine) {
		e.synth = synth
		e.sink = sink
	}
}

// WithSettle sets the pause between the end of playback and unmuting, so
// the tail of the assistant's own voice is not picked up.
func WithSettle(d time.Duration) Option {
	return func(e *Engine) { e.settle = d }
}

// WithNotifier reports conversation events (UI, logs).
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notify = n }
}

// Engine owns one conversation and its turn controller.
type Engine struct {
	conv   *memory.Conversation
	gen    domain.TextGenerator
	ctrl   *turn.Controller
	synth  domain.TextToSpeech
	sink   domain.AudioSink
	notify Notifier
	settle time.Duration
	log    *logger.Logger
}

// New creates an engine over the given conversation and generator.
func New(conv *memory.Conversation, gen domain.TextGenerator, ctrl *turn.Controller, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		conv:   conv,
		gen:    gen,
		ctrl:   ctrl,
		notify: NopNotifier{},
		settle: DefaultSettle,
		log:    log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Controller returns the turn controller.
func (e *Engine) Controller() *turn.Controller { return e.ctrl }

// Conversation returns the conversation memory.
func (e *Engine) Conversation() *memory.Conversation { return e.conv }

// Speaks reports whether replies are synthesized and played.
func (e *Engine) Speaks() bool { return e.synth != nil && e.sink != nil }

// Reply records the user's message, generates an answer from the
// windowed context, which includes the new message, and records the
// answer. The user's message is taken back on failure.
func (e *Engine) Reply(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("engine: empty message")
	}

	user := domain.UserMessage(text)
	e.conv.Append(user)
	reply, err := e.gen.Generate(ctx, e.conv.Context())
	if err != nil {
		e.conv.RemoveLast(user)
		return "", fmt.Errorf("engine: generate: %w", err)
	}
	e.conv.Append(domain.AssistantMessage(reply))
	return reply, nil
}

// Turn answers one transcript. It is dropped unless the controller is
// Listening. The listening path stays muted from before generation until
// the settle delay after playback.
func (e *Engine) Turn(ctx context.Context, transcript string) (string, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", nil
	}
	if err := e.ctrl.Mute(); err != nil {
		e.log.Debug("dropping %q: %v", transcript, err)
		return "", ErrDropped
	}
	return e.muted(ctx, transcript)
}

// muted runs a turn on a controller the caller has already muted.
func (e *Engine) muted(ctx context.Context, transcript string) (string, error) {
	defer e.unmute()

	e.notify.Heard(transcript)
	reply, err := e.Reply(ctx, transcript)
	if err != nil {
		e.notify.Hint("Sorry, something went wrong.")
		return "", err
	}
	e.notify.Said(reply)
	e.speak(ctx, reply)
	return reply, nil
}

// Say speaks a fixed line under the same mute discipline as Turn. It is
// not recorded in the conversation.
func (e *Engine) Say(ctx context.Context, text string) error {
	if err := e.ctrl.Mute(); err != nil {
		return ErrDropped
	}
	defer e.unmute()

	e.notify.Said(text)
	e.speak(ctx, text)
	return nil
}

func (e *Engine) speak(ctx context.Context, text string) {
	if !e.Speaks() {
		return
	}
	audio, err := tts.Render(ctx, e.synth, text, e.log)
	if err != nil {
		e.log.Warn("synthesis failed: %v", err)
		return
	}
	if err := e.sink.Play(ctx, audio, e.synth.ContentType()); err != nil && ctx.Err() == nil {
		e.log.Warn("playback failed: %v", err)
	}
	e.wait(ctx, e.settle)
}

func (e *Engine) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// unmute reopens listening unless the session ended meanwhile.
func (e *Engine) unmute() {
	if e.ctrl.Muted() {
		_ = e.ctrl.Unmute()
	}
}
