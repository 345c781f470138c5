package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/hammamikhairi/james/internal/audio"
	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
	"github.com/hammamikhairi/james/internal/wakeword"
)

// Session end reasons reported to the notifier.
const (
	EndManual   = "manual"
	EndFarewell = "farewell"
	EndIdle     = "idle"
	EndStream   = "stream closed"
	EndNoInput  = "input unavailable"
)

// MicOwner is the lease name used for conversation capture.
const MicOwner = "conversation"

// DefaultFarewells end a session when heard.
var DefaultFarewells = []string{"goodbye", "bye james", "that's all", "stop listening"}

// VoiceOption configures a Voice loop.
type VoiceOption func(*Voice)

// WithGreeting replaces the activation greeting. Empty disables it.
func WithGreeting(s string) VoiceOption {
	return func(v *Voice) { v.greeting = s }
}

// WithFarewell sets the phrases that end a session and the line spoken
// in reply.
func WithFarewell(line string, phrases ...string) VoiceOption {
	return func(v *Voice) {
		v.farewell = line
		if len(phrases) > 0 {
			v.farewells = wakeword.NewMatcher(phrases...)
		}
	}
}

// WithIdleTimeout ends a session after d without an utterance. Zero
// disables the timeout.
func WithIdleTimeout(d time.Duration) VoiceOption {
	return func(v *Voice) { v.idle = d }
}

// WithKeepAlive sets how often keep-alives are sent while muted.
func WithKeepAlive(d time.Duration) VoiceOption {
	return func(v *Voice) { v.keepAlive = d }
}

// Voice is the wake-word session loop: wait at the gate, converse over a
// live transcription stream, return to the gate.
type Voice struct {
	eng    *Engine
	gate   *wakeword.Gate
	mic    *audio.Microphone
	stream domain.StreamingSpeechToText
	log    *logger.Logger

	greeting  string
	farewell  string
	farewells *wakeword.Matcher
	idle      time.Duration
	keepAlive time.Duration
	acquire   time.Duration

	end chan struct{}
}

// NewVoice wires the session loop.
func NewVoice(eng *Engine, gate *wakeword.Gate, mic *audio.Microphone, stream domain.StreamingSpeechToText, log *logger.Logger, opts ...VoiceOption) *Voice {
	v := &Voice{
		eng:       eng,
		gate:      gate,
		mic:       mic,
		stream:    stream,
		log:       log,
		greeting:  DefaultGreeting,
		farewell:  DefaultFarewell,
		farewells: wakeword.NewMatcher(DefaultFarewells...),
		idle:      60 * time.Second,
		keepAlive: 3 * time.Second,
		acquire:   2 * time.Second,
		end:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// EndSession asks the current session to close. It reports false when a
// request is already pending.
func (v *Voice) EndSession() bool {
	select {
	case v.end <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run loops until ctx is done.
func (v *Voice) Run(ctx context.Context) error {
	for {
		reason, err := v.gate.Wait(ctx)
		if err != nil {
			return err
		}
		v.session(ctx, reason)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (v *Voice) session(ctx context.Context, reason string) {
	select {
	case <-v.end:
	default:
	}

	ctrl := v.eng.ctrl
	if err := ctrl.Activate(); err != nil {
		v.log.Warn("activation refused: %v", err)
		return
	}
	ended := EndStream
	defer func() {
		ctrl.End()
		v.eng.notify.Ended(ended)
		v.log.Info("session ended (%s)", ended)
	}()

	v.log.Info("session started (%s)", reason)
	v.eng.notify.Activated(reason)
	if v.greeting != "" {
		_ = v.eng.Say(ctx, v.greeting)
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := v.stream.Open(sctx, v.eng.notify.Interim)
	if err != nil {
		v.log.Error("opening transcription stream: %v", err)
		v.eng.notify.Hint("I can't hear right now, please try again.")
		ended = EndNoInput
		return
	}
	defer stream.Close()

	lease, err := v.acquireMic(sctx)
	if err != nil {
		v.log.Error("acquiring microphone: %v", err)
		v.eng.notify.Hint("The microphone is busy, please try again.")
		ended = EndNoInput
		return
	}
	defer lease.Release()

	frames, err := lease.Frames()
	if err != nil {
		v.log.Error("starting capture: %v", err)
		ended = EndNoInput
		return
	}
	go v.forward(sctx, frames, stream)

	// Turns run beside the loop so utterances that arrive while muted
	// are seen, and dropped, as they come in.
	var turns sync.WaitGroup
	turnDone := make(chan struct{}, 1)
	defer func() {
		cancel()
		turns.Wait()
	}()

	var idle <-chan time.Time
	var timer *time.Timer
	if v.idle > 0 {
		timer = time.NewTimer(v.idle)
		defer timer.Stop()
		idle = timer.C
	}
	resetIdle := func() {
		if timer == nil {
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(v.idle)
	}

	for {
		select {
		case <-ctx.Done():
			ended = EndManual
			return
		case <-v.end:
			ended = EndManual
			return
		case <-idle:
			if ctrl.Muted() {
				resetIdle()
				continue
			}
			ended = EndIdle
			return
		case <-turnDone:
			resetIdle()
		case <-stream.Done():
			if err := stream.Err(); err != nil {
				v.log.Warn("transcription stream: %v", err)
			}
			ended = EndStream
			return
		case u, ok := <-stream.Utterances():
			if !ok {
				ended = EndStream
				return
			}
			u = strings.TrimSpace(u)
			if u == "" {
				continue
			}
			if !ctrl.Listening() {
				v.log.Debug("dropping %q: heard while muted", u)
				continue
			}
			if _, bye := v.farewells.Match(u); bye {
				v.eng.notify.Heard(u)
				if v.farewell != "" {
					_ = v.eng.Say(ctx, v.farewell)
				}
				ended = EndFarewell
				return
			}
			if err := ctrl.Mute(); err != nil {
				v.log.Debug("dropping %q: %v", u, err)
				continue
			}
			turns.Add(1)
			go func(u string) {
				defer turns.Done()
				if _, err := v.eng.muted(sctx, u); err != nil {
					v.log.Warn("turn failed: %v", err)
				}
				select {
				case turnDone <- struct{}{}:
				default:
				}
			}(u)
		}
	}
}

// acquireMic retries while the wake trigger is still letting go.
func (v *Voice) acquireMic(ctx context.Context) (*audio.Lease, error) {
	deadline := time.Now().Add(v.acquire)
	for {
		lease, err := v.mic.Acquire(MicOwner)
		if err == nil {
			return lease, nil
		}
		if !errors.Is(err, domain.ErrMicBusy) || time.Now().After(deadline) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// forward sends captured audio while Listening and keep-alives otherwise,
// so the stream never transcribes the assistant's own voice.
func (v *Voice) forward(ctx context.Context, frames <-chan []int16, stream domain.TranscriptStream) {
	tick := time.NewTicker(v.keepAlive)
	defer tick.Stop()

	ctrl := v.eng.ctrl
	for {
		select {
		case <-ctx.Done():
			return
		case pcm, ok := <-frames:
			if !ok {
				return
			}
			if !ctrl.Listening() {
				continue
			}
			if err := stream.Send(audio.Int16ToBytes(pcm)); err != nil {
				v.log.Debug("forward: %v", err)
				return
			}
		case <-tick.C:
			if ctrl.Listening() {
				continue
			}
			if err := stream.KeepAlive(); err != nil {
				v.log.Debug("keepalive: %v", err)
				return
			}
		}
	}
}
