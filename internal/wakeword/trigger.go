package wakeword

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
)

// Trigger is an activation source. Run blocks until ctx is done and calls
// fire for each activation. A trigger stops firing after Pause until the
// next Resume. Triggers start paused.
type Trigger interface {
	Run(ctx context.Context, fire func(phrase string)) error
	Pause()
	Resume()
}

// Prober records a short clip and returns what was said in it.
type Prober interface {
	Probe(ctx context.Context) (string, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) (string, error)

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context) (string, error) { return f(ctx) }

// PhraseOption configures a PhraseTrigger.
type PhraseOption func(*PhraseTrigger)

// WithRetryDelay sets the pause after a failed probe.
func WithRetryDelay(d time.Duration) PhraseOption {
	return func(p *PhraseTrigger) { p.retry = d }
}

// PhraseTrigger transcribes short clips and matches them against the
// trigger phrases. Recognition failures are logged and retried after a
// fixed delay.
type PhraseTrigger struct {
	prober  Prober
	matcher *Matcher
	retry   time.Duration
	log     *logger.Logger

	mu     sync.Mutex
	paused bool
	abort  context.CancelFunc
	resume chan struct{}
}

var _ Trigger = (*PhraseTrigger)(nil)

// NewPhraseTrigger creates a paused trigger.
func NewPhraseTrigger(prober Prober, matcher *Matcher, log *logger.Logger, opts ...PhraseOption) *PhraseTrigger {
	p := &PhraseTrigger{
		prober:  prober,
		matcher: matcher,
		retry:   time.Second,
		log:     log,
		paused:  true,
		resume:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Pause stops probing. A probe in flight is cancelled so its microphone
// lease is released right away.
func (p *PhraseTrigger) Pause() {
	p.mu.Lock()
	p.paused = true
	abort := p.abort
	p.abort = nil
	p.mu.Unlock()
	if abort != nil {
		abort()
	}
}

// Resume re-arms the trigger.
func (p *PhraseTrigger) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
	select {
	case p.resume <- struct{}{}:
	default:
	}
}

// arm starts a probe context that Pause can cancel. It reports false
// while paused.
func (p *PhraseTrigger) arm(ctx context.Context) (context.Context, context.CancelFunc, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return nil, nil, false
	}
	pctx, cancel := context.WithCancel(ctx)
	p.abort = cancel
	return pctx, cancel, true
}

func (p *PhraseTrigger) isPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Run probes while armed. On a match it pauses itself, then fires once.
func (p *PhraseTrigger) Run(ctx context.Context, fire func(string)) error {
	p.log.Info("phrase trigger started (phrases=%v)", p.matcher.Phrases())
	for {
		pctx, cancel, armed := p.arm(ctx)
		if !armed {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.resume:
				continue
			}
		}

		text, err := p.prober.Probe(pctx)
		aborted := pctx.Err() != nil
		cancel()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if aborted {
			continue
		}
		if err != nil {
			if !errors.Is(err, domain.ErrNoSpeech) {
				p.log.Debug("probe failed: %v", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(p.retry):
				}
			}
			continue
		}

		// A result that arrives after Pause belongs to nobody.
		if p.isPaused() {
			continue
		}

		p.log.Debug("heard %q", text)
		if phrase, ok := p.matcher.Match(text); ok {
			p.log.Info("wake phrase %q detected in %q", phrase, text)
			p.Pause()
			fire(phrase)
		}
	}
}
