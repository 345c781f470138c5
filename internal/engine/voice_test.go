package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/james/internal/audio"
	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/wakeword"
)

type tickSource struct{}

func (tickSource) Open(_, _ int, deliver func([]int16)) (func() error, error) {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		tick := time.NewTicker(2 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				deliver([]int16{1, 2})
			}
		}
	}()
	return func() error {
		close(done)
		<-stopped
		return nil
	}, nil
}

type fakeStream struct {
	mu         sync.Mutex
	sent       int
	keepAlives int
	closed     bool

	utterances chan string
	done       chan struct{}
	once       sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{utterances: make(chan string, 4), done: make(chan struct{})}
}

func (s *fakeStream) Send([]byte) error {
	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) KeepAlive() error {
	s.mu.Lock()
	s.keepAlives++
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Utterances() <-chan string { return s.utterances }
func (s *fakeStream) Done() <-chan struct{}     { return s.done }
func (s *fakeStream) Err() error                { return nil }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *fakeStream) counts() (sent, keepAlives int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent, s.keepAlives
}

type fakeDialer struct {
	mu      sync.Mutex
	streams []*fakeStream
	opened  chan *fakeStream
}

func (d *fakeDialer) Open(context.Context, func(string)) (domain.TranscriptStream, error) {
	s := newFakeStream()
	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	d.opened <- s
	return s, nil
}

func newVoice(t *testing.T, gen domain.TextGenerator, opts ...VoiceOption) (*Voice, *wakeword.Gate, *fakeDialer, *eventLog) {
	t.Helper()
	events := &eventLog{}
	eng, _ := newEngine(gen, WithNotifier(events))
	gate := wakeword.NewGate(nil, quiet())
	mic := audio.NewMicrophone(quiet(), audio.WithSource(tickSource{}))
	dialer := &fakeDialer{opened: make(chan *fakeStream, 4)}
	v := NewVoice(eng, gate, mic, dialer, quiet(), opts...)
	return v, gate, dialer, events
}

// activate fires the gate until a session opens. Gate.Wait drains stale
// activations, so a single early Fire could be lost.
func activate(t *testing.T, gate *wakeword.Gate, dialer *fakeDialer, reason string) *fakeStream {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		gate.Fire(reason)
		select {
		case s := <-dialer.opened:
			return s
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("session did not open")
			return nil
		}
	}
}

func TestVoiceSessionFarewell(t *testing.T) {
	v, gate, dialer, events := newVoice(t, &scriptedGen{reply: "It is noon."})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- v.Run(ctx) }()

	stream := activate(t, gate, dialer, "keyboard")

	assert.Eventually(t, func() bool { sent, _ := stream.counts(); return sent > 0 },
		time.Second, 5*time.Millisecond, "audio forwarded while listening")

	stream.utterances <- "what time is it"
	assert.Eventually(t, func() bool { return events.has("said:It is noon.") }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, v.eng.ctrl.Listening, time.Second, time.Millisecond)

	stream.utterances <- "okay goodbye"
	assert.Eventually(t, func() bool { return events.has("ended:" + EndFarewell) }, time.Second, 5*time.Millisecond)

	assert.True(t, events.has("activated:keyboard"))
	assert.True(t, events.has("said:"+DefaultGreeting))
	assert.Equal(t, domain.TurnIdle, v.eng.ctrl.State())
	assert.Empty(t, v.mic.Holder())
	assert.Equal(t, 2, v.eng.Conversation().Len())

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestVoiceSessionManualEnd(t *testing.T) {
	v, gate, dialer, events := newVoice(t, &scriptedGen{reply: "x"}, WithGreeting(""))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = v.Run(ctx) }()

	activate(t, gate, dialer, "keyboard")
	require.True(t, v.EndSession())
	assert.Eventually(t, func() bool { return events.has("ended:" + EndManual) }, time.Second, 5*time.Millisecond)

	// The loop goes back to the gate and can be reactivated.
	activate(t, gate, dialer, "again")
}

func TestVoiceSessionIdleTimeout(t *testing.T) {
	v, gate, dialer, events := newVoice(t, &scriptedGen{}, WithGreeting(""), WithIdleTimeout(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = v.Run(ctx) }()

	stream := activate(t, gate, dialer, "keyboard")
	assert.Eventually(t, func() bool { return events.has("ended:" + EndIdle) }, time.Second, 5*time.Millisecond)
	stream.mu.Lock()
	assert.True(t, stream.closed)
	stream.mu.Unlock()
}

func TestForwardKeepAliveWhileMuted(t *testing.T) {
	v, _, _, _ := newVoice(t, &scriptedGen{}, WithKeepAlive(5*time.Millisecond))
	ctrl := v.eng.ctrl
	require.NoError(t, ctrl.Activate())
	require.NoError(t, ctrl.Mute())

	frames := make(chan []int16, 8)
	stream := newFakeStream()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go v.forward(ctx, frames, stream)

	for i := 0; i < 5; i++ {
		frames <- []int16{1}
	}
	assert.Eventually(t, func() bool { _, ka := stream.counts(); return ka >= 2 }, time.Second, time.Millisecond)
	sent, _ := stream.counts()
	assert.Zero(t, sent, "no audio while muted")
}

// blockingGen holds every generation until release is closed.
type blockingGen struct {
	mu      sync.Mutex
	calls   []string
	release chan struct{}
}

func (g *blockingGen) Generate(ctx context.Context, msgs []domain.Message) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, msgs[len(msgs)-1].Content)
	g.mu.Unlock()
	select {
	case <-g.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "Sure.", nil
}

func (g *blockingGen) seen() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func TestVoiceDropsUtterancesWhileMuted(t *testing.T) {
	gen := &blockingGen{release: make(chan struct{})}
	v, gate, dialer, events := newVoice(t, gen, WithGreeting(""))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = v.Run(ctx) }()

	stream := activate(t, gate, dialer, "keyboard")
	stream.utterances <- "first"
	assert.Eventually(t, func() bool { return len(gen.seen()) == 1 }, time.Second, 2*time.Millisecond)
	require.True(t, v.eng.ctrl.Muted())

	stream.utterances <- "arrived while muted"
	assert.Eventually(t, func() bool { return len(stream.utterances) == 0 }, time.Second, 2*time.Millisecond)
	require.True(t, v.eng.ctrl.Muted())

	close(gen.release)
	assert.Eventually(t, func() bool { return events.has("said:Sure.") }, time.Second, 2*time.Millisecond)
	assert.Eventually(t, v.eng.ctrl.Listening, time.Second, 2*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, []string{"first"}, gen.seen())
	assert.False(t, events.has("heard:arrived while muted"))
	assert.Equal(t, 2, v.eng.Conversation().Len())
}

func TestVoiceSessionReportsBusyMicrophone(t *testing.T) {
	v, gate, dialer, events := newVoice(t, &scriptedGen{}, WithGreeting(""))
	v.acquire = 50 * time.Millisecond

	held, err := v.mic.Acquire("wakeword")
	require.NoError(t, err)
	defer held.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = v.Run(ctx) }()

	stream := activate(t, gate, dialer, "keyboard")
	assert.Eventually(t, func() bool { return events.has("ended:" + EndNoInput) }, time.Second, 5*time.Millisecond)
	assert.False(t, events.has("ended:"+EndStream))
	stream.mu.Lock()
	assert.True(t, stream.closed)
	stream.mu.Unlock()
}
