package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
	"github.com/hammamikhairi/james/internal/memory"
	"github.com/hammamikhairi/james/internal/turn"
)

// ── fakes ────────────────────────────────────────────────────────

type scriptedGen struct {
	mu    sync.Mutex
	reply string
	err   error
	seen  [][]domain.Message
}

func (g *scriptedGen) Generate(_ context.Context, msgs []domain.Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = append(g.seen, msgs)
	return g.reply, g.err
}

type echoSynth struct{}

func (echoSynth) ContentType() string { return "audio/test" }
func (echoSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	return []byte(text), nil
}

type recordingSink struct {
	mu        sync.Mutex
	ctrl      *turn.Controller
	played    []string
	mutedWhen []bool
}

func (s *recordingSink) Play(_ context.Context, audio []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, string(audio))
	s.mutedWhen = append(s.mutedWhen, s.ctrl.Muted())
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(kind, s string) {
	l.mu.Lock()
	l.events = append(l.events, kind+":"+s)
	l.mu.Unlock()
}

func (l *eventLog) Activated(s string) { l.add("activated", s) }
func (l *eventLog) Interim(s string)   { l.add("interim", s) }
func (l *eventLog) Heard(s string)     { l.add("heard", s) }
func (l *eventLog) Said(s string)      { l.add("said", s) }
func (l *eventLog) Hint(s string)      { l.add("hint", s) }
func (l *eventLog) Ended(s string)     { l.add("ended", s) }

func (l *eventLog) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == event {
			return true
		}
	}
	return false
}

func quiet() *logger.Logger { return logger.New(logger.LevelOff, nil) }

func newEngine(gen domain.TextGenerator, opts ...Option) (*Engine, *turn.Controller) {
	log := quiet()
	ctrl := turn.NewController(log)
	conv := memory.NewConversation("you are james")
	opts = append([]Option{WithSettle(0)}, opts...)
	return New(conv, gen, ctrl, log, opts...), ctrl
}

// ── tests ────────────────────────────────────────────────────────

func TestReplyRecordsTurn(t *testing.T) {
	gen := &scriptedGen{reply: "It is noon."}
	eng, _ := newEngine(gen)

	reply, err := eng.Reply(context.Background(), "  what time is it?  ")
	require.NoError(t, err)
	assert.Equal(t, "It is noon.", reply)

	require.Len(t, gen.seen, 1)
	sent := gen.seen[0]
	require.Len(t, sent, 2)
	assert.Equal(t, domain.RoleSystem, sent[0].Role)
	assert.Equal(t, "what time is it?", sent[1].Content)

	hist := eng.Conversation().History()
	require.Len(t, hist, 2)
	assert.Equal(t, domain.RoleAssistant, hist[1].Role)
}

func TestReplyWindowCountsNewMessage(t *testing.T) {
	gen := &scriptedGen{reply: "ok"}
	log := quiet()
	conv := memory.NewConversation("you are james", memory.WithWindow(10))
	for i := 0; i < 6; i++ {
		conv.AppendTurn(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}
	eng := New(conv, gen, turn.NewController(log), log, WithSettle(0))

	_, err := eng.Reply(context.Background(), "new")
	require.NoError(t, err)

	require.Len(t, gen.seen, 1)
	sent := gen.seen[0]
	require.Len(t, sent, 11, "system prompt plus ten messages")
	assert.Equal(t, domain.RoleSystem, sent[0].Role)
	assert.Equal(t, domain.UserMessage("new"), sent[10])
	assert.Equal(t, "a1", sent[1].Content)
	assert.Equal(t, 14, conv.Len())
}

func TestReplyFailureRecordsNothing(t *testing.T) {
	eng, _ := newEngine(&scriptedGen{err: errors.New("down")})

	_, err := eng.Reply(context.Background(), "hi")
	require.Error(t, err)
	assert.Zero(t, eng.Conversation().Len())

	_, err = eng.Reply(context.Background(), "   ")
	require.Error(t, err)
}

func TestTurnDroppedUnlessListening(t *testing.T) {
	gen := &scriptedGen{reply: "ok"}
	eng, ctrl := newEngine(gen)

	_, err := eng.Turn(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrDropped)
	assert.Empty(t, gen.seen)

	require.NoError(t, ctrl.Activate())
	require.NoError(t, ctrl.Mute())
	_, err = eng.Turn(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrDropped)
	assert.Empty(t, gen.seen)
}

func TestTurnMutesDuringPlayback(t *testing.T) {
	gen := &scriptedGen{reply: "First. Second."}
	var states []domain.TurnState

	eng, ctrl := newEngine(gen)
	sink := &recordingSink{ctrl: ctrl}
	eng.synth, eng.sink = echoSynth{}, sink
	ctrl.OnChange(func(_, to domain.TurnState) { states = append(states, to) })

	require.NoError(t, ctrl.Activate())
	reply, err := eng.Turn(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "First. Second.", reply)

	require.Len(t, sink.played, 1)
	assert.Equal(t, "First.Second.", sink.played[0])
	assert.True(t, sink.mutedWhen[0])
	assert.True(t, ctrl.Listening())
	assert.Equal(t, []domain.TurnState{domain.TurnListening, domain.TurnMuted, domain.TurnListening}, states)
}

func TestTurnBlankIgnored(t *testing.T) {
	gen := &scriptedGen{reply: "x"}
	eng, ctrl := newEngine(gen)
	require.NoError(t, ctrl.Activate())

	reply, err := eng.Turn(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, reply)
	assert.Empty(t, gen.seen)
}

func TestTurnFailureUnmutes(t *testing.T) {
	events := &eventLog{}
	eng, ctrl := newEngine(&scriptedGen{err: errors.New("down")}, WithNotifier(events))
	require.NoError(t, ctrl.Activate())

	_, err := eng.Turn(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, ctrl.Listening())
	assert.True(t, events.has("heard:hello"))
}

func TestSayDoesNotRecord(t *testing.T) {
	eng, ctrl := newEngine(&scriptedGen{})
	sink := &recordingSink{ctrl: ctrl}
	eng.synth, eng.sink = echoSynth{}, sink

	assert.ErrorIs(t, eng.Say(context.Background(), DefaultGreeting), ErrDropped)

	require.NoError(t, ctrl.Activate())
	require.NoError(t, eng.Say(context.Background(), DefaultGreeting))
	assert.Equal(t, []string{DefaultGreeting}, sink.played)
	assert.Zero(t, eng.Conversation().Len())
}

func TestSettleDelayKeepsMuted(t *testing.T) {
	eng, ctrl := newEngine(&scriptedGen{reply: "ok"}, WithSettle(80*time.Millisecond))
	eng.synth, eng.sink = echoSynth{}, &recordingSink{ctrl: ctrl}
	require.NoError(t, ctrl.Activate())

	done := make(chan struct{})
	go func() {
		_, _ = eng.Turn(context.Background(), "hi")
		close(done)
	}()

	assert.Eventually(t, ctrl.Muted, time.Second, time.Millisecond)
	select {
	case <-done:
		t.Fatal("turn returned before settle delay")
	case <-time.After(30 * time.Millisecond):
	}
	<-done
	assert.True(t, ctrl.Listening())
}
