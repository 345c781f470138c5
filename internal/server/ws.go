package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/engine"
	"github.com/hammamikhairi/james/internal/turn"
)

// Event names on the /ws channel.
const (
	EventWakeCheck  = "wake_word_check"
	EventAudio      = "audio_data"
	EventActivation = "james_activation"
	EventMessage    = "send_message"

	EventWakeDetected  = "wake_word_detected"
	EventTranscription = "transcription"
	EventResponse      = "ai_response"
	EventState         = "state"
	EventError         = "error"
)

// Envelope is one websocket frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type wsPayload struct {
	Audio   string `json:"audio,omitempty"`
	Message string `json:"message,omitempty"`
}

// wsSession is one connection: its own conversation, controller and
// engine. Writes are serialized through out.
type wsSession struct {
	id   string
	srv  *Server
	ctrl *turn.Controller
	eng  *engine.Engine
	sink *captureSink
	out  chan Envelope
	ctx  context.Context
}

func (s *Server) handleWS(c *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id := uuid.NewString()
	conv := s.deps.Store.Get(id)
	defer func() { _ = s.deps.Store.Delete(id) }()

	sess := &wsSession{
		id:   id,
		srv:  s,
		ctrl: turn.NewController(s.log),
		sink: &captureSink{},
		out:  make(chan Envelope, 16),
		ctx:  ctx,
	}
	sess.eng = s.newEngine(conv, sess.ctrl, sess.sink)
	sess.ctrl.OnChange(func(_, to domain.TurnState) {
		sess.emit(EventState, map[string]string{"state": to.String(), "session_id": id})
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case env := <-sess.out:
				if err := c.WriteJSON(env); err != nil {
					s.log.Debug("ws %s: write: %v", id, err)
					cancel()
					return
				}
			}
		}
	}()

	s.log.Info("ws %s: connected", id)
	sess.emit(EventState, map[string]string{"state": domain.TurnIdle.String(), "session_id": id})

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			break
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			sess.fail("invalid message")
			continue
		}
		var p wsPayload
		if len(env.Data) > 0 {
			_ = json.Unmarshal(env.Data, &p)
		}
		sess.dispatch(env.Event, p)
	}

	cancel()
	<-done
	s.log.Info("ws %s: disconnected", id)
}

func (w *wsSession) emit(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	select {
	case w.out <- Envelope{Event: event, Data: raw}:
	case <-w.ctx.Done():
	}
}

func (w *wsSession) fail(msg string) {
	w.emit(EventError, map[string]string{"message": msg})
}

func (w *wsSession) dispatch(event string, p wsPayload) {
	switch event {
	case EventWakeCheck:
		go w.wakeCheck(p.Audio)
	case EventActivation:
		if p.Audio != "" {
			w.audioTurn(p.Audio)
			return
		}
		go w.activate("manual_activation", "")
	case EventAudio:
		w.audioTurn(p.Audio)
	case EventMessage:
		w.textTurn(p.Message)
	default:
		w.fail("unknown event: " + event)
	}
}

func (w *wsSession) wakeCheck(audio string) {
	text, err := w.srv.transcribe(w.ctx, audio)
	if errors.Is(err, domain.ErrNoSpeech) {
		w.emit(EventWakeDetected, wakeResponse{})
		return
	}
	if err != nil {
		w.srv.log.Error("ws %s: wake check: %v", w.id, err)
		w.fail(msgWakeFailed)
		return
	}
	phrase, ok := w.srv.deps.Matcher.Match(text)
	if !ok {
		w.emit(EventWakeDetected, wakeResponse{Transcript: text})
		return
	}
	w.activate(phrase, text)
}

// activate opens a listening window and sends the greeting.
func (w *wsSession) activate(phrase, transcript string) {
	if err := w.ctrl.Activate(); err != nil {
		w.srv.log.Debug("ws %s: already active", w.id)
	}
	w.emit(EventWakeDetected, map[string]any{
		"detected":   true,
		"wake_word":  phrase,
		"transcript": transcript,
		"message":    w.srv.greeting,
		"audio":      w.srv.speak(w.ctx, w.srv.greeting),
	})
}

// beginTurn makes sure a listening window is open. It reports false when
// a turn is already in progress.
func (w *wsSession) beginTurn() bool {
	if w.ctrl.Muted() {
		w.srv.log.Debug("ws %s: turn in progress, dropping input", w.id)
		return false
	}
	_ = w.ctrl.Activate()
	return true
}

func (w *wsSession) audioTurn(audio string) {
	if !w.beginTurn() {
		return
	}
	go func() {
		text, err := w.srv.transcribe(w.ctx, audio)
		if errors.Is(err, domain.ErrNoSpeech) || errors.Is(err, errBadAudio) {
			w.fail(msgNotUnderstood)
			return
		}
		if err != nil {
			w.srv.log.Error("ws %s: transcribe: %v", w.id, err)
			w.fail(msgProcessing)
			return
		}
		w.emit(EventTranscription, map[string]string{"text": text})
		w.respond(text)
	}()
}

func (w *wsSession) textTurn(msg string) {
	if strings.TrimSpace(msg) == "" {
		w.fail(msgEmptyMessage)
		return
	}
	if !w.beginTurn() {
		return
	}
	go w.respond(msg)
}

func (w *wsSession) respond(text string) {
	reply, err := w.eng.Turn(w.ctx, text)
	if errors.Is(err, engine.ErrDropped) {
		return
	}
	if err != nil {
		w.srv.log.Error("ws %s: turn: %v", w.id, err)
		w.fail(msgProcessing)
		return
	}
	resp := map[string]string{"message": reply, "transcript": text}
	if audio := w.sink.dataURL(); audio != "" {
		resp["audio"] = audio
	}
	w.emit(EventResponse, resp)
}
