// Package server exposes james to browser clients over HTTP(S) and a
// WebSocket event channel.
package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/engine"
	"github.com/hammamikhairi/james/internal/logger"
	"github.com/hammamikhairi/james/internal/memory"
	"github.com/hammamikhairi/james/internal/turn"
	"github.com/hammamikhairi/james/internal/wakeword"
)

// Client-facing error messages.
const (
	msgNotUnderstood = "Could not understand audio"
	msgProcessing    = "Processing failed"
	msgWakeFailed    = "Wake word detection failed"
	msgEmptyMessage  = "Empty message"
	msgBusy          = "Still answering the previous message"
)

// Deps are the capabilities the server needs. Synthesizer may be nil for
// text-only replies.
type Deps struct {
	Recognizer  domain.SpeechToText
	Generator   domain.TextGenerator
	Synthesizer domain.TextToSpeech
	Store       *memory.Store
	Matcher     *wakeword.Matcher
}

// Option configures the server.
type Option func(*Server)

// WithName sets the assistant name reported by the status route.
func WithName(name string) Option {
	return func(s *Server) { s.name = name }
}

// WithGreeting sets the line sent on activation. Empty disables it.
func WithGreeting(text string) Option {
	return func(s *Server) { s.greeting = text }
}

// WithProviders sets the provider summary reported by the status route.
func WithProviders(p map[string]string) Option {
	return func(s *Server) { s.providers = p }
}

// WithRequestTimeout bounds each request's processing.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// Server is the fiber application plus its dependencies.
type Server struct {
	app  *fiber.App
	deps Deps
	log  *logger.Logger

	name      string
	greeting  string
	providers map[string]string
	timeout   time.Duration

	ctrlMu sync.Mutex
	ctrls  map[string]*turn.Controller
}

// New builds the server and registers its routes.
func New(deps Deps, log *logger.Logger, opts ...Option) *Server {
	s := &Server{
		deps:     deps,
		log:      log,
		name:     "James",
		greeting: engine.DefaultGreeting,
		timeout:  60 * time.Second,
		ctrls:    make(map[string]*turn.Controller),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.deps.Matcher == nil {
		s.deps.Matcher = wakeword.NewMatcher()
	}

	app := fiber.New(fiber.Config{
		AppName:               s.name,
		DisableStartupMessage: true,
		BodyLimit:             25 * 1024 * 1024,
	})
	app.Use(cors.New())

	app.Get("/", s.handleStatus)
	app.Get("/healthz", s.handleStatus)
	app.Post("/wake_word_check", s.handleWakeCheck)
	app.Post("/voice_chat", s.handleVoiceChat)
	app.Post("/chat", s.handleChat)
	app.Delete("/sessions/:id", s.handleEndSession)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleWS))

	s.app = app
	return s
}

// controller returns the turn controller shared by every HTTP request of
// a session, so overlapping requests cannot run overlapping turns.
func (s *Server) controller(id string) *turn.Controller {
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()
	ctrl, ok := s.ctrls[id]
	if !ok {
		ctrl = turn.NewController(s.log)
		_ = ctrl.Activate()
		s.ctrls[id] = ctrl
	}
	return ctrl
}

func (s *Server) dropController(id string) {
	s.ctrlMu.Lock()
	if ctrl, ok := s.ctrls[id]; ok {
		ctrl.End()
		delete(s.ctrls, id)
	}
	s.ctrlMu.Unlock()
}

// App returns the fiber application (tests, embedding).
func (s *Server) App() *fiber.App { return s.app }

// Listen serves plain HTTP on addr.
func (s *Server) Listen(addr string) error {
	s.log.Info("listening on http://%s", addr)
	return s.app.Listen(addr)
}

// ListenTLS serves HTTPS. Mobile browsers only grant microphone access
// to secure origins.
func (s *Server) ListenTLS(addr, certFile, keyFile string) error {
	s.log.Info("listening on https://%s", addr)
	return s.app.ListenTLS(addr, certFile, keyFile)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown stops accepting connections and waits for handlers.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// ── conversation plumbing ────────────────────────────────────────

// newEngine builds a per-session engine. Speech goes to a capture sink
// so the rendered audio can be returned to the client.
func (s *Server) newEngine(conv *memory.Conversation, ctrl *turn.Controller, sink *captureSink) *engine.Engine {
	opts := []engine.Option{engine.WithSettle(0)}
	if s.deps.Synthesizer != nil && sink != nil {
		opts = append(opts, engine.WithSpeech(s.deps.Synthesizer, sink))
	}
	return engine.New(conv, s.deps.Generator, ctrl, s.log, opts...)
}

// transcribe decodes a data URL and runs the recognizer. Blank results
// are reported as domain.ErrNoSpeech.
func (s *Server) transcribe(ctx context.Context, dataURL string) (string, error) {
	mime, audio, err := decodeDataURL(dataURL)
	if err != nil {
		return "", err
	}
	text, err := s.deps.Recognizer.Transcribe(ctx, audio, mime)
	if err != nil {
		return "", err
	}
	if text = strings.TrimSpace(text); text == "" {
		return "", domain.ErrNoSpeech
	}
	return text, nil
}

// speak renders a fixed line to a data URL, or "" without a synthesizer.
func (s *Server) speak(ctx context.Context, text string) string {
	if s.deps.Synthesizer == nil || text == "" {
		return ""
	}
	sink := &captureSink{}
	ctrl := turn.NewController(s.log)
	_ = ctrl.Activate()
	if err := s.newEngine(memory.NewConversation(""), ctrl, sink).Say(ctx, text); err != nil {
		return ""
	}
	return sink.dataURL()
}

// captureSink records played audio instead of sending it to a speaker.
type captureSink struct {
	mu          sync.Mutex
	audio       []byte
	contentType string
}

var _ domain.AudioSink = (*captureSink)(nil)

func (c *captureSink) Play(_ context.Context, audio []byte, contentType string) error {
	c.mu.Lock()
	c.audio, c.contentType = audio, contentType
	c.mu.Unlock()
	return nil
}

// dataURL returns and clears the captured audio.
func (c *captureSink) dataURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.audio) == 0 {
		return ""
	}
	u := encodeDataURL(c.contentType, c.audio)
	c.audio = nil
	return u
}

// ── data URLs ────────────────────────────────────────────────────

const defaultAudioMIME = "audio/webm"

var errBadAudio = errors.New("server: bad audio payload")

// decodeDataURL accepts "data:<mime>;base64,<payload>" or bare base64.
func decodeDataURL(s string) (string, []byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil, fmt.Errorf("%w: empty", errBadAudio)
	}
	mime := defaultAudioMIME
	payload := s
	if strings.HasPrefix(s, "data:") {
		head, body, ok := strings.Cut(s, ",")
		if !ok {
			return "", nil, fmt.Errorf("%w: malformed data URL", errBadAudio)
		}
		head = strings.TrimPrefix(head, "data:")
		head = strings.TrimSuffix(head, ";base64")
		if head != "" {
			mime = head
		}
		payload = body
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", errBadAudio, err)
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("%w: empty", errBadAudio)
	}
	return mime, data, nil
}

func encodeDataURL(mime string, data []byte) string {
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
