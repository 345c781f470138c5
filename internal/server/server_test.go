package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
	"github.com/hammamikhairi/james/internal/memory"
)

// ── fakes ────────────────────────────────────────────────────────

// clipRecognizer "transcribes" by returning the decoded audio bytes.
type clipRecognizer struct {
	mu    sync.Mutex
	mimes []string
	err   error
}

func (r *clipRecognizer) Transcribe(_ context.Context, audio []byte, mime string) (string, error) {
	r.mu.Lock()
	r.mimes = append(r.mimes, mime)
	r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	return string(audio), nil
}

type echoGen struct {
	delay time.Duration
}

func (g echoGen) Generate(ctx context.Context, msgs []domain.Message) (string, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "you said " + msgs[len(msgs)-1].Content + " (" + itoa(len(msgs)) + ")", nil
}

func itoa(n int) string { return string(rune('0' + n)) }

type tagSynth struct{}

func (tagSynth) ContentType() string { return "audio/mpeg" }
func (tagSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	return []byte("<" + text + ">"), nil
}

func clip(text string) string {
	return "data:audio/webm;codecs=opus;base64," + base64.StdEncoding.EncodeToString([]byte(text))
}

func newTestServer(t *testing.T, rec *clipRecognizer, gen domain.TextGenerator, synth domain.TextToSpeech) *Server {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	return New(Deps{
		Recognizer:  rec,
		Generator:   gen,
		Synthesizer: synth,
		Store:       memory.NewStore("system", log),
	}, log, WithProviders(map[string]string{"llm": "fake"}))
}

func postJSON(t *testing.T, s *Server, path string, body any) (int, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp.StatusCode, out
}

// ── HTTP ─────────────────────────────────────────────────────────

func TestStatus(t *testing.T) {
	s := newTestServer(t, &clipRecognizer{}, echoGen{}, nil)
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "James", body["name"])
	assert.Equal(t, "ok", body["status"])
}

func TestWakeWordCheck(t *testing.T) {
	rec := &clipRecognizer{}
	s := newTestServer(t, rec, echoGen{}, nil)

	status, body := postJSON(t, s, "/wake_word_check", map[string]string{"audio": clip("Hey James, you there?")})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["detected"])
	assert.Equal(t, "hey james", body["wake_word"])
	assert.Equal(t, []string{"audio/webm;codecs=opus"}, rec.mimes)

	status, body = postJSON(t, s, "/wake_word_check", map[string]string{"audio": clip("good morning")})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["detected"])

	status, body = postJSON(t, s, "/wake_word_check", map[string]string{"audio": clip("   ")})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["detected"])

	rec.err = errors.New("recognizer down")
	status, body = postJSON(t, s, "/wake_word_check", map[string]string{"audio": clip("james")})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, msgWakeFailed, body["error"])
}

func TestVoiceChat(t *testing.T) {
	s := newTestServer(t, &clipRecognizer{}, echoGen{}, tagSynth{})

	status, body := postJSON(t, s, "/voice_chat", map[string]string{"audio": clip("hello")})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hello", body["transcript"])
	assert.Equal(t, "you said hello (2)", body["response"])
	id, _ := body["session_id"].(string)
	require.NotEmpty(t, id)

	audio, _ := body["audio"].(string)
	mime, data, err := decodeDataURL(audio)
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", mime)
	assert.Equal(t, "<you said hello (2)>", string(data))

	// Same session keeps its history.
	_, body = postJSON(t, s, "/voice_chat", map[string]string{"audio": clip("again"), "session_id": id})
	assert.Equal(t, "you said again (4)", body["response"])
}

func TestVoiceChatErrors(t *testing.T) {
	rec := &clipRecognizer{}
	s := newTestServer(t, rec, echoGen{}, nil)

	status, body := postJSON(t, s, "/voice_chat", map[string]string{"audio": clip("  ")})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, msgNotUnderstood, body["error"])

	status, _ = postJSON(t, s, "/voice_chat", map[string]string{"audio": "data:audio/webm;base64,%%%"})
	assert.Equal(t, http.StatusBadRequest, status)

	rec.err = errors.New("down")
	status, body = postJSON(t, s, "/voice_chat", map[string]string{"audio": clip("hi")})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, msgProcessing, body["error"])
}

func TestChatAndEndSession(t *testing.T) {
	s := newTestServer(t, &clipRecognizer{}, echoGen{}, nil)

	status, body := postJSON(t, s, "/chat", map[string]string{"message": "hi"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "you said hi (2)", body["message"])
	id := body["session_id"].(string)

	status, _ = postJSON(t, s, "/chat", map[string]string{"message": "  "})
	assert.Equal(t, http.StatusBadRequest, status)

	del := func() int {
		resp, err := s.App().Test(httptest.NewRequest(http.MethodDelete, "/sessions/"+id, nil))
		require.NoError(t, err)
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusNoContent, del())
	assert.Equal(t, http.StatusNotFound, del())
}

func TestOverlappingRequestsShareSessionTurn(t *testing.T) {
	s := newTestServer(t, &clipRecognizer{}, echoGen{delay: 300 * time.Millisecond}, nil)

	first := make(chan int, 1)
	go func() {
		raw, _ := json.Marshal(map[string]string{"message": "hi", "session_id": "s1"})
		req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.App().Test(req, 5000)
		if err != nil {
			first <- 0
			return
		}
		resp.Body.Close()
		first <- resp.StatusCode
	}()

	assert.Eventually(t, func() bool { return s.controller("s1").Muted() }, time.Second, 2*time.Millisecond)

	status, body := postJSON(t, s, "/voice_chat", map[string]string{"audio": clip("me too"), "session_id": "s1"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, msgBusy, body["error"])

	status, _ = postJSON(t, s, "/chat", map[string]string{"message": "other", "session_id": "s2"})
	assert.Equal(t, http.StatusOK, status)

	assert.Equal(t, http.StatusOK, <-first)
	conv, err := s.deps.Store.Lookup("s1")
	require.NoError(t, err)
	assert.Equal(t, 2, conv.Len())

	status, body = postJSON(t, s, "/chat", map[string]string{"message": "later", "session_id": "s1"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "you said later (4)", body["message"])
}

func TestWSRequiresUpgrade(t *testing.T) {
	s := newTestServer(t, &clipRecognizer{}, echoGen{}, nil)
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

func TestDecodeDataURL(t *testing.T) {
	mime, data, err := decodeDataURL(base64.StdEncoding.EncodeToString([]byte("raw")))
	require.NoError(t, err)
	assert.Equal(t, defaultAudioMIME, mime)
	assert.Equal(t, "raw", string(data))

	_, _, err = decodeDataURL("data:audio/wav;base64")
	assert.ErrorIs(t, err, errBadAudio)
	_, _, err = decodeDataURL("")
	assert.ErrorIs(t, err, errBadAudio)
}

// ── websocket ────────────────────────────────────────────────────

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialWS(t *testing.T, s *Server) *wsClient {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = s.Serve(ln) }()
	t.Cleanup(func() { _ = s.App().Shutdown() })

	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		conn, _, err = websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(event string, data any) {
	raw, err := json.Marshal(data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(Envelope{Event: event, Data: raw}))
}

// next returns the next envelope whose event is not "state".
func (c *wsClient) next() (string, map[string]any) {
	c.t.Helper()
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var env Envelope
		require.NoError(c.t, c.conn.ReadJSON(&env))
		if env.Event == EventState {
			continue
		}
		data := map[string]any{}
		if len(env.Data) > 0 {
			require.NoError(c.t, json.Unmarshal(env.Data, &data))
		}
		return env.Event, data
	}
}

func TestWSConversation(t *testing.T) {
	c := dialWS(t, newTestServer(t, &clipRecognizer{}, echoGen{}, tagSynth{}))

	c.send(EventWakeCheck, wsPayload{Audio: clip("hi james")})
	event, data := c.next()
	require.Equal(t, EventWakeDetected, event)
	assert.Equal(t, true, data["detected"])
	assert.Equal(t, "hi james", data["wake_word"])
	assert.NotEmpty(t, data["audio"])

	c.send(EventAudio, wsPayload{Audio: clip("what's up")})
	event, data = c.next()
	require.Equal(t, EventTranscription, event)
	assert.Equal(t, "what's up", data["text"])

	event, data = c.next()
	require.Equal(t, EventResponse, event)
	assert.Equal(t, "you said what's up (2)", data["message"])
	assert.NotEmpty(t, data["audio"])

	c.send(EventMessage, wsPayload{Message: "typed"})
	event, data = c.next()
	require.Equal(t, EventResponse, event)
	assert.Equal(t, "you said typed (4)", data["message"])
}

func TestWSErrorsAndManualActivation(t *testing.T) {
	c := dialWS(t, newTestServer(t, &clipRecognizer{}, echoGen{}, nil))

	c.send(EventAudio, wsPayload{Audio: clip("  ")})
	event, data := c.next()
	require.Equal(t, EventError, event)
	assert.Equal(t, msgNotUnderstood, data["message"])

	c.send("bogus", nil)
	event, _ = c.next()
	assert.Equal(t, EventError, event)

	c.send(EventActivation, map[string]string{})
	event, data = c.next()
	require.Equal(t, EventWakeDetected, event)
	assert.Equal(t, "manual_activation", data["wake_word"])
}

func TestWSDropsInputDuringTurn(t *testing.T) {
	c := dialWS(t, newTestServer(t, &clipRecognizer{}, echoGen{delay: 200 * time.Millisecond}, nil))

	c.send(EventMessage, wsPayload{Message: "first"})
	time.Sleep(50 * time.Millisecond)
	c.send(EventMessage, wsPayload{Message: "second"})

	event, data := c.next()
	require.Equal(t, EventResponse, event)
	assert.Equal(t, "you said first (2)", data["message"])

	// The second message was dropped; the next reply sees only one turn.
	c.send(EventMessage, wsPayload{Message: "third"})
	event, data = c.next()
	require.Equal(t, EventResponse, event)
	assert.Equal(t, "you said third (4)", data["message"])
}
