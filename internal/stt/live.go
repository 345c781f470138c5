package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
)

// LiveConfig holds the streaming parameters sent as query arguments.
type LiveConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
	VADEvents      bool
	UtteranceEndMs int
	EndpointingMs  int
}

// DefaultLiveConfig matches 16 kHz mono PCM16 microphone capture.
func DefaultLiveConfig() LiveConfig {
	return LiveConfig{
		SampleRate:     16000,
		Channels:       1,
		Encoding:       "linear16",
		InterimResults: true,
		VADEvents:      true,
		UtteranceEndMs: 1000,
		EndpointingMs:  500,
	}
}

var _ domain.StreamingSpeechToText = (*LiveDialer)(nil)

// LiveDialer opens Deepgram streaming sessions over a websocket.
type LiveDialer struct {
	apiKey string
	cfg    LiveConfig
	opts   deepgramOptions
	dialer *websocket.Dialer
	log    *logger.Logger
}

// NewLiveDialer creates a dialer. The base URL option accepts http(s)
// or ws(s) schemes.
func NewLiveDialer(apiKey string, cfg LiveConfig, log *logger.Logger, opts ...DeepgramOption) *LiveDialer {
	return &LiveDialer{
		apiKey: apiKey,
		cfg:    cfg,
		opts:   newDeepgramOptions(opts),
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    log,
	}
}

func (d *LiveDialer) endpoint() string {
	base := d.opts.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	q := url.Values{}
	q.Set("model", d.opts.model)
	q.Set("language", d.opts.language)
	q.Set("smart_format", "true")
	q.Set("encoding", d.cfg.Encoding)
	q.Set("channels", strconv.Itoa(d.cfg.Channels))
	q.Set("sample_rate", strconv.Itoa(d.cfg.SampleRate))
	q.Set("interim_results", strconv.FormatBool(d.cfg.InterimResults))
	q.Set("vad_events", strconv.FormatBool(d.cfg.VADEvents))
	if d.cfg.UtteranceEndMs > 0 {
		q.Set("utterance_end_ms", strconv.Itoa(d.cfg.UtteranceEndMs))
	}
	if d.cfg.EndpointingMs > 0 {
		q.Set("endpointing", strconv.Itoa(d.cfg.EndpointingMs))
	}
	return base + "/v1/listen?" + q.Encode()
}

// Open dials a new session.
func (d *LiveDialer) Open(ctx context.Context, onInterim func(string)) (domain.TranscriptStream, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Token "+d.apiKey)

	conn, resp, err := d.dialer.DialContext(ctx, d.endpoint(), headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, fmt.Errorf("deepgram live: dial: %w", apiError("deepgram live", resp))
		}
		return nil, fmt.Errorf("deepgram live: dial: %w", err)
	}

	l := &Live{
		conn:       conn,
		log:        d.log,
		onInterim:  onInterim,
		utterances: make(chan string, 8),
		done:       make(chan struct{}),
	}
	go l.readLoop()
	d.log.Info("live session opened")
	return l, nil
}

// Live is one streaming session. Send and KeepAlive may be called from
// any goroutine.
type Live struct {
	conn      *websocket.Conn
	log       *logger.Logger
	onInterim func(string)

	writeMu sync.Mutex
	acc     accumulator

	utterances chan string
	done       chan struct{}
	errMu      sync.Mutex
	err        error
	closeOnce  sync.Once
}

var _ domain.TranscriptStream = (*Live)(nil)

// Send streams raw PCM.
func (l *Live) Send(pcm []byte) error {
	return l.write(websocket.BinaryMessage, pcm)
}

// KeepAlive tells the server the stream is idle but alive.
func (l *Live) KeepAlive() error {
	return l.write(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`))
}

func (l *Live) write(kind int, data []byte) error {
	select {
	case <-l.done:
		return domain.ErrSessionClosed
	default:
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return l.conn.WriteMessage(kind, data)
}

// Utterances delivers finished utterances. Closed when the session ends.
func (l *Live) Utterances() <-chan string { return l.utterances }

// Done is closed when the read loop exits.
func (l *Live) Done() <-chan struct{} { return l.done }

// Err returns the error that ended the session, nil after a clean close.
func (l *Live) Err() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	return l.err
}

// Close asks the server to flush and close, then waits briefly for it.
func (l *Live) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.write(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
		select {
		case <-l.done:
		case <-time.After(2 * time.Second):
		}
		l.writeMu.Lock()
		_ = l.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		l.writeMu.Unlock()
		if cerr := l.conn.Close(); err == nil {
			err = cerr
		}
		if errors.Is(err, domain.ErrSessionClosed) {
			err = nil
		}
	})
	return err
}

// liveMessage covers the server frames we act on.
type liveMessage struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal     bool `json:"is_final"`
	SpeechFinal bool `json:"speech_final"`
}

func (l *Live) readLoop() {
	defer close(l.done)
	defer close(l.utterances)

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !errors.Is(err, net.ErrClosed) {
				l.setErr(err)
			}
			// Flush anything final that never got an end marker.
			if u, ok := l.acc.flush(); ok {
				l.emit(u)
			}
			return
		}

		var msg liveMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			l.log.Debug("live: bad frame: %v", err)
			continue
		}

		switch msg.Type {
		case "Results":
			text := ""
			if len(msg.Channel.Alternatives) > 0 {
				text = msg.Channel.Alternatives[0].Transcript
			}
			u, interim, ok := l.acc.result(text, msg.IsFinal, msg.SpeechFinal)
			if interim != "" && l.onInterim != nil {
				l.onInterim(interim)
			}
			if ok {
				l.emit(u)
			}
		case "UtteranceEnd":
			if u, ok := l.acc.flush(); ok {
				l.emit(u)
			}
		case "SpeechStarted", "Metadata":
		default:
			l.log.Debug("live: ignoring %q frame", msg.Type)
		}
	}
}

func (l *Live) emit(u string) {
	l.log.Debug("live: utterance %q", u)
	select {
	case l.utterances <- u:
	default:
		l.log.Warn("live: utterance dropped, consumer is behind: %q", u)
	}
}

func (l *Live) setErr(err error) {
	l.errMu.Lock()
	l.err = err
	l.errMu.Unlock()
}

// ── Accumulation ─────────────────────────────────────────────────

// accumulator joins is_final pieces until the server marks the end of
// speech. Only touched by the read loop.
type accumulator struct {
	parts []string
}

// result handles one Results frame. It returns the partial text for
// display and, on speech_final, the joined utterance.
func (a *accumulator) result(text string, isFinal, speechFinal bool) (utterance, interim string, done bool) {
	text = strings.TrimSpace(text)
	if isFinal && text != "" {
		a.parts = append(a.parts, text)
	}
	if !isFinal {
		interim = strings.TrimSpace(strings.Join(append(append([]string(nil), a.parts...), text), " "))
	}
	if speechFinal {
		utterance, done = a.flush()
	}
	return utterance, interim, done
}

func (a *accumulator) flush() (string, bool) {
	if len(a.parts) == 0 {
		return "", false
	}
	u := strings.Join(a.parts, " ")
	a.parts = a.parts[:0]
	return u, true
}
