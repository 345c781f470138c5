package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
)

// Deepgram speak defaults.
const (
	DeepgramBaseURL = "https://api.deepgram.com"
	DeepgramVoice   = "aura-helios-en"

	EncodingMP3      = "mp3"
	EncodingLinear16 = "linear16"
)

// DeepgramOption configures the Deepgram synthesizer.
type DeepgramOption func(*Deepgram)

// WithDeepgramVoice selects the Aura voice model.
func WithDeepgramVoice(v string) DeepgramOption {
	return func(d *Deepgram) { d.voice = v }
}

// WithDeepgramBaseURL points the client at another host.
func WithDeepgramBaseURL(u string) DeepgramOption {
	return func(d *Deepgram) { d.baseURL = strings.TrimRight(u, "/") }
}

// WithLinear16 requests headerless 16-bit PCM at the given rate instead
// of MP3. Segments can then be concatenated byte for byte.
func WithLinear16(sampleRate int) DeepgramOption {
	return func(d *Deepgram) {
		d.encoding = EncodingLinear16
		d.sampleRate = sampleRate
	}
}

// WithDeepgramHTTPTimeout sets the HTTP client timeout.
func WithDeepgramHTTPTimeout(t time.Duration) DeepgramOption {
	return func(d *Deepgram) { d.http.Timeout = t }
}

var _ domain.TextToSpeech = (*Deepgram)(nil)

// Deepgram synthesizes speech with the /v1/speak API.
type Deepgram struct {
	apiKey     string
	baseURL    string
	voice      string
	encoding   string
	sampleRate int
	http       *http.Client
	log        *logger.Logger
}

// NewDeepgram creates a Deepgram synthesizer returning MP3 by default.
func NewDeepgram(apiKey string, log *logger.Logger, opts ...DeepgramOption) *Deepgram {
	d := &Deepgram{
		apiKey:   apiKey,
		baseURL:  DeepgramBaseURL,
		voice:    DeepgramVoice,
		encoding: EncodingMP3,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Voice returns the configured voice model.
func (d *Deepgram) Voice() string { return d.voice }

// ContentType reports audio/mpeg, or a raw PCM type carrying the rate.
func (d *Deepgram) ContentType() string {
	if d.encoding == EncodingLinear16 {
		return fmt.Sprintf("audio/l16;rate=%d;channels=1", d.sampleRate)
	}
	return "audio/mpeg"
}

// Synthesize converts text to speech audio.
func (d *Deepgram) Synthesize(ctx context.Context, text string) ([]byte, error) {
	q := url.Values{}
	q.Set("model", d.voice)
	if d.encoding == EncodingLinear16 {
		q.Set("encoding", EncodingLinear16)
		q.Set("container", "none")
		if d.sampleRate > 0 {
			q.Set("sample_rate", strconv.Itoa(d.sampleRate))
		}
	}
	endpoint := d.baseURL + "/v1/speak?" + q.Encode()

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("deepgram tts: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("deepgram tts: creating request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", "application/json")

	d.log.Debug("deepgram tts: synthesizing %d chars with voice %s", len(text), d.voice)
	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram tts: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("deepgram", resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("deepgram tts: reading audio: %w", err)
	}
	d.log.Debug("deepgram tts: got %d bytes of audio", len(audio))
	return audio, nil
}
