package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
)

// Deepgram defaults.
const (
	DeepgramBaseURL = "https://api.deepgram.com"
	DeepgramModel   = "nova-2"
	DeepgramLang    = "en-US"
)

var _ domain.SpeechToText = (*Deepgram)(nil)

// DeepgramOption configures Deepgram clients.
type DeepgramOption func(*deepgramOptions)

type deepgramOptions struct {
	baseURL  string
	model    string
	language string
	timeout  time.Duration
	client   *http.Client
}

// WithBaseURL points the client at another host (tests, proxies).
func WithBaseURL(u string) DeepgramOption {
	return func(o *deepgramOptions) { o.baseURL = strings.TrimRight(u, "/") }
}

// WithModel selects the recognition model.
func WithModel(m string) DeepgramOption {
	return func(o *deepgramOptions) { o.model = m }
}

// WithLanguage sets the BCP-47 language tag.
func WithLanguage(l string) DeepgramOption {
	return func(o *deepgramOptions) { o.language = l }
}

// WithHTTPTimeout bounds prerecorded requests.
func WithHTTPTimeout(d time.Duration) DeepgramOption {
	return func(o *deepgramOptions) { o.timeout = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) DeepgramOption {
	return func(o *deepgramOptions) { o.client = c }
}

func newDeepgramOptions(opts []DeepgramOption) deepgramOptions {
	o := deepgramOptions{
		baseURL:  DeepgramBaseURL,
		model:    DeepgramModel,
		language: DeepgramLang,
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		o.client = &http.Client{Timeout: o.timeout}
	}
	return o
}

// Deepgram transcribes recorded clips with the prerecorded /v1/listen API.
type Deepgram struct {
	apiKey string
	opts   deepgramOptions
	log    *logger.Logger
}

// NewDeepgram creates a prerecorded transcription client.
func NewDeepgram(apiKey string, log *logger.Logger, opts ...DeepgramOption) *Deepgram {
	return &Deepgram{apiKey: apiKey, opts: newDeepgramOptions(opts), log: log}
}

type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe posts the clip and returns the top transcript. An empty
// transcript is reported as ErrNoSpeech.
func (d *Deepgram) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", domain.ErrNoSpeech
	}
	if mimeType == "" {
		mimeType = "audio/wav"
	}

	q := url.Values{}
	q.Set("model", d.opts.model)
	q.Set("language", d.opts.language)
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	endpoint := d.opts.baseURL + "/v1/listen?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", mimeType)

	d.log.Debug("POST /v1/listen (%d bytes, %s)", len(audio), mimeType)
	resp, err := d.opts.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepgram: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apiError("deepgram", resp)
	}

	var out listenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("deepgram: decode response: %w", err)
	}
	if len(out.Results.Channels) == 0 || len(out.Results.Channels[0].Alternatives) == 0 {
		return "", fmt.Errorf("deepgram: response has no alternatives")
	}

	text := strings.TrimSpace(out.Results.Channels[0].Alternatives[0].Transcript)
	if text == "" {
		return "", domain.ErrNoSpeech
	}
	d.log.Debug("transcript: %q", text)
	return text, nil
}
