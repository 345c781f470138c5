package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
)

var _ domain.SpeechToText = (*OpenAI)(nil)

// OpenAIOption configures the Whisper client.
type OpenAIOption func(*openai.ClientConfig, *OpenAI)

// WithOpenAIBaseURL targets an OpenAI-compatible host.
func WithOpenAIBaseURL(u string) OpenAIOption {
	return func(c *openai.ClientConfig, _ *OpenAI) { c.BaseURL = u }
}

// WithOpenAIHTTPClient replaces the HTTP client.
func WithOpenAIHTTPClient(h *http.Client) OpenAIOption {
	return func(c *openai.ClientConfig, _ *OpenAI) { c.HTTPClient = h }
}

// WithTranscriptionModel overrides whisper-1.
func WithTranscriptionModel(m string) OpenAIOption {
	return func(_ *openai.ClientConfig, o *OpenAI) { o.model = m }
}

// OpenAI transcribes clips with the hosted Whisper API.
type OpenAI struct {
	client *openai.Client
	model  string
	log    *logger.Logger
}

// NewOpenAI creates a Whisper transcription client.
func NewOpenAI(apiKey string, log *logger.Logger, opts ...OpenAIOption) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	o := &OpenAI{model: openai.Whisper1, log: log}
	for _, opt := range opts {
		opt(&cfg, o)
	}
	o.client = openai.NewClientWithConfig(cfg)
	return o
}

// Transcribe uploads the clip. The MIME type picks the file extension
// the API uses to detect the container.
func (o *OpenAI) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", domain.ErrNoSpeech
	}

	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: "clip" + extensionFor(mimeType),
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", &APIError{Provider: "openai", StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		return "", fmt.Errorf("openai: transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", domain.ErrNoSpeech
	}
	o.log.Debug("transcript: %q", text)
	return text, nil
}

func extensionFor(mimeType string) string {
	mt, _, _ := mime.ParseMediaType(mimeType)
	switch mt {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/webm", "video/webm":
		return ".webm"
	case "audio/ogg":
		return ".ogg"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	default:
		return ".wav"
	}
}
