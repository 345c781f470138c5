package tts

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
)

// Azure defaults.
const (
	AzureVoice  = "en-US-GuyNeural"
	AzureFormat = "riff-24khz-16bit-mono-pcm"
)

// AzureOption configures the Azure synthesizer.
type AzureOption func(*Azure)

// WithAzureVoice sets the neural voice.
func WithAzureVoice(voice string) AzureOption {
	return func(a *Azure) { a.voice = voice }
}

// WithAzureFormat sets the X-Microsoft-OutputFormat value.
func WithAzureFormat(format string) AzureOption {
	return func(a *Azure) { a.format = format }
}

// WithAzureEndpoint overrides the regional endpoint URL.
func WithAzureEndpoint(u string) AzureOption {
	return func(a *Azure) { a.endpoint = u }
}

// WithAzureHTTPTimeout sets the HTTP client timeout.
func WithAzureHTTPTimeout(d time.Duration) AzureOption {
	return func(a *Azure) { a.http.Timeout = d }
}

var _ domain.TextToSpeech = (*Azure)(nil)

// Azure synthesizes speech via Azure Cognitive Services.
type Azure struct {
	key      string
	endpoint string
	voice    string
	format   string
	http     *http.Client
	log      *logger.Logger
}

// NewAzure creates an Azure synthesizer for the given region.
func NewAzure(key, region string, log *logger.Logger, opts ...AzureOption) *Azure {
	a := &Azure{
		key:      key,
		endpoint: fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", region),
		voice:    AzureVoice,
		format:   AzureFormat,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Voice returns the configured voice name.
func (a *Azure) Voice() string { return a.voice }

// ContentType is audio/wav for riff formats, audio/mpeg otherwise.
func (a *Azure) ContentType() string {
	if strings.HasPrefix(a.format, "riff-") {
		return "audio/wav"
	}
	if strings.Contains(a.format, "mp3") {
		return "audio/mpeg"
	}
	return "application/octet-stream"
}

// Synthesize converts text to speech audio.
func (a *Azure) Synthesize(ctx context.Context, text string) ([]byte, error) {
	ssml := a.buildSSML(text)
	a.log.Debug("azure tts: synthesizing %d chars with voice %s", len(text), a.voice)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, strings.NewReader(ssml))
	if err != nil {
		return nil, fmt.Errorf("azure tts: creating request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.key)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", a.format)
	req.Header.Set("User-Agent", "James/1.0")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("azure tts: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("azure", resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("azure tts: reading audio: %w", err)
	}
	a.log.Debug("azure tts: got %d bytes of audio", len(audio))
	return audio, nil
}

// buildSSML wraps the escaped text in a single voice element.
func (a *Azure) buildSSML(text string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(text))
	return fmt.Sprintf(
		`<speak version='1.0' xml:lang='en-US'><voice xml:lang='en-US' name='%s'>%s</voice></speak>`,
		a.voice, b.String(),
	)
}
