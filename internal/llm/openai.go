// Package llm adapts hosted language models to the domain's
// TextGenerator port. One OpenAI-compatible adapter covers OpenAI, Groq
// and Azure OpenAI; Anthropic has its own adapter.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
)

// Provider base URLs and default models.
const (
	GroqBaseURL  = "https://api.groq.com/openai/v1"
	GroqModel    = "llama3-8b-8192"
	OpenAIModel  = openai.GPT4oMini
	DefaultLimit = 150
	DefaultTemp  = 0.7
)

// Option configures a generator.
type Option func(*settings)

type settings struct {
	model       string
	baseURL     string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	client      *http.Client
	azure       bool
	apiVersion  string
}

// WithModel overrides the default model name (or Azure deployment).
func WithModel(model string) Option {
	return func(s *settings) { s.model = model }
}

// WithBaseURL targets another OpenAI-compatible or Anthropic host.
func WithBaseURL(u string) Option {
	return func(s *settings) { s.baseURL = u }
}

// WithMaxTokens sets the response token limit.
func WithMaxTokens(n int) Option {
	return func(s *settings) { s.maxTokens = n }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) Option {
	return func(s *settings) { s.temperature = t }
}

// WithHTTPTimeout sets the HTTP client timeout.
func WithHTTPTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.client = c }
}

// WithAzure switches the OpenAI adapter to Azure OpenAI. The base URL is
// the resource endpoint and the model is the deployment name.
func WithAzure(apiVersion string) Option {
	return func(s *settings) {
		s.azure = true
		s.apiVersion = apiVersion
	}
}

func newSettings(model string, opts []Option) settings {
	s := settings{
		model:       model,
		maxTokens:   DefaultLimit,
		temperature: DefaultTemp,
		timeout:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: s.timeout}
	}
	return s
}

var _ domain.TextGenerator = (*OpenAI)(nil)

// OpenAI talks to any OpenAI-compatible chat-completions endpoint.
type OpenAI struct {
	client *openai.Client
	set    settings
	name   string
	log    *logger.Logger
}

// NewOpenAI creates a generator for api.openai.com (or WithBaseURL).
func NewOpenAI(apiKey string, log *logger.Logger, opts ...Option) *OpenAI {
	return newOpenAICompatible("openai", apiKey, OpenAIModel, log, opts)
}

// NewGroq creates a generator for Groq's OpenAI-compatible endpoint.
func NewGroq(apiKey string, log *logger.Logger, opts ...Option) *OpenAI {
	opts = append([]Option{WithBaseURL(GroqBaseURL)}, opts...)
	return newOpenAICompatible("groq", apiKey, GroqModel, log, opts)
}

func newOpenAICompatible(name, apiKey, model string, log *logger.Logger, opts []Option) *OpenAI {
	s := newSettings(model, opts)

	var cfg openai.ClientConfig
	if s.azure {
		cfg = openai.DefaultAzureConfig(apiKey, s.baseURL)
		if s.apiVersion != "" {
			cfg.APIVersion = s.apiVersion
		}
		name = "azure"
	} else {
		cfg = openai.DefaultConfig(apiKey)
		if s.baseURL != "" {
			cfg.BaseURL = s.baseURL
		}
	}
	cfg.HTTPClient = s.client

	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		set:    s,
		name:   name,
		log:    log,
	}
}

// Name returns the provider label.
func (o *OpenAI) Name() string { return o.name }

// Generate sends the messages and returns the first choice, trimmed.
func (o *OpenAI) Generate(ctx context.Context, messages []domain.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.set.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		MaxTokens:   o.set.maxTokens,
		Temperature: float32(o.set.temperature),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	o.log.Debug("%s: chat completion (model=%s, messages=%d)", o.name, o.set.model, len(messages))
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%s: API %d: %s", o.name, apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", fmt.Errorf("%s: request failed: %w", o.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: empty response (no choices)", o.name)
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("%s: empty reply", o.name)
	}
	o.log.Debug("%s: reply (%d chars): %s", o.name, len(reply), truncate(reply, 120))
	return reply, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
