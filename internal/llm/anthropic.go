package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
)

// AnthropicModel is the default Claude model.
const AnthropicModel = "claude-3-5-haiku-latest"

var _ domain.TextGenerator = (*Anthropic)(nil)

// Anthropic generates replies with the Messages API.
type Anthropic struct {
	client anthropic.Client
	set    settings
	log    *logger.Logger
}

// NewAnthropic creates a Claude-backed generator. The SDK's automatic
// retries are disabled.
func NewAnthropic(apiKey string, log *logger.Logger, opts ...Option) *Anthropic {
	s := newSettings(AnthropicModel, opts)

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(s.client),
		option.WithMaxRetries(0),
	}
	if s.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(s.baseURL))
	}

	return &Anthropic{
		client: anthropic.NewClient(reqOpts...),
		set:    s,
		log:    log,
	}
}

// Generate maps system messages to the system field and the rest to
// alternating turns. The API requires the first turn to be the user's,
// so leading assistant messages (possible after windowing) are dropped.
func (a *Anthropic) Generate(ctx context.Context, messages []domain.Message) (string, error) {
	var system []anthropic.TextBlockParam
	var turns []anthropic.MessageParam

	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			if m.Content != "" {
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			}
		case domain.RoleUser:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case domain.RoleAssistant:
			if len(turns) == 0 {
				continue
			}
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if len(turns) == 0 {
		return "", fmt.Errorf("anthropic: no user message to answer")
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.set.model),
		MaxTokens:   int64(a.set.maxTokens),
		System:      system,
		Messages:    turns,
		Temperature: anthropic.Float(a.set.temperature),
	}

	a.log.Debug("anthropic: messages.new (model=%s, turns=%d)", a.set.model, len(turns))
	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic: request failed: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	reply := strings.TrimSpace(b.String())
	if reply == "" {
		return "", fmt.Errorf("anthropic: empty reply")
	}
	a.log.Debug("anthropic: reply (%d chars): %s", len(reply), truncate(reply, 120))
	return reply, nil
}
