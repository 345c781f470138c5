// Package memory holds conversation transcripts in process memory.
//
// A Conversation is an append-only ordered log of user and assistant
// messages. The system prompt is kept beside the log, never inside it,
// and is always the first element returned by Context.
package memory

import (
	"sync"

	"github.com/hammamikhairi/james/internal/domain"
)

// DefaultWindow is the number of most recent messages replayed to the
// generator when no window option is given.
const DefaultWindow = 10

// Option configures a Conversation.
type Option func(*Conversation)

// WithWindow sets how many of the most recent messages Context returns.
// n <= 0 replays the full history.
func WithWindow(n int) Option {
	return func(c *Conversation) { c.window = n }
}

// Conversation is safe for concurrent use.
type Conversation struct {
	mu     sync.RWMutex
	system string
	log    []domain.Message
	window int
}

// NewConversation creates an empty conversation with the given system prompt.
func NewConversation(systemPrompt string, opts ...Option) *Conversation {
	c := &Conversation{
		system: systemPrompt,
		window: DefaultWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Append adds a message to the end of the log. System messages are
// ignored; the prompt is fixed at construction.
func (c *Conversation) Append(m domain.Message) {
	if m.Role == domain.RoleSystem {
		return
	}
	c.mu.Lock()
	c.log = append(c.log, m)
	c.mu.Unlock()
}

// AppendTurn appends a user message followed by the assistant's reply.
func (c *Conversation) AppendTurn(user, assistant string) {
	c.mu.Lock()
	c.log = append(c.log, domain.UserMessage(user), domain.AssistantMessage(assistant))
	c.mu.Unlock()
}

// RemoveLast drops the newest message if it equals m. It reports whether
// a message was removed.
func (c *Conversation) RemoveLast(m domain.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.log)
	if n == 0 || c.log[n-1] != m {
		return false
	}
	c.log = c.log[:n-1]
	return true
}

// Context returns the system prompt followed by the windowed history.
// The returned slice is a copy.
func (c *Conversation) Context() []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hist := c.log
	if c.window > 0 && len(hist) > c.window {
		hist = hist[len(hist)-c.window:]
	}

	out := make([]domain.Message, 0, len(hist)+1)
	out = append(out, domain.SystemMessage(c.system))
	return append(out, hist...)
}

// History returns a copy of the full log, without the system prompt.
func (c *Conversation) History() []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Message, len(c.log))
	copy(out, c.log)
	return out
}

// Len returns the number of logged messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.log)
}

// Reset clears the log. The system prompt is kept.
func (c *Conversation) Reset() {
	c.mu.Lock()
	c.log = nil
	c.mu.Unlock()
}

// SystemPrompt returns the fixed prompt.
func (c *Conversation) SystemPrompt() string { return c.system }
