package memory

import (
	"sync"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
)

// Store keeps one Conversation per session ID. Safe for concurrent access.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Conversation
	system   string
	opts     []Option
	log      *logger.Logger
}

// NewStore creates an empty store. Conversations created by Get use the
// given system prompt and options.
func NewStore(systemPrompt string, log *logger.Logger, opts ...Option) *Store {
	return &Store{
		sessions: make(map[string]*Conversation),
		system:   systemPrompt,
		opts:     opts,
		log:      log,
	}
}

// Get returns the conversation for id, creating it on first use.
func (s *Store) Get(id string) *Conversation {
	s.mu.RLock()
	c, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.sessions[id]; ok {
		return c
	}
	c = NewConversation(s.system, s.opts...)
	s.sessions[id] = c
	s.log.Debug("created conversation %s (total=%d)", id, len(s.sessions))
	return c
}

// Lookup returns an existing conversation.
func (s *Store) Lookup(id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.sessions[id]
	if !ok {
		s.log.Debug("conversation not found: %s", id)
		return nil, domain.ErrNotFound
	}
	return c, nil
}

// Delete removes a conversation by ID.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.sessions, id)
	s.log.Debug("deleted conversation %s", id)
	return nil
}

// Len returns the number of live conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
