package wakeword

import "strings"

// DefaultPhrases are the trigger phrases used when none are configured.
// Order matters: the first phrase found in a transcript wins.
var DefaultPhrases = []string{
	"hey james",
	"james",
	"hello james",
	"hi james",
	"jarvis",
}

// Matcher does case-insensitive substring matching against an ordered
// list of trigger phrases.
type Matcher struct {
	phrases []string
}

// NewMatcher lowercases and keeps the non-empty phrases in order. With
// no phrases it falls back to DefaultPhrases.
func NewMatcher(phrases ...string) *Matcher {
	if len(phrases) == 0 {
		phrases = DefaultPhrases
	}
	m := &Matcher{}
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			m.phrases = append(m.phrases, p)
		}
	}
	return m
}

// Match returns the first trigger phrase contained in text.
func (m *Matcher) Match(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, p := range m.phrases {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}

// Phrases returns the normalized trigger list.
func (m *Matcher) Phrases() []string {
	return append([]string(nil), m.phrases...)
}
