package wakeword

import "testing"

func TestMatcher(t *testing.T) {
	m := NewMatcher()

	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{"greeting with request", "Hey James, table for two", "hey james", true},
		{"bare name", "is JAMES there?", "james", true},
		{"list order wins", "hello james", "james", true},
		{"other trigger", "ok Jarvis", "jarvis", true},
		{"substring inside word", "jamestown", "james", true},
		{"no trigger", "hello there", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Match(tt.text)
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("Match(%q) = %q, %v; want %q, %v", tt.text, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestMatcherNormalizesPhrases(t *testing.T) {
	m := NewMatcher("  Hey Receptionist ", "", "FRONT DESK")
	if got := m.Phrases(); len(got) != 2 || got[0] != "hey receptionist" || got[1] != "front desk" {
		t.Fatalf("phrases = %q", got)
	}
	if p, ok := m.Match("um, front desk please"); !ok || p != "front desk" {
		t.Fatalf("Match = %q, %v", p, ok)
	}
}
