package display

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hammamikhairi/james/internal/domain"
)

func TestModelStateAndInterim(t *testing.T) {
	m := newModel(NewUI("James"))

	next, _ := m.Update(stateMsg(domain.TurnListening))
	m = next.(model)
	next, _ = m.Update(interimMsg("what's the wea"))
	m = next.(model)

	bar := m.renderBar()
	if !strings.Contains(bar, "listening") {
		t.Fatalf("bar missing state: %q", bar)
	}
	if !strings.Contains(bar, "what's the wea") {
		t.Fatalf("bar missing interim: %q", bar)
	}

	// Muting clears the partial transcript.
	next, _ = m.Update(stateMsg(domain.TurnMuted))
	m = next.(model)
	if m.interim != "" {
		t.Fatalf("interim not cleared: %q", m.interim)
	}
	if !strings.Contains(m.renderBar(), "speaking") {
		t.Fatal("bar should show speaking")
	}
}

func TestModelEnter(t *testing.T) {
	tests := []struct {
		name  string
		blank bool
		text  string
		want  []string
	}{
		{"text line", false, "hello", []string{"hello"}},
		{"blank ignored", false, "", nil},
		{"blank delivered", true, "", []string{""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.blank {
				opts = append(opts, WithBlankSubmit())
			}
			u := NewUI("James", opts...)
			m := newModel(u)
			m.input.SetValue(tt.text)
			m.Update(tea.KeyMsg{Type: tea.KeyEnter})

			var got []string
			for len(u.inputCh) > 0 {
				got = append(got, <-u.inputCh)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %q, want %q", got, tt.want)
				}
			}
		})
	}
}

func TestTruncateKeepsTail(t *testing.T) {
	if got := truncate("abcdef", 4); got != "…def" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Fatalf("truncate = %q", got)
	}
}
