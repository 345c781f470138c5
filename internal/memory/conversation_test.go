package memory

import (
	"fmt"
	"sync"
	"testing"

	"github.com/hammamikhairi/james/internal/domain"
)

func TestContextStartsWithSystemPrompt(t *testing.T) {
	for _, n := range []int{0, 1, 5, 10, 11, 50} {
		c := NewConversation("be brief")
		for i := 0; i < n; i++ {
			c.Append(domain.UserMessage(fmt.Sprintf("m%d", i)))
		}
		ctx := c.Context()
		if ctx[0] != domain.SystemMessage("be brief") {
			t.Fatalf("n=%d: first message = %+v, want system prompt", n, ctx[0])
		}
		for _, m := range ctx[1:] {
			if m.Role == domain.RoleSystem {
				t.Fatalf("n=%d: system prompt leaked into history", n)
			}
		}
	}
}

func TestContextWindow(t *testing.T) {
	tests := []struct {
		name     string
		window   int
		appended int
		wantLen  int
		wantHead string
	}{
		{"twelve into ten", 10, 12, 11, "m2"},
		{"under window", 10, 4, 5, "m0"},
		{"unbounded", 0, 12, 13, "m0"},
		{"window of one", 1, 3, 2, "m2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewConversation("sys", WithWindow(tt.window))
			for i := 0; i < tt.appended; i++ {
				c.Append(domain.UserMessage(fmt.Sprintf("m%d", i)))
			}
			ctx := c.Context()
			if len(ctx) != tt.wantLen {
				t.Fatalf("len(Context()) = %d, want %d", len(ctx), tt.wantLen)
			}
			if ctx[1].Content != tt.wantHead {
				t.Fatalf("oldest replayed = %q, want %q", ctx[1].Content, tt.wantHead)
			}
			if c.Len() != tt.appended {
				t.Fatalf("log len = %d, want %d (window must not evict)", c.Len(), tt.appended)
			}
		})
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	c := NewConversation("sys", WithWindow(0))
	c.AppendTurn("table for two?", "Of course.")
	c.Append(domain.SystemMessage("ignored"))
	c.Append(domain.UserMessage("thanks"))

	want := []domain.Message{
		domain.UserMessage("table for two?"),
		domain.AssistantMessage("Of course."),
		domain.UserMessage("thanks"),
	}
	got := c.History()
	if len(got) != len(want) {
		t.Fatalf("history len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("history[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	c.Reset()
	if c.Len() != 0 || len(c.Context()) != 1 {
		t.Fatal("reset should leave only the system prompt")
	}
}

func TestConcurrentAppend(t *testing.T) {
	c := NewConversation("sys", WithWindow(0))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Append(domain.UserMessage("x"))
				_ = c.Context()
			}
		}()
	}
	wg.Wait()
	if c.Len() != 800 {
		t.Fatalf("len = %d, want 800", c.Len())
	}
}

func TestRemoveLast(t *testing.T) {
	c := NewConversation("sys")
	c.AppendTurn("hi", "hello")
	c.Append(domain.UserMessage("again"))

	if c.RemoveLast(domain.UserMessage("hi")) {
		t.Fatal("removed a message that is not the newest")
	}
	if !c.RemoveLast(domain.UserMessage("again")) {
		t.Fatal("newest message not removed")
	}
	if c.Len() != 2 {
		t.Fatalf("log len = %d, want 2", c.Len())
	}
	if got := c.History()[1]; got != domain.AssistantMessage("hello") {
		t.Fatalf("newest = %+v, want assistant reply", got)
	}
	if NewConversation("sys").RemoveLast(domain.UserMessage("x")) {
		t.Fatal("removed from an empty log")
	}
}
