package memory

import (
	"testing"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
)

func TestStoreCRUD(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	store := NewStore("sys", log, WithWindow(2))

	// Get creates.
	a := store.Get("a")
	a.AppendTurn("hi", "hello")
	if store.Get("a") != a {
		t.Fatal("Get should return the same conversation for the same id")
	}

	// Options are applied to created conversations.
	a.Append(domain.UserMessage("again"))
	if got := len(a.Context()); got != 3 {
		t.Fatalf("context len = %d, want 3 (system + window of 2)", got)
	}

	// Lookup.
	if _, err := store.Lookup("a"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if _, err := store.Lookup("missing"); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Delete.
	if err := store.Delete("a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store, got %d", store.Len())
	}
	if err := store.Delete("a"); err != domain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
