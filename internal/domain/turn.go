package domain

// TurnState is the conversation-level state of the assistant.
type TurnState int

const (
	// TurnIdle waits for the wake word. Speech is ignored.
	TurnIdle TurnState = iota
	// TurnListening accepts transcripts as user turns.
	TurnListening
	// TurnMuted is set while the assistant's own audio plays.
	TurnMuted
)

func (s TurnState) String() string {
	switch s {
	case TurnIdle:
		return "idle"
	case TurnListening:
		return "listening"
	case TurnMuted:
		return "muted"
	default:
		return "unknown"
	}
}
