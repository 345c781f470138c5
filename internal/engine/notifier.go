package engine

// Notifier receives conversation events. Implementations must not block.
type Notifier interface {
	// Activated is called when a session opens.
	Activated(reason string)
	// Interim carries a partial transcript.
	Interim(text string)
	// Heard carries a final user transcript.
	Heard(text string)
	// Said carries what the assistant says.
	Said(text string)
	// Hint carries status messages.
	Hint(msg string)
	// Ended is called when a session closes.
	Ended(reason string)
}

// NopNotifier discards events.
type NopNotifier struct{}

func (NopNotifier) Activated(string) {}
func (NopNotifier) Interim(string)   {}
func (NopNotifier) Heard(string)     {}
func (NopNotifier) Said(string)      {}
func (NopNotifier) Hint(string)      {}
func (NopNotifier) Ended(string)     {}
