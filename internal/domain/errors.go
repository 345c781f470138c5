package domain

import "errors"

// Sentinel errors used across layers.
var (
	ErrNotFound           = errors.New("not found")
	ErrNoSpeech           = errors.New("no speech recognized")
	ErrNoAudio            = errors.New("no audio synthesized")
	ErrMicBusy            = errors.New("microphone is held by another component")
	ErrInvalidTransition  = errors.New("invalid turn state transition")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrSessionClosed      = errors.New("session closed")
)
