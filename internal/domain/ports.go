package domain

import "context"

// SpeechToText turns a recorded clip into text. Implementations return
// ErrNoSpeech when the audio was understood to contain nothing.
type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// TextGenerator produces the assistant's reply for a message sequence.
// The first message carries the system prompt.
type TextGenerator interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// TextToSpeech synthesizes speech audio for a piece of text.
type TextToSpeech interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	// ContentType reports the MIME type of the bytes Synthesize returns.
	ContentType() string
}

// AudioSink plays synthesized audio. Play blocks until playback finishes.
type AudioSink interface {
	Play(ctx context.Context, audio []byte, contentType string) error
}

// TranscriptStream is an open streaming-recognition session. Audio is
// pushed with Send; finished utterances arrive on Utterances.
type TranscriptStream interface {
	Send(pcm []byte) error
	// KeepAlive holds the session open while no audio is being sent.
	KeepAlive() error
	Utterances() <-chan string
	// Done is closed when the session ends for any reason.
	Done() <-chan struct{}
	Err() error
	Close() error
}

// StreamingSpeechToText opens streaming-recognition sessions. onInterim,
// when non-nil, receives partial transcripts as they change.
type StreamingSpeechToText interface {
	Open(ctx context.Context, onInterim func(string)) (TranscriptStream, error)
}
