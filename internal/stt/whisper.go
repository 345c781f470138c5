package stt

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	audiotranscriber "github.com/sklyt/whisper/pkg"

	"github.com/hammamikhairi/james/internal/audio"
	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
	"github.com/hammamikhairi/james/internal/wakeword"
)

// envAnnotation matches whisper environmental annotations like
// "(keyboard clicking)", "[laughter]", "(speaking French)", etc.
var envAnnotation = regexp.MustCompile(`[\(\[][a-zA-Z][a-zA-Z_\s]*[\)\]]`)

// hallucinations are whole-clip outputs whisper produces on silence.
var hallucinations = map[string]bool{
	"...":                     true,
	"you":                     true,
	"thank you.":              true,
	"thanks for watching!":    true,
	"thank you for watching.": true,
	"bye.":                    true,
	"the end.":                true,
}

// WhisperOption configures the local whisper probe.
type WhisperOption func(*WhisperProbe)

// WithProbeDuration sets the length of each recorded clip.
func WithProbeDuration(d time.Duration) WhisperOption {
	return func(w *WhisperProbe) { w.duration = d }
}

// WithTempDir sets the directory for temporary WAV files.
func WithTempDir(dir string) WhisperOption {
	return func(w *WhisperProbe) { w.tempDir = dir }
}

// WhisperProbe records clips with the whisper.cpp recorder and
// transcribes them locally. It is a wake-word Prober that needs no
// network. The microphone lease is held for the whole recording so the
// live transcriber can't open the device at the same time.
type WhisperProbe struct {
	bin      string
	model    string
	tempDir  string
	duration time.Duration
	mic      *audio.Microphone
	log      *logger.Logger
}

var _ wakeword.Prober = (*WhisperProbe)(nil)

// NewWhisperProbe creates a local probe.
//
//   - bin:   path to the whisper-cli executable
//   - model: path to the GGML model file
func NewWhisperProbe(bin, model string, mic *audio.Microphone, log *logger.Logger, opts ...WhisperOption) *WhisperProbe {
	w := &WhisperProbe{
		bin:      bin,
		model:    model,
		tempDir:  ".james-stt",
		duration: 3 * time.Second,
		mic:      mic,
		log:      log,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Validate checks that the binary and model can be found.
func (w *WhisperProbe) Validate() error {
	if _, err := exec.LookPath(w.bin); err != nil {
		return fmt.Errorf("whisper: binary %q: %w", w.bin, err)
	}
	if _, err := os.Stat(w.model); err != nil {
		return fmt.Errorf("whisper: model: %w", err)
	}
	return os.MkdirAll(w.tempDir, 0o755)
}

// Probe records one clip and returns its cleaned transcription.
func (w *WhisperProbe) Probe(ctx context.Context) (string, error) {
	lease, err := w.mic.Acquire(probeOwner)
	if err != nil {
		return "", err
	}
	defer lease.Release()

	var result string
	var wg sync.WaitGroup
	wg.Add(1)

	callback := func(text string) {
		result = text
		wg.Done()
	}

	verbose := w.log.GetLevel() >= logger.LevelVerbose
	t, err := audiotranscriber.NewTranscriber(w.bin, w.model, w.tempDir, "wav", callback, verbose)
	if err != nil {
		return "", fmt.Errorf("whisper: transcriber init: %w", err)
	}
	if err := t.Start(); err != nil {
		return "", fmt.Errorf("whisper: recording start: %w", err)
	}

	select {
	case <-time.After(w.duration):
	case <-ctx.Done():
	}
	t.Stop()
	wg.Wait()

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	text := CleanTranscription(result)
	if text == "" {
		return "", domain.ErrNoSpeech
	}
	return text, nil
}

// CleanTranscription strips whisper artifacts ("[BLANK_AUDIO]",
// "(music)", timestamps) and drops known silence hallucinations.
func CleanTranscription(s string) string {
	s = strings.Join(strings.Fields(s), " ")

	// Strip whisper timestamp prefixes like "[00:00:00.000 --> 00:00:05.000]".
	if strings.HasPrefix(s, "[") {
		if idx := strings.Index(s, "]"); idx != -1 && strings.Contains(s[:idx], "-->") {
			s = strings.TrimSpace(s[idx+1:])
		}
	}

	s = envAnnotation.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")

	if hallucinations[strings.ToLower(s)] {
		return ""
	}
	return s
}
