package tts

import (
	"bytes"
	"context"
	"fmt"

	"github.com/hammamikhairi/james/internal/audio"
	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
	"github.com/hammamikhairi/james/internal/segment"
)

// Render synthesizes text sentence by sentence and joins the results.
// A failed sentence is logged and skipped; if every sentence fails (or
// nothing is speakable) the result wraps domain.ErrNoAudio.
//
// WAV segments are merged into one WAV. Other encodings are concatenated
// as-is, which is valid for MP3 frames and headerless PCM.
func Render(ctx context.Context, synth domain.TextToSpeech, text string, log *logger.Logger) ([]byte, error) {
	parts := segment.Speakable(text)
	if len(parts) == 0 {
		return nil, fmt.Errorf("tts: nothing to speak: %w", domain.ErrNoAudio)
	}

	var (
		chunks [][]byte
		last   error
	)
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := synth.Synthesize(ctx, part)
		if err != nil {
			log.Warn("tts: segment %d/%d failed: %v", i+1, len(parts), err)
			last = err
			continue
		}
		if len(data) > 0 {
			chunks = append(chunks, data)
		}
	}
	if len(chunks) == 0 {
		if last != nil {
			return nil, fmt.Errorf("tts: all segments failed (%v): %w", last, domain.ErrNoAudio)
		}
		return nil, fmt.Errorf("tts: empty audio: %w", domain.ErrNoAudio)
	}
	return join(chunks), nil
}

func join(chunks [][]byte) []byte {
	if len(chunks) == 1 {
		return chunks[0]
	}
	if audio.IsWAV(chunks[0]) {
		if merged, ok := joinWAV(chunks); ok {
			return merged
		}
	}
	return bytes.Join(chunks, nil)
}

// joinWAV concatenates PCM payloads that share a format.
func joinWAV(chunks [][]byte) ([]byte, bool) {
	var (
		pcm   []byte
		first audio.WAVInfo
	)
	for i, c := range chunks {
		info, data, err := audio.ParseWAV(c)
		if err != nil {
			return nil, false
		}
		if i == 0 {
			first = info
		} else if info.SampleRate != first.SampleRate || info.Channels != first.Channels {
			return nil, false
		}
		pcm = append(pcm, data...)
	}
	return audio.EncodeWAV(pcm, first.SampleRate, first.Channels), true
}
