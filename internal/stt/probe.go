package stt

import (
	"context"
	"time"

	"github.com/hammamikhairi/james/internal/audio"
	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/wakeword"
)

// probeOwner is the microphone lease name used by wake probes.
const probeOwner = "wakeword"

// HostedProbe records a short clip and sends it to a hosted recognizer.
type HostedProbe struct {
	mic      *audio.Microphone
	stt      domain.SpeechToText
	duration time.Duration
}

var _ wakeword.Prober = (*HostedProbe)(nil)

// NewHostedProbe records clips of d (3 s when d is zero).
func NewHostedProbe(mic *audio.Microphone, recognizer domain.SpeechToText, d time.Duration) *HostedProbe {
	if d <= 0 {
		d = 3 * time.Second
	}
	return &HostedProbe{mic: mic, stt: recognizer, duration: d}
}

// Probe records one clip and transcribes it.
func (p *HostedProbe) Probe(ctx context.Context) (string, error) {
	wav, err := p.mic.Record(ctx, probeOwner, p.duration)
	if err != nil {
		return "", err
	}
	return p.stt.Transcribe(ctx, wav, "audio/wav")
}
