package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
)

// Playback defaults.
const (
	PlaybackRate     = 24000
	PlaybackChannels = 1
	resampleQuality  = 4
)

var _ domain.AudioSink = (*Player)(nil)

// PlayerOption configures the Player.
type PlayerOption func(*Player)

// WithPlaybackRate sets the output device rate.
func WithPlaybackRate(rate int) PlayerOption {
	return func(p *Player) { p.rate = rate }
}

// WithRawRate sets the sample rate assumed for headerless PCM16 input.
func WithRawRate(rate int) PlayerOption {
	return func(p *Player) { p.rawRate = rate }
}

// Player handles audio playback via oto. WAV and raw PCM16 are played
// directly when they already match the device; anything else (MP3, other
// rates) goes through a beep decoder and resampler first.
type Player struct {
	ctx     *oto.Context
	log     *logger.Logger
	rate    int
	rawRate int

	mu     sync.Mutex
	active *oto.Player // currently playing, nil when idle
}

// NewPlayer creates an audio player. Initializes the system audio context.
// Returns an error if the audio device is unavailable.
func NewPlayer(log *logger.Logger, opts ...PlayerOption) (*Player, error) {
	p := &Player{log: log, rate: PlaybackRate}
	for _, opt := range opts {
		opt(p)
	}
	if p.rawRate == 0 {
		p.rawRate = p.rate
	}

	op := &oto.NewContextOptions{
		SampleRate:   p.rate,
		ChannelCount: PlaybackChannels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-readyChan
	p.ctx = ctx

	log.Debug("audio player initialized (rate=%d, channels=%d)", p.rate, PlaybackChannels)
	return p, nil
}

// Play decodes audio and plays it synchronously. Blocks until playback
// finishes, Stop is called, or ctx is done.
func (p *Player) Play(ctx context.Context, data []byte, contentType string) error {
	pcm, err := Decode(data, contentType, p.rate, p.rawRate)
	if err != nil {
		return err
	}
	if len(pcm) == 0 {
		return nil
	}

	player := p.ctx.NewPlayer(bytes.NewReader(pcm))

	p.mu.Lock()
	p.active = player
	p.mu.Unlock()

	player.Play()
	p.log.Debug("audio player: playing %d bytes of PCM", len(pcm))

	// Wait for playback to complete or be interrupted.
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
		case <-tick.C:
		}
	}

	p.mu.Lock()
	p.active = nil
	p.mu.Unlock()

	if err := player.Close(); err != nil {
		return err
	}
	return ctx.Err()
}

// Stop interrupts the currently playing audio, if any. Safe to call
// concurrently and when nothing is playing.
func (p *Player) Stop() {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()

	if active != nil {
		active.Pause()
		p.log.Debug("audio player: interrupted")
	}
}

// ── Decoding ─────────────────────────────────────────────────────

// Format is a coarse container classification.
type Format int

const (
	FormatRaw Format = iota
	FormatWAV
	FormatMP3
)

// Sniff classifies audio by magic bytes, falling back to the MIME type.
func Sniff(data []byte, contentType string) Format {
	switch {
	case IsWAV(data):
		return FormatWAV
	case bytes.HasPrefix(data, []byte("ID3")),
		len(data) > 1 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	}
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return FormatMP3
	case strings.Contains(ct, "wav"):
		return FormatWAV
	}
	return FormatRaw
}

// Decode converts WAV, MP3 or raw PCM16 (at rawRate) into mono PCM16
// at the target rate.
func Decode(data []byte, contentType string, rate, rawRate int) ([]byte, error) {
	switch Sniff(data, contentType) {
	case FormatWAV:
		info, pcm, err := ParseWAV(data)
		if err != nil {
			return nil, err
		}
		if info.SampleRate == rate && info.Channels == 1 && info.BitsPerSample == 16 {
			return pcm, nil
		}
		s, f, err := wav.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("audio: decode wav: %w", err)
		}
		defer s.Close()
		return render(s, f.SampleRate, beep.SampleRate(rate)), nil

	case FormatMP3:
		s, f, err := mp3.Decode(io.NopCloser(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("audio: decode mp3: %w", err)
		}
		defer s.Close()
		return render(s, f.SampleRate, beep.SampleRate(rate)), nil

	default:
		if len(data)%2 != 0 {
			return nil, errors.New("audio: raw pcm16 with odd length")
		}
		if rawRate == rate {
			return data, nil
		}
		return render(&pcmStreamer{samples: BytesToInt16(data)}, beep.SampleRate(rawRate), beep.SampleRate(rate)), nil
	}
}

// render drains a streamer into mono little-endian PCM16.
func render(s beep.Streamer, from, to beep.SampleRate) []byte {
	if from != to {
		s = beep.Resample(resampleQuality, from, to, s)
	}

	var out bytes.Buffer
	buf := make([][2]float64, 512)
	var tmp [2]byte
	for {
		n, ok := s.Stream(buf)
		for _, frame := range buf[:n] {
			v := (frame[0] + frame[1]) / 2
			v = math.Max(-1, math.Min(1, v))
			binary.LittleEndian.PutUint16(tmp[:], uint16(int16(v*math.MaxInt16)))
			out.Write(tmp[:])
		}
		if !ok {
			break
		}
	}
	return out.Bytes()
}

// pcmStreamer adapts mono PCM16 samples to beep.Streamer.
type pcmStreamer struct {
	samples []int16
	pos     int
}

func (p *pcmStreamer) Stream(buf [][2]float64) (int, bool) {
	if p.pos >= len(p.samples) {
		return 0, false
	}
	n := 0
	for n < len(buf) && p.pos < len(p.samples) {
		v := float64(p.samples[p.pos]) / math.MaxInt16
		buf[n] = [2]float64{v, v}
		n++
		p.pos++
	}
	return n, true
}

func (p *pcmStreamer) Err() error { return nil }
