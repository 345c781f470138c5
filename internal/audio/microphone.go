// Package audio owns the local audio devices: the microphone, shared
// between the wake-word gate and the live transcriber through exclusive
// leases, and the playback sink.
package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
)

// Capture defaults. 16 kHz mono PCM16 is what both the openWakeWord
// models and the streaming recognizer expect.
const (
	CaptureRate     = 16000
	CaptureChannels = 1
	frameQueueCap   = 32
)

// Source opens a capture stream and delivers PCM frames to the callback
// until stop is called. The callback must not block.
type Source interface {
	Open(sampleRate, channels int, deliver func([]int16)) (stop func() error, err error)
}

// MicOption configures a Microphone.
type MicOption func(*Microphone)

// WithSource replaces the capture backend (malgo by default).
func WithSource(s Source) MicOption {
	return func(m *Microphone) { m.source = s }
}

// WithCaptureRate overrides the capture sample rate.
func WithCaptureRate(rate int) MicOption {
	return func(m *Microphone) { m.rate = rate }
}

// Microphone hands out exclusive leases on the capture device. At most
// one component reads it at a time.
type Microphone struct {
	source Source
	rate   int
	log    *logger.Logger

	mu     sync.Mutex
	holder string
}

// NewMicrophone creates a microphone backed by the default capture device.
func NewMicrophone(log *logger.Logger, opts ...MicOption) *Microphone {
	m := &Microphone{
		source: MalgoSource{},
		rate:   CaptureRate,
		log:    log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SampleRate returns the capture rate.
func (m *Microphone) SampleRate() int { return m.rate }

// Holder returns the current lease owner, or "" when free.
func (m *Microphone) Holder() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holder
}

// Acquire takes the exclusive lease. It fails with ErrMicBusy when
// another owner holds it.
func (m *Microphone) Acquire(owner string) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.holder != "" {
		return nil, fmt.Errorf("audio: %s wants the microphone, held by %s: %w", owner, m.holder, domain.ErrMicBusy)
	}
	m.holder = owner
	m.log.Debug("microphone acquired by %s", owner)
	return &Lease{mic: m, owner: owner}, nil
}

func (m *Microphone) release(owner string) {
	m.mu.Lock()
	if m.holder == owner {
		m.holder = ""
	}
	m.mu.Unlock()
	m.log.Debug("microphone released by %s", owner)
}

// Record captures d of audio under a temporary lease and returns it as WAV.
func (m *Microphone) Record(ctx context.Context, owner string, d time.Duration) ([]byte, error) {
	lease, err := m.Acquire(owner)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	frames, err := lease.Frames()
	if err != nil {
		return nil, err
	}

	want := int(d.Seconds() * float64(m.rate))
	pcm := make([]int16, 0, want)
	timer := time.NewTimer(d)
	defer timer.Stop()

	for len(pcm) < want {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return EncodeWAV(Int16ToBytes(pcm), m.rate, CaptureChannels), nil
		case f, ok := <-frames:
			if !ok {
				return EncodeWAV(Int16ToBytes(pcm), m.rate, CaptureChannels), nil
			}
			pcm = append(pcm, f...)
		}
	}
	return EncodeWAV(Int16ToBytes(pcm[:want]), m.rate, CaptureChannels), nil
}

// Lease is an exclusive claim on the microphone. Capture starts on the
// first call to Frames, so a lease can also be held just to keep other
// readers away.
type Lease struct {
	mic   *Microphone
	owner string

	mu       sync.Mutex
	frames   chan []int16
	stop     func() error
	released bool
}

// Owner returns the name the lease was acquired under.
func (l *Lease) Owner() string { return l.owner }

// Frames starts capture (once) and returns the frame channel. Frames are
// dropped when the consumer falls behind. The channel is closed on Release.
func (l *Lease) Frames() (<-chan []int16, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return nil, fmt.Errorf("audio: lease %s: %w", l.owner, domain.ErrSessionClosed)
	}
	if l.frames != nil {
		return l.frames, nil
	}

	ch := make(chan []int16, frameQueueCap)
	var drops int64
	stop, err := l.mic.source.Open(l.mic.rate, CaptureChannels, func(pcm []int16) {
		select {
		case ch <- pcm:
		default:
			drops++
		}
	})
	if err != nil {
		return nil, fmt.Errorf("audio: open capture: %w", err)
	}
	l.frames = ch
	l.stop = func() error {
		err := stop()
		if drops > 0 {
			l.mic.log.Debug("lease %s dropped %d frames", l.owner, drops)
		}
		return err
	}
	l.mic.log.Debug("capture started for %s (rate=%d)", l.owner, l.mic.rate)
	return ch, nil
}

// Release stops capture and frees the microphone. Safe to call twice.
func (l *Lease) Release() {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.released = true
	stop := l.stop
	frames := l.frames
	l.mu.Unlock()

	if stop != nil {
		if err := stop(); err != nil {
			l.mic.log.Warn("stopping capture for %s: %v", l.owner, err)
		}
		close(frames)
	}
	l.mic.release(l.owner)
}
