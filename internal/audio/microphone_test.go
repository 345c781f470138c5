package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/logger"
)

// fakeSource delivers a constant frame every millisecond until stopped.
type fakeSource struct {
	mu     sync.Mutex
	opened int
	frame  []int16
}

func (f *fakeSource) Open(_, _ int, deliver func([]int16)) (func() error, error) {
	f.mu.Lock()
	f.opened++
	f.mu.Unlock()

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		tick := time.NewTicker(time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				deliver(f.frame)
			}
		}
	}()
	return func() error {
		close(done)
		<-stopped
		return nil
	}, nil
}

func newMic(src Source) *Microphone {
	return NewMicrophone(logger.New(logger.LevelOff, nil), WithSource(src))
}

func TestLeaseIsExclusive(t *testing.T) {
	mic := newMic(&fakeSource{frame: []int16{1}})

	lease, err := mic.Acquire("wakeword")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if mic.Holder() != "wakeword" {
		t.Fatalf("holder = %q", mic.Holder())
	}

	if _, err := mic.Acquire("conversation"); !errors.Is(err, domain.ErrMicBusy) {
		t.Fatalf("expected ErrMicBusy, got %v", err)
	}

	lease.Release()
	lease.Release()

	other, err := mic.Acquire("conversation")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	other.Release()
}

func TestLeaseStartsCaptureLazily(t *testing.T) {
	src := &fakeSource{frame: []int16{7, 7}}
	mic := newMic(src)

	lease, _ := mic.Acquire("probe")
	if src.opened != 0 {
		t.Fatal("capture opened before Frames was called")
	}

	frames, err := lease.Frames()
	if err != nil {
		t.Fatalf("frames: %v", err)
	}
	if again, _ := lease.Frames(); again != frames {
		t.Fatal("Frames should return the same channel")
	}

	select {
	case f := <-frames:
		if len(f) != 2 || f[0] != 7 {
			t.Fatalf("unexpected frame %v", f)
		}
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
	}

	lease.Release()
	for range frames {
	}
	if _, err := lease.Frames(); err == nil {
		t.Fatal("expected error on released lease")
	}
}

func TestRecordReturnsWAV(t *testing.T) {
	mic := newMic(&fakeSource{frame: make([]int16, 160)})

	wav, err := mic.Record(context.Background(), "probe", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	info, pcm, err := ParseWAV(wav)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.SampleRate != CaptureRate {
		t.Fatalf("rate = %d", info.SampleRate)
	}
	if len(pcm) == 0 || len(pcm) > 2*CaptureRate/20 {
		t.Fatalf("unexpected pcm length %d", len(pcm))
	}
	if mic.Holder() != "" {
		t.Fatal("Record should release the lease")
	}
}
