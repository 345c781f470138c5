package audio

import (
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoSource captures from the default input device via miniaudio.
type MalgoSource struct{}

// Open initialises a capture device and starts delivering frames.
func (MalgoSource) Open(sampleRate, channels int, deliver func([]int16)) (func() error, error) {
	mCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(_ string) {})
	if err != nil {
		return nil, err
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.SampleRate = uint32(sampleRate)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = uint32(channels)
	devCfg.Alsa.NoMMap = 1

	var mu sync.Mutex
	stopped := false

	callbacks := malgo.DeviceCallbacks{
		Data: func(_ []byte, raw []byte, _ uint32) {
			if len(raw) == 0 {
				return
			}
			pcm := BytesToInt16(raw)
			mu.Lock()
			defer mu.Unlock()
			if !stopped {
				deliver(pcm)
			}
		},
	}

	device, err := malgo.InitDevice(mCtx.Context, devCfg, callbacks)
	if err != nil {
		_ = mCtx.Uninit()
		mCtx.Free()
		return nil, err
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mCtx.Uninit()
		mCtx.Free()
		return nil, err
	}

	return func() error {
		mu.Lock()
		stopped = true
		mu.Unlock()

		err := device.Stop()
		device.Uninit()
		_ = mCtx.Uninit()
		mCtx.Free()
		return err
	}, nil
}

// ProbeCapture opens and immediately closes the default capture device.
// Used by diagnostics.
func ProbeCapture() error {
	stop, err := MalgoSource{}.Open(CaptureRate, CaptureChannels, func([]int16) {})
	if err != nil {
		return err
	}
	return stop()
}
