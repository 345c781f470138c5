// Package wakeword decides when the assistant wakes up.
//
// Two activation sources are provided. PhraseTrigger transcribes short
// clips and looks for a trigger phrase. Detector runs the openWakeWord
// ONNX pipeline (melspectrogram → embedding → wakeword) on live 80 ms
// chunks and fires when the score crosses a threshold. Either one is
// wrapped in a Gate that the conversation loop blocks on.
//
// All model files (melspectrogram.onnx, embedding_model.onnx, <wakeword>.onnx)
// and the ONNX Runtime shared library must be provided at construction time.
package wakeword

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hammamikhairi/james/internal/audio"
	"github.com/hammamikhairi/james/internal/logger"
)

// ── Constants matching the openWakeWord pipeline ─────────────────

const (
	chunkSamples  = 1280 // 80 ms @ 16 kHz
	melWindowSize = 76   // embedding model needs 76 mel frames
	melStepSize   = 8    // step between embedding windows
	embeddingDim  = 96   // output dim per embedding frame
	nEmbedFrames  = 16   // wakeword model needs 16 embedding frames
	melBins       = 32   // melspectrogram output bands
	nMelFrames    = 5    // 1280 samples → 5 mel frames

	// scoreWindowSize is the number of recent scores to track. The
	// detector triggers on the max in the window, which absorbs
	// frame-alignment jitter. 5 frames ≈ 400 ms.
	scoreWindowSize = 5

	// recentWindow is how many of the most recent embedding slots are
	// passed to the wakeword model; older slots are zeroed so silence
	// can never accumulate and suppress a detection.
	recentWindow = 5

	micOwner = "wakeword"
)

// Config holds the paths and tuning knobs for a Detector.
type Config struct {
	// Model paths (required).
	WakewordModel  string // e.g. "models/hey_james.onnx"
	MelspecModel   string // e.g. "bin/melspectrogram.onnx"
	EmbeddingModel string // e.g. "bin/embedding_model.onnx"
	OnnxLib        string // e.g. "bin/libonnxruntime.so"

	// Phrase is reported to the gate on detection.
	Phrase string

	// Detection tuning.
	Threshold float64       // score ≥ threshold → detected (default 0.3)
	Cooldown  time.Duration // min time between detections (default 1.5 s)
}

func (c *Config) defaults() {
	if c.Threshold <= 0 {
		c.Threshold = 0.3
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 1500 * time.Millisecond
	}
	if c.Phrase == "" {
		c.Phrase = "hey james"
	}
}

// Detector listens for a wakeword while armed. It holds the microphone
// only while armed, so the conversation can take it over after a
// detection.
type Detector struct {
	cfg Config
	mic *audio.Microphone
	log *logger.Logger

	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

var _ Trigger = (*Detector)(nil)

// New creates a paused Detector reading from mic.
func New(cfg Config, mic *audio.Microphone, log *logger.Logger) *Detector {
	cfg.defaults()
	return &Detector{
		cfg:    cfg,
		mic:    mic,
		log:    log,
		paused: true,
		resume: make(chan struct{}, 1),
	}
}

// Pause stops detecting and gives the microphone back.
func (d *Detector) Pause() {
	d.mu.Lock()
	d.paused = true
	d.mu.Unlock()
}

// Resume re-arms detection.
func (d *Detector) Resume() {
	d.mu.Lock()
	d.paused = false
	d.mu.Unlock()
	select {
	case d.resume <- struct{}{}:
	default:
	}
}

func (d *Detector) isPaused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// Run loads the ONNX models, then processes audio whenever armed until
// ctx is cancelled.
func (d *Detector) Run(ctx context.Context, fire func(string)) error {
	d.log.Debug("initializing ONNX runtime (lib=%s)", d.cfg.OnnxLib)
	ort.SetSharedLibraryPath(d.cfg.OnnxLib)
	if err := ort.InitializeEnvironment(); err != nil {
		d.log.Error("ONNX init failed: %v", err)
		return err
	}
	defer ort.DestroyEnvironment()

	p, err := newPipeline(d.cfg)
	if err != nil {
		return err
	}
	defer p.destroy()
	d.log.Info("detector ready (threshold=%.2f, cooldown=%s)", d.cfg.Threshold, d.cfg.Cooldown)

	window := newPeakWindow(d.cfg.Threshold, d.cfg.Cooldown)
	for {
		if d.isPaused() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-d.resume:
				continue
			}
		}

		if err := d.listen(ctx, p, window, fire); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.log.Warn("listen: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

// listen holds the microphone until a detection, a pause, or ctx end.
func (d *Detector) listen(ctx context.Context, p *pipeline, window *peakWindow, fire func(string)) error {
	lease, err := d.mic.Acquire(micOwner)
	if err != nil {
		return err
	}
	defer lease.Release()

	frames, err := lease.Frames()
	if err != nil {
		return err
	}

	// Stale mel frames and embeddings from the last session would
	// pollute scoring.
	p.reset()
	window.reset()
	d.log.Debug("listening (rate=%d, chunk=%d)", d.mic.SampleRate(), chunkSamples)

	check := time.NewTicker(100 * time.Millisecond)
	defer check.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-check.C:
			if d.isPaused() {
				return nil
			}
		case frame, ok := <-frames:
			if !ok {
				return errors.New("wakeword: capture stopped")
			}
			for _, score := range p.push(frame) {
				if window.observe(score, time.Now()) {
					d.log.Info("DETECTED (score=%.4f)", score)
					d.Pause()
					fire(d.cfg.Phrase)
					return nil
				}
			}
		}
	}
}

// ── Score window ─────────────────────────────────────────────────

// peakWindow triggers when the max of the last few scores reaches the
// threshold, at most once per cooldown.
type peakWindow struct {
	threshold float64
	cooldown  time.Duration
	scores    [scoreWindowSize]float32
	idx       int
	last      time.Time
}

func newPeakWindow(threshold float64, cooldown time.Duration) *peakWindow {
	return &peakWindow{threshold: threshold, cooldown: cooldown}
}

func (w *peakWindow) observe(score float32, now time.Time) bool {
	w.scores[w.idx%scoreWindowSize] = score
	w.idx++

	var max float32
	for _, s := range w.scores {
		if s > max {
			max = s
		}
	}
	if float64(max) < w.threshold || now.Sub(w.last) <= w.cooldown {
		return false
	}
	w.last = now
	// Clear so the same peak can't re-trigger.
	w.scores = [scoreWindowSize]float32{}
	return true
}

func (w *peakWindow) reset() {
	w.scores = [scoreWindowSize]float32{}
	w.idx = 0
}

// ── ONNX pipeline ────────────────────────────────────────────────

type pipeline struct {
	melspecIn, melspecOut *ort.Tensor[float32]
	embedIn, embedOut     *ort.Tensor[float32]
	wwIn, wwOut           *ort.Tensor[float32]
	melspec, embed, ww    *ort.AdvancedSession

	melBuffer   []float32
	embedBuffer []float32
	audioRem    []int16

	cleanup []func() error
}

func newPipeline(cfg Config) (_ *pipeline, err error) {
	p := &pipeline{
		melBuffer:   make([]float32, 0, 300*melBins),
		embedBuffer: make([]float32, nEmbedFrames*embeddingDim),
		audioRem:    make([]int16, 0, chunkSamples*2),
	}
	defer func() {
		if err != nil {
			p.destroy()
		}
	}()

	if p.melspecIn, p.melspecOut, p.melspec, err = p.session(cfg.MelspecModel,
		ort.NewShape(1, chunkSamples), ort.NewShape(1, 1, nMelFrames, melBins)); err != nil {
		return nil, err
	}
	if p.embedIn, p.embedOut, p.embed, err = p.session(cfg.EmbeddingModel,
		ort.NewShape(1, melWindowSize, melBins, 1), ort.NewShape(1, 1, 1, embeddingDim)); err != nil {
		return nil, err
	}
	if p.wwIn, p.wwOut, p.ww, err = p.session(cfg.WakewordModel,
		ort.NewShape(1, nEmbedFrames, embeddingDim), ort.NewShape(1, 1)); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *pipeline) session(model string, inShape, outShape ort.Shape) (*ort.Tensor[float32], *ort.Tensor[float32], *ort.AdvancedSession, error) {
	in, err := ort.NewEmptyTensor[float32](inShape)
	if err != nil {
		return nil, nil, nil, err
	}
	p.cleanup = append(p.cleanup, in.Destroy)

	out, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		return nil, nil, nil, err
	}
	p.cleanup = append(p.cleanup, out.Destroy)

	inInfo, outInfo, err := ort.GetInputOutputInfo(model)
	if err != nil {
		return nil, nil, nil, err
	}
	sess, err := ort.NewAdvancedSession(model,
		[]string{inInfo[0].Name}, []string{outInfo[0].Name},
		[]ort.Value{in}, []ort.Value{out},
		nil,
	)
	if err != nil {
		return nil, nil, nil, err
	}
	p.cleanup = append(p.cleanup, sess.Destroy)
	return in, out, sess, nil
}

func (p *pipeline) destroy() {
	for i := len(p.cleanup) - 1; i >= 0; i-- {
		_ = p.cleanup[i]()
	}
	p.cleanup = nil
}

func (p *pipeline) reset() {
	p.melBuffer = p.melBuffer[:0]
	for i := range p.embedBuffer {
		p.embedBuffer[i] = 0
	}
	p.audioRem = p.audioRem[:0]
}

// push feeds captured samples through the pipeline and returns one
// wakeword score per new embedding.
func (p *pipeline) push(frame []int16) []float32 {
	var scores []float32
	p.audioRem = append(p.audioRem, frame...)

	for len(p.audioRem) >= chunkSamples {
		inData := p.melspecIn.GetData()
		for i, v := range p.audioRem[:chunkSamples] {
			inData[i] = float32(v)
		}
		n := copy(p.audioRem, p.audioRem[chunkSamples:])
		p.audioRem = p.audioRem[:n]

		// Step 1: melspectrogram.
		if err := p.melspec.Run(); err != nil {
			continue
		}
		melData := p.melspecOut.GetData()
		for i := 0; i < nMelFrames*melBins && i < len(melData); i++ {
			p.melBuffer = append(p.melBuffer, melData[i]/10.0+2.0)
		}

		// Step 2: embeddings over a sliding mel window.
		newEmbed := false
		for len(p.melBuffer)/melBins >= melWindowSize {
			copy(p.embedIn.GetData(), p.melBuffer[:melWindowSize*melBins])
			if err := p.embed.Run(); err != nil {
				break
			}
			copy(p.embedBuffer, p.embedBuffer[embeddingDim:])
			copy(p.embedBuffer[(nEmbedFrames-1)*embeddingDim:], p.embedOut.GetData()[:embeddingDim])
			newEmbed = true

			n := copy(p.melBuffer, p.melBuffer[melStepSize*melBins:])
			p.melBuffer = p.melBuffer[:n]
		}
		if !newEmbed {
			continue
		}

		// Step 3: score on a zero-padded buffer; only the most recent
		// slots are real.
		wwData := p.wwIn.GetData()
		padSlots := nEmbedFrames - recentWindow
		for i := 0; i < padSlots*embeddingDim; i++ {
			wwData[i] = 0
		}
		copy(wwData[padSlots*embeddingDim:], p.embedBuffer[padSlots*embeddingDim:])
		if err := p.ww.Run(); err != nil {
			continue
		}
		scores = append(scores, p.wwOut.GetData()[0])
	}
	return scores
}

// Validate checks the configuration before the models are loaded.
func (d *Detector) Validate() error {
	if d.mic == nil {
		return errors.New("wakeword: detector needs a microphone")
	}
	paths := map[string]string{
		"wakeword model":  d.cfg.WakewordModel,
		"melspec model":   d.cfg.MelspecModel,
		"embedding model": d.cfg.EmbeddingModel,
		"onnx runtime":    d.cfg.OnnxLib,
	}
	for name, path := range paths {
		if path == "" {
			return fmt.Errorf("wakeword: %s path not set", name)
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("wakeword: %s: %w", name, err)
		}
	}
	return nil
}
