// Package app builds the conversation components from configuration.
package app

import (
	"fmt"
	"strconv"

	"github.com/hammamikhairi/james/internal/audio"
	"github.com/hammamikhairi/james/internal/config"
	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/llm"
	"github.com/hammamikhairi/james/internal/logger"
	"github.com/hammamikhairi/james/internal/stt"
	"github.com/hammamikhairi/james/internal/tts"
	"github.com/hammamikhairi/james/internal/wakeword"
)

// Generator builds the configured text generator wrapped with the
// spoken apology fallback.
func Generator(cfg config.Config, log *logger.Logger) (domain.TextGenerator, error) {
	gen, err := RawGenerator(cfg, log)
	if err != nil {
		return nil, err
	}
	return llm.WithFallback(gen, cfg.LLM.Apology, log.Named("llm")), nil
}

// RawGenerator builds the configured generator without the fallback, so
// failures surface (diagnostics).
func RawGenerator(cfg config.Config, log *logger.Logger) (domain.TextGenerator, error) {
	l := cfg.LLM
	log = log.Named("llm")

	var opts []llm.Option
	if l.Model != "" {
		opts = append(opts, llm.WithModel(l.Model))
	}
	if l.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(l.MaxTokens))
	}
	opts = append(opts, llm.WithTemperature(l.Temperature))
	if l.BaseURL != "" {
		opts = append(opts, llm.WithBaseURL(l.BaseURL))
	}

	cr := cfg.Credentials
	switch l.Provider {
	case config.ProviderGroq:
		return llm.NewGroq(cr.Groq, log, opts...), nil
	case config.ProviderOpenAI:
		return llm.NewOpenAI(cr.OpenAI, log, opts...), nil
	case config.ProviderAzure:
		opts = append(opts, llm.WithBaseURL(cr.AzureOpenAIURL), llm.WithAzure(l.APIVersion))
		return llm.NewOpenAI(cr.AzureOpenAI, log, opts...), nil
	case config.ProviderAnthropic:
		return llm.NewAnthropic(cr.Anthropic, log, opts...), nil
	}
	return nil, fmt.Errorf("app: unknown llm provider %q", l.Provider)
}

// Transcriber builds the clip recognizer.
func Transcriber(cfg config.Config, log *logger.Logger) (domain.SpeechToText, error) {
	log = log.Named("stt")
	switch cfg.STT.Provider {
	case config.ProviderDeepgram:
		return stt.NewDeepgram(cfg.Credentials.Deepgram, log, deepgramOptions(cfg)...), nil
	case config.ProviderOpenAI:
		return stt.NewOpenAI(cfg.Credentials.OpenAI, log), nil
	}
	return nil, fmt.Errorf("app: unknown stt provider %q", cfg.STT.Provider)
}

// LiveDialer builds the streaming recognizer for capture at sampleRate.
// Streaming always goes through Deepgram.
func LiveDialer(cfg config.Config, sampleRate int, log *logger.Logger) domain.StreamingSpeechToText {
	live := stt.DefaultLiveConfig()
	live.SampleRate = sampleRate
	return stt.NewLiveDialer(cfg.Credentials.Deepgram, live, log.Named("live"), deepgramOptions(cfg)...)
}

func deepgramOptions(cfg config.Config) []stt.DeepgramOption {
	var opts []stt.DeepgramOption
	if cfg.STT.Provider == config.ProviderDeepgram && cfg.STT.Model != "" {
		opts = append(opts, stt.WithModel(cfg.STT.Model))
	}
	if cfg.STT.Language != "" {
		opts = append(opts, stt.WithLanguage(cfg.STT.Language))
	}
	return opts
}

// Synthesizer builds the configured synthesizer behind the audio cache.
// It returns nil when speech output is disabled.
func Synthesizer(cfg config.Config, log *logger.Logger) (domain.TextToSpeech, error) {
	t := cfg.TTS
	log = log.Named("tts")

	var (
		synth domain.TextToSpeech
		voice string
	)
	switch t.Provider {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderDeepgram:
		var opts []tts.DeepgramOption
		if t.Voice != "" {
			opts = append(opts, tts.WithDeepgramVoice(t.Voice))
		}
		if t.Encoding == tts.EncodingLinear16 {
			opts = append(opts, tts.WithLinear16(PlaybackRate(cfg)))
		}
		d := tts.NewDeepgram(cfg.Credentials.Deepgram, log, opts...)
		synth, voice = d, d.Voice()+":"+t.Encoding
	case config.ProviderAzure:
		var opts []tts.AzureOption
		if t.Voice != "" {
			opts = append(opts, tts.WithAzureVoice(t.Voice))
		}
		a := tts.NewAzure(cfg.Credentials.AzureSpeech, cfg.Credentials.AzureSpeechRegion, log, opts...)
		synth, voice = a, a.Voice()
	default:
		return nil, fmt.Errorf("app: unknown tts provider %q", t.Provider)
	}

	if t.CacheDir == "" && !t.DiskCache {
		return synth, nil
	}
	return tts.NewCache(synth, t.Provider+":"+voice, t.CacheDir, t.DiskCache, log), nil
}

// PlaybackRate is the rate raw PCM is synthesized and played at.
func PlaybackRate(cfg config.Config) int {
	if cfg.TTS.SampleRate > 0 {
		return cfg.TTS.SampleRate
	}
	return audio.PlaybackRate
}

// Player opens the speaker.
func Player(cfg config.Config, log *logger.Logger) (*audio.Player, error) {
	rate := PlaybackRate(cfg)
	return audio.NewPlayer(log.Named("player"), audio.WithPlaybackRate(rate), audio.WithRawRate(rate))
}

// Trigger builds the wake-word trigger for the configured mode. A nil
// trigger (with nil error) is never returned.
func Trigger(cfg config.Config, mic *audio.Microphone, log *logger.Logger) (wakeword.Trigger, error) {
	w := cfg.Wake
	log = log.Named("wake")
	matcher := wakeword.NewMatcher(w.Phrases...)

	switch w.Mode {
	case config.WakeONNX:
		phrase := "hey james"
		if ps := matcher.Phrases(); len(ps) > 0 {
			phrase = ps[0]
		}
		d := wakeword.New(wakeword.Config{
			WakewordModel:  w.Model,
			MelspecModel:   w.Melspec,
			EmbeddingModel: w.Embedding,
			OnnxLib:        w.OnnxLib,
			Phrase:         phrase,
			Threshold:      w.Threshold,
			Cooldown:       w.Cooldown,
		}, mic, log)
		if err := d.Validate(); err != nil {
			return nil, err
		}
		return d, nil

	case config.WakeWhisper:
		p := stt.NewWhisperProbe(w.WhisperBin, w.WhisperModel, mic, log, stt.WithProbeDuration(w.ProbeLength))
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return wakeword.NewPhraseTrigger(p, matcher, log, wakeword.WithRetryDelay(w.RetryDelay)), nil

	case config.WakeHosted:
		rec, err := Transcriber(cfg, log)
		if err != nil {
			return nil, err
		}
		p := stt.NewHostedProbe(mic, rec, w.ProbeLength)
		return wakeword.NewPhraseTrigger(p, matcher, log, wakeword.WithRetryDelay(w.RetryDelay)), nil
	}
	return nil, fmt.Errorf("app: unknown wake mode %q", w.Mode)
}

// Describe summarizes the provider selection for logs and status pages.
func Describe(cfg config.Config) map[string]string {
	return map[string]string{
		"llm":    cfg.LLM.Provider,
		"stt":    cfg.STT.Provider,
		"tts":    cfg.TTS.Provider,
		"wake":   cfg.Wake.Mode,
		"window": strconv.Itoa(cfg.Window),
	}
}
