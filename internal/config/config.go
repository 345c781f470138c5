// Package config loads james settings from an optional YAML file and
// credentials from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hammamikhairi/james/internal/domain"
)

// Provider names.
const (
	ProviderDeepgram  = "deepgram"
	ProviderOpenAI    = "openai"
	ProviderGroq      = "groq"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
	ProviderNone      = "none"
)

// Wake-word modes.
const (
	WakeHosted  = "hosted"  // record a short clip, transcribe it remotely
	WakeWhisper = "whisper" // same, with a local whisper.cpp binary
	WakeONNX    = "onnx"    // dedicated wake-word model
)

// Env var names for credentials.
const (
	EnvDeepgramKey       = "DEEPGRAM_API_KEY"
	EnvOpenAIKey         = "OPENAI_API_KEY"
	EnvGroqKey           = "GROQ_API_KEY"
	EnvAnthropicKey      = "ANTHROPIC_API_KEY"
	EnvAzureOpenAIKey    = "AZURE_OPENAI_KEY"
	EnvAzureOpenAIURL    = "AZURE_OPENAI_ENDPOINT"
	EnvAzureSpeechKey    = "AZURE_SPEECH_KEY"
	EnvAzureSpeechRegion = "AZURE_SPEECH_REGION"
)

// DefaultSystemPrompt sets the receptionist persona.
const DefaultSystemPrompt = "You are James, a friendly and helpful AI receptionist. " +
	"Keep your answers short and conversational, one to three sentences, " +
	"because they will be spoken aloud."

// Config is the full runtime configuration.
type Config struct {
	Name         string        `yaml:"name"`
	SystemPrompt string        `yaml:"system_prompt"`
	Window       int           `yaml:"window"`
	Greeting     string        `yaml:"greeting"`
	Farewell     string        `yaml:"farewell"`
	Farewells    []string      `yaml:"farewell_phrases"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	Settle       time.Duration `yaml:"settle"`

	LLM    LLM    `yaml:"llm"`
	STT    STT    `yaml:"stt"`
	TTS    TTS    `yaml:"tts"`
	Wake   Wake   `yaml:"wake"`
	Server Server `yaml:"server"`

	Credentials Credentials `yaml:"-"`
}

// LLM selects and tunes the text generator.
type LLM struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	BaseURL     string  `yaml:"base_url"`
	APIVersion  string  `yaml:"api_version"`
	Apology     string  `yaml:"apology"`
}

// STT selects the recognizer used for clips. Live sessions always use
// Deepgram streaming.
type STT struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

// TTS selects the synthesizer.
type TTS struct {
	Provider   string `yaml:"provider"`
	Voice      string `yaml:"voice"`
	Encoding   string `yaml:"encoding"`
	SampleRate int    `yaml:"sample_rate"`
	CacheDir   string `yaml:"cache_dir"`
	DiskCache  bool   `yaml:"disk_cache"`
}

// Wake configures wake-word detection.
type Wake struct {
	Mode         string        `yaml:"mode"`
	Phrases      []string      `yaml:"phrases"`
	ProbeLength  time.Duration `yaml:"probe_length"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	Model        string        `yaml:"model"`
	Melspec      string        `yaml:"melspec_model"`
	Embedding    string        `yaml:"embedding_model"`
	OnnxLib      string        `yaml:"onnx_lib"`
	Threshold    float64       `yaml:"threshold"`
	Cooldown     time.Duration `yaml:"cooldown"`
	WhisperBin   string        `yaml:"whisper_bin"`
	WhisperModel string        `yaml:"whisper_model"`
}

// Server configures james-server.
type Server struct {
	Addr string `yaml:"addr"`
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

// TLS reports whether both certificate and key are set.
func (s Server) TLS() bool { return s.Cert != "" && s.Key != "" }

// Credentials are read from the environment only.
type Credentials struct {
	Deepgram          string
	OpenAI            string
	Groq              string
	Anthropic         string
	AzureOpenAI       string
	AzureOpenAIURL    string
	AzureSpeech       string
	AzureSpeechRegion string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Name:         "James",
		SystemPrompt: DefaultSystemPrompt,
		Window:       10,
		Greeting:     "Hello! I'm James, how can I help you today?",
		Farewell:     "Goodbye! Just say my name if you need anything else.",
		Farewells:    []string{"goodbye", "bye james", "that's all", "stop listening"},
		IdleTimeout:  60 * time.Second,
		Settle:       500 * time.Millisecond,
		LLM: LLM{
			Provider:    ProviderGroq,
			MaxTokens:   150,
			Temperature: 0.7,
		},
		STT: STT{
			Provider: ProviderDeepgram,
			Model:    "nova-2",
			Language: "en-US",
		},
		TTS: TTS{
			Provider:  ProviderDeepgram,
			Encoding:  "mp3",
			CacheDir:  ".james-cache",
			DiskCache: true,
		},
		Wake: Wake{
			Mode:         WakeHosted,
			Phrases:      []string{"hey james", "james", "hello james", "hi james", "jarvis"},
			ProbeLength:  3 * time.Second,
			RetryDelay:   time.Second,
			Model:        "models/hey_james.onnx",
			Melspec:      "bin/melspectrogram.onnx",
			Embedding:    "bin/embedding_model.onnx",
			OnnxLib:      "bin/libonnxruntime.so",
			Threshold:    0.3,
			Cooldown:     1500 * time.Millisecond,
			WhisperBin:   "whisper-cli",
			WhisperModel: "bin/ggml-small.bin",
		},
		Server: Server{
			Addr: ":5443",
		},
	}
}

// Load reads path over the defaults and fills credentials from the
// environment. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.Credentials = CredentialsFromEnv()
	if err := cfg.check(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// CredentialsFromEnv reads every known credential variable.
func CredentialsFromEnv() Credentials {
	get := func(k string) string { return strings.TrimSpace(os.Getenv(k)) }
	return Credentials{
		Deepgram:          get(EnvDeepgramKey),
		OpenAI:            get(EnvOpenAIKey),
		Groq:              get(EnvGroqKey),
		Anthropic:         get(EnvAnthropicKey),
		AzureOpenAI:       get(EnvAzureOpenAIKey),
		AzureOpenAIURL:    get(EnvAzureOpenAIURL),
		AzureSpeech:       get(EnvAzureSpeechKey),
		AzureSpeechRegion: get(EnvAzureSpeechRegion),
	}
}

func (c Config) check() error {
	var errs []error
	if !oneOf(c.LLM.Provider, ProviderGroq, ProviderOpenAI, ProviderAzure, ProviderAnthropic) {
		errs = append(errs, fmt.Errorf("config: unknown llm provider %q", c.LLM.Provider))
	}
	if !oneOf(c.STT.Provider, ProviderDeepgram, ProviderOpenAI) {
		errs = append(errs, fmt.Errorf("config: unknown stt provider %q", c.STT.Provider))
	}
	if !oneOf(c.TTS.Provider, ProviderDeepgram, ProviderAzure, ProviderNone) {
		errs = append(errs, fmt.Errorf("config: unknown tts provider %q", c.TTS.Provider))
	}
	if !oneOf(c.TTS.Encoding, "mp3", "linear16") {
		errs = append(errs, fmt.Errorf("config: unknown tts encoding %q", c.TTS.Encoding))
	}
	if !oneOf(c.Wake.Mode, WakeHosted, WakeWhisper, WakeONNX) {
		errs = append(errs, fmt.Errorf("config: unknown wake mode %q", c.Wake.Mode))
	}
	if c.Window < 0 {
		errs = append(errs, fmt.Errorf("config: window must not be negative"))
	}
	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Need selects which components a command uses.
type Need uint8

const (
	NeedLLM Need = 1 << iota
	NeedSTT
	NeedTTS
	NeedLive
	NeedWake
)

// Missing lists the credential variables the selected components lack.
func (c Config) Missing(needs Need) []string {
	var missing []string
	add := func(name, value string) {
		if value != "" {
			return
		}
		for _, m := range missing {
			if m == name {
				return
			}
		}
		missing = append(missing, name)
	}
	cr := c.Credentials

	if needs&NeedLLM != 0 {
		switch c.LLM.Provider {
		case ProviderGroq:
			add(EnvGroqKey, cr.Groq)
		case ProviderOpenAI:
			add(EnvOpenAIKey, cr.OpenAI)
		case ProviderAzure:
			add(EnvAzureOpenAIKey, cr.AzureOpenAI)
			add(EnvAzureOpenAIURL, cr.AzureOpenAIURL)
		case ProviderAnthropic:
			add(EnvAnthropicKey, cr.Anthropic)
		}
	}
	// Hosted wake probes transcribe through the clip recognizer.
	if needs&NeedSTT != 0 || (needs&NeedWake != 0 && c.Wake.Mode == WakeHosted) {
		switch c.STT.Provider {
		case ProviderDeepgram:
			add(EnvDeepgramKey, cr.Deepgram)
		case ProviderOpenAI:
			add(EnvOpenAIKey, cr.OpenAI)
		}
	}
	if needs&NeedLive != 0 {
		add(EnvDeepgramKey, cr.Deepgram)
	}
	if needs&NeedTTS != 0 {
		switch c.TTS.Provider {
		case ProviderDeepgram:
			add(EnvDeepgramKey, cr.Deepgram)
		case ProviderAzure:
			add(EnvAzureSpeechKey, cr.AzureSpeech)
			add(EnvAzureSpeechRegion, cr.AzureSpeechRegion)
		}
	}
	return missing
}

// Validate fails with domain.ErrMissingCredentials naming every missing
// variable.
func (c Config) Validate(needs Need) error {
	missing := c.Missing(needs)
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrMissingCredentials, strings.Join(missing, ", "))
}
