// Package doctor runs environment, microphone and provider checks.
package doctor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hammamikhairi/james/internal/config"
	"github.com/hammamikhairi/james/internal/domain"
)

// Probe texts.
const (
	GenerationPrompt = "Say 'API test successful'"
	SynthesisText    = "API test"
)

// Status is a check outcome.
type Status int

const (
	Pass Status = iota
	Warn
	Fail
	Skipped
)

func (s Status) String() string {
	switch s {
	case Pass:
		return "ok"
	case Warn:
		return "warn"
	case Fail:
		return "fail"
	default:
		return "skip"
	}
}

// Check is one named diagnostic. Run returns a detail line; an error
// fails the check unless Soft is set, in which case it only warns.
type Check struct {
	Name string
	Soft bool
	Run  func(ctx context.Context) (string, error)
}

// Result is a finished check.
type Result struct {
	Name    string
	Status  Status
	Detail  string
	Elapsed time.Duration
}

// Run executes checks in order. After the first hard failure the rest
// are reported as skipped.
func Run(ctx context.Context, checks []Check) []Result {
	results := make([]Result, 0, len(checks))
	failed := false
	for _, c := range checks {
		if failed {
			results = append(results, Result{Name: c.Name, Status: Skipped})
			continue
		}
		start := time.Now()
		detail, err := c.Run(ctx)
		r := Result{Name: c.Name, Status: Pass, Detail: detail, Elapsed: time.Since(start)}
		if err != nil {
			r.Detail = err.Error()
			r.Status = Fail
			if c.Soft {
				r.Status = Warn
			} else {
				failed = true
			}
		}
		results = append(results, r)
	}
	return results
}

// Failed reports whether any result failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if r.Status == Fail {
			return true
		}
	}
	return false
}

// ── checks ───────────────────────────────────────────────────────

// EnvFile checks that the .env file exists and counts its lines.
func EnvFile(path string) Check {
	return Check{
		Name: "env file",
		Run: func(context.Context) (string, error) {
			data, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("%s not found", path)
			}
			lines := 0
			sc := bufio.NewScanner(bytes.NewReader(data))
			for sc.Scan() {
				lines++
			}
			return fmt.Sprintf("%s has %d lines", path, lines), nil
		},
	}
}

// Credentials reports the length of every credential the selected
// providers need and fails if any is missing.
func Credentials(cfg config.Config, needs config.Need) Check {
	return Check{
		Name: "credentials",
		Run: func(context.Context) (string, error) {
			cr := cfg.Credentials
			lengths := []string{
				fmt.Sprintf("%s=%d", config.EnvDeepgramKey, len(cr.Deepgram)),
			}
			switch cfg.LLM.Provider {
			case config.ProviderGroq:
				lengths = append(lengths, fmt.Sprintf("%s=%d", config.EnvGroqKey, len(cr.Groq)))
			case config.ProviderOpenAI:
				lengths = append(lengths, fmt.Sprintf("%s=%d", config.EnvOpenAIKey, len(cr.OpenAI)))
			case config.ProviderAnthropic:
				lengths = append(lengths, fmt.Sprintf("%s=%d", config.EnvAnthropicKey, len(cr.Anthropic)))
			case config.ProviderAzure:
				lengths = append(lengths, fmt.Sprintf("%s=%d", config.EnvAzureOpenAIKey, len(cr.AzureOpenAI)))
			}
			detail := strings.Join(lengths, " ") + " chars"
			if err := cfg.Validate(needs); err != nil {
				return detail, err
			}
			return detail, nil
		},
	}
}

// Microphone opens and closes the capture device with probe.
func Microphone(probe func() error) Check {
	return Check{
		Name: "microphone",
		Run: func(context.Context) (string, error) {
			if err := probe(); err != nil {
				return "", fmt.Errorf("capture init: %w", err)
			}
			return "default capture device opened", nil
		},
	}
}

// Generation asks the model for a short fixed answer.
func Generation(provider string, gen domain.TextGenerator) Check {
	return Check{
		Name: "llm (" + provider + ")",
		Run: func(ctx context.Context) (string, error) {
			reply, err := gen.Generate(ctx, []domain.Message{domain.UserMessage(GenerationPrompt)})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("replied %q", reply), nil
		},
	}
}

// Synthesis synthesizes a short phrase.
func Synthesis(provider string, synth domain.TextToSpeech) Check {
	return Check{
		Name: "tts (" + provider + ")",
		Run: func(ctx context.Context) (string, error) {
			if synth == nil {
				return "disabled", nil
			}
			audio, err := synth.Synthesize(ctx, SynthesisText)
			if err != nil {
				return "", err
			}
			if len(audio) == 0 {
				return "", errors.New("empty audio")
			}
			return fmt.Sprintf("%d bytes of %s", len(audio), synth.ContentType()), nil
		},
	}
}

// ── rendering ────────────────────────────────────────────────────

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e4e4e7"))
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#bbf7d0"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#fde68a"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#fca5a5"))
	skipStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#71717a")).Italic(true)
	nameStyle   = lipgloss.NewStyle().Width(22).Foreground(lipgloss.Color("#d4d4d8"))
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#a1a1aa"))
)

// Render formats results as a report.
func Render(results []Result) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("james doctor"))
	b.WriteString("\n\n")
	for _, r := range results {
		var mark string
		switch r.Status {
		case Pass:
			mark = passStyle.Render("✔")
		case Warn:
			mark = warnStyle.Render("!")
		case Fail:
			mark = failStyle.Render("✘")
		default:
			mark = skipStyle.Render("-")
		}
		line := "  " + mark + " " + nameStyle.Render(r.Name)
		switch {
		case r.Status == Skipped:
			line += skipStyle.Render("skipped")
		case r.Detail != "":
			line += detailStyle.Render(r.Detail)
		}
		if r.Elapsed > 100*time.Millisecond {
			line += detailStyle.Render(fmt.Sprintf(" (%s)", r.Elapsed.Round(10*time.Millisecond)))
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	if Failed(results) {
		b.WriteString(failStyle.Render("Some checks failed. Check your .env file and API keys."))
	} else {
		b.WriteString(passStyle.Render("All diagnostics passed."))
	}
	b.WriteByte('\n')
	return b.String()
}
