// james is a wake-word voice assistant: it sleeps until it hears its
// name, holds a spoken conversation, then goes back to sleep.
//
// Usage:
//
//	james [-config config.yaml] [-verbose] [-quiet] [-no-speech]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hammamikhairi/james/internal/app"
	"github.com/hammamikhairi/james/internal/audio"
	"github.com/hammamikhairi/james/internal/config"
	"github.com/hammamikhairi/james/internal/display"
	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/engine"
	"github.com/hammamikhairi/james/internal/memory"
	"github.com/hammamikhairi/james/internal/turn"
	"github.com/hammamikhairi/james/internal/wakeword"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env", ".env", "dotenv file to load")
	verbose := flag.Bool("verbose", false, "enable verbose/debug logging")
	quiet := flag.Bool("quiet", false, "disable all logging")
	logFile := flag.String("log-file", app.DefaultLogFile, "file to write logs to (use \"stderr\" to log to console)")
	noSpeech := flag.Bool("no-speech", false, "print replies without speaking them")
	wakeMode := flag.String("wake", "", "wake-word mode override: hosted, whisper or onnx")
	idle := flag.Duration("idle", 0, "end a session after this long without speech (0 = config value)")
	flag.Parse()

	if err := app.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *wakeMode != "" {
		cfg.Wake.Mode = *wakeMode
	}
	if *idle > 0 {
		cfg.IdleTimeout = *idle
	}
	if *noSpeech {
		cfg.TTS.Provider = config.ProviderNone
	}
	if err := cfg.Validate(config.NeedLLM | config.NeedLive | config.NeedWake | config.NeedTTS); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	log, closeLog := app.OpenLog(*logFile, app.Level(*verbose, *quiet))
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mic := audio.NewMicrophone(log.Named("mic"))

	gen, err := app.Generator(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	trigger, err := app.Trigger(cfg, mic, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: wake word: %v\n", err)
		os.Exit(1)
	}
	gate := wakeword.NewGate(trigger, log.Named("gate"))

	ui := display.NewUI(cfg.Name, display.WithBlankSubmit())
	ctrl := turn.NewController(log.Named("turn"))
	ctrl.OnChange(func(_, to domain.TurnState) { ui.SetState(to) })

	opts := []engine.Option{
		engine.WithSettle(cfg.Settle),
		engine.WithNotifier(ui),
	}
	synth, err := app.Synthesizer(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if synth != nil {
		player, err := app.Player(cfg, log)
		if err != nil {
			log.Error("audio player init failed, speech disabled: %v", err)
		} else {
			opts = append(opts, engine.WithSpeech(synth, player))
			log.Info("speech enabled (tts=%s)", cfg.TTS.Provider)
		}
	}

	conv := memory.NewConversation(cfg.SystemPrompt, memory.WithWindow(cfg.Window))
	eng := engine.New(conv, gen, ctrl, log.Named("engine"), opts...)
	voice := engine.NewVoice(eng, gate, mic, app.LiveDialer(cfg, mic.SampleRate(), log), log.Named("voice"),
		engine.WithGreeting(cfg.Greeting),
		engine.WithFarewell(cfg.Farewell, cfg.Farewells...),
		engine.WithIdleTimeout(cfg.IdleTimeout),
	)

	phrases := wakeword.NewMatcher(cfg.Wake.Phrases...).Phrases()
	fmt.Println(display.RenderBanner(
		fmt.Sprintf("Say %q to wake me, or press Enter.", first(phrases, "hey james")),
		"Press Enter again to end a conversation. Type 'quit' to exit.",
	))

	go func() {
		if err := gate.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("wake trigger stopped: %v", err)
			ui.PrintUrgent("Wake word detection stopped: " + err.Error())
		}
	}()
	go func() {
		if err := voice.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("voice loop: %v", err)
		}
	}()
	go func() {
		ui.WaitReady()
		readInput(ctx, ui, gate, voice, eng)
		ui.Quit()
	}()

	log.Info("james started (llm=%s, tts=%s, wake=%s)", cfg.LLM.Provider, cfg.TTS.Provider, cfg.Wake.Mode)
	if err := ui.Run(); err != nil {
		log.Error("display: %v", err)
	}
	cancel()
	// Let the session loop release the microphone and close the stream.
	time.Sleep(200 * time.Millisecond)
}

// readInput maps keyboard input onto the session: a bare Enter wakes the
// assistant or ends the current session, typed text is a turn.
func readInput(ctx context.Context, ui *display.UI, gate *wakeword.Gate, voice *engine.Voice, eng *engine.Engine) {
	ctrl := eng.Controller()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ui.QuitChan():
			return
		case line := <-ui.InputChan():
			line = strings.TrimSpace(line)
			switch {
			case line == "quit" || line == "exit":
				return
			case line == "":
				if ctrl.State() == domain.TurnIdle {
					gate.Fire("keyboard")
				} else {
					voice.EndSession()
				}
			case ctrl.Listening():
				go func() {
					if _, err := eng.Turn(ctx, line); err != nil && !errors.Is(err, engine.ErrDropped) {
						ui.PrintUrgent(err.Error())
					}
				}()
			default:
				ui.PrintHint("I'm asleep or talking. Press Enter to wake me first.")
			}
		}
	}
}

func first(xs []string, fallback string) string {
	if len(xs) > 0 {
		return xs[0]
	}
	return fallback
}
