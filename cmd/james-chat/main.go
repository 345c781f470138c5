// james-chat is a text-only conversation with james in the terminal.
//
// Usage:
//
//	james-chat [-config config.yaml] [-speak]
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/hammamikhairi/james/internal/app"
	"github.com/hammamikhairi/james/internal/config"
	"github.com/hammamikhairi/james/internal/display"
	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/engine"
	"github.com/hammamikhairi/james/internal/memory"
	"github.com/hammamikhairi/james/internal/turn"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env", ".env", "dotenv file to load")
	verbose := flag.Bool("verbose", false, "enable verbose/debug logging")
	quiet := flag.Bool("quiet", false, "disable all logging")
	logFile := flag.String("log-file", app.DefaultLogFile, "file to write logs to (use \"stderr\" to log to console)")
	speak := flag.Bool("speak", false, "also speak replies")
	flag.Parse()

	if err := app.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	needs := config.NeedLLM
	if *speak {
		needs |= config.NeedTTS
	}
	if err := cfg.Validate(needs); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	log, closeLog := app.OpenLog(*logFile, app.Level(*verbose, *quiet))
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen, err := app.Generator(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var opts []engine.Option
	if *speak {
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
				opts = append(opts, engine.WithSpeech(synth, player), engine.WithSettle(0))
			}
		}
	}

	ctrl := turn.NewController(log.Named("turn"))
	conv := memory.NewConversation(cfg.SystemPrompt, memory.WithWindow(cfg.Window))

	if !display.IsTerminal() {
		eng := engine.New(conv, gen, ctrl, log.Named("engine"), opts...)
		_ = ctrl.Activate()
		plainLoop(ctx, eng)
		return
	}

	ui := display.NewUI(cfg.Name)
	ctrl.OnChange(func(_, to domain.TurnState) { ui.SetState(to) })
	opts = append(opts, engine.WithNotifier(chatNotifier{ui}))
	eng := engine.New(conv, gen, ctrl, log.Named("engine"), opts...)
	_ = ctrl.Activate()

	fmt.Println(display.RenderBanner("Type a message and press Enter. Type 'quit' to exit."))

	go func() {
		ui.WaitReady()
		ui.PrintChat(cfg.Greeting)
		for {
			select {
			case <-ui.QuitChan():
				return
			case line := <-ui.InputChan():
				line = strings.TrimSpace(line)
				if line == "quit" || line == "exit" {
					ui.Quit()
					return
				}
				if _, err := eng.Turn(ctx, line); err != nil && !errors.Is(err, engine.ErrDropped) {
					ui.PrintUrgent(err.Error())
				}
			}
		}
	}()

	if err := ui.Run(); err != nil {
		log.Error("display: %v", err)
	}
}

// chatNotifier skips Heard: typed lines are already echoed by the prompt.
type chatNotifier struct{ *display.UI }

func (chatNotifier) Heard(string) {}

// plainLoop serves piped stdin.
func plainLoop(ctx context.Context, eng *engine.Engine) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			return
		}
		reply, err := eng.Turn(ctx, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(reply)
	}
}
