// james-doctor checks the environment, the microphone and the configured
// providers.
//
// Usage:
//
//	james-doctor [-config config.yaml] [-skip-mic]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hammamikhairi/james/internal/app"
	"github.com/hammamikhairi/james/internal/audio"
	"github.com/hammamikhairi/james/internal/config"
	"github.com/hammamikhairi/james/internal/doctor"
	"github.com/hammamikhairi/james/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env", ".env", "dotenv file to check and load")
	skipMic := flag.Bool("skip-mic", false, "skip the microphone check")
	verbose := flag.Bool("verbose", false, "log provider requests to stderr")
	timeout := flag.Duration("timeout", 30*time.Second, "overall time limit")
	flag.Parse()

	checks := []doctor.Check{doctor.EnvFile(*envFile)}

	if err := app.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	level := logger.LevelOff
	if *verbose {
		level = logger.LevelVerbose
	}
	log := logger.New(level, os.Stderr)

	checks = append(checks, doctor.Credentials(cfg, config.NeedLLM|config.NeedTTS|config.NeedLive))
	if !*skipMic {
		checks = append(checks, doctor.Microphone(audio.ProbeCapture))
	}

	probeCfg := cfg
	probeCfg.LLM.MaxTokens = 10
	probeCfg.TTS.CacheDir, probeCfg.TTS.DiskCache = "", false

	gen, err := app.RawGenerator(probeCfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	checks = append(checks, doctor.Generation(cfg.LLM.Provider, gen))

	synth, err := app.Synthesizer(probeCfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	checks = append(checks, doctor.Synthesis(cfg.TTS.Provider, synth))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	results := doctor.Run(ctx, checks)
	fmt.Print(doctor.Render(results))
	if doctor.Failed(results) {
		os.Exit(1)
	}
}
