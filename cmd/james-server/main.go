// james-server serves the browser voice client over HTTP(S) and a
// WebSocket event channel.
//
// Usage:
//
//	james-server [-addr :5443] [-cert cert.pem -key key.pem]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hammamikhairi/james/internal/app"
	"github.com/hammamikhairi/james/internal/config"
	"github.com/hammamikhairi/james/internal/memory"
	"github.com/hammamikhairi/james/internal/server"
	"github.com/hammamikhairi/james/internal/wakeword"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env", ".env", "dotenv file to load")
	verbose := flag.Bool("verbose", false, "enable verbose/debug logging")
	quiet := flag.Bool("quiet", false, "disable all logging")
	logFile := flag.String("log-file", "stderr", "file to write logs to")
	addr := flag.String("addr", "", "listen address (default from config, :5443)")
	cert := flag.String("cert", "", "TLS certificate (PEM)")
	key := flag.String("key", "", "TLS private key (PEM)")
	flag.Parse()

	if err := app.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *cert != "" {
		cfg.Server.Cert = *cert
	}
	if *key != "" {
		cfg.Server.Key = *key
	}
	if err := cfg.Validate(config.NeedLLM | config.NeedSTT | config.NeedTTS); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	log, closeLog := app.OpenLog(*logFile, app.Level(*verbose, *quiet))
	defer closeLog()

	gen, err := app.Generator(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	rec, err := app.Transcriber(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	synth, err := app.Synthesizer(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	srv := server.New(server.Deps{
		Recognizer:  rec,
		Generator:   gen,
		Synthesizer: synth,
		Store:       memory.NewStore(cfg.SystemPrompt, log.Named("sessions"), memory.WithWindow(cfg.Window)),
		Matcher:     wakeword.NewMatcher(cfg.Wake.Phrases...),
	}, log.Named("server"),
		server.WithName(cfg.Name),
		server.WithGreeting(cfg.Greeting),
		server.WithProviders(app.Describe(cfg)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		if cfg.Server.TLS() {
			errc <- srv.ListenTLS(cfg.Server.Addr, cfg.Server.Cert, cfg.Server.Key)
			return
		}
		log.Warn("no TLS certificate configured; mobile browsers will refuse the microphone")
		errc <- srv.Listen(cfg.Server.Addr)
	}()

	select {
	case err := <-errc:
		if err != nil {
			log.Error("server: %v", err)
			closeLog()
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown: %v", err)
		}
	}
}
