package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"

	"alertwatch/internal/config"
	"alertwatch/internal/logger"
	"alertwatch/internal/watcher"
)

func main() {
	app := kingpin.New("alertwatch", "Polls alert endpoints and renders them into display containers.")
	app.HelpFlag.Short('h')

	var (
		configFile    = app.Flag("config.file", "Path to a YAML configuration file.").String()
		upstreamURL   = app.Flag("upstream.url", "Base URL of the alert server. Overrides the config file.").String()
		listenAddress = app.Flag("web.listen-address", "Address to serve the alert page and API on. Overrides the config file.").String()
		logLevel      = app.Flag("log.level", "Log level: trace, debug, info, warn, error.").String()
		presets       = app.Flag("preset", "Poller preset to run when no config file is given (repeatable): text, counted.").Enums("text", "counted")
	)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := loadConfig(*configFile, *presets)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *upstreamURL != "" {
		cfg.Upstream.URL = *upstreamURL
	}
	if *listenAddress != "" {
		cfg.ListenAddress = *listenAddress
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger.Init(cfg.LogLevel)
	log := logger.WithComponent("main")

	w, err := watcher.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Cancel on termination signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil {
		log.Error().Err(err).Msg("watcher exited")
		os.Exit(1)
	}
	log.Info().Msg("exited")
}

// loadConfig reads the config file, or builds a config from presets
func loadConfig(path string, presets []string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	cfg := config.Default()
	if len(presets) == 0 {
		return cfg, nil
	}

	cfg.Pollers = cfg.Pollers[:0]
	for _, name := range presets {
		preset, err := config.Preset(name)
		if err != nil {
			return nil, err
		}
		cfg.Pollers = append(cfg.Pollers, preset)
	}
	return cfg, nil
}
