package main

import (
	"context"
	"errors"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"alphabot-go/internal/config"
	"alphabot-go/internal/engine"
	"alphabot-go/internal/metrics"
	"alphabot-go/internal/util"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	path := flag.String("config", defaultConfigPath, "path to the YAML config")
	provider := flag.String("provider", "", "override stream provider (binance | stub)")
	flag.Parse()

	boot := util.NewLogger("info")
	cfg, err := config.Load(*path)
	if err != nil {
		boot.Fatal().Err(err).Str("path", *path).Msg("load config")
	}
	if *provider != "" {
		cfg.Stream.Provider = *provider
		if err := cfg.Validate(); err != nil {
			boot.Fatal().Err(err).Msg("invalid provider override")
		}
	}

	var log zerolog.Logger
	if cfg.App.Console {
		log = util.NewConsoleLogger(cfg.App.LogLevel)
	} else {
		log = util.NewLogger(cfg.App.LogLevel)
	}
	log = log.With().Str("env", cfg.App.Env).Logger()

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("engine stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("shutting down")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	srv := metrics.Serve(cfg.App.MetricsAddr)
	defer srv.Close()
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eng, err := engine.New(cfg, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	log.Info().Str("provider", cfg.Stream.Provider).Int("assets", len(cfg.EnabledAssets())).Msg("signal engine started")
	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
