package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/loadinglucian/shipmate/cmd/shipmate/commands"
	"github.com/loadinglucian/shipmate/pkg/config"
	"github.com/loadinglucian/shipmate/pkg/telemetry"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		telemetry.SetupLogging(telemetry.LoggingConfig{})
		log.Error().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	telemetry.SetupLogging(telemetry.LoggingConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info().Msg("Received interrupt signal, shutting down...")
		cancel()
	}()

	if err := commands.Execute(ctx, cfg, Version, Commit, BuildDate); err != nil {
		log.Error().Err(err).Msg("Command execution failed")
		os.Exit(1)
	}
}
