package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/spf13/pflag"

	"github.com/dvloznov/bank-forwarder/internal/api"
	"github.com/dvloznov/bank-forwarder/internal/app"
	"github.com/dvloznov/bank-forwarder/internal/config"
	"github.com/dvloznov/bank-forwarder/internal/logger"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to the YAML config (or set "+config.EnvVar+")")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := logger.NewWithLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Cancel on interrupt; an in-flight cycle still runs to completion.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	forwarder, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build forwarder")
	}
	defer func() {
		if err := forwarder.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close backends")
		}
	}()

	var server *api.Server
	if cfg.Metrics.Addr != "" {
		server = api.NewServer(cfg.Metrics.Addr, forwarder.StatusHandler(), log)
		server.Start()
	}

	log.Info().Dur("interval", cfg.PollInterval()).Msg("Starting poll loop")
	err = forwarder.Poller.Loop(ctx, clock.NewClock(), cfg.PollInterval())
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Poll loop stopped")
	}

	log.Info().Msg("Shutting down...")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Status server forced to shutdown")
		}
	}

	log.Info().Msg("Forwarder exited")
}
