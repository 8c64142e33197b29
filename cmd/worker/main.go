package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"soundfleet/internal/config"
	"soundfleet/internal/logger"
	"soundfleet/internal/version"
	"soundfleet/internal/worker"
)

func main() {
	cfg, err := config.NewWorker()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel)
	log := logger.For("main")
	log.Info().Str("version", version.Version).Str("botType", string(cfg.BotType)).
		Msgf("starting %s worker", version.AppName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := worker.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("worker init failed")
	}

	errCh := make(chan error, 1)
	go func() {
		if err := eng.Run(ctx); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("worker exited")
		}
	}
}
