package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"soundfleet/internal/config"
	"soundfleet/internal/logger"
	"soundfleet/internal/orchestrator/api"
	"soundfleet/internal/orchestrator/registry"
	"soundfleet/internal/orchestrator/router"
	"soundfleet/internal/version"

	"github.com/cockroachdb/errors"
)

func main() {
	cfg, err := config.NewOrchestrator()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel)
	log := logger.For("main")
	log.Info().Str("version", version.Version).
		Msgf("starting %s orchestrator", version.AppName)

	reg := registry.New()
	rt := router.New(reg, cfg.WorkerSecret)
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewServer(reg, rt, cfg.WorkerSecret, cfg.APISecret).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("orchestrator listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
		<-errCh
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("orchestrator exited")
		}
	}
}
