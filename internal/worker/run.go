package worker

import (
	"context"
	"net/http"
	"time"

	"soundfleet/internal/idempotency"
	"soundfleet/internal/music/player"
	"soundfleet/internal/worker/api"

	"github.com/cockroachdb/errors"
)

const shutdownGrace = 5 * time.Second

// Run opens the Discord gateway, serves the command API and blocks until
// ctx is cancelled or the HTTP server fails.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.dg.Open(); err != nil {
		return errors.Wrap(err, "open discord gateway")
	}

	go e.drainEvents(ctx)

	if e.cfg.OrchestratorURL != "" {
		if err := e.jobs.StartAsync("register", e.registerLoop); err != nil {
			return errors.Wrap(err, "start register loop")
		}
	} else {
		e.log.Warn().Msg("no orchestrator url configured, running standalone")
	}

	srv := &http.Server{
		Addr:    e.cfg.ListenAddr,
		Handler: api.NewServer(e, e.cfg.WorkerSecret, idempotency.New(idempotency.DefaultTTL)).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		e.log.Info().Str("addr", e.cfg.ListenAddr).Msg("command api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = errors.Wrap(err, "command api")
	}

	e.shutdown(srv)
	return runErr
}

func (e *Engine) shutdown(srv *http.Server) {
	e.log.Info().Msg("shutting down")
	e.ready.Store(false)

	shCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		e.log.Warn().Err(err).Msg("http shutdown")
	}

	e.jobs.Shutdown()
	e.player.StopAll()
	e.voice.CloseAll()

	if err := e.dg.Close(); err != nil {
		e.log.Warn().Err(err).Msg("discord close")
	}
	if err := e.snaps.Close(); err != nil {
		e.log.Warn().Err(err).Msg("snapshot close")
	}
}

// drainEvents keeps the player event channel flowing and logs transitions.
// Workers have no chat surface; events exist for logs and tests.
func (e *Engine) drainEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.player.Events:
			logEv := e.log.Debug()
			if ev.Status == player.StatusError {
				logEv = e.log.Warn()
			}
			logEv.Str("guild", ev.GuildID).Str("status", string(ev.Status)).
				Msg("playback status")
		}
	}
}
