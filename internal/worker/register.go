package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"soundfleet/pkg/retrylimit"

	"github.com/cockroachdb/errors"
)

const (
	registerRetry     = 5 * time.Second
	heartbeatInterval = 30 * time.Second
)

type registration struct {
	BotType    string    `json:"botType"`
	InstanceID string    `json:"instanceId"`
	StartedAt  time.Time `json:"startedAt"`
	Version    string    `json:"version"`
	Addr       string    `json:"addr"`
}

// registerLoop announces this worker to the orchestrator with backoff
// until the first success, then re-registers on an interval so a
// restarted orchestrator relearns the fleet.
func (e *Engine) registerLoop(ctx context.Context) error {
	client := &http.Client{Timeout: 10 * time.Second}
	lim := retrylimit.NewAdaptiveLimiter(1, 1, 2, 0, 0.5)

	cfg := retrylimit.DefaultRetryConfig()
	cfg.MaxDelay = registerRetry
	cfg.OnRetry = func(attempt int, err error) {
		e.log.Warn().Err(err).Int("attempt", attempt).
			Str("orchestrator", e.cfg.OrchestratorURL).Msg("registration failed, will retry")
	}

	if err := retrylimit.WithRetryConfig(ctx, func() error {
		return e.register(ctx, client)
	}, lim, cfg); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		e.log.Error().Err(err).Msg("registration gave up, heartbeat will keep trying")
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.register(ctx, client); err != nil {
				e.log.Warn().Err(err).Msg("re-registration failed")
			}
		}
	}
}

func (e *Engine) register(ctx context.Context, client *http.Client) error {
	body, err := json.Marshal(registration{
		BotType:    string(e.cfg.BotType),
		InstanceID: e.instanceID,
		StartedAt:  e.startedAt,
		Version:    e.versionString(),
		Addr:       e.advertiseAddr(),
	})
	if err != nil {
		return errors.Wrap(err, "marshal registration")
	}

	url := strings.TrimRight(e.cfg.OrchestratorURL, "/") + "/internal/workers/register"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-worker-secret", e.cfg.WorkerSecret)

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post registration")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Newf("orchestrator returned %s", resp.Status)
	}

	e.log.Debug().Str("addr", e.advertiseAddr()).Msg("registered with orchestrator")
	return nil
}

// advertiseAddr is the base URL the orchestrator forwards commands to.
func (e *Engine) advertiseAddr() string {
	if e.cfg.AdvertiseURL != "" {
		return strings.TrimRight(e.cfg.AdvertiseURL, "/")
	}
	return "http://127.0.0.1" + e.cfg.ListenAddr
}
