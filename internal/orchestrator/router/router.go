// Package router forwards per-guild commands to the owning worker and
// aggregates composite status across worker types.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"time"

	"soundfleet/internal/config"
	"soundfleet/internal/logger"
	"soundfleet/internal/orchestrator/registry"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrNoWorker means no live worker is registered for the bot type.
var ErrNoWorker = errors.New("no live worker for bot type")

// WorkerStatus is one worker's view of a guild.
type WorkerStatus struct {
	BotType     config.BotType `json:"botType"`
	InstanceID  string         `json:"instanceId"`
	Connected   bool           `json:"connected"`
	Playing     bool           `json:"playing"`
	Paused      bool           `json:"paused"`
	QueueLength int            `json:"queueLength"`
	Volume      int            `json:"volume"`
	Error       string         `json:"error,omitempty"`
}

// CompositeStatus merges every worker's view of one guild.
type CompositeStatus struct {
	GuildID string         `json:"guildId"`
	Workers []WorkerStatus `json:"workers"`
}

// Router resolves the responsible worker per bot type and forwards calls.
type Router struct {
	reg    *registry.Registry
	client *http.Client
	secret string
	log    zerolog.Logger
}

// New creates a Router.
func New(reg *registry.Registry, secret string) *Router {
	return &Router{
		reg:    reg,
		client: &http.Client{Timeout: 30 * time.Second},
		secret: secret,
		log:    logger.For("router"),
	}
}

// Forward relays a command body to the bot type's worker and returns the
// worker's HTTP status and raw response body verbatim.
func (rt *Router) Forward(ctx context.Context, botType config.BotType, path string, body []byte) (int, []byte, error) {
	reg, ok := rt.reg.Lookup(botType)
	if !ok {
		return 0, nil, errors.Wrapf(ErrNoWorker, "%q", botType)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reg.Addr+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, errors.Wrap(err, "build forward request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-internal-secret", rt.secret)

	resp, err := rt.client.Do(req)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "forward to %s worker", botType)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "read worker response")
	}

	rt.log.Debug().Str("botType", string(botType)).Str("path", path).
		Int("status", resp.StatusCode).Msg("command forwarded")
	return resp.StatusCode, respBody, nil
}

// ForwardGet relays a read to the bot type's worker and returns the
// worker's HTTP status and raw response body verbatim.
func (rt *Router) ForwardGet(ctx context.Context, botType config.BotType, path string) (int, []byte, error) {
	reg, ok := rt.reg.Lookup(botType)
	if !ok {
		return 0, nil, errors.Wrapf(ErrNoWorker, "%q", botType)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reg.Addr+path, nil)
	if err != nil {
		return 0, nil, errors.Wrap(err, "build forward request")
	}
	req.Header.Set("x-internal-secret", rt.secret)

	resp, err := rt.client.Do(req)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "forward to %s worker", botType)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "read worker response")
	}
	return resp.StatusCode, respBody, nil
}

// Status fans out to every registered worker and merges their per-guild
// views. A worker that cannot be reached contributes an error entry rather
// than failing the whole call.
func (rt *Router) Status(ctx context.Context, guildID string) CompositeStatus {
	workers := rt.reg.All()
	statuses := make([]WorkerStatus, len(workers))

	g, ctx := errgroup.WithContext(ctx)
	for i, reg := range workers {
		i, reg := i, reg
		g.Go(func() error {
			statuses[i] = rt.fetchStatus(ctx, reg, guildID)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].BotType < statuses[j].BotType
	})
	return CompositeStatus{GuildID: guildID, Workers: statuses}
}

func (rt *Router) fetchStatus(ctx context.Context, reg registry.Registration, guildID string) WorkerStatus {
	status := WorkerStatus{BotType: reg.BotType, InstanceID: reg.InstanceID}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reg.Addr+"/v1/status/"+guildID, nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	req.Header.Set("x-internal-secret", rt.secret)

	resp, err := rt.client.Do(req)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		status.Error = errors.Newf("worker returned status %d", resp.StatusCode).Error()
		return status
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		status.Error = err.Error()
	}
	// Decode may overwrite identity fields with empty values on partial
	// payloads; restore them from the registration record.
	status.BotType = reg.BotType
	status.InstanceID = reg.InstanceID
	return status
}
