// Package registry tracks live worker instances by bot type.
package registry

import (
	"sync"
	"time"

	"soundfleet/internal/config"
	"soundfleet/internal/logger"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ErrUnknownBotType rejects registrations for unroutable roles.
var ErrUnknownBotType = errors.New("unknown bot type")

// Registration is one worker's live record. The registry keeps a single
// slot per bot type: a new registration of the same type replaces the
// previous record.
type Registration struct {
	BotType    config.BotType `json:"botType"`
	InstanceID string         `json:"instanceId"`
	StartedAt  time.Time      `json:"startedAt"`
	Version    string         `json:"version"`
	Addr       string         `json:"addr"`
	LastSeen   time.Time      `json:"-"`
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	workers map[config.BotType]Registration
	log     zerolog.Logger
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		workers: make(map[config.BotType]Registration),
		log:     logger.For("registry"),
	}
}

// Register stores the record, overwriting any prior registration for the
// same bot type.
func (r *Registry) Register(reg Registration) error {
	if !config.IsKnownBotType(reg.BotType) {
		return errors.Wrapf(ErrUnknownBotType, "%q", reg.BotType)
	}

	reg.LastSeen = time.Now()

	r.mu.Lock()
	prev, had := r.workers[reg.BotType]
	r.workers[reg.BotType] = reg
	r.mu.Unlock()

	if had && prev.InstanceID != reg.InstanceID {
		r.log.Warn().Str("botType", string(reg.BotType)).
			Str("prev", prev.InstanceID).Str("next", reg.InstanceID).
			Msg("worker replaced for bot type")
	} else if !had {
		r.log.Info().Str("botType", string(reg.BotType)).
			Str("instance", reg.InstanceID).Str("addr", reg.Addr).
			Msg("worker registered")
	}
	return nil
}

// Lookup returns the live worker for a bot type.
func (r *Registry) Lookup(botType config.BotType) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.workers[botType]
	return reg, ok
}

// All returns every registered worker.
func (r *Registry) All() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Registration, 0, len(r.workers))
	for _, reg := range r.workers {
		out = append(out, reg)
	}
	return out
}
