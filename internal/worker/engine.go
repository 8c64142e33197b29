// Package worker assembles one playback process: a Discord session, the
// per-guild playback stack and the internal command API.
package worker

import (
	"context"
	"sync/atomic"
	"time"

	"soundfleet/internal/config"
	"soundfleet/internal/logger"
	"soundfleet/internal/music/guild"
	"soundfleet/internal/music/player"
	"soundfleet/internal/music/queue"
	"soundfleet/internal/music/resolver"
	"soundfleet/internal/music/stream"
	"soundfleet/internal/music/track"
	"soundfleet/internal/music/voice"
	"soundfleet/internal/snapshot"
	"soundfleet/internal/version"
	"soundfleet/internal/worker/api"
	"soundfleet/pkg/jobmgr"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Engine is one worker process: a single Discord identity playing audio in
// the guilds it is told to join.
type Engine struct {
	cfg *config.Worker
	dg  *discordgo.Session

	states   *guild.Registry
	voice    *voice.Manager
	queue    *queue.Manager
	player   *player.Manager
	snaps    *snapshot.Store
	resolver *resolver.Resolver
	jobs     *jobmgr.Manager

	instanceID string
	startedAt  time.Time
	ready      atomic.Bool
	degraded   atomic.Bool
	restored   atomic.Bool

	log zerolog.Logger
}

// New builds an Engine from configuration. The Discord session is created
// but not opened; Run owns the lifecycle.
func New(cfg *config.Worker) (*Engine, error) {
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, errors.Wrap(err, "create discord session")
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	snaps, err := snapshot.New(cfg.SnapshotPath)
	if err != nil {
		return nil, errors.Wrap(err, "open snapshot store")
	}

	states := guild.NewRegistry(cfg.DefaultVolume)
	vm := voice.New(dg)
	res := resolver.New(cfg.LocalMediaDir)
	q := queue.New(states, snaps)
	pl := player.New(states, q, res, stream.NewChain(), vm, snaps, cfg.MaxVolume)

	e := &Engine{
		cfg:        cfg,
		dg:         dg,
		states:     states,
		voice:      vm,
		queue:      q,
		player:     pl,
		snaps:      snaps,
		resolver:   res,
		jobs:       jobmgr.NewManager(nil),
		instanceID: uuid.NewString(),
		startedAt:  time.Now(),
		log:        logger.For("worker"),
	}

	dg.AddHandler(e.onReady)
	dg.AddHandler(vm.HandleVoiceStateUpdate)
	return e, nil
}

// InstanceID returns this process's registration identity.
func (e *Engine) InstanceID() string { return e.instanceID }

// Join connects to the voice channel and kicks playback if tracks wait.
func (e *Engine) Join(_ context.Context, guildID, channelID string) error {
	if err := e.voice.Join(guildID, channelID); err != nil {
		return err
	}

	st := e.states.Get(guildID)
	st.SetChannelID(channelID)
	e.snaps.ScheduleSave(st)
	e.player.EnsurePlaying(guildID)
	return nil
}

// Leave stops playback and disconnects from voice.
func (e *Engine) Leave(_ context.Context, guildID string) error {
	if !e.voice.Connected(guildID) {
		return voice.ErrNotConnected
	}

	e.player.Stop(guildID)
	if err := e.voice.Leave(guildID); err != nil {
		return err
	}

	st := e.states.Get(guildID)
	st.SetChannelID("")
	e.snaps.ScheduleSave(st)
	return nil
}

// Enqueue resolves input into tracks and appends them to the guild queue.
func (e *Engine) Enqueue(ctx context.Context, guildID, url, requesterID, requesterName string) (int, []track.Track, error) {
	return e.player.Enqueue(ctx, guildID, url, requesterID, requesterName)
}

// Skip advances past the current track (and count-1 queued ones).
func (e *Engine) Skip(guildID string, count int) ([]string, error) {
	return e.player.Skip(guildID, count)
}

// TogglePause flips pause state and returns whether playback is now paused.
func (e *Engine) TogglePause(guildID string) (bool, error) {
	return e.player.TogglePause(guildID)
}

// Stop halts playback and clears the queue.
func (e *Engine) Stop(guildID string) error {
	e.player.Stop(guildID)
	return nil
}

// Clear empties the queue without touching the current track.
func (e *Engine) Clear(guildID string) int {
	return e.queue.Clear(guildID)
}

// SetVolume stores the guild volume after range validation.
func (e *Engine) SetVolume(guildID string, level int) error {
	return e.player.SetVolume(guildID, level)
}

// Seek jumps inside the current track.
func (e *Engine) Seek(guildID string, positionSeconds int) error {
	return e.player.Seek(guildID, positionSeconds)
}

// Replay requeues the last played track and returns its title.
func (e *Engine) Replay(guildID string) (string, error) {
	t, err := e.player.Replay(guildID)
	if err != nil {
		return "", err
	}
	return t.Title, nil
}

// ToggleAutoplay sets or flips autoplay and returns the resulting value.
func (e *Engine) ToggleAutoplay(guildID string, explicit *bool) bool {
	return e.player.ToggleAutoplay(guildID, explicit)
}

// Queue returns the guild's queue preview.
func (e *Engine) Queue(guildID string) queue.View {
	return e.queue.View(guildID)
}

// Status reports this worker's view of one guild.
func (e *Engine) Status(guildID string) api.GuildStatus {
	v := e.queue.View(guildID)
	return api.GuildStatus{
		BotType:     e.cfg.BotType,
		InstanceID:  e.instanceID,
		Connected:   e.voice.Connected(guildID),
		Playing:     v.NowPlaying != nil,
		Paused:      v.Paused,
		QueueLength: v.Total,
		Volume:      v.Volume,
	}
}

// Health reports readiness for the orchestrator's health probes.
func (e *Engine) Health() api.Health {
	return api.Health{
		Ready:    e.ready.Load(),
		Degraded: e.degraded.Load(),
		Uptime:   time.Since(e.startedAt),
	}
}

// Sounds lists the local library, for the soundboard role.
func (e *Engine) Sounds() []string {
	return e.resolver.Local().List()
}

func (e *Engine) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	e.log.Info().Str("user", r.User.Username).Str("instance", e.instanceID).
		Str("botType", string(e.cfg.BotType)).Msg("discord gateway ready")

	e.ready.Store(true)

	// Ready fires again on gateway resume; restore only once.
	if e.restored.CompareAndSwap(false, true) {
		go e.restoreAll()
	}
}

var _ api.Engine = (*Engine)(nil)

// Version is what the worker reports when registering.
func (e *Engine) versionString() string {
	return version.AppName + "/" + version.Version
}
