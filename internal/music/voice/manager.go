// Package voice owns per-guild Discord voice connection lifecycle.
package voice

import (
	"sync"
	"time"

	"soundfleet/internal/logger"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// reconnectWait is one leg of the re-entry race after an unexpected
// disconnect; the connection gets two of these to come back.
const reconnectWait = 2500 * time.Millisecond

var (
	// ErrAlreadyConnected is a non-error status: a live connection exists.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrNotConnected means the operation needs an active voice connection.
	ErrNotConnected = errors.New("not connected")
	// ErrNotFound means the guild or channel is unknown.
	ErrNotFound = errors.New("guild or channel not found")
)

// Manager tracks one voice connection per guild.
type Manager struct {
	dg *discordgo.Session

	mu    sync.Mutex
	conns map[string]*discordgo.VoiceConnection

	// OnDrop is called after a connection is torn down for good, so the
	// playback layer can short-circuit subsequent commands.
	OnDrop func(guildID string)

	log zerolog.Logger
}

// New creates a Manager bound to a Discord session.
func New(dg *discordgo.Session) *Manager {
	return &Manager{
		dg:    dg,
		conns: make(map[string]*discordgo.VoiceConnection),
		log:   logger.For("voice"),
	}
}

// Join opens a voice connection to the channel. Returns ErrAlreadyConnected
// when a live connection exists and ErrNotFound for unknown guild/channel.
func (m *Manager) Join(guildID, channelID string) error {
	if _, err := m.dg.State.Guild(guildID); err != nil {
		return errors.Wrapf(ErrNotFound, "guild %s", guildID)
	}
	if ch, err := m.dg.State.Channel(channelID); err != nil || ch.GuildID != guildID {
		return errors.Wrapf(ErrNotFound, "channel %s", channelID)
	}

	m.mu.Lock()
	if vc, ok := m.conns[guildID]; ok && vc.Ready {
		m.mu.Unlock()
		return ErrAlreadyConnected
	}
	m.mu.Unlock()

	vc, err := m.dg.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return errors.Wrap(err, "join voice channel")
	}

	m.mu.Lock()
	m.conns[guildID] = vc
	m.mu.Unlock()

	m.log.Info().Str("guild", guildID).Str("channel", channelID).Msg("joined voice channel")
	return nil
}

// Leave disconnects and forgets the guild's voice connection.
func (m *Manager) Leave(guildID string) error {
	m.mu.Lock()
	vc, ok := m.conns[guildID]
	delete(m.conns, guildID)
	m.mu.Unlock()

	if !ok {
		return ErrNotConnected
	}

	if err := vc.Disconnect(); err != nil {
		m.log.Warn().Err(err).Str("guild", guildID).Msg("disconnect error")
	}
	m.log.Info().Str("guild", guildID).Msg("left voice channel")
	return nil
}

// Get returns the guild's live connection, if any.
func (m *Manager) Get(guildID string) (*discordgo.VoiceConnection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vc, ok := m.conns[guildID]
	if !ok || !vc.Ready {
		return nil, false
	}
	return vc, true
}

// Connected reports whether the guild has a live connection.
func (m *Manager) Connected(guildID string) bool {
	_, ok := m.Get(guildID)
	return ok
}

// HandleVoiceStateUpdate watches for the bot's own unexpected disconnects.
// Register it on the Discord session.
func (m *Manager) HandleVoiceStateUpdate(s *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	if s.State.User == nil || vsu.UserID != s.State.User.ID || vsu.ChannelID != "" {
		return
	}

	m.mu.Lock()
	vc, ok := m.conns[vsu.GuildID]
	m.mu.Unlock()
	if !ok {
		return
	}

	go m.reconnectRace(vsu.GuildID, vc)
}

// reconnectRace gives the connection two short windows to re-enter a ready
// state; if neither lands, the connection is destroyed. Best effort, not a
// hard guarantee.
func (m *Manager) reconnectRace(guildID string, vc *discordgo.VoiceConnection) {
	for attempt := 1; attempt <= 2; attempt++ {
		time.Sleep(reconnectWait)
		if vc.Ready {
			m.log.Info().Str("guild", guildID).Int("attempt", attempt).Msg("voice connection recovered")
			return
		}
	}

	m.log.Warn().Str("guild", guildID).Msg("voice connection lost, destroying")
	_ = vc.Disconnect()

	m.mu.Lock()
	if cur, ok := m.conns[guildID]; ok && cur == vc {
		delete(m.conns, guildID)
	}
	m.mu.Unlock()

	if m.OnDrop != nil {
		m.OnDrop(guildID)
	}
}

// CloseAll disconnects every guild, for shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	conns := make(map[string]*discordgo.VoiceConnection, len(m.conns))
	for g, vc := range m.conns {
		conns[g] = vc
	}
	m.conns = make(map[string]*discordgo.VoiceConnection)
	m.mu.Unlock()

	for g, vc := range conns {
		if err := vc.Disconnect(); err != nil {
			m.log.Warn().Err(err).Str("guild", g).Msg("disconnect error on shutdown")
		}
	}
}
