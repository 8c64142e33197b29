// Package player drives per-guild playback: Idle → Playing → Paused →
// Playing → Idle, advancing through the queue as tracks finish or fail.
package player

import (
	"context"
	"sync"
	"time"

	"soundfleet/internal/logger"
	"soundfleet/internal/music/guild"
	"soundfleet/internal/music/queue"
	"soundfleet/internal/music/resolver"
	"soundfleet/internal/music/stream"
	"soundfleet/internal/music/track"
	"soundfleet/internal/music/voice"
	"soundfleet/internal/snapshot"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// Status is an observable playback state transition.
type Status string

const (
	StatusPlaying Status = "playing"
	StatusAdded   Status = "added"
	StatusStopped Status = "stopped"
	StatusPaused  Status = "paused"
	StatusResumed Status = "resumed"
	StatusIdle    Status = "idle"
	StatusError   Status = "error"
)

// Event pairs a status transition with its guild.
type Event struct {
	GuildID string
	Status  Status
}

var (
	// ErrNothingPlaying re-exported for callers holding only the player.
	ErrNothingPlaying = queue.ErrNothingPlaying
	// ErrVolumeOutOfRange means the requested level failed validation.
	ErrVolumeOutOfRange = errors.New("volume out of range")
	// ErrNoTrackToReplay means no track has completed yet.
	ErrNoTrackToReplay = errors.New("no track to replay")
	// ErrNotConnected mirrors the voice manager's sentinel.
	ErrNotConnected = voice.ErrNotConnected
)

type ctlKind int

const (
	ctlSkip ctlKind = iota
	ctlStop
	ctlSeek
)

type ctlMsg struct {
	kind ctlKind
	seek time.Duration
}

type session struct {
	ctl  chan ctlMsg
	done chan struct{}
}

// voiceSource is the slice of the voice manager the playback loop reads.
type voiceSource interface {
	Connected(guildID string) bool
	Get(guildID string) (voiceConn, bool)
}

// Manager owns one playback loop per guild. Structural queue edits go
// through the queue manager; streaming I/O never runs under the guild lock.
type Manager struct {
	states   *guild.Registry
	queue    *queue.Manager
	resolver *resolver.Resolver
	chain    *stream.Chain
	voice    voiceSource
	snaps    *snapshot.Store

	maxVolume int

	mu       sync.Mutex
	sessions map[string]*session

	// Events receives status transitions; sends never block.
	Events chan Event

	log zerolog.Logger
}

// New wires a playback Manager.
func New(states *guild.Registry, q *queue.Manager, res *resolver.Resolver,
	chain *stream.Chain, vm *voice.Manager, snaps *snapshot.Store, maxVolume int) *Manager {

	m := &Manager{
		states:    states,
		queue:     q,
		resolver:  res,
		chain:     chain,
		voice:     vm,
		snaps:     snaps,
		maxVolume: maxVolume,
		sessions:  make(map[string]*session),
		Events:    make(chan Event, 16),
		log:       logger.For("player"),
	}
	vm.OnDrop = m.onConnectionDrop
	return m
}

// Enqueue resolves input into tracks, appends them and starts playback when
// the guild is connected and idle. Returns the queue position of the first
// added track.
func (m *Manager) Enqueue(ctx context.Context, guildID, input, requesterID, requesterName string) (int, []track.Track, error) {
	tracks, err := m.resolver.Resolve(ctx, input, requesterID, requesterName)
	if err != nil {
		m.emit(guildID, StatusError)
		return 0, nil, err
	}

	pos := m.queue.Add(guildID, tracks)
	m.emit(guildID, StatusAdded)
	m.EnsurePlaying(guildID)
	return pos, tracks, nil
}

// EnsurePlaying starts the guild's playback loop if it is connected, idle
// and has queued tracks.
func (m *Manager) EnsurePlaying(guildID string) {
	if !m.voice.Connected(guildID) {
		return
	}

	st := m.states.Get(guildID)
	if st.QueueLen() == 0 {
		if _, playing := st.Current(); !playing {
			return
		}
	}

	m.mu.Lock()
	if _, running := m.sessions[guildID]; running {
		m.mu.Unlock()
		return
	}
	sess := &session{ctl: make(chan ctlMsg, 4), done: make(chan struct{})}
	m.sessions[guildID] = sess
	m.mu.Unlock()

	go m.run(st, sess)
}

// Skip drops up to count tracks (current first) and advances playback.
func (m *Manager) Skip(guildID string, count int) ([]string, error) {
	titles, err := m.queue.Skip(guildID, count)
	if err != nil {
		return nil, err
	}
	m.signal(guildID, ctlMsg{kind: ctlSkip})
	return titles, nil
}

// Pause freezes playback. Returns the new paused state.
func (m *Manager) Pause(guildID string) (bool, error) {
	st := m.states.Get(guildID)
	if _, ok := st.Current(); !ok {
		return false, ErrNothingPlaying
	}
	if st.Pause() {
		m.emit(guildID, StatusPaused)
	}
	return true, nil
}

// Resume unfreezes playback. Returns the new paused state.
func (m *Manager) Resume(guildID string) (bool, error) {
	st := m.states.Get(guildID)
	if _, ok := st.Current(); !ok {
		return false, ErrNothingPlaying
	}
	if st.Resume() {
		m.emit(guildID, StatusResumed)
	}
	return false, nil
}

// TogglePause pauses when playing and resumes when paused.
func (m *Manager) TogglePause(guildID string) (bool, error) {
	st := m.states.Get(guildID)
	if _, ok := st.Current(); !ok {
		return false, ErrNothingPlaying
	}
	if st.Paused() {
		return m.Resume(guildID)
	}
	return m.Pause(guildID)
}

// Stop halts playback and clears the queue. The guild state itself survives
// so volume and autoplay carry over to the next session.
func (m *Manager) Stop(guildID string) {
	st := m.states.Get(guildID)
	st.Clear()
	m.signal(guildID, ctlMsg{kind: ctlStop})
	st.FinishPlaying(false)
	m.snaps.ScheduleSave(st)
	m.emit(guildID, StatusStopped)
}

// SetVolume validates and stores the level, applying it to the live stream
// immediately (the send loop reads gain per frame).
func (m *Manager) SetVolume(guildID string, level int) error {
	if level < 0 || level > m.maxVolume {
		return errors.Wrapf(ErrVolumeOutOfRange, "level %d not in [0, %d]", level, m.maxVolume)
	}
	m.states.Get(guildID).SetVolume(level)
	return nil
}

// Seek jumps to positionSeconds in the current track, clamped to its
// duration. Fails when nothing is playing or the guild is not connected.
func (m *Manager) Seek(guildID string, positionSeconds int) error {
	st := m.states.Get(guildID)
	cur, ok := st.Current()
	if !ok {
		return ErrNothingPlaying
	}
	if !m.voice.Connected(guildID) {
		return ErrNotConnected
	}

	target := time.Duration(positionSeconds) * time.Second
	if target < 0 {
		target = 0
	}
	if cur.Duration > 0 && target > cur.Duration {
		target = cur.Duration
	}

	m.signal(guildID, ctlMsg{kind: ctlSeek, seek: target})
	return nil
}

// Replay puts the last successfully played track at the head of the queue.
func (m *Manager) Replay(guildID string) (track.Track, error) {
	st := m.states.Get(guildID)
	last, ok := st.LastPlayed()
	if !ok {
		return track.Track{}, ErrNoTrackToReplay
	}

	st.Prepend(last)
	m.snaps.ScheduleSave(st)
	m.EnsurePlaying(guildID)
	return last, nil
}

// ToggleAutoplay sets autoplay explicitly when explicit is non-nil, flips
// it otherwise, and returns the resulting value.
func (m *Manager) ToggleAutoplay(guildID string, explicit *bool) bool {
	st := m.states.Get(guildID)
	if explicit != nil {
		st.SetAutoplay(*explicit)
		return *explicit
	}
	return st.ToggleAutoplay()
}

// Playing reports whether the guild currently has a track playing.
func (m *Manager) Playing(guildID string) bool {
	st, ok := m.states.Peek(guildID)
	if !ok {
		return false
	}
	_, playing := st.Current()
	return playing
}

// StopAll tears down every running session, for shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make(map[string]*session, len(m.sessions))
	for g, s := range m.sessions {
		sessions[g] = s
	}
	m.mu.Unlock()

	for g, s := range sessions {
		m.signalSession(s, ctlMsg{kind: ctlStop})
		select {
		case <-s.done:
		case <-time.After(2 * time.Second):
			m.log.Warn().Str("guild", g).Msg("session did not stop in time")
		}
	}
}

func (m *Manager) onConnectionDrop(guildID string) {
	m.log.Warn().Str("guild", guildID).Msg("voice connection dropped, stopping playback")
	m.signal(guildID, ctlMsg{kind: ctlStop})
	if st, ok := m.states.Peek(guildID); ok {
		st.FinishPlaying(false)
	}
}

func (m *Manager) signal(guildID string, msg ctlMsg) {
	m.mu.Lock()
	sess, ok := m.sessions[guildID]
	m.mu.Unlock()
	if ok {
		m.signalSession(sess, msg)
	}
}

func (m *Manager) signalSession(sess *session, msg ctlMsg) {
	select {
	case sess.ctl <- msg:
	case <-sess.done:
	}
}

func (m *Manager) clearSession(guildID string, sess *session) {
	m.mu.Lock()
	if cur, ok := m.sessions[guildID]; ok && cur == sess {
		delete(m.sessions, guildID)
	}
	m.mu.Unlock()
}

func (m *Manager) emit(guildID string, status Status) {
	select {
	case m.Events <- Event{GuildID: guildID, Status: status}:
	default:
		m.log.Debug().Str("guild", guildID).Str("status", string(status)).
			Msg("status event dropped (channel full)")
	}
}

func (m *Manager) gain(st *guild.State) func() float64 {
	return func() float64 {
		return float64(st.Volume()) / float64(m.maxVolume)
	}
}
