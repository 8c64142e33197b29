// Package queue guards structural queue mutations per guild and schedules
// debounced snapshot saves after each one.
package queue

import (
	"time"

	"soundfleet/internal/logger"
	"soundfleet/internal/music/guild"
	"soundfleet/internal/music/track"
	"soundfleet/internal/snapshot"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// PreviewCap bounds how many queued tracks a view returns.
const PreviewCap = 20

var (
	// ErrNothingPlaying means no current track and an empty queue.
	ErrNothingPlaying = errors.New("nothing is playing")
	// ErrOutOfRange means the queue index does not exist.
	ErrOutOfRange = errors.New("track index out of range")
)

// Manager performs queue mutations through each guild's state lock.
type Manager struct {
	states *guild.Registry
	snaps  *snapshot.Store
	log    zerolog.Logger
}

// View is a read-only projection of a guild's queue for status responses.
type View struct {
	Tracks      []track.Track
	Total       int
	NowPlaying  *track.Track
	LastPlayed  *track.Track
	PositionSec int
	Paused      bool
	Autoplay    bool
	Volume      int
}

// New creates a queue Manager.
func New(states *guild.Registry, snaps *snapshot.Store) *Manager {
	return &Manager{
		states: states,
		snaps:  snaps,
		log:    logger.For("queue"),
	}
}

// Add appends tracks and returns the 1-based position of the first one.
func (m *Manager) Add(guildID string, tracks []track.Track) int {
	st := m.states.Get(guildID)
	pos := st.Append(tracks...)
	m.snaps.ScheduleSave(st)

	m.log.Info().Str("guild", guildID).Int("added", len(tracks)).
		Int("queue", st.QueueLen()).Msg("tracks added to queue")
	return pos
}

// Skip removes up to count-1 queued tracks, returns the skipped titles
// (current track first) and marks the skip as manual. The caller stops the
// player; the idle handler performs the actual advance.
func (m *Manager) Skip(guildID string, count int) ([]string, error) {
	st := m.states.Get(guildID)
	titles, ok := st.TakeForSkip(count)
	if !ok {
		return nil, ErrNothingPlaying
	}
	m.snaps.ScheduleSave(st)

	m.log.Info().Str("guild", guildID).Strs("titles", titles).Msg("skip requested")
	return titles, nil
}

// Clear empties the queue and returns how many tracks were dropped. The
// scheduled save deletes the now-empty snapshot.
func (m *Manager) Clear(guildID string) int {
	st := m.states.Get(guildID)
	n := st.Clear()
	m.snaps.ScheduleSave(st)

	m.log.Info().Str("guild", guildID).Int("cleared", n).Msg("queue cleared")
	return n
}

// Remove splices out the queue entry at index (0-based).
func (m *Manager) Remove(guildID string, index int) (track.Track, error) {
	st := m.states.Get(guildID)
	removed, ok := st.RemoveAt(index)
	if !ok {
		return track.Track{}, errors.Wrapf(ErrOutOfRange, "index %d", index)
	}
	m.snaps.ScheduleSave(st)
	return removed, nil
}

// View returns the guild's queue preview with the derived playback position.
func (m *Manager) View(guildID string) View {
	st := m.states.Get(guildID)
	snap := st.Snapshot()

	tracks := snap.Queue
	if len(tracks) > PreviewCap {
		tracks = tracks[:PreviewCap]
	}

	return View{
		Tracks:      tracks,
		Total:       len(snap.Queue),
		NowPlaying:  snap.Current,
		LastPlayed:  snap.LastPlayed,
		PositionSec: int(st.Position() / time.Second),
		Paused:      snap.Paused,
		Autoplay:    snap.Autoplay,
		Volume:      snap.Volume,
	}
}
