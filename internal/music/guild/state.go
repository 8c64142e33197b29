// Package guild owns per-guild playback state. Every structural mutation for
// one guild serializes through that guild's State; different guilds never
// contend with each other.
package guild

import (
	"sync"
	"time"

	"soundfleet/internal/music/track"
)

const historyLimit = 12

// State is the playback state of one guild. It is created lazily on the
// first command and kept alive across reconnects so volume and autoplay
// survive a leave/join cycle.
type State struct {
	mu sync.Mutex

	guildID   string
	channelID string

	queue      []track.Track
	current    *track.Track
	lastPlayed *track.Track
	history    []track.Track

	volume   int
	autoplay bool

	playbackStart time.Time
	pauseStart    time.Time
	totalPaused   time.Duration
	paused        bool
	manualSkip    bool
}

// View is a consistent copy of the queue-facing state for read paths.
type View struct {
	GuildID    string
	ChannelID  string
	Queue      []track.Track
	Current    *track.Track
	LastPlayed *track.Track
	Volume     int
	Autoplay   bool
	Paused     bool
}

// GuildID returns the guild this state belongs to.
func (s *State) GuildID() string { return s.guildID }

// ChannelID returns the last voice channel this guild played in.
func (s *State) ChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelID
}

// SetChannelID records the voice channel used for reconnect and restore.
func (s *State) SetChannelID(id string) {
	s.mu.Lock()
	s.channelID = id
	s.mu.Unlock()
}

// Append adds tracks to the tail of the queue and returns the 1-based
// position of the first added track, counting the current track as occupied.
func (s *State) Append(tracks ...track.Track) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := len(s.queue) + 1
	if s.current != nil {
		pos++
	}
	s.queue = append(s.queue, tracks...)
	return pos
}

// Prepend pushes tracks to the head of the queue.
func (s *State) Prepend(tracks ...track.Track) {
	s.mu.Lock()
	s.queue = append(append([]track.Track{}, tracks...), s.queue...)
	s.mu.Unlock()
}

// DequeueNext pops the queue head, or returns nil when the queue is empty.
func (s *State) DequeueNext() *track.Track {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return nil
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	return &next
}

// TakeForSkip removes up to count-1 tracks after the current one, marks the
// skip as manual and returns the skipped titles (current track first).
// It returns false when neither a current track nor queued tracks exist.
func (s *State) TakeForSkip(count int) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil && len(s.queue) == 0 {
		return nil, false
	}
	if count < 1 {
		count = 1
	}

	titles := make([]string, 0, count)
	if s.current != nil {
		titles = append(titles, s.current.Title)
	}
	// The queue head stands in for the current track when nothing is
	// playing, so queued removals are always bounded by count-1.
	for taken := 0; taken < count-1 && len(s.queue) > 0; taken++ {
		titles = append(titles, s.queue[0].Title)
		s.queue = s.queue[1:]
	}

	s.manualSkip = true
	return titles, true
}

// TakeManualSkip consumes the manual-skip flag once.
func (s *State) TakeManualSkip() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	was := s.manualSkip
	s.manualSkip = false
	return was
}

// Clear empties the queue and returns how many tracks were dropped.
func (s *State) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.queue)
	s.queue = nil
	return n
}

// RemoveAt splices out the queue entry at idx (0-based).
func (s *State) RemoveAt(idx int) (track.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx < 0 || idx >= len(s.queue) {
		return track.Track{}, false
	}
	removed := s.queue[idx]
	s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
	return removed, true
}

// QueueLen returns the number of queued tracks, excluding the current one.
func (s *State) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Snapshot returns a copy of the queue-facing state.
func (s *State) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		GuildID:   s.guildID,
		ChannelID: s.channelID,
		Queue:     append([]track.Track{}, s.queue...),
		Volume:    s.volume,
		Autoplay:  s.autoplay,
		Paused:    s.paused,
	}
	if s.current != nil {
		c := *s.current
		v.Current = &c
	}
	if s.lastPlayed != nil {
		lp := *s.lastPlayed
		v.LastPlayed = &lp
	}
	return v
}

// StartPlaying anchors timing for a new current track starting at offset.
func (s *State) StartPlaying(t track.Track, offset time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = &t
	s.playbackStart = time.Now().Add(-offset)
	s.pauseStart = time.Time{}
	s.totalPaused = 0
	s.paused = false
}

// ResetTiming re-anchors the elapsed-position clock after a seek.
func (s *State) ResetTiming(offset time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.playbackStart = time.Now().Add(-offset)
	s.pauseStart = time.Time{}
	s.totalPaused = 0
	if s.paused {
		s.pauseStart = time.Now()
	}
}

// FinishPlaying clears the current track. When completed is true the track
// is recorded as last played and appended to history.
func (s *State) FinishPlaying(completed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && completed {
		done := *s.current
		s.lastPlayed = &done
		s.history = append(s.history, done)
		if len(s.history) > historyLimit {
			s.history = s.history[len(s.history)-historyLimit:]
		}
	}
	s.current = nil
	s.paused = false
}

// Current returns a copy of the current track, if any.
func (s *State) Current() (track.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return track.Track{}, false
	}
	return *s.current, true
}

// LastPlayed returns a copy of the last successfully played track, if any.
func (s *State) LastPlayed() (track.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastPlayed == nil {
		return track.Track{}, false
	}
	return *s.lastPlayed, true
}

// History returns a copy of the completed-track history, newest last.
func (s *State) History() []track.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]track.Track{}, s.history...)
}

// Pause records the pause start. Pausing twice is a no-op.
func (s *State) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return false
	}
	s.paused = true
	s.pauseStart = time.Now()
	return true
}

// Resume accumulates paused time and unfreezes the position clock.
func (s *State) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.paused {
		return false
	}
	s.totalPaused += time.Since(s.pauseStart)
	s.pauseStart = time.Time{}
	s.paused = false
	return true
}

// Paused reports whether playback is paused.
func (s *State) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Position derives the elapsed playback position of the current track:
// wall time since start, minus accumulated pauses, minus the in-flight pause,
// clamped to [0, duration].
func (s *State) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return 0
	}

	elapsed := time.Since(s.playbackStart) - s.totalPaused
	if s.paused && !s.pauseStart.IsZero() {
		elapsed -= time.Since(s.pauseStart)
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if s.current.Duration > 0 && elapsed > s.current.Duration {
		elapsed = s.current.Duration
	}
	return elapsed.Truncate(time.Second)
}

// SetVolume stores a validated volume level.
func (s *State) SetVolume(level int) {
	s.mu.Lock()
	s.volume = level
	s.mu.Unlock()
}

// Volume returns the stored volume level.
func (s *State) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// SetAutoplay sets the autoplay flag explicitly.
func (s *State) SetAutoplay(on bool) {
	s.mu.Lock()
	s.autoplay = on
	s.mu.Unlock()
}

// ToggleAutoplay flips the autoplay flag and returns the new value.
func (s *State) ToggleAutoplay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.autoplay = !s.autoplay
	return s.autoplay
}

// Autoplay reports whether autoplay is enabled.
func (s *State) Autoplay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoplay
}
