// Package snapshot persists per-guild queue state for crash recovery.
// Saves are debounced per guild so a burst of queue mutations coalesces into
// one write; an empty queue deletes the snapshot instead of persisting it.
package snapshot

import (
	"time"

	"soundfleet/datastore"
	"soundfleet/internal/logger"
	"soundfleet/internal/music/guild"
	"soundfleet/internal/music/track"
	"soundfleet/pkg/jobmgr"

	"github.com/rs/zerolog"
)

// SaveDelay is the debounce window for snapshot writes.
const SaveDelay = 5 * time.Second

// Snapshot is the persisted queue state of one guild. A stored snapshot is
// never empty: at save time the guild had a current track or queued tracks.
type Snapshot struct {
	GuildID   string        `json:"guild_id"`
	ChannelID string        `json:"channel_id"`
	Queue     []track.Track `json:"queue"`
	Current   *track.Track  `json:"current,omitempty"`
	SavedAt   time.Time     `json:"saved_at"`
}

// Store debounces and persists guild snapshots.
type Store struct {
	ds   *datastore.DataStore
	jobs *jobmgr.Manager
	log  zerolog.Logger
}

// New opens (or creates) the snapshot file at path.
func New(path string) (*Store, error) {
	ds, err := datastore.New(path)
	if err != nil {
		return nil, err
	}
	return &Store{
		ds:   ds,
		jobs: jobmgr.NewManager(nil),
		log:  logger.For("snapshot"),
	}, nil
}

// ScheduleSave schedules a debounced save for the guild. The state is read
// when the timer fires, not when the save is scheduled.
func (s *Store) ScheduleSave(st *guild.State) {
	s.jobs.Debounce("snapshot:"+st.GuildID(), SaveDelay, func() {
		s.SaveNow(st)
	})
}

// SaveNow persists the guild's state immediately. An empty queue with no
// current track deletes the stored snapshot.
func (s *Store) SaveNow(st *guild.State) {
	v := st.Snapshot()
	if len(v.Queue) == 0 && v.Current == nil {
		s.ds.Delete(v.GuildID)
		s.log.Debug().Str("guild", v.GuildID).Msg("queue empty, snapshot deleted")
		return
	}

	snap := Snapshot{
		GuildID:   v.GuildID,
		ChannelID: v.ChannelID,
		Queue:     v.Queue,
		Current:   v.Current,
		SavedAt:   time.Now(),
	}
	if err := s.ds.Put(v.GuildID, snap); err != nil {
		s.log.Error().Err(err).Str("guild", v.GuildID).Msg("snapshot save failed")
		return
	}
	s.log.Debug().Str("guild", v.GuildID).Int("queue", len(v.Queue)).Msg("snapshot saved")
}

// Delete drops the stored snapshot and any pending save for the guild.
func (s *Store) Delete(guildID string) {
	s.jobs.CancelDebounce("snapshot:" + guildID)
	s.ds.Delete(guildID)
}

// All returns every persisted snapshot. Corrupt records are logged and
// skipped so one bad guild cannot block startup restore.
func (s *Store) All() []Snapshot {
	keys := s.ds.Keys()
	out := make([]Snapshot, 0, len(keys))
	for _, key := range keys {
		var snap Snapshot
		found, err := s.ds.Get(key, &snap)
		if err != nil {
			s.log.Warn().Err(err).Str("guild", key).Msg("skipping unreadable snapshot")
			continue
		}
		if found {
			out = append(out, snap)
		}
	}
	return out
}

// Close cancels pending saves and flushes the store to disk.
func (s *Store) Close() error {
	s.jobs.Shutdown()
	return s.ds.Close()
}
