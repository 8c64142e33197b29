package snapshot

import (
	"path/filepath"
	"testing"
	"time"

	"soundfleet/internal/music/guild"
	"soundfleet/internal/music/track"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "snapshots.json"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveNowAndAll(t *testing.T) {
	s := newStore(t)
	reg := guild.NewRegistry(100)

	st := reg.Get("g1")
	st.SetChannelID("c1")
	st.Append(track.Track{Title: "queued", URL: "u1"})
	st.StartPlaying(track.Track{Title: "playing", URL: "u2"}, 0)

	s.SaveNow(st)

	all := s.All()
	require.Len(t, all, 1)
	snap := all[0]
	assert.Equal(t, "g1", snap.GuildID)
	assert.Equal(t, "c1", snap.ChannelID)
	require.NotNil(t, snap.Current)
	assert.Equal(t, "playing", snap.Current.Title)
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, "queued", snap.Queue[0].Title)
	assert.False(t, snap.SavedAt.IsZero())
}

func TestEmptyStateDeletesSnapshot(t *testing.T) {
	s := newStore(t)
	st := guild.NewRegistry(100).Get("g1")
	st.Append(track.Track{Title: "a", URL: "u"})
	s.SaveNow(st)
	require.Len(t, s.All(), 1)

	st.Clear()
	s.SaveNow(st)
	assert.Empty(t, s.All(), "empty queue must delete the stored snapshot")
}

func TestSnapshotSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.json")

	s, err := New(path)
	require.NoError(t, err)
	st := guild.NewRegistry(100).Get("g1")
	st.SetChannelID("c1")
	st.Append(track.Track{Title: "a", URL: "u", Duration: 3 * time.Minute})
	s.SaveNow(st)
	require.NoError(t, s.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	all := reopened.All()
	require.Len(t, all, 1)
	assert.Equal(t, "c1", all[0].ChannelID)
	assert.Equal(t, 3*time.Minute, all[0].Queue[0].Duration)
}

func TestScheduleSaveCoalesces(t *testing.T) {
	s := newStore(t)
	st := guild.NewRegistry(100).Get("g1")
	st.Append(track.Track{Title: "a", URL: "u"})

	// Many schedules within the window collapse into pending state; the
	// read happens at fire time, so nothing is stored before the delay.
	for i := 0; i < 5; i++ {
		s.ScheduleSave(st)
	}
	assert.Empty(t, s.All(), "debounced save must not fire immediately")
}

func TestDeleteCancelsPendingSave(t *testing.T) {
	s := newStore(t)
	st := guild.NewRegistry(100).Get("g1")
	st.Append(track.Track{Title: "a", URL: "u"})

	s.ScheduleSave(st)
	s.Delete("g1")
	assert.Empty(t, s.All())
}
