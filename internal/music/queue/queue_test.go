package queue

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"soundfleet/internal/music/guild"
	"soundfleet/internal/music/track"
	"soundfleet/internal/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*Manager, *guild.Registry) {
	t.Helper()
	snaps, err := snapshot.New(filepath.Join(t.TempDir(), "snapshots.json"))
	require.NoError(t, err)
	t.Cleanup(func() { snaps.Close() })

	states := guild.NewRegistry(100)
	return New(states, snaps), states
}

func tr(title string) track.Track {
	return track.Track{Title: title, URL: "https://youtu.be/" + title}
}

func TestAddReturnsPosition(t *testing.T) {
	m, _ := newManager(t)

	assert.Equal(t, 1, m.Add("g", []track.Track{tr("a")}))
	assert.Equal(t, 2, m.Add("g", []track.Track{tr("b"), tr("c")}))
	assert.Equal(t, 4, m.Add("g", []track.Track{tr("d")}))
}

func TestSkipNothingPlaying(t *testing.T) {
	m, _ := newManager(t)

	_, err := m.Skip("g", 1)
	assert.ErrorIs(t, err, ErrNothingPlaying)
}

func TestSkipReturnsTitles(t *testing.T) {
	m, states := newManager(t)
	st := states.Get("g")
	st.StartPlaying(tr("cur"), 0)
	m.Add("g", []track.Track{tr("a"), tr("b")})

	titles, err := m.Skip("g", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"cur", "a"}, titles)
	assert.Equal(t, 1, st.QueueLen())
	assert.True(t, st.TakeManualSkip())
}

func TestClearAndRemove(t *testing.T) {
	m, _ := newManager(t)
	m.Add("g", []track.Track{tr("a"), tr("b"), tr("c")})

	removed, err := m.Remove("g", 1)
	require.NoError(t, err)
	assert.Equal(t, "b", removed.Title)

	_, err = m.Remove("g", 9)
	assert.ErrorIs(t, err, ErrOutOfRange)

	assert.Equal(t, 2, m.Clear("g"))
	assert.Equal(t, 0, m.Clear("g"))
}

func TestViewCapsPreview(t *testing.T) {
	m, states := newManager(t)

	var tracks []track.Track
	for i := 0; i < PreviewCap+7; i++ {
		tracks = append(tracks, tr(fmt.Sprintf("t%02d", i)))
	}
	m.Add("g", tracks)
	states.Get("g").StartPlaying(tr("cur"), 0)

	v := m.View("g")
	assert.Len(t, v.Tracks, PreviewCap)
	assert.Equal(t, PreviewCap+7, v.Total)
	require.NotNil(t, v.NowPlaying)
	assert.Equal(t, "cur", v.NowPlaying.Title)
	assert.Equal(t, 100, v.Volume)
}

func TestConcurrentAddsKeepEveryTrack(t *testing.T) {
	m, states := newManager(t)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Add("g", []track.Track{tr(fmt.Sprintf("t%d", i))})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, states.Get("g").QueueLen())
}
