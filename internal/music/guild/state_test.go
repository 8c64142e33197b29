package guild

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"soundfleet/internal/music/track"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tr(title string) track.Track {
	return track.Track{Title: title, URL: "https://youtu.be/" + title, Source: track.SourceYouTube}
}

func TestAppendPositionCountsCurrent(t *testing.T) {
	st := NewRegistry(100).Get("g1")

	assert.Equal(t, 1, st.Append(tr("a")))
	assert.Equal(t, 2, st.Append(tr("b")))

	cur := st.DequeueNext()
	require.NotNil(t, cur)
	st.StartPlaying(*cur, 0)

	// b is queued, a is playing: the next track lands third in line.
	assert.Equal(t, 3, st.Append(tr("c")))
}

func TestTakeForSkip(t *testing.T) {
	tests := []struct {
		name    string
		queued  []track.Track
		playing bool
		count   int
		want    []string
		ok      bool
	}{
		{name: "empty", count: 1, ok: false},
		{name: "current only", playing: true, count: 1, want: []string{"cur"}, ok: true},
		{name: "current and one queued", queued: []track.Track{tr("a")}, playing: true, count: 2, want: []string{"cur", "a"}, ok: true},
		{name: "count beyond queue", queued: []track.Track{tr("a")}, playing: true, count: 5, want: []string{"cur", "a"}, ok: true},
		{name: "zero count clamps to one", playing: true, count: 0, want: []string{"cur"}, ok: true},
		{name: "queue without current", queued: []track.Track{tr("a"), tr("b")}, count: 2, want: []string{"a"}, ok: true},
		{name: "queue without current count one", queued: []track.Track{tr("a"), tr("b")}, count: 1, want: []string{}, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := NewRegistry(100).Get("g")
			st.Append(tt.queued...)
			if tt.playing {
				st.StartPlaying(tr("cur"), 0)
			}

			got, ok := st.TakeForSkip(tt.count)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			if tt.ok {
				assert.True(t, st.TakeManualSkip())
				assert.False(t, st.TakeManualSkip(), "flag must reset after one read")
			}
		})
	}
}

func TestPositionPauseBookkeeping(t *testing.T) {
	st := NewRegistry(100).Get("g")
	cur := tr("song")
	cur.Duration = time.Hour

	st.StartPlaying(cur, 30*time.Second)
	pos := st.Position()
	assert.GreaterOrEqual(t, pos, 30*time.Second)
	assert.Less(t, pos, 32*time.Second)

	require.True(t, st.Pause())
	assert.False(t, st.Pause(), "double pause is a no-op")
	paused := st.Position()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, paused, st.Position(), "position frozen while paused")

	require.True(t, st.Resume())
	assert.False(t, st.Resume(), "double resume is a no-op")
	assert.GreaterOrEqual(t, st.Position(), paused)
}

func TestPositionClampedToDuration(t *testing.T) {
	st := NewRegistry(100).Get("g")
	cur := tr("short")
	cur.Duration = 3 * time.Second

	st.StartPlaying(cur, 10*time.Second)
	assert.Equal(t, 3*time.Second, st.Position())

	st.FinishPlaying(true)
	assert.Equal(t, time.Duration(0), st.Position(), "no current track, no position")
}

func TestFinishPlayingHistory(t *testing.T) {
	st := NewRegistry(100).Get("g")

	st.StartPlaying(tr("skipped"), 0)
	st.FinishPlaying(false)
	_, ok := st.LastPlayed()
	assert.False(t, ok, "skipped track is not last played")

	for i := 0; i < historyLimit+5; i++ {
		st.StartPlaying(tr(fmt.Sprintf("t%02d", i)), 0)
		st.FinishPlaying(true)
	}

	last, ok := st.LastPlayed()
	require.True(t, ok)
	assert.Equal(t, fmt.Sprintf("t%02d", historyLimit+4), last.Title)

	hist := st.History()
	assert.Len(t, hist, historyLimit)
	assert.Equal(t, "t05", hist[0].Title, "oldest entries evicted")
}

func TestConcurrentAppends(t *testing.T) {
	st := NewRegistry(100).Get("g")

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st.Append(tr(fmt.Sprintf("t%d", i)))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, st.QueueLen())
}

func TestRegistryLazyAndDefaults(t *testing.T) {
	reg := NewRegistry(70)

	_, ok := reg.Peek("g")
	assert.False(t, ok)

	st := reg.Get("g")
	assert.Equal(t, 70, st.Volume())
	assert.Equal(t, "g", st.GuildID())

	again, ok := reg.Peek("g")
	require.True(t, ok)
	assert.Same(t, st, again)
	assert.Len(t, reg.All(), 1)
}
