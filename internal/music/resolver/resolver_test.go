package resolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"soundfleet/internal/music/track"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mediaDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("audio"), 0o644))
	}
	return dir
}

func TestResolveEmptyInput(t *testing.T) {
	r := New("")
	_, err := r.Resolve(context.Background(), "   ", "id", "name")
	assert.ErrorIs(t, err, ErrNoResults)
}

func TestResolveLocalFile(t *testing.T) {
	r := New(mediaDir(t, "airhorn.mp3", "notes.txt"))

	tracks, err := r.Resolve(context.Background(), "airhorn", "u1", "alice")
	require.NoError(t, err)
	require.Len(t, tracks, 1)

	got := tracks[0]
	assert.Equal(t, "airhorn", got.Title)
	assert.True(t, got.IsLocal)
	assert.Equal(t, track.SourceLocal, got.Source)
	assert.Equal(t, "u1", got.RequesterID)
	assert.Equal(t, "alice", got.RequesterName)
}

func TestResolveUnknownURLPassesThrough(t *testing.T) {
	r := New("")

	tracks, err := r.Resolve(context.Background(), "https://radio.example.com/stream.mp3", "u1", "alice")
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, track.SourceOther, tracks[0].Source)
	assert.Equal(t, "https://radio.example.com/stream.mp3", tracks[0].URL)
}

func TestLibraryRejectsTraversalAndNonAudio(t *testing.T) {
	lib := NewLibrary(mediaDir(t, "airhorn.mp3", "notes.txt"))

	assert.False(t, lib.Match("../etc/passwd"))
	assert.False(t, lib.Match("notes"))
	assert.False(t, lib.Match("https://example.com/airhorn"))
}

func TestLibraryList(t *testing.T) {
	lib := NewLibrary(mediaDir(t, "b.ogg", "a.mp3", "readme.md"))
	assert.Equal(t, []string{"a", "b"}, lib.List())
}

func TestSourceMatchers(t *testing.T) {
	yt := NewYouTube()
	sc := NewSoundCloud()
	sp := NewSpotify(yt)

	tests := []struct {
		input                   string
		youtube, cloud, spotify bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", true, false, false},
		{"https://youtu.be/dQw4w9WgXcQ", true, false, false},
		{"https://music.youtube.com/watch?v=dQw4w9WgXcQ", true, false, false},
		{"https://soundcloud.com/artist/song", false, true, false},
		{"https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC", false, false, true},
		{"https://radio.example.com/live.mp3", false, false, false},
		{"never gonna give you up", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.youtube, yt.Match(tt.input), "youtube")
			assert.Equal(t, tt.cloud, sc.Match(tt.input), "soundcloud")
			assert.Equal(t, tt.spotify, sp.Match(tt.input), "spotify")
		})
	}
}

func TestCleanVideoURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{
			"https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PLx&index=3&t=42s",
			"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		},
		{
			"https://youtu.be/dQw4w9WgXcQ?si=tracker",
			"https://youtu.be/dQw4w9WgXcQ",
		},
		{
			"https://music.youtube.com/watch?v=dQw4w9WgXcQ&feature=share",
			"https://music.youtube.com/watch?v=dQw4w9WgXcQ",
		},
		{
			"https://example.com/watch?v=nope",
			"https://example.com/watch?v=nope",
		},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanVideoURL(tt.in), tt.in)
	}
}

func TestYouTubeURLClassification(t *testing.T) {
	assert.True(t, isYouTubeVideoURL("https://www.youtube.com/watch?v=abc12345678"))
	assert.True(t, isYouTubeVideoURL("https://youtu.be/abc12345678"))
	assert.False(t, isYouTubeVideoURL("https://www.youtube.com/playlist?list=PLx"))

	assert.True(t, isYouTubePlaylistURL("https://www.youtube.com/playlist?list=PLx"))
	assert.False(t, isYouTubePlaylistURL("https://www.youtube.com/watch?v=abc12345678&list=PLx"),
		"watch link with list param resolves as a single video")
	assert.False(t, isYouTubePlaylistURL("https://example.com/playlist?list=PLx"))
}
