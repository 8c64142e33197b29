package stream

import (
	"fmt"
	"io"
	"os/exec"

	"soundfleet/internal/music/track"

	"github.com/cockroachdb/errors"
	ytclient "github.com/kkdai/youtube/v2"
)

// KKDAI streams through the youtube client library, the last resort when
// both external-tool strategies fail.
type KKDAI struct {
	client *ytclient.Client
}

// NewKKDAI creates the library-fallback strategy.
func NewKKDAI() *KKDAI {
	return &KKDAI{client: &ytclient.Client{}}
}

func (s *KKDAI) Name() string { return "kkdai" }

func (s *KKDAI) CanHandle(t track.Track) bool {
	return t.Source == track.SourceYouTube || IsYouTubeShapedURL(t.URL)
}

func (s *KKDAI) Open(t *track.Track, seekSec float64) (io.ReadCloser, func(), error) {
	video, err := s.client.GetVideo(t.URL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "youtube client")
	}

	if t.Duration == 0 {
		t.Duration = video.Duration
	}
	if t.Title == "" {
		t.Title = video.Title
	}

	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return nil, nil, errors.New("no audio formats found for video")
	}

	source, _, err := s.client.GetStream(video, &formats[0])
	if err != nil {
		return nil, nil, errors.Wrap(err, "get stream")
	}

	ffmpeg := exec.Command("ffmpeg",
		"-ss", fmt.Sprintf("%.3f", seekSec),
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", SampleRate),
		"-ac", fmt.Sprintf("%d", Channels),
		"-loglevel", "warning",
		"pipe:1",
	)
	ffmpeg.Stdin = source

	reader, err := ffmpeg.StdoutPipe()
	if err != nil {
		source.Close()
		return nil, nil, errors.Wrap(err, "ffmpeg stdout pipe")
	}
	if err := ffmpeg.Start(); err != nil {
		source.Close()
		return nil, nil, errors.Wrap(err, "ffmpeg start")
	}

	cleanup := func() {
		source.Close()
		_ = ffmpeg.Process.Kill()
		_ = ffmpeg.Wait()
	}
	return reader, cleanup, nil
}
