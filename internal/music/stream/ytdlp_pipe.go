package stream

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"time"

	"soundfleet/internal/music/track"

	"github.com/cockroachdb/errors"
)

// pipeStartWindow bounds how long the downloader gets to produce its first
// bytes before the strategy is treated as failed.
const pipeStartWindow = 4 * time.Second

var youtubeShapedPattern = regexp.MustCompile(`(?:https?://)?(?:www\.|music\.)?(youtube\.com|youtu\.be)/\S+`)

// IsYouTubeShapedURL reports whether a URL points at YouTube.
func IsYouTubeShapedURL(rawURL string) bool {
	return rawURL != "" && youtubeShapedPattern.MatchString(rawURL)
}

// YTDLPPipe pipes the downloader's stdout straight into ffmpeg, avoiding a
// second network fetch of an extracted URL.
type YTDLPPipe struct{}

// NewYTDLPPipe creates the downloader-pipe strategy.
func NewYTDLPPipe() *YTDLPPipe {
	return &YTDLPPipe{}
}

func (s *YTDLPPipe) Name() string { return "ytdlp-pipe" }

func (s *YTDLPPipe) CanHandle(t track.Track) bool {
	return t.Source == track.SourceYouTube || IsYouTubeShapedURL(t.URL)
}

func (s *YTDLPPipe) Open(t *track.Track, seekSec float64) (io.ReadCloser, func(), error) {
	ytdlp := exec.Command("yt-dlp", "-o", "-", "-f", "bestaudio", t.URL)
	ffmpeg := exec.Command("ffmpeg",
		"-ss", fmt.Sprintf("%.3f", seekSec),
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", SampleRate),
		"-ac", fmt.Sprintf("%d", Channels),
		"-loglevel", "warning",
		"pipe:1",
	)

	downloaderOut, err := ytdlp.StdoutPipe()
	if err != nil {
		return nil, nil, errors.Wrap(err, "yt-dlp stdout pipe")
	}
	ffmpeg.Stdin = downloaderOut

	reader, err := ffmpeg.StdoutPipe()
	if err != nil {
		return nil, nil, errors.Wrap(err, "ffmpeg stdout pipe")
	}

	if err := ytdlp.Start(); err != nil {
		return nil, nil, errors.Wrap(err, "yt-dlp start")
	}
	if err := ffmpeg.Start(); err != nil {
		_ = ytdlp.Process.Kill()
		return nil, nil, errors.Wrap(err, "ffmpeg start")
	}

	cleanup := func() {
		_ = ffmpeg.Process.Kill()
		_ = ytdlp.Process.Kill()
		_ = ffmpeg.Wait()
		_ = ytdlp.Wait()
	}

	// The pipeline is healthy only once PCM starts flowing. Wait for the
	// first byte within the start window; a silent or dying subprocess
	// fails here so the chain can fall through.
	buffered := bufio.NewReader(reader)
	first := make(chan error, 1)
	go func() {
		_, err := buffered.Peek(1)
		first <- err
	}()

	select {
	case err := <-first:
		if err != nil {
			cleanup()
			return nil, nil, errors.Wrap(err, "downloader pipe produced no output")
		}
	case <-time.After(pipeStartWindow):
		cleanup()
		return nil, nil, errors.Newf("downloader pipe produced no output within %s", pipeStartWindow)
	}

	return &pipeStream{Reader: buffered, closer: reader}, cleanup, nil
}

// pipeStream couples the buffered reader with the underlying pipe closer.
type pipeStream struct {
	io.Reader
	closer io.Closer
}

func (p *pipeStream) Close() error {
	return p.closer.Close()
}
