package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"soundfleet/internal/music/track"

	"github.com/cockroachdb/errors"
)

const (
	extractTimeout = 15 * time.Second
	fetchTimeout   = 10 * time.Second
)

// YTDLPLink extracts a direct media URL with yt-dlp, validates it with a
// bounded HTTP fetch, and transcodes it with ffmpeg. Extracted URLs are
// cached per track and seek offset; a 403 response invalidates the entry.
type YTDLPLink struct {
	cache *urlCache
	http  *http.Client
}

// NewYTDLPLink creates the extractor-link strategy.
func NewYTDLPLink() *YTDLPLink {
	return &YTDLPLink{
		cache: newURLCache(),
		http:  &http.Client{Timeout: fetchTimeout},
	}
}

func (s *YTDLPLink) Name() string { return "ytdlp-link" }

func (s *YTDLPLink) CanHandle(t track.Track) bool {
	return t.Source == track.SourceYouTube || IsYouTubeShapedURL(t.URL)
}

func (s *YTDLPLink) Open(t *track.Track, seekSec float64) (io.ReadCloser, func(), error) {
	link, cached := s.cache.get(t.URL, seekSec)
	if !cached {
		extracted, duration, err := s.extract(t.URL)
		if err != nil {
			return nil, nil, err
		}
		if t.Duration == 0 && duration > 0 {
			t.Duration = duration
		}
		s.cache.put(t.URL, seekSec, extracted)
		link = extracted
	}

	if err := s.validate(link); err != nil {
		s.cache.invalidate(t.URL, seekSec)
		return nil, nil, err
	}

	return openFFMPEG(link, seekSec, true)
}

// extract runs yt-dlp -j and picks the best audio URL from its JSON output.
func (s *YTDLPLink) extract(trackURL string) (string, time.Duration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), extractTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "yt-dlp", "-j", "-f", "bestaudio", trackURL).Output()
	if err != nil {
		return "", 0, errors.Wrap(err, "yt-dlp extract")
	}

	type fragment struct {
		Duration float64 `json:"duration"`
	}
	type format struct {
		URL       string     `json:"url"`
		Fragments []fragment `json:"fragments,omitempty"`
	}
	var info struct {
		Duration float64  `json:"duration"`
		Formats  []format `json:"formats"`
		URL      string   `json:"url"`
	}
	if err := json.Unmarshal(out, &info); err != nil {
		return "", 0, errors.Wrap(err, "yt-dlp json")
	}

	// Some extractors report duration only on the first fragment.
	if info.Duration == 0 && len(info.Formats) > 0 && len(info.Formats[0].Fragments) > 0 {
		info.Duration = info.Formats[0].Fragments[0].Duration
	}

	link := strings.TrimSpace(info.URL)
	if link == "" && len(info.Formats) > 0 {
		link = strings.TrimSpace(info.Formats[0].URL)
	}
	if link == "" {
		return "", 0, errors.New("empty URL returned from yt-dlp")
	}

	return link, time.Duration(info.Duration * float64(time.Second)), nil
}

// validate performs a bounded fetch of the extracted URL so a dead or
// expired link fails here instead of stalling ffmpeg.
func (s *YTDLPLink) validate(link string) error {
	req, err := http.NewRequest(http.MethodGet, link, nil)
	if err != nil {
		return errors.Wrap(err, "build validation request")
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := s.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "media URL fetch")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusForbidden {
		return errors.New("media URL rejected with 403, cache entry dropped")
	}
	if resp.StatusCode >= 400 {
		return errors.Newf("media URL fetch returned status %d", resp.StatusCode)
	}
	return nil
}

// openFFMPEG starts ffmpeg decoding input (URL or file) to s16le PCM.
func openFFMPEG(input string, seekSec float64, reconnect bool) (io.ReadCloser, func(), error) {
	args := []string{"-ss", fmt.Sprintf("%.3f", seekSec)}
	if reconnect {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}
	args = append(args,
		"-i", input,
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", SampleRate),
		"-ac", fmt.Sprintf("%d", Channels),
		"-loglevel", "warning",
		"pipe:1",
	)

	ffmpeg := exec.Command("ffmpeg", args...)
	reader, err := ffmpeg.StdoutPipe()
	if err != nil {
		return nil, nil, errors.Wrap(err, "ffmpeg stdout pipe")
	}
	if err := ffmpeg.Start(); err != nil {
		return nil, nil, errors.Wrap(err, "ffmpeg start")
	}

	cleanup := func() {
		_ = ffmpeg.Process.Kill()
		_ = ffmpeg.Wait()
	}
	return reader, cleanup, nil
}
