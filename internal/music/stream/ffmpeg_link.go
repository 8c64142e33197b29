package stream

import (
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"soundfleet/internal/music/track"

	"github.com/cockroachdb/errors"
)

var streamableContentTypes = []string{
	"audio/",
	"video/",
	"application/vnd.apple.mpegurl",
	"application/x-mpegurl",
	"application/ogg",
	"application/x-scpls",
	"application/xspf+xml",
	"application/octet-stream",
}

// FFMPEGLink hands a local file or a non-YouTube URL straight to ffmpeg.
// Unknown remote URLs are validated by content type first so ffmpeg never
// chews on an HTML page.
type FFMPEGLink struct {
	http *http.Client
}

// NewFFMPEGLink creates the direct-stream strategy.
func NewFFMPEGLink() *FFMPEGLink {
	return &FFMPEGLink{
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *FFMPEGLink) Name() string { return "ffmpeg-link" }

func (s *FFMPEGLink) CanHandle(t track.Track) bool {
	if t.IsLocal {
		return true
	}
	return t.URL != "" && !IsYouTubeShapedURL(t.URL)
}

func (s *FFMPEGLink) Open(t *track.Track, seekSec float64) (io.ReadCloser, func(), error) {
	if t.IsLocal {
		return openFFMPEG(t.URL, seekSec, false)
	}

	if t.Source == track.SourceOther {
		if err := s.validateStreamable(t.URL); err != nil {
			return nil, nil, err
		}
	}
	return openFFMPEG(t.URL, seekSec, true)
}

// validateStreamable checks headers and extension heuristics before
// streaming an arbitrary URL.
func (s *FFMPEGLink) validateStreamable(rawURL string) error {
	req, err := http.NewRequest(http.MethodHead, rawURL, nil)
	if err != nil {
		return errors.Wrap(err, "build validation request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := s.http.Do(req)
	if err != nil || resp.StatusCode >= 400 {
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		// Some stream hosts reject HEAD; retry with GET.
		req.Method = http.MethodGet
		resp, err = s.http.Do(req)
		if err != nil {
			return errors.Wrap(err, "stream URL unreachable")
		}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	contentType := resp.Header.Get("Content-Type")
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	for _, allowed := range streamableContentTypes {
		if strings.HasPrefix(contentType, allowed) {
			return nil
		}
	}
	if isLikelyPlaylistURL(resp.Request.URL.String()) {
		return nil
	}
	return errors.Newf("not a streamable content-type: %q", contentType)
}

func isLikelyPlaylistURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".m3u", ".m3u8", ".pls", ".xspf", ".asx":
		return true
	}
	return false
}
