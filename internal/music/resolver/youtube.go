package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"soundfleet/internal/music/track"
	"soundfleet/pkg/retrylimit"

	"github.com/cockroachdb/errors"
	ytclient "github.com/kkdai/youtube/v2"
)

var (
	youtubeURLPattern = regexp.MustCompile(`(?:https?://)?(?:www\.|music\.)?(youtube\.com|youtu\.be)/\S+`)
	watchURLPattern   = regexp.MustCompile(`"url":"/watch\?v=([a-zA-Z0-9_-]{11})`)
)

// YouTube resolves video URLs, playlist URLs and free-text search queries.
// Metadata comes from the youtube client; search scrapes the results page.
// Outbound requests share an adaptive limiter so a playlist resolve cannot
// hammer YouTube into rate limiting the worker's IP.
type YouTube struct {
	baseURL string
	http    *http.Client
	client  *ytclient.Client
	lim     *retrylimit.AdaptiveLimiter
}

// NewYouTube creates the YouTube source.
func NewYouTube() *YouTube {
	return &YouTube{
		baseURL: "https://www.youtube.com",
		http:    &http.Client{Timeout: 10 * time.Second},
		client:  &ytclient.Client{},
		lim:     retrylimit.NewAdaptiveLimiter(4, 1, 8, 1, 0.5),
	}
}

func (y *YouTube) Name() track.Source { return track.SourceYouTube }

func (y *YouTube) Match(input string) bool {
	return youtubeURLPattern.MatchString(input)
}

func (y *YouTube) Resolve(ctx context.Context, input string) ([]track.Track, error) {
	input = strings.TrimSpace(input)

	switch {
	case isYouTubePlaylistURL(input):
		return y.resolvePlaylist(ctx, input)
	case isYouTubeVideoURL(input):
		return y.resolveVideo(ctx, cleanVideoURL(input))
	case isURL(input):
		return nil, errors.Wrap(ErrNoResults, "invalid YouTube URL format")
	default:
		videoURL, err := y.searchFirstVideoURL(ctx, input)
		if err != nil {
			return nil, errors.Wrap(ErrNoResults, "could not find YouTube video for query")
		}
		tracks, err := y.resolveVideo(ctx, videoURL)
		if err != nil {
			return nil, err
		}
		if tracks[0].Title == "" {
			tracks[0].Title = input
		}
		return tracks, nil
	}
}

func (y *YouTube) resolveVideo(ctx context.Context, videoURL string) ([]track.Track, error) {
	if err := y.lim.Wait(ctx); err != nil {
		return nil, err
	}

	video, err := y.client.GetVideoContext(ctx, videoURL)
	if err != nil {
		y.lim.Failure()
		// Metadata lookup failing does not make the URL unplayable; the
		// stream chain retries with its own extractors.
		return []track.Track{{Title: videoURL, URL: videoURL, Source: track.SourceYouTube}}, nil
	}
	y.lim.Success()
	return []track.Track{{
		Title:    video.Title,
		URL:      videoURL,
		Duration: video.Duration,
		Source:   track.SourceYouTube,
	}}, nil
}

func (y *YouTube) resolvePlaylist(ctx context.Context, playlistURL string) ([]track.Track, error) {
	if err := y.lim.Wait(ctx); err != nil {
		return nil, err
	}

	playlist, err := y.client.GetPlaylistContext(ctx, playlistURL)
	if err != nil {
		y.lim.Failure()
		return nil, errors.Wrapf(ErrNoResults, "playlist fetch failed: %v", err)
	}
	y.lim.Success()
	if len(playlist.Videos) == 0 {
		return nil, errors.Wrap(ErrNoResults, "playlist is empty")
	}

	entries := playlist.Videos
	if len(entries) > PlaylistCap {
		entries = entries[:PlaylistCap]
	}

	tracks := make([]track.Track, 0, len(entries))
	for _, entry := range entries {
		tracks = append(tracks, track.Track{
			Title:    entry.Title,
			URL:      "https://www.youtube.com/watch?v=" + entry.ID,
			Duration: entry.Duration,
			Source:   track.SourceYouTube,
		})
	}
	return tracks, nil
}

// searchFirstVideoURL scrapes the results page for the first watch link.
func (y *YouTube) searchFirstVideoURL(ctx context.Context, query string) (string, error) {
	if err := y.lim.Wait(ctx); err != nil {
		return "", err
	}

	searchURL := fmt.Sprintf("%s/results?search_query=%s", y.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	resp, err := y.http.Do(req)
	if err != nil {
		y.lim.Failure()
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		y.lim.Failure()
		return "", fmt.Errorf("search failed with status code %v", resp.StatusCode)
	}
	y.lim.Success()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	matches := watchURLPattern.FindStringSubmatch(string(body))
	if len(matches) < 2 {
		return "", errors.New("no video found for the given title")
	}
	return "https://www.youtube.com/watch?v=" + matches[1], nil
}

// IsYouTubeShaped reports whether a URL points at YouTube. The stream chain
// uses it to decide which strategies apply.
func IsYouTubeShaped(rawURL string) bool {
	return youtubeURLPattern.MatchString(rawURL)
}

func isYouTubeVideoURL(s string) bool {
	return strings.Contains(s, "youtube.com/watch?v=") ||
		strings.Contains(s, "music.youtube.com/watch?v=") ||
		strings.Contains(s, "youtu.be/")
}

func isYouTubePlaylistURL(s string) bool {
	if !youtubeURLPattern.MatchString(s) {
		return false
	}
	return strings.Contains(s, "list=") && !strings.Contains(s, "watch?v=")
}

// cleanVideoURL strips tracker parameters, keeping only the video id.
func cleanVideoURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	switch host := u.Hostname(); host {
	case "youtu.be":
		vid := strings.Trim(u.Path, "/")
		if vid == "" {
			return raw
		}
		return "https://youtu.be/" + vid
	case "www.youtube.com", "youtube.com", "music.youtube.com":
		if u.Path == "/watch" {
			if vid := u.Query().Get("v"); vid != "" {
				return fmt.Sprintf("https://%s/watch?v=%s", host, vid)
			}
		}
		return raw
	default:
		return raw
	}
}
