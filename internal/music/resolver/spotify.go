package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"soundfleet/internal/music/track"

	"github.com/cockroachdb/errors"
)

// Spotify handles open.spotify.com links without API credentials: a track
// link is mapped through its oEmbed title to a YouTube search. Albums and
// playlists cannot be enumerated this way and resolve to no results.
type Spotify struct {
	oembedURL string
	http      *http.Client
	search    *YouTube
}

// NewSpotify creates the Spotify source backed by a YouTube search.
func NewSpotify(search *YouTube) *Spotify {
	return &Spotify{
		oembedURL: "https://open.spotify.com/oembed",
		http:      &http.Client{Timeout: 10 * time.Second},
		search:    search,
	}
}

func (s *Spotify) Name() track.Source { return track.SourceSpotify }

func (s *Spotify) Match(input string) bool {
	return strings.Contains(input, "open.spotify.com/")
}

func (s *Spotify) Resolve(ctx context.Context, input string) ([]track.Track, error) {
	input = strings.TrimSpace(input)

	if strings.Contains(input, "/album/") || strings.Contains(input, "/playlist/") {
		return nil, errors.Wrap(ErrNoResults, "spotify albums and playlists need API credentials")
	}
	if !strings.Contains(input, "/track/") {
		return nil, errors.Wrap(ErrNoResults, "unrecognized spotify link")
	}

	title, err := s.fetchTitle(ctx, input)
	if err != nil {
		return nil, errors.Wrapf(ErrNoResults, "spotify title lookup failed: %v", err)
	}

	videoURL, err := s.search.searchFirstVideoURL(ctx, title)
	if err != nil {
		return nil, errors.Wrapf(ErrNoResults, "no playable match for %q", title)
	}

	tracks, err := s.search.resolveVideo(ctx, videoURL)
	if err != nil {
		return nil, err
	}
	tracks[0].Title = title
	tracks[0].Source = track.SourceSpotify
	return tracks, nil
}

func (s *Spotify) fetchTitle(ctx context.Context, trackURL string) (string, error) {
	endpoint := fmt.Sprintf("%s?url=%s", s.oembedURL, url.QueryEscape(trackURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oembed returned status %d", resp.StatusCode)
	}

	var payload struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.Title == "" {
		return "", errors.New("oembed returned empty title")
	}
	return payload.Title, nil
}
