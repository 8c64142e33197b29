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
)

// SoundCloud resolves soundcloud.com track and set URLs. Titles come from
// the public oEmbed endpoint; no API credentials are needed.
type SoundCloud struct {
	oembedURL string
	http      *http.Client
}

// NewSoundCloud creates the SoundCloud source.
func NewSoundCloud() *SoundCloud {
	return &SoundCloud{
		oembedURL: "https://soundcloud.com/oembed",
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SoundCloud) Name() track.Source { return track.SourceSoundCloud }

func (s *SoundCloud) Match(input string) bool {
	return strings.Contains(input, "soundcloud.com/")
}

func (s *SoundCloud) Resolve(ctx context.Context, input string) ([]track.Track, error) {
	input = strings.TrimSpace(input)

	title := s.fetchTitle(ctx, input)
	if title == "" {
		title = input
	}
	return []track.Track{{
		Title:  title,
		URL:    input,
		Source: track.SourceSoundCloud,
	}}, nil
}

func (s *SoundCloud) fetchTitle(ctx context.Context, trackURL string) string {
	endpoint := fmt.Sprintf("%s?format=json&url=%s", s.oembedURL, url.QueryEscape(trackURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ""
	}

	resp, err := s.http.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		if resp != nil {
			resp.Body.Close()
		}
		return ""
	}
	defer resp.Body.Close()

	var payload struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ""
	}
	return payload.Title
}
