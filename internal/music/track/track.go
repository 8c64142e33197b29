package track

import "time"

// Source identifies where a track was resolved from.
type Source string

const (
	SourceYouTube    Source = "youtube"
	SourceSpotify    Source = "spotify"
	SourceSoundCloud Source = "soundcloud"
	SourceLocal      Source = "local"
	SourceOther      Source = "other"
)

// Track is a single playable item. Tracks are immutable once constructed;
// the queue holds them in insertion order.
type Track struct {
	Title         string        `json:"title"`
	URL           string        `json:"url,omitempty"`
	Duration      time.Duration `json:"duration,omitempty"`
	IsLocal       bool          `json:"is_local,omitempty"`
	Source        Source        `json:"source"`
	RequesterID   string        `json:"requester_id,omitempty"`
	RequesterName string        `json:"requester_name,omitempty"`
}

// DurationSec returns the track duration in whole seconds, 0 if unknown.
func (t Track) DurationSec() int {
	return int(t.Duration / time.Second)
}

// HasDuration reports whether the duration is known.
func (t Track) HasDuration() bool {
	return t.Duration > 0
}
