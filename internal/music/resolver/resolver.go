// Package resolver turns user input (URL, local file name, or search query)
// into playable tracks via an ordered list of sources.
package resolver

import (
	"context"
	"strings"

	"soundfleet/internal/logger"
	"soundfleet/internal/music/track"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// PlaylistCap bounds how many tracks one playlist expands to.
const PlaylistCap = 100

// ErrNoResults is returned when no source can produce a track for the input.
var ErrNoResults = errors.New("no results found")

// Source resolves one provider's inputs into tracks.
type Source interface {
	// Name returns the source identifier.
	Name() track.Source

	// Match checks if this source can handle the given input.
	Match(input string) bool

	// Resolve turns an input into one or more playable tracks.
	Resolve(ctx context.Context, input string) ([]track.Track, error)
}

// Resolver classifies input and dispatches to the matching source.
// URL inputs go to the first matching provider; non-URL inputs are checked
// against the local library first and fall back to a YouTube search.
type Resolver struct {
	local   *Library
	sources []Source
	search  Source
	log     zerolog.Logger
}

// New builds a Resolver with the default source chain.
func New(localMediaDir string) *Resolver {
	lib := NewLibrary(localMediaDir)
	yt := NewYouTube()
	return &Resolver{
		local:   lib,
		sources: []Source{yt, NewSoundCloud(), NewSpotify(yt)},
		search:  yt,
		log:     logger.For("resolver"),
	}
}

// Local exposes the local media library (used by the soundboard worker).
func (r *Resolver) Local() *Library {
	return r.local
}

// Resolve classifies input and returns one or more tracks stamped with the
// requester. Playlists are capped at PlaylistCap entries.
func (r *Resolver) Resolve(ctx context.Context, input, requesterID, requesterName string) ([]track.Track, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrNoResults
	}

	tracks, err := r.dispatch(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, ErrNoResults
	}
	if len(tracks) > PlaylistCap {
		r.log.Warn().Int("resolved", len(tracks)).Int("cap", PlaylistCap).Msg("playlist capped")
		tracks = tracks[:PlaylistCap]
	}

	for i := range tracks {
		tracks[i].RequesterID = requesterID
		tracks[i].RequesterName = requesterName
	}
	return tracks, nil
}

func (r *Resolver) dispatch(ctx context.Context, input string) ([]track.Track, error) {
	if r.local.Match(input) {
		return r.local.Resolve(ctx, input)
	}

	if isURL(input) {
		for _, src := range r.sources {
			if src.Match(input) {
				return src.Resolve(ctx, input)
			}
		}
		// Unrecognized provider: hand the URL through as-is and let the
		// stream layer validate it.
		return []track.Track{{Title: input, URL: input, Source: track.SourceOther}}, nil
	}

	r.log.Debug().Str("query", input).Msg("treating input as search query")
	return r.search.Resolve(ctx, input)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
