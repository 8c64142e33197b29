// Package stream opens PCM audio streams for tracks through an ordered
// fallback chain of strategies. The order is fixed and deterministic:
//
//  1. ytdlp-link: extract a direct media URL (cached), fetch-validate it,
//     transcode with ffmpeg
//  2. ytdlp-pipe: pipe the downloader's stdout straight into ffmpeg
//  3. kkdai: youtube client library as last resort
//
// Non-YouTube-shaped inputs are validated and streamed directly with ffmpeg.
// Only when every applicable strategy fails does the caller see
// ErrStreamResolution.
package stream

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"soundfleet/internal/logger"
	"soundfleet/internal/music/track"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// PCM output format shared by every strategy (20ms frames at 48kHz stereo).
const (
	Channels   = 2
	SampleRate = 48000
	FrameSize  = 960
)

// ErrStreamResolution is returned when all strategies are exhausted.
var ErrStreamResolution = errors.New("all stream strategies failed")

// Strategy is one way of turning a track into a PCM byte stream.
type Strategy interface {
	Name() string
	CanHandle(t track.Track) bool
	Open(t *track.Track, seekSec float64) (io.ReadCloser, func(), error)
}

// TrackStream is an open PCM stream tied to its originating strategy.
type TrackStream struct {
	io.ReadCloser
	track    *track.Track
	strategy string
	cleanup  func()

	closeOnce sync.Once
	closeErr  error
}

// Track returns the track being streamed.
func (s *TrackStream) Track() *track.Track { return s.track }

// Strategy returns the name of the strategy that produced the stream.
func (s *TrackStream) Strategy() string { return s.strategy }

// Close stops the stream and kills any helper subprocesses. It is safe to
// call from a goroutine other than the reader, and to call more than once:
// the player closes a stream to unblock a read stalled on a dead source.
func (s *TrackStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.ReadCloser.Close()
		if s.cleanup != nil {
			s.cleanup()
		}
	})
	return s.closeErr
}

// Chain evaluates strategies in order until one succeeds.
type Chain struct {
	strategies []Strategy
	log        zerolog.Logger
}

// NewChain builds the default strategy chain.
func NewChain() *Chain {
	return &Chain{
		strategies: []Strategy{
			NewYTDLPLink(),
			NewYTDLPPipe(),
			NewKKDAI(),
			NewFFMPEGLink(),
		},
		log: logger.For("stream"),
	}
}

// NewChainWith builds a chain from explicit strategies, for tests.
func NewChainWith(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, log: logger.For("stream")}
}

// Open tries each applicable strategy in order and returns the first open
// stream. Every failed strategy is logged with its reason.
func (c *Chain) Open(t *track.Track, seekSec float64) (*TrackStream, error) {
	var reasons []string

	for _, strat := range c.strategies {
		if !strat.CanHandle(*t) {
			continue
		}

		r, cleanup, err := strat.Open(t, seekSec)
		if err == nil {
			c.log.Info().Str("strategy", strat.Name()).Str("track", t.Title).
				Float64("seek", seekSec).Msg("stream opened")
			return &TrackStream{ReadCloser: r, track: t, strategy: strat.Name(), cleanup: cleanup}, nil
		}

		if cleanup != nil {
			cleanup()
		}
		c.log.Warn().Str("strategy", strat.Name()).Str("track", t.Title).
			Err(err).Msg("strategy failed, trying next")
		reasons = append(reasons, fmt.Sprintf("%s: %v", strat.Name(), err))
	}

	if len(reasons) == 0 {
		return nil, errors.Wrapf(ErrStreamResolution, "no strategy can handle track %q", t.Title)
	}
	return nil, errors.Wrapf(ErrStreamResolution, "track %q: %s", t.Title, strings.Join(reasons, "; "))
}
