package stream

import (
	"io"
	"sync"

	"soundfleet/internal/logger"
	"soundfleet/internal/music/track"

	"github.com/cockroachdb/errors"
)

const maxRecoveryAttempts = 3

// RecoveryStream wraps a chain-opened stream and reopens it at the current
// playback position on premature end of stream. Close may be called from
// another goroutine to abort a blocked Read.
type RecoveryStream struct {
	chain   *Chain
	track   *track.Track
	seekSec float64
	retries int

	mu      sync.Mutex
	current *TrackStream
	closed  bool
}

// OpenWithRecovery opens a resilient stream for a track.
func OpenWithRecovery(chain *Chain, t *track.Track, seekSec float64) (*RecoveryStream, error) {
	ts, err := chain.Open(t, seekSec)
	if err != nil {
		return nil, err
	}
	return &RecoveryStream{
		chain:   chain,
		track:   t,
		current: ts,
		seekSec: seekSec,
	}, nil
}

// Strategy returns the name of the strategy currently streaming.
func (rs *RecoveryStream) Strategy() string {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.current == nil {
		return ""
	}
	return rs.current.Strategy()
}

func (rs *RecoveryStream) stream() *TrackStream {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.current
}

func (rs *RecoveryStream) Read(p []byte) (int, error) {
	ts := rs.stream()
	if ts == nil {
		return 0, errors.New("stream not open")
	}

	n, err := ts.Read(p)
	rs.seekSec += float64(n) / (SampleRate * Channels * 2)

	if err != nil && errors.Is(err, io.EOF) && n == 0 && !rs.finished() {
		return rs.recover(p)
	}
	return n, err
}

// finished reports whether the stream ended close enough to the known track
// duration to count as a normal completion.
func (rs *RecoveryStream) finished() bool {
	if !rs.track.HasDuration() {
		return true
	}
	return rs.seekSec >= rs.track.Duration.Seconds()-2
}

func (rs *RecoveryStream) recover(p []byte) (int, error) {
	rs.mu.Lock()
	if rs.closed {
		rs.mu.Unlock()
		return 0, io.EOF
	}
	if rs.retries >= maxRecoveryAttempts {
		rs.mu.Unlock()
		log := logger.For("stream")
		log.Warn().Str("track", rs.track.Title).
			Msg("max recovery attempts reached")
		return 0, io.EOF
	}
	rs.retries++
	old := rs.current
	rs.mu.Unlock()

	log := logger.For("stream")
	log.Info().Str("track", rs.track.Title).
		Float64("seek", rs.seekSec).Int("attempt", rs.retries).
		Msg("stream ended early, reopening")

	if old != nil {
		_ = old.Close()
	}
	ts, err := rs.chain.Open(rs.track, rs.seekSec)
	if err != nil {
		return 0, io.EOF
	}

	rs.mu.Lock()
	if rs.closed {
		rs.mu.Unlock()
		_ = ts.Close()
		return 0, io.EOF
	}
	rs.current = ts
	rs.mu.Unlock()

	return rs.Read(p)
}

// Close closes the underlying stream, unblocking a reader stalled on it.
// Safe to call concurrently with Read and more than once.
func (rs *RecoveryStream) Close() error {
	rs.mu.Lock()
	rs.closed = true
	ts := rs.current
	rs.mu.Unlock()

	if ts == nil {
		return nil
	}
	return ts.Close()
}
