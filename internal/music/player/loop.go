package player

import (
	"context"
	"time"

	"soundfleet/internal/music/guild"
	"soundfleet/internal/music/stream"
	"soundfleet/internal/music/track"
)

type outcome int

const (
	outcomeDone outcome = iota
	outcomeSkip
	outcomeStop
	outcomeSeek
	outcomeDropped
)

// run is the guild's playback loop. It dequeues the next track, opens a
// stream outside the guild lock, and streams it until completion or a
// control signal. Resolution failures skip to the next track instead of
// stalling the guild.
func (m *Manager) run(st *guild.State, sess *session) {
	guildID := st.GuildID()
	defer close(sess.done)
	defer m.clearSession(guildID, sess)

	for {
		next := st.DequeueNext()
		if next == nil && st.Autoplay() {
			next = m.autoplayNext(st)
		}
		if next == nil {
			m.log.Info().Str("guild", guildID).Msg("queue drained, going idle")
			m.emit(guildID, StatusIdle)
			m.snaps.ScheduleSave(st)
			// Deregister before the final return, then re-check: a track
			// appended between the empty dequeue and the deferred cleanup
			// would otherwise see a "running" session and be stranded.
			m.clearSession(guildID, sess)
			m.EnsurePlaying(guildID)
			return
		}
		m.snaps.ScheduleSave(st)

		switch m.playTrack(st, sess, next) {
		case outcomeStop, outcomeDropped:
			return
		default:
			// advance to the next queued track
		}

		// Drain a stale skip signal left over from a race between the
		// skip command and natural track end.
		select {
		case <-sess.ctl:
		default:
		}
	}
}

// playTrack streams one track, re-opening on seek. The stream is opened
// before StartPlaying so timing anchors reflect audible playback.
func (m *Manager) playTrack(st *guild.State, sess *session, t *track.Track) outcome {
	guildID := st.GuildID()
	offset := time.Duration(0)

	for {
		vc, ok := m.voice.Get(guildID)
		if !ok {
			m.log.Warn().Str("guild", guildID).Msg("not connected, abandoning playback")
			st.FinishPlaying(false)
			return outcomeDropped
		}

		rs, err := stream.OpenWithRecovery(m.chain, t, offset.Seconds())
		if err != nil {
			m.log.Error().Err(err).Str("guild", guildID).Str("track", t.Title).
				Msg("stream resolution failed, skipping track")
			m.emit(guildID, StatusError)
			return outcomeSkip
		}

		st.StartPlaying(*t, offset)
		m.emit(guildID, StatusPlaying)
		m.log.Info().Str("guild", guildID).Str("track", t.Title).
			Str("strategy", rs.Strategy()).Msg("now playing")

		res, seek := m.streamTrack(st, sess, vc, rs)
		switch res {
		case outcomeSeek:
			offset = seek
			st.ResetTiming(offset)
			continue
		case outcomeDone:
			manual := st.TakeManualSkip()
			st.FinishPlaying(!manual)
			return outcomeDone
		case outcomeSkip:
			st.TakeManualSkip()
			st.FinishPlaying(false)
			return outcomeSkip
		case outcomeStop:
			st.FinishPlaying(false)
			return outcomeStop
		default:
			st.FinishPlaying(false)
			return outcomeDropped
		}
	}
}

// streamTrack pumps PCM into the voice connection until the stream ends or
// a control message arrives.
func (m *Manager) streamTrack(st *guild.State, sess *session, vc voiceConn, rs *stream.RecoveryStream) (outcome, time.Duration) {
	stop := make(chan struct{})
	errCh := make(chan error, 1)

	go func() {
		err := sendPCM(vc, rs, st, m.gain(st), stop)
		_ = rs.Close()
		errCh <- err
	}()

	for {
		select {
		case msg := <-sess.ctl:
			close(stop)
			// Killing the stream unblocks a pump stuck reading from a
			// stalled source; waiting on errCh alone could wedge forever.
			_ = rs.Close()
			<-errCh
			switch msg.kind {
			case ctlSeek:
				return outcomeSeek, msg.seek
			case ctlSkip:
				return outcomeSkip, 0
			default:
				return outcomeStop, 0
			}
		case err := <-errCh:
			if err != nil {
				m.log.Error().Err(err).Str("guild", st.GuildID()).Msg("playback error")
				m.emit(st.GuildID(), StatusError)
			}
			if !m.voice.Connected(st.GuildID()) {
				return outcomeDropped, 0
			}
			return outcomeDone, 0
		}
	}
}

// autoplayNext seeds one related track from the last played one. Best
// effort: a failed lookup or a self-match yields nothing.
func (m *Manager) autoplayNext(st *guild.State) *track.Track {
	last, ok := st.LastPlayed()
	if !ok || last.Title == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	tracks, err := m.resolver.Resolve(ctx, last.Title, last.RequesterID, last.RequesterName)
	if err != nil || len(tracks) == 0 || tracks[0].URL == last.URL {
		m.log.Debug().Str("guild", st.GuildID()).Msg("autoplay found no fresh candidate")
		return nil
	}

	m.log.Info().Str("guild", st.GuildID()).Str("track", tracks[0].Title).Msg("autoplay seeded")
	return &tracks[0]
}
