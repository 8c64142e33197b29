package worker

import (
	"soundfleet/internal/music/track"
	"soundfleet/internal/music/voice"

	"github.com/cockroachdb/errors"
)

// restoreAll rejoins saved voice channels and repopulates queues from the
// snapshot store. A guild that fails to restore is logged and skipped; the
// worker keeps serving the rest but reports itself degraded.
func (e *Engine) restoreAll() {
	snaps := e.snaps.All()
	if len(snaps) == 0 {
		return
	}
	e.log.Info().Int("guilds", len(snaps)).Msg("restoring playback from snapshots")

	for _, snap := range snaps {
		tracks := make([]track.Track, 0, len(snap.Queue)+1)
		if snap.Current != nil {
			// The interrupted track plays again from the start.
			tracks = append(tracks, *snap.Current)
		}
		tracks = append(tracks, snap.Queue...)
		if len(tracks) == 0 || snap.ChannelID == "" {
			e.snaps.Delete(snap.GuildID)
			continue
		}

		st := e.states.Get(snap.GuildID)
		st.SetChannelID(snap.ChannelID)
		st.Append(tracks...)

		if err := e.voice.Join(snap.GuildID, snap.ChannelID); err != nil &&
			!errors.Is(err, voice.ErrAlreadyConnected) {
			e.log.Warn().Err(err).Str("guild", snap.GuildID).
				Str("channel", snap.ChannelID).Msg("restore failed, skipping guild")
			e.degraded.Store(true)
			continue
		}

		e.player.EnsurePlaying(snap.GuildID)
		e.log.Info().Str("guild", snap.GuildID).Int("tracks", len(tracks)).
			Msg("guild restored")
	}
}
