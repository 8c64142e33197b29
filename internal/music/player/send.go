package player

import (
	"io"

	"soundfleet/internal/music/guild"
	"soundfleet/internal/music/voice"

	"github.com/bwmarrin/discordgo"
)

type voiceConn = *discordgo.VoiceConnection

func sendPCM(vc voiceConn, in io.Reader, st *guild.State, gain func() float64, stop chan struct{}) error {
	return voice.SendPCM(vc, in, voice.SendOptions{
		Stop:   stop,
		Paused: st.Paused,
		Gain:   gain,
	})
}
