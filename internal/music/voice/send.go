package voice

import (
	"encoding/binary"
	"io"
	"time"

	"soundfleet/internal/music/stream"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"layeh.com/gopus"
)

// SendOptions controls one send loop.
type SendOptions struct {
	// Stop aborts the loop when closed.
	Stop <-chan struct{}
	// Paused freezes frame reads while true.
	Paused func() bool
	// Gain scales samples, 0.0 to 1.0. Nil means unity.
	Gain func() float64
}

// SendPCM encodes s16le PCM from in as Opus frames onto the voice
// connection. It returns nil on end of stream or stop, an error otherwise.
func SendPCM(vc *discordgo.VoiceConnection, in io.Reader, opt SendOptions) error {
	encoder, err := gopus.NewEncoder(stream.SampleRate, stream.Channels, gopus.Audio)
	if err != nil {
		return errors.Wrap(err, "opus encoder")
	}

	_ = vc.Speaking(true)
	defer func() { _ = vc.Speaking(false) }()

	pcmBuf := make([]byte, stream.FrameSize*stream.Channels*2)
	intBuf := make([]int16, stream.FrameSize*stream.Channels)

	for {
		select {
		case <-opt.Stop:
			return nil
		default:
		}

		if opt.Paused != nil && opt.Paused() {
			// One frame worth of wall time; keeps pause responsive
			// without busy-spinning.
			time.Sleep(20 * time.Millisecond)
			continue
		}

		if _, err := io.ReadFull(in, pcmBuf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return errors.Wrap(err, "read pcm")
		}

		gain := 1.0
		if opt.Gain != nil {
			gain = opt.Gain()
		}
		for i := range intBuf {
			sample := int16(binary.LittleEndian.Uint16(pcmBuf[i*2 : i*2+2]))
			if gain != 1.0 {
				scaled := float64(sample) * gain
				switch {
				case scaled > 32767:
					sample = 32767
				case scaled < -32768:
					sample = -32768
				default:
					sample = int16(scaled)
				}
			}
			intBuf[i] = sample
		}

		opus, err := encoder.Encode(intBuf, stream.FrameSize, len(pcmBuf))
		if err != nil {
			return errors.Wrap(err, "opus encode")
		}

		select {
		case vc.OpusSend <- opus:
		case <-opt.Stop:
			return nil
		}
	}
}
