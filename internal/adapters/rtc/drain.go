package rtc

import (
	"context"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// DrainStats counts what arrived on a remote track.
type DrainStats struct {
	Packets uint64
	Bytes   uint64
	Lost    uint64

	started bool
	lastSeq uint16
}

// Observe accounts one packet; gaps in the sequence number count as loss.
// Reordered or repeated packets are not counted as loss.
func (s *DrainStats) Observe(p *rtp.Packet) {
	s.Packets++
	s.Bytes += uint64(len(p.Payload))
	if !s.started {
		s.started = true
		s.lastSeq = p.SequenceNumber
		return
	}
	diff := p.SequenceNumber - s.lastSeq
	if diff == 0 || diff > 0x8000 {
		return
	}
	s.Lost += uint64(diff - 1)
	s.lastSeq = p.SequenceNumber
}

// Drain reads a remote track until it ends so pion's buffers never fill up.
// Rendering is not part of this process; sinks only get the track handle.
func Drain(ctx context.Context, track *webrtc.TrackRemote, logger zerolog.Logger) DrainStats {
	var stats DrainStats
	defer func() {
		logger.Info().
			Str("track_id", track.ID()).
			Uint64("packets", stats.Packets).
			Uint64("bytes", stats.Bytes).
			Uint64("lost", stats.Lost).
			Msg("remote track ended")
	}()
	for {
		select {
		case <-ctx.Done():
			return stats
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return stats
		}
		stats.Observe(pkt)
	}
}
