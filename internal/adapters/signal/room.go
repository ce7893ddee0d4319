package signal

import (
	"github.com/dkeye/Mesh/internal/adapters/wire"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/rs/zerolog/log"
)

// handleJoin puts sid into the room and tells it whom to offer to.
func (ctl *SignalWSController) handleJoin(sid domain.ParticipantID, c *WsSignalConn, env wire.Envelope) {
	if !ctl.Limiter.Allow(sid) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("join rate limited")
		ctl.send(c, wire.Failure("rate_limited"))
		return
	}
	room := domain.NormalizeRoomID(string(env.Room))
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(room)).Msg("join")
	others := ctl.Orch.Join(sid, room)
	ctl.send(c, wire.NeedToOffer(others))
}

// handleLeave leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(sid domain.ParticipantID, _ *WsSignalConn, _ wire.Envelope) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.Orch.Leave(sid)
}

func (ctl *SignalWSController) announceLeft(room domain.RoomID, id domain.ParticipantID) {
	b, err := wire.Encode(wire.PeerLeft(id))
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode peerLeft")
		return
	}
	ctl.Orch.Broadcast(room, id, core.Frame(b))
}
