package signal

import (
	"errors"

	"github.com/dkeye/Mesh/internal/adapters/wire"
	"github.com/dkeye/Mesh/internal/app/orch"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/rs/zerolog/log"
)

// handleForward relays offer, answer and ice envelopes to a room mate. The
// sender field is always rewritten to the connection's own identity.
func (ctl *SignalWSController) handleForward(sid domain.ParticipantID, c *WsSignalConn, env wire.Envelope) {
	if _, err := env.Negotiation(); err != nil || env.ToClientID == "" {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("type", env.Type).Msg("bad negotiation payload")
		ctl.send(c, wire.Failure("bad_payload"))
		return
	}
	env.FromClientID = sid
	b, err := wire.Encode(env)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode forward")
		return
	}
	if err := ctl.Orch.Forward(sid, env.ToClientID, core.Frame(b)); err != nil {
		ctl.send(c, wire.Failure(forwardReason(err)))
	}
}

func forwardReason(err error) string {
	switch {
	case errors.Is(err, orch.ErrNotInRoom):
		return "not_in_room"
	case errors.Is(err, orch.ErrPeerNotInRoom):
		return "peer_not_in_room"
	case errors.Is(err, core.ErrBackpressure):
		return "peer_unreachable"
	}
	return "forward_failed"
}
