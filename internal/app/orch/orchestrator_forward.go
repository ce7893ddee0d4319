package orch

import (
	"fmt"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/rs/zerolog/log"
)

// Forward delivers a negotiation frame from one member to another member of
// the same room.
func (o *Orchestrator) Forward(from, to domain.ParticipantID, data core.Frame) error {
	roomID, _, ok := o.Registry.RoomOf(from)
	if !ok {
		return ErrNotInRoom
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return ErrNotInRoom
	}
	target, ok := room.Member(to)
	if !ok {
		return fmt.Errorf("%s: %w", to, ErrPeerNotInRoom)
	}
	if err := target.Signal().TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("from", string(from)).Str("to", string(to)).Msg("forward failed")
		o.backpressure(room, target)
		return fmt.Errorf("forward to %s: %w", to, core.ErrBackpressure)
	}
	return nil
}
