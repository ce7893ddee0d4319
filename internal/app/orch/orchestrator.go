// Package orch is the relay-side coordinator: room membership, forwarding of
// negotiation frames between members, and backpressure handling.
package orch

import (
	"errors"

	"github.com/dkeye/Mesh/internal/app"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotInRoom     = errors.New("not in a room")
	ErrPeerNotInRoom = errors.New("peer not in room")
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Policy   app.Policy
	// OnLeft fires after id left room, with the membership already updated.
	OnLeft func(room domain.RoomID, id domain.ParticipantID)
}

// Broadcast fans data out to every member of room except from and applies
// Policy to members whose queue is full.
func (o *Orchestrator) Broadcast(roomID domain.RoomID, from domain.ParticipantID, data core.Frame) {
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return
	}
	res := room.Broadcast(from, data)
	for _, slow := range res.Dropped {
		o.backpressure(room, slow)
	}
}

func (o *Orchestrator) backpressure(room core.RoomService, slow core.MemberSession) {
	if o.Policy == nil {
		return
	}
	id := slow.Meta().ID
	switch o.Policy.OnBackPressure(room, slow) {
	case app.KickMember:
		log.Warn().Str("module", "orch").Str("sid", string(id)).Msg("kicking slow member")
		o.KickBySID(id)
	case app.MarkSlow, app.DropFrame, app.NoAction:
		log.Debug().Str("module", "orch").Str("sid", string(id)).Msg("frame dropped for slow member")
	}
}
