package orch

import (
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/rs/zerolog/log"
)

// Join moves id into room and returns the members already there, oldest
// first. Those are the peers id has to offer to.
func (o *Orchestrator) Join(id domain.ParticipantID, roomID domain.RoomID) []domain.ParticipantID {
	if prev, _, ok := o.Registry.RoomOf(id); ok {
		o.Leave(id)
		log.Info().Str("module", "orch").Str("sid", string(id)).Str("from_room", string(prev)).Msg("left previous room")
	}
	session, ok := o.Registry.GetSession(id)
	if !ok {
		return nil
	}
	others := o.Rooms.Join(roomID, id, session)
	o.Registry.UpdateRoom(id, roomID)
	log.Info().Str("module", "orch").Str("sid", string(id)).Str("room", string(roomID)).Int("others", len(others)).Msg("added to room")
	return others
}

// Leave removes id from its room, keeping the connection. Empty rooms are dropped.
func (o *Orchestrator) Leave(id domain.ParticipantID) (domain.RoomID, bool) {
	roomID, ok := o.Registry.RemoveRoom(id)
	if !ok {
		return "", false
	}
	o.Rooms.Leave(roomID, id)
	if o.OnLeft != nil {
		o.OnLeft(roomID, id)
	}
	return roomID, true
}

// OnDisconnect forgets id entirely.
func (o *Orchestrator) OnDisconnect(id domain.ParticipantID) {
	o.Leave(id)
	o.Registry.Unbind(id)
}

// KickBySID removes id from its room and closes its connection.
func (o *Orchestrator) KickBySID(id domain.ParticipantID) {
	o.Leave(id)
	o.Registry.Cancel(id)
}

// EvictRoom kicks every member of room and returns who was kicked.
func (o *Orchestrator) EvictRoom(roomID domain.RoomID) []domain.ParticipantID {
	var kicked []domain.ParticipantID
	for _, snap := range o.Registry.MembersOfRoom(roomID) {
		o.KickBySID(snap.ID)
		kicked = append(kicked, snap.ID)
	}
	o.Rooms.StopRoom(roomID)
	return kicked
}
