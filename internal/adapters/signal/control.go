package signal

import (
	"github.com/dkeye/Mesh/internal/adapters/wire"
	"github.com/dkeye/Mesh/internal/domain"
)

func (ctl *SignalWSController) handlePing(_ domain.ParticipantID, c *WsSignalConn, _ wire.Envelope) {
	ctl.send(c, wire.Envelope{Type: wire.TypePong})
}

func (ctl *SignalWSController) handleWhoAmI(sid domain.ParticipantID, c *WsSignalConn, _ wire.Envelope) {
	resp := wire.Envelope{Type: wire.TypeWhoAmI, ID: sid}
	if room, _, ok := ctl.Orch.Registry.RoomOf(sid); ok {
		resp.Room = room
	}
	ctl.send(c, resp)
}
