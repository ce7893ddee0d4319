package signal

import (
	"context"
	"time"

	"github.com/dkeye/Mesh/internal/adapters/wire"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Info().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid domain.ParticipantID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Orch.OnDisconnect(sid)
		ctl.Limiter.Forget(sid)
		cancel()
		c.Close()
	}()

	extend := func() { _ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.pongWait())) }
	extend()
	c.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		extend()
		ctl.handleSignal(sid, c, data)
	}
}

type handlerFunc func(ctl *SignalWSController, sid domain.ParticipantID, c *WsSignalConn, env wire.Envelope)

var handlers = map[string]handlerFunc{
	wire.TypeJoinRoom:  (*SignalWSController).handleJoin,
	wire.TypeLeaveRoom: (*SignalWSController).handleLeave,
	wire.TypeOffer:     (*SignalWSController).handleForward,
	wire.TypeAnswer:    (*SignalWSController).handleForward,
	wire.TypeICE:       (*SignalWSController).handleForward,
	wire.TypePing:      (*SignalWSController).handlePing,
	wire.TypeWhoAmI:    (*SignalWSController).handleWhoAmI,
}

func (ctl *SignalWSController) handleSignal(sid domain.ParticipantID, c *WsSignalConn, data []byte) {
	env, err := wire.Decode(data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad envelope")
		ctl.send(c, wire.Failure("bad_payload"))
		return
	}
	fn, ok := handlers[env.Type]
	if !ok {
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.send(c, wire.Failure("unknown_type"))
		return
	}
	fn(ctl, sid, c, env)
}

func (ctl *SignalWSController) send(c *WsSignalConn, env wire.Envelope) {
	b, err := wire.Encode(env)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("send encode")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", env.Type).Msg("send dropped")
	}
}
