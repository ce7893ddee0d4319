// Package relayclient is the participant side of the signaling relay: one
// websocket, one reader and one writer goroutine, no negotiation state.
package relayclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Mesh/internal/adapters/wire"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	PingPeriod time.Duration
	WriteWait  time.Duration
	ReadLimit  int64
	// SendBuffer is how many frames queue up before senders wait for the writer.
	SendBuffer int
}

func (o Options) withDefaults() Options {
	if o.PingPeriod <= 0 {
		o.PingPeriod = 25 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 * 1024
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

// Client implements core.Signaler over a relay websocket.
type Client struct {
	url  string
	opts Options

	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	pumping atomic.Bool

	mu   sync.RWMutex
	self domain.ParticipantID

	logger zerolog.Logger
}

var _ core.Signaler = (*Client)(nil)

func New(url string, opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		url:    url,
		opts:   opts,
		send:   make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
		logger: log.With().Str("module", "relayclient").Logger(),
	}
}

func (c *Client) Dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial relay %s: %w", c.url, err)
	}
	conn.SetReadLimit(c.opts.ReadLimit)
	c.conn = conn
	c.logger.Info().Str("url", c.url).Msg("connected")
	return nil
}

// Self is the id from the last welcome, empty before it.
func (c *Client) Self() domain.ParticipantID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.self
}

// Run pumps relay traffic into h until ctx ends or the connection drops.
// A drop is reported to h.OnRelayLost; ctx cancellation is not.
func (c *Client) Run(ctx context.Context, h core.SignalHandler) error {
	if c.conn == nil {
		return fmt.Errorf("run before dial: %w", core.ErrRelayClosed)
	}
	c.pumping.Store(true)
	go c.writePump()
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	err := c.readPump(h)
	c.Close()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	lost := fmt.Errorf("%w: %v", core.ErrRelayClosed, err)
	h.OnRelayLost(lost)
	return lost
}

// Close stops both pumps. Frames already queued are still written before the
// close frame; the writer then drops the connection. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil && !c.pumping.Load() {
			_ = c.conn.Close()
		}
		c.logger.Info().Msg("closed")
	})
}

func (c *Client) pongWait() time.Duration {
	return c.opts.PingPeriod * 2
}

func (c *Client) readPump(h core.SignalHandler) error {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		// Any inbound traffic proves the relay is alive.
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))

		env, err := wire.Decode(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("bad envelope")
			continue
		}
		fn, ok := dispatch[env.Type]
		if !ok {
			c.logger.Warn().Str("type", env.Type).Msg("unknown event")
			continue
		}
		fn(c, h, env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	ping, _ := wire.Encode(wire.Envelope{Type: wire.TypePing})

	for {
		var data []byte
		select {
		case <-c.done:
			c.flush()
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteWait))
			return
		case data = <-c.send:
		case <-ticker.C:
			data = ping
		}
		if err := c.write(data); err != nil {
			c.logger.Error().Err(err).Msg("write")
			c.Close()
			return
		}
	}
}

// flush writes whatever is still queued, stopping at the first error.
func (c *Client) flush() {
	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				c.logger.Warn().Err(err).Msg("flush")
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// enqueue hands env to the writer in call order. It waits while the queue is
// full and fails only once the client is closed.
func (c *Client) enqueue(env wire.Envelope) error {
	data, err := wire.Encode(env)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return core.ErrRelayClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return fmt.Errorf("%s to %s: %w", env.Type, env.ToClientID, core.ErrRelayClosed)
	}
}

func (c *Client) JoinRoom(room domain.RoomID) error {
	return c.enqueue(wire.Envelope{Type: wire.TypeJoinRoom, Room: room})
}

func (c *Client) LeaveRoom() error {
	return c.enqueue(wire.Envelope{Type: wire.TypeLeaveRoom})
}

func (c *Client) SendOffer(to domain.ParticipantID, desc domain.Description) error {
	return c.enqueue(wire.Offer(c.Self(), to, desc))
}

func (c *Client) SendAnswer(to domain.ParticipantID, desc domain.Description) error {
	return c.enqueue(wire.Answer(c.Self(), to, desc))
}

func (c *Client) SendCandidate(to domain.ParticipantID, cand domain.Candidate) error {
	return c.enqueue(wire.ICE(c.Self(), to, cand))
}

// ErrRelayError wraps error events sent by the relay.
var ErrRelayError = errors.New("relay error")

type handlerFunc func(c *Client, h core.SignalHandler, env wire.Envelope)

// dispatch maps inbound event types onto handler calls.
var dispatch = map[string]handlerFunc{
	wire.TypeWelcome: func(c *Client, h core.SignalHandler, env wire.Envelope) {
		c.mu.Lock()
		c.self = env.ID
		c.mu.Unlock()
		c.logger.Info().Str("self", string(env.ID)).Msg("welcome")
		h.OnWelcome(env.ID)
	},
	wire.TypeNeedToOffer: func(c *Client, h core.SignalHandler, env wire.Envelope) {
		h.OnMembershipSnapshot(domain.ParticipantIDs(env.Peers))
	},
	wire.TypeOffer:  negotiation(core.SignalHandler.OnOffer),
	wire.TypeAnswer: negotiation(core.SignalHandler.OnAnswer),
	wire.TypeICE:    negotiation(core.SignalHandler.OnCandidate),
	wire.TypePeerLeft: func(c *Client, h core.SignalHandler, env wire.Envelope) {
		if env.ID == "" {
			return
		}
		h.OnParticipantLeft(env.ID)
	},
	wire.TypePong: func(c *Client, _ core.SignalHandler, _ wire.Envelope) {
		c.logger.Debug().Msg("pong")
	},
	wire.TypeWhoAmI: func(c *Client, _ core.SignalHandler, env wire.Envelope) {
		c.logger.Info().Str("id", string(env.ID)).Str("room", string(env.Room)).Msg("whoami")
	},
	wire.TypeError: func(c *Client, _ core.SignalHandler, env wire.Envelope) {
		c.logger.Warn().Err(fmt.Errorf("%w: %s", ErrRelayError, env.Error)).Msg("relay reported error")
	},
}

func negotiation(fn func(core.SignalHandler, domain.NegotiationMessage)) handlerFunc {
	return func(c *Client, h core.SignalHandler, env wire.Envelope) {
		msg, err := env.Negotiation()
		if err == nil {
			err = msg.Validate()
		}
		if err != nil {
			c.logger.Warn().Err(err).Str("type", env.Type).Msg("bad negotiation message")
			return
		}
		fn(h, msg)
	}
}

// WhoAmI asks the relay to echo this connection's identity and room.
func (c *Client) WhoAmI() error {
	return c.enqueue(wire.Envelope{Type: wire.TypeWhoAmI})
}
