// Package mesh drives one negotiation state machine per remote participant
// and keeps the local side of a full-mesh room converged.
package mesh

import (
	"context"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Room      domain.RoomID
	QueueSize int
}

// Orchestrator reacts to membership and negotiation events. Its exported
// methods may be called from any goroutine; they post onto the loop, which is
// the only place Registry and sessions are touched.
type Orchestrator struct {
	room     domain.RoomID
	self     domain.ParticipantID
	left     bool
	loop     *Loop
	registry *Registry
	peers    *PeerList
	engines  core.EngineFactory
	signaler core.Signaler
	cancel   context.CancelCauseFunc
	base     zerolog.Logger
	logger   zerolog.Logger
}

var _ core.SignalHandler = (*Orchestrator)(nil)

func NewOrchestrator(engines core.EngineFactory, signaler core.Signaler, opts Options) *Orchestrator {
	room := opts.Room
	if room == "" {
		room = domain.DefaultRoom
	}
	logger := log.With().Str("module", "mesh.orch").Str("room", string(room)).Logger()
	return &Orchestrator{
		room:     room,
		loop:     NewLoop(opts.QueueSize),
		registry: NewRegistry(),
		peers:    NewPeerList(),
		engines:  engines,
		signaler: signaler,
		base:     logger,
		logger:   logger,
	}
}

// Peers is the observable list for presentation sinks.
func (o *Orchestrator) Peers() *PeerList { return o.peers }

// Run processes events until ctx ends or the relay is lost, then tears every
// session down. The returned error is the cause of the stop.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	o.cancel = cancel
	defer cancel(nil)

	_ = o.loop.Run(ctx)
	// The loop has exited, so this goroutine is again the only owner.
	o.evictAll(context.Cause(ctx))
	o.logger.Info().Msg("orchestrator stopped")
	return context.Cause(ctx)
}

// Sessions copies the registry state. It fails once the loop has stopped.
func (o *Orchestrator) Sessions(ctx context.Context) ([]SessionInfo, error) {
	var out []SessionInfo
	err := o.loop.Do(ctx, func() { out = o.registry.Snapshot() })
	return out, err
}

// Self is the participant id assigned by the relay, empty before welcome.
func (o *Orchestrator) Self(ctx context.Context) (domain.ParticipantID, error) {
	var id domain.ParticipantID
	err := o.loop.Do(ctx, func() { id = o.self })
	return id, err
}

func (o *Orchestrator) OnWelcome(self domain.ParticipantID) {
	o.loop.Post(func() { o.handleWelcome(self) })
}

func (o *Orchestrator) OnMembershipSnapshot(peers []domain.ParticipantID) {
	o.loop.Post(func() { o.handleSnapshot(peers) })
}

func (o *Orchestrator) OnOffer(msg domain.NegotiationMessage) {
	o.loop.Post(func() { o.handleOffer(msg) })
}

func (o *Orchestrator) OnAnswer(msg domain.NegotiationMessage) {
	o.loop.Post(func() { o.handleAnswer(msg) })
}

func (o *Orchestrator) OnCandidate(msg domain.NegotiationMessage) {
	o.loop.Post(func() { o.handleCandidate(msg) })
}

func (o *Orchestrator) OnParticipantLeft(id domain.ParticipantID) {
	o.loop.Post(func() { o.evict(id, errParticipantLeft) })
}

// OnRelayLost tears every session down and stops Run with err.
func (o *Orchestrator) OnRelayLost(err error) {
	o.loop.Post(func() {
		o.logger.Error().Err(err).Msg("relay lost, tearing down mesh")
		o.evictAll(core.ErrRelayClosed)
		if o.cancel != nil {
			o.cancel(err)
		}
	})
}

// Leave closes every session, stops routing inbound negotiation and tells the relay.
func (o *Orchestrator) Leave(ctx context.Context) error {
	var sendErr error
	err := o.loop.Do(ctx, func() {
		o.left = true
		o.evictAll(errLeft)
		sendErr = o.signaler.LeaveRoom()
	})
	if err != nil {
		return err
	}
	return sendErr
}

// async runs work off the loop and posts then back with its result.
func (o *Orchestrator) async(work func() (domain.Description, error), then func(domain.Description, error)) {
	logger := o.logger
	go func() {
		desc, err := work()
		if !o.loop.Post(func() { then(desc, err) }) {
			logger.Debug().Msg("loop stopped before continuation")
		}
	}()
}
