package mesh

import (
	"errors"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

var (
	errParticipantLeft = errors.New("participant left")
	errLeft            = errors.New("left room")
)

func (o *Orchestrator) handleWelcome(self domain.ParticipantID) {
	if err := self.Validate(); err != nil {
		o.logger.Error().Err(err).Msg("welcome without usable id")
		return
	}
	o.self = self
	o.left = false
	o.logger = o.base.With().Str("self", string(self)).Logger()
	o.logger.Info().Msg("joining room")
	if err := o.signaler.JoinRoom(o.room); err != nil {
		o.logger.Error().Err(err).Msg("join room")
	}
}

// handleSnapshot offers to every listed participant without a session.
// The side receiving the snapshot is always the offerer.
func (o *Orchestrator) handleSnapshot(peers []domain.ParticipantID) {
	if o.left {
		return
	}
	o.logger.Info().Int("peers", len(peers)).Msg("membership snapshot")
	for _, id := range peers {
		if id == "" || id == o.self {
			continue
		}
		if _, ok := o.registry.Get(id); ok {
			continue
		}
		s, err := o.createSession(id)
		if err != nil {
			o.logger.Error().Err(err).Str("peer", string(id)).Msg("create session")
			continue
		}
		o.offer(s)
	}
}

func (o *Orchestrator) createSession(remote domain.ParticipantID) (*PeerSession, error) {
	var s *PeerSession
	engine, err := o.engines.NewEngine(remote, core.EngineHooks{
		OnICECandidate: func(c domain.Candidate) {
			o.loop.Post(func() { o.handleLocalCandidate(s, c) })
		},
		OnConnectivityChange: func(st domain.ConnectivityState) {
			o.loop.Post(func() { o.handleConnectivity(s, st) })
		},
		OnTrack: func(t domain.RemoteTrack) {
			o.loop.Post(func() { o.handleTrack(s, t) })
		},
	})
	if err != nil {
		return nil, core.NewPeerError("new engine", remote, err)
	}
	s = NewPeerSession(remote, engine)
	o.registry.Add(s)
	o.peers.Add(remote)
	o.logger.Info().Str("peer", string(remote)).Int("sessions", o.registry.Len()).Msg("session created")
	return s, nil
}

// evict removes the session for id from the registry and the peer list
// exactly once and releases its engine.
func (o *Orchestrator) evict(id domain.ParticipantID, reason error) bool {
	s, ok := o.registry.Remove(id)
	if !ok {
		return false
	}
	s.Close()
	o.peers.Remove(id)
	o.logger.Info().Str("peer", string(id)).AnErr("reason", reason).Int("sessions", o.registry.Len()).Msg("session evicted")
	return true
}

func (o *Orchestrator) evictAll(reason error) {
	for _, id := range o.registry.IDs() {
		o.evict(id, reason)
	}
}
