package mesh

import (
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

func (o *Orchestrator) handleLocalCandidate(s *PeerSession, c domain.Candidate) {
	if !o.registry.Current(s) {
		return
	}
	if s.HoldLocalCandidate(c) {
		return
	}
	o.sendCandidate(s, c)
}

func (o *Orchestrator) sendCandidate(s *PeerSession, c domain.Candidate) {
	if err := o.signaler.SendCandidate(s.Remote(), c); err != nil {
		o.logger.Error().Err(err).Str("peer", string(s.Remote())).Msg("send candidate")
	}
}

// sendFailed evicts s after its description could not be handed to the relay;
// the remote never saw it, so the pairing cannot complete.
func (o *Orchestrator) sendFailed(s *PeerSession, what string, err error) {
	o.logger.Error().Err(err).Str("peer", string(s.Remote())).Msg(what)
	o.evict(s.Remote(), err)
}

// described releases candidates held back until s's description was sent.
func (o *Orchestrator) described(s *PeerSession) {
	for _, c := range s.MarkDescribed() {
		o.sendCandidate(s, c)
	}
}

func (o *Orchestrator) handleConnectivity(s *PeerSession, st domain.ConnectivityState) {
	if !o.registry.Current(s) {
		return
	}
	if !s.SetConnectivity(st) {
		return
	}
	o.logger.Info().Str("peer", string(s.Remote())).Str("state", string(st)).Msg("connectivity changed")
	if st.Terminal() {
		o.evict(s.Remote(), core.ErrConnectivityFailure)
		return
	}
	// Re-renders the list; connected is what flips placeholders to live views.
	o.peers.SetState(s.Remote(), st)
}

func (o *Orchestrator) handleTrack(s *PeerSession, t domain.RemoteTrack) {
	if !o.registry.Current(s) {
		return
	}
	stream := s.AddRemoteTrack(t)
	o.peers.SetStream(s.Remote(), s.LatestStream())
	o.logger.Info().
		Str("peer", string(s.Remote())).
		Str("kind", t.Kind).
		Str("track_id", t.ID).
		Str("stream_id", stream.ID).
		Msg("remote track")
}
