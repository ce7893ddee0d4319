package mesh

import (
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NegotiationState is the offer/answer position of one pairing.
type NegotiationState int

const (
	StateNew NegotiationState = iota
	StateHaveLocalOffer
	StateHaveRemoteOffer
	StateStable
	StateClosed
)

func (s NegotiationState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	case StateStable:
		return "stable"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type inflight int

const (
	inflightNone inflight = iota
	inflightOffer
	inflightAnswer
)

// PeerSession is the negotiation state machine bound to one remote participant.
// All methods run on the orchestrator loop; only the engine is touched from
// elsewhere (offer/answer generation).
type PeerSession struct {
	remote domain.ParticipantID
	engine core.NegotiationEngine

	state   NegotiationState
	settled NegotiationState // state to return to on rollback
	pending inflight
	conn    domain.ConnectivityState

	remoteApplied bool
	queued        []domain.Candidate
	seen          map[string]struct{}
	deferredOffer *domain.Description

	// Local candidates wait here until our first description went out, so
	// the remote never sees a candidate for a session it does not know yet.
	described bool
	outbox    []domain.Candidate

	streams []*domain.RemoteStream

	logger zerolog.Logger
}

func NewPeerSession(remote domain.ParticipantID, engine core.NegotiationEngine) *PeerSession {
	return &PeerSession{
		remote:  remote,
		engine:  engine,
		state:   StateNew,
		settled: StateNew,
		conn:    domain.ConnectivityNew,
		seen:    make(map[string]struct{}),
		logger:  log.With().Str("module", "mesh.session").Str("peer", string(remote)).Logger(),
	}
}

func (s *PeerSession) Remote() domain.ParticipantID           { return s.remote }
func (s *PeerSession) State() NegotiationState                { return s.state }
func (s *PeerSession) Connectivity() domain.ConnectivityState { return s.conn }
func (s *PeerSession) Closed() bool                           { return s.state == StateClosed }

// OfferPending reports whether an offer is being generated right now.
func (s *PeerSession) OfferPending() bool { return s.pending == inflightOffer }

// Streams returns the remote streams in arrival order.
func (s *PeerSession) Streams() []*domain.RemoteStream {
	out := make([]*domain.RemoteStream, len(s.streams))
	copy(out, s.streams)
	return out
}

// LatestStream is the stream a sink should render, nil until one arrives.
func (s *PeerSession) LatestStream() *domain.RemoteStream {
	if len(s.streams) == 0 {
		return nil
	}
	return s.streams[len(s.streams)-1]
}

// QueuedCandidates is the number of remote candidates waiting for a remote description.
func (s *PeerSession) QueuedCandidates() int { return len(s.queued) }

// BeginOffer reserves the session for offer generation.
func (s *PeerSession) BeginOffer() error {
	if s.state == StateClosed {
		return core.ErrStaleMessage
	}
	if s.pending != inflightNone || (s.state != StateNew && s.state != StateStable) {
		return core.ErrNegotiationBusy
	}
	s.pending = inflightOffer
	return nil
}

// CompleteOffer is the continuation of BeginOffer once the engine produced
// (and applied) the local offer.
func (s *PeerSession) CompleteOffer(err error) error {
	if s.pending == inflightOffer {
		s.pending = inflightNone
	}
	if s.state == StateClosed {
		return core.ErrStaleMessage
	}
	if err != nil {
		return core.NewPeerError("create offer", s.remote, err)
	}
	s.settled = s.state
	s.state = StateHaveLocalOffer
	return nil
}

// ApplyRemoteOffer applies the remote offer and reserves the session for answer generation.
// Glare (have-local-offer or offer in flight) is reported as ErrNegotiationBusy;
// the orchestrator decides whether to roll back.
func (s *PeerSession) ApplyRemoteOffer(desc domain.Description) error {
	if s.state == StateClosed {
		return core.ErrStaleMessage
	}
	if s.pending != inflightNone || (s.state != StateNew && s.state != StateStable) {
		return core.ErrNegotiationBusy
	}
	if err := s.engine.SetRemoteDescription(desc); err != nil {
		return core.NewPeerError("set remote offer", s.remote, err)
	}
	s.settled = s.state
	s.state = StateHaveRemoteOffer
	s.pending = inflightAnswer
	s.remoteApplied = true
	s.flushCandidates()
	return nil
}

// CompleteAnswer is the continuation of ApplyRemoteOffer once the local answer exists.
func (s *PeerSession) CompleteAnswer(err error) error {
	if s.pending == inflightAnswer {
		s.pending = inflightNone
	}
	if s.state == StateClosed {
		return core.ErrStaleMessage
	}
	if err != nil {
		return core.NewPeerError("create answer", s.remote, err)
	}
	s.state = StateStable
	s.settled = StateStable
	return nil
}

// ApplyRemoteAnswer is valid only while this side's offer is outstanding.
func (s *PeerSession) ApplyRemoteAnswer(desc domain.Description) error {
	if s.state != StateHaveLocalOffer {
		return core.ErrStaleMessage
	}
	if err := s.engine.SetRemoteDescription(desc); err != nil {
		return core.NewPeerError("set remote answer", s.remote, err)
	}
	s.state = StateStable
	s.settled = StateStable
	s.remoteApplied = true
	s.flushCandidates()
	return nil
}

// Rollback abandons the outstanding local offer.
func (s *PeerSession) Rollback() error {
	if s.state != StateHaveLocalOffer {
		return nil
	}
	if err := s.engine.Rollback(); err != nil {
		return core.NewPeerError("rollback", s.remote, err)
	}
	s.state = s.settled
	return nil
}

// DeferRemoteOffer parks an offer that arrived while ours was being generated.
func (s *PeerSession) DeferRemoteOffer(desc domain.Description) {
	s.deferredOffer = &desc
}

// TakeDeferredOffer returns and clears the parked offer.
func (s *PeerSession) TakeDeferredOffer() *domain.Description {
	d := s.deferredOffer
	s.deferredOffer = nil
	return d
}

// AddRemoteCandidate applies c, or queues it until a remote description exists.
// Repeated candidates are ignored.
func (s *PeerSession) AddRemoteCandidate(c domain.Candidate) error {
	if s.state == StateClosed {
		return core.ErrStaleMessage
	}
	key := domain.CandidateKey(c)
	if _, dup := s.seen[key]; dup {
		return nil
	}
	s.seen[key] = struct{}{}
	if !s.remoteApplied {
		s.queued = append(s.queued, c)
		return nil
	}
	if err := s.engine.AddICECandidate(c); err != nil {
		return core.NewPeerError("add candidate", s.remote, err)
	}
	return nil
}

func (s *PeerSession) flushCandidates() {
	if len(s.queued) == 0 {
		return
	}
	queued := s.queued
	s.queued = nil
	for _, c := range queued {
		if err := s.engine.AddICECandidate(c); err != nil {
			s.logger.Warn().Err(err).Str("candidate", c.Candidate).Msg("queued candidate rejected")
		}
	}
	s.logger.Debug().Int("count", len(queued)).Msg("flushed queued candidates")
}

// HoldLocalCandidate buffers c if no description was sent yet and reports
// whether it did.
func (s *PeerSession) HoldLocalCandidate(c domain.Candidate) bool {
	if s.described {
		return false
	}
	s.outbox = append(s.outbox, c)
	return true
}

// MarkDescribed records that a description reached the relay and returns the
// candidates held until then.
func (s *PeerSession) MarkDescribed() []domain.Candidate {
	s.described = true
	out := s.outbox
	s.outbox = nil
	return out
}

// SetConnectivity records a transport state; it reports whether it changed.
func (s *PeerSession) SetConnectivity(st domain.ConnectivityState) bool {
	if s.conn == st {
		return false
	}
	s.conn = st
	return true
}

// AddRemoteTrack files t under its stream and returns that stream.
// A track for a new stream id makes that stream the latest one.
func (s *PeerSession) AddRemoteTrack(t domain.RemoteTrack) *domain.RemoteStream {
	for _, st := range s.streams {
		if st.ID == t.StreamID {
			st.Tracks = append(st.Tracks, t)
			return st
		}
	}
	st := &domain.RemoteStream{ID: t.StreamID, Tracks: []domain.RemoteTrack{t}}
	s.streams = append(s.streams, st)
	return st
}

// Close releases the engine. Safe to call more than once.
func (s *PeerSession) Close() {
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	s.pending = inflightNone
	s.queued = nil
	s.deferredOffer = nil
	s.outbox = nil
	if err := s.engine.Close(); err != nil {
		s.logger.Error().Err(err).Msg("engine close")
		return
	}
	s.logger.Info().Msg("closed")
}
