package mesh

import (
	"errors"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

// polite reports whether this side yields when both sides offered at once.
func (o *Orchestrator) polite(remote domain.ParticipantID) bool {
	return o.self < remote
}

func (o *Orchestrator) offer(s *PeerSession) {
	if err := s.BeginOffer(); err != nil {
		o.logger.Warn().Err(err).Str("peer", string(s.Remote())).Msg("offer not started")
		return
	}
	o.async(s.engine.CreateOffer, func(desc domain.Description, err error) {
		o.finishOffer(s, desc, err)
	})
}

func (o *Orchestrator) finishOffer(s *PeerSession, desc domain.Description, err error) {
	deferred := s.TakeDeferredOffer()
	if err := s.CompleteOffer(err); err != nil {
		o.logger.Warn().Err(err).Str("peer", string(s.Remote())).Msg("offer dropped")
		// Nothing was applied locally, so a parked remote offer can be answered as is.
		if deferred != nil && !s.Closed() && o.registry.Current(s) {
			o.answer(s, *deferred)
		}
		return
	}
	if !o.registry.Current(s) {
		o.logger.Debug().Str("peer", string(s.Remote())).Msg("offer for replaced session dropped")
		return
	}
	if deferred != nil {
		if err := s.Rollback(); err != nil {
			o.logger.Error().Err(err).Str("peer", string(s.Remote())).Msg("rollback for deferred offer")
			return
		}
		o.answer(s, *deferred)
		return
	}
	if err := o.signaler.SendOffer(s.Remote(), desc); err != nil {
		o.sendFailed(s, "send offer", err)
		return
	}
	o.logger.Info().Str("peer", string(s.Remote())).Msg("offer sent")
	o.described(s)
}

func (o *Orchestrator) handleOffer(msg domain.NegotiationMessage) {
	if o.left || msg.Description == nil {
		return
	}
	if msg.From == o.self {
		return
	}
	s, ok := o.registry.Get(msg.From)
	if !ok {
		var err error
		if s, err = o.createSession(msg.From); err != nil {
			o.logger.Error().Err(err).Str("peer", string(msg.From)).Msg("create session for offer")
			return
		}
	}
	o.answer(s, *msg.Description)
}

func (o *Orchestrator) answer(s *PeerSession, desc domain.Description) {
	remote := s.Remote()
	if s.State() == StateHaveLocalOffer || s.OfferPending() {
		if !o.polite(remote) {
			o.logger.Warn().Err(core.ErrNegotiationBusy).Str("peer", string(remote)).Msg("glare, keeping own offer")
			return
		}
		if s.OfferPending() {
			s.DeferRemoteOffer(desc)
			return
		}
		if err := s.Rollback(); err != nil {
			o.logger.Error().Err(err).Str("peer", string(remote)).Msg("glare rollback")
			return
		}
		o.logger.Info().Str("peer", string(remote)).Msg("glare, rolled back own offer")
	}
	if err := s.ApplyRemoteOffer(desc); err != nil {
		o.logger.Warn().Err(err).Str("peer", string(remote)).Msg("remote offer rejected")
		return
	}
	o.async(s.engine.CreateAnswer, func(answer domain.Description, err error) {
		o.finishAnswer(s, answer, err)
	})
}

func (o *Orchestrator) finishAnswer(s *PeerSession, desc domain.Description, err error) {
	if err := s.CompleteAnswer(err); err != nil {
		o.logger.Warn().Err(err).Str("peer", string(s.Remote())).Msg("answer dropped")
		return
	}
	if !o.registry.Current(s) {
		return
	}
	// Always back to the participant the offer came from.
	if err := o.signaler.SendAnswer(s.Remote(), desc); err != nil {
		o.sendFailed(s, "send answer", err)
		return
	}
	o.logger.Info().Str("peer", string(s.Remote())).Msg("answer sent")
	o.described(s)
}

func (o *Orchestrator) handleAnswer(msg domain.NegotiationMessage) {
	if o.left || msg.Description == nil {
		return
	}
	s, ok := o.registry.Get(msg.From)
	if !ok {
		o.logger.Debug().Err(core.ErrStaleMessage).Str("peer", string(msg.From)).Msg("answer for unknown peer ignored")
		return
	}
	if err := s.ApplyRemoteAnswer(*msg.Description); err != nil {
		o.logStale(err, msg.From, "answer ignored")
		return
	}
	o.logger.Info().Str("peer", string(msg.From)).Msg("answer applied")
}

func (o *Orchestrator) handleCandidate(msg domain.NegotiationMessage) {
	if o.left || msg.Candidate == nil {
		return
	}
	s, ok := o.registry.Get(msg.From)
	if !ok {
		o.logger.Debug().Err(core.ErrStaleMessage).Str("peer", string(msg.From)).Msg("candidate for unknown peer ignored")
		return
	}
	if err := s.AddRemoteCandidate(*msg.Candidate); err != nil {
		o.logStale(err, msg.From, "candidate not applied")
	}
}

func (o *Orchestrator) logStale(err error, peer domain.ParticipantID, msg string) {
	if errors.Is(err, core.ErrStaleMessage) {
		o.logger.Debug().Err(err).Str("peer", string(peer)).Msg(msg)
		return
	}
	o.logger.Warn().Err(err).Str("peer", string(peer)).Msg(msg)
}
