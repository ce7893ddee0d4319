package domain

import (
	"errors"
	"strconv"

	"github.com/pion/webrtc/v4"
)

// Description is an offer or answer produced by the negotiation engine.
type Description = webrtc.SessionDescription

// Candidate is one ICE connectivity candidate, trickled separately from descriptions.
type Candidate = webrtc.ICECandidateInit

var ErrEmptyPayload = errors.New("negotiation message without payload")

// NegotiationMessage is routed by the relay using To; From is stamped by the relay.
// Exactly one of Description and Candidate is set.
type NegotiationMessage struct {
	From        ParticipantID
	To          ParticipantID
	Description *Description
	Candidate   *Candidate
}

func (m NegotiationMessage) Validate() error {
	if err := m.From.Validate(); err != nil {
		return err
	}
	if m.Description == nil && m.Candidate == nil {
		return ErrEmptyPayload
	}
	return nil
}

// CandidateKey identifies a candidate for duplicate suppression.
func CandidateKey(c Candidate) string {
	key := c.Candidate
	if c.SDPMid != nil {
		key += "|" + *c.SDPMid
	}
	if c.SDPMLineIndex != nil {
		key += "|" + strconv.FormatUint(uint64(*c.SDPMLineIndex), 10)
	}
	return key
}
