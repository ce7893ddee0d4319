package core

import "github.com/dkeye/Mesh/internal/domain"

// Frame is an encoded signaling message, opaque to the relay core.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Signaler is the outbound half of the participant-side signaling adapter.
// Implementations serialize calls into envelopes and hand them to the relay
// in call order.
type Signaler interface {
	JoinRoom(room domain.RoomID) error
	LeaveRoom() error
	SendOffer(to domain.ParticipantID, desc domain.Description) error
	SendAnswer(to domain.ParticipantID, desc domain.Description) error
	SendCandidate(to domain.ParticipantID, c domain.Candidate) error
}

// SignalHandler receives inbound relay events, already decoded.
// Every method must return quickly.
type SignalHandler interface {
	OnWelcome(self domain.ParticipantID)
	OnMembershipSnapshot(peers []domain.ParticipantID)
	OnOffer(msg domain.NegotiationMessage)
	OnAnswer(msg domain.NegotiationMessage)
	OnCandidate(msg domain.NegotiationMessage)
	OnParticipantLeft(id domain.ParticipantID)
	OnRelayLost(err error)
}
