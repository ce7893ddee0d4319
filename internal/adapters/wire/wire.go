// Package wire is the JSON envelope exchanged between participants and the relay.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Mesh/internal/domain"
)

const (
	TypeWelcome     = "welcome"
	TypeJoinRoom    = "joinRoom"
	TypeLeaveRoom   = "leaveRoom"
	TypeNeedToOffer = "needToOffer"
	TypeOffer       = "offer"
	TypeAnswer      = "answer"
	TypeICE         = "ice"
	TypePeerLeft    = "peerLeft"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeWhoAmI      = "whoami"
	TypeError       = "error"
)

var (
	ErrMissingType    = errors.New("envelope without type")
	ErrMissingPayload = errors.New("envelope without payload")
)

// Envelope is flat: which fields are set depends on Type.
type Envelope struct {
	Type         string               `json:"type"`
	Room         domain.RoomID        `json:"room,omitempty"`
	ID           domain.ParticipantID `json:"id,omitempty"`
	Peers        []string             `json:"peers,omitempty"`
	FromClientID domain.ParticipantID `json:"fromClientId,omitempty"`
	ToClientID   domain.ParticipantID `json:"toClientId,omitempty"`
	SDP          *domain.Description  `json:"sdp,omitempty"`
	ICE          *domain.Candidate    `json:"ice,omitempty"`
	Error        string               `json:"error,omitempty"`
}

func Encode(e Envelope) ([]byte, error) {
	if e.Type == "" {
		return nil, ErrMissingType
	}
	return json.Marshal(e)
}

func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if e.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return e, nil
}

// Negotiation extracts the offer/answer/ice payload.
func (e Envelope) Negotiation() (domain.NegotiationMessage, error) {
	msg := domain.NegotiationMessage{
		From:        e.FromClientID,
		To:          e.ToClientID,
		Description: e.SDP,
		Candidate:   e.ICE,
	}
	switch e.Type {
	case TypeOffer, TypeAnswer:
		if e.SDP == nil {
			return msg, fmt.Errorf("%s: %w", e.Type, ErrMissingPayload)
		}
		msg.Candidate = nil
	case TypeICE:
		if e.ICE == nil {
			return msg, fmt.Errorf("%s: %w", e.Type, ErrMissingPayload)
		}
		msg.Description = nil
	default:
		return msg, fmt.Errorf("%q is not a negotiation envelope", e.Type)
	}
	return msg, nil
}

func Offer(from, to domain.ParticipantID, d domain.Description) Envelope {
	return Envelope{Type: TypeOffer, FromClientID: from, ToClientID: to, SDP: &d}
}

func Answer(from, to domain.ParticipantID, d domain.Description) Envelope {
	return Envelope{Type: TypeAnswer, FromClientID: from, ToClientID: to, SDP: &d}
}

func ICE(from, to domain.ParticipantID, c domain.Candidate) Envelope {
	return Envelope{Type: TypeICE, FromClientID: from, ToClientID: to, ICE: &c}
}

func Welcome(id domain.ParticipantID) Envelope {
	return Envelope{Type: TypeWelcome, ID: id}
}

func NeedToOffer(peers []domain.ParticipantID) Envelope {
	ids := make([]string, len(peers))
	for i, p := range peers {
		ids[i] = string(p)
	}
	return Envelope{Type: TypeNeedToOffer, Peers: ids}
}

func PeerLeft(id domain.ParticipantID) Envelope {
	return Envelope{Type: TypePeerLeft, ID: id}
}

func Failure(reason string) Envelope {
	return Envelope{Type: TypeError, Error: reason}
}
