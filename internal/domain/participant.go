// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxParticipantIDLen = 36

var (
	ErrParticipantIDEmpty   = errors.New("participant id empty")
	ErrParticipantIDTooLong = errors.New("participant id too long")
)

// ParticipantID identifies one relay connection. A reconnect yields a new id.
type ParticipantID string

// NewParticipantID is what the relay hands out on every accepted connection.
func NewParticipantID() ParticipantID {
	return ParticipantID(uuid.NewString())
}

func (id ParticipantID) Validate() error {
	if len(id) == 0 {
		return ErrParticipantIDEmpty
	}
	if len(id) > MaxParticipantIDLen {
		return ErrParticipantIDTooLong
	}
	return nil
}

func (id ParticipantID) String() string { return string(id) }

// ParticipantIDs converts raw wire ids, dropping empty entries.
func ParticipantIDs(raw []string) []ParticipantID {
	out := make([]ParticipantID, 0, len(raw))
	for _, s := range raw {
		if s == "" {
			continue
		}
		out = append(out, ParticipantID(s))
	}
	return out
}
