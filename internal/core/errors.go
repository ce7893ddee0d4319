package core

import (
	"errors"
	"fmt"

	"github.com/dkeye/Mesh/internal/domain"
)

var (
	// ErrNegotiationBusy: a description exchange is already pending for the peer.
	ErrNegotiationBusy = errors.New("negotiation busy")
	// ErrStaleMessage: answer or candidate for an evicted, unknown or closed session.
	ErrStaleMessage = errors.New("stale message")
	// ErrMediaAcquisition: the local capture source is unavailable.
	ErrMediaAcquisition = errors.New("media acquisition failure")
	// ErrConnectivityFailure: the pairing's transport reached failed/disconnected/closed.
	ErrConnectivityFailure = errors.New("connectivity failure")
	// ErrRelayClosed: the signaling relay connection is gone.
	ErrRelayClosed  = errors.New("relay closed")
	ErrBackpressure = errors.New("backpressure")
)

// PeerError ties an engine failure to the operation and pairing it happened on.
type PeerError struct {
	Op   string
	Peer domain.ParticipantID
	Err  error
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Peer, e.Err)
}

func (e *PeerError) Unwrap() error { return e.Err }

func NewPeerError(op string, peer domain.ParticipantID, err error) *PeerError {
	return &PeerError{Op: op, Peer: peer, Err: err}
}
