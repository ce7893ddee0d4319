package domain

import "github.com/pion/webrtc/v4"

// ConnectivityState mirrors the transport-level connection state of one pairing.
type ConnectivityState string

const (
	ConnectivityNew          ConnectivityState = "new"
	ConnectivityChecking     ConnectivityState = "checking"
	ConnectivityConnected    ConnectivityState = "connected"
	ConnectivityDisconnected ConnectivityState = "disconnected"
	ConnectivityFailed       ConnectivityState = "failed"
	ConnectivityClosed       ConnectivityState = "closed"
)

// Terminal reports whether the pairing can no longer carry media.
func (s ConnectivityState) Terminal() bool {
	switch s {
	case ConnectivityDisconnected, ConnectivityFailed, ConnectivityClosed:
		return true
	}
	return false
}

// RemoteTrack describes one incoming track. Remote is nil outside a real engine.
type RemoteTrack struct {
	ID       string
	StreamID string
	Kind     string
	Remote   *webrtc.TrackRemote
}

// RemoteStream groups remote tracks sharing a stream id.
type RemoteStream struct {
	ID     string
	Tracks []RemoteTrack
}

// PeerView is one row of the presentation list. A nil Stream means
// "negotiating or connected, stream not yet arrived".
type PeerView struct {
	Participant ParticipantID
	Stream      *RemoteStream
	State       ConnectivityState
}
