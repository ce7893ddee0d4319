package core

import (
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/pion/webrtc/v4"
)

// NegotiationEngine is the per-pairing handle onto the media-transport library.
// Implementations must be safe for use from more than one goroutine: offer and
// answer generation run off the orchestrator loop.
type NegotiationEngine interface {
	// CreateOffer creates an offer and applies it as the local description.
	CreateOffer() (domain.Description, error)
	// CreateAnswer creates an answer to the applied remote offer and applies it locally.
	CreateAnswer() (domain.Description, error)
	SetRemoteDescription(domain.Description) error
	// AddICECandidate applies a remote candidate. It fails until a remote
	// description has been applied.
	AddICECandidate(domain.Candidate) error
	// Rollback discards a pending local offer.
	Rollback() error
	// Close should stop all underlying media resources.
	Close() error
}

// EngineHooks are fired asynchronously from engine-owned goroutines.
type EngineHooks struct {
	OnICECandidate       func(domain.Candidate)
	OnConnectivityChange func(domain.ConnectivityState)
	OnTrack              func(domain.RemoteTrack)
}

type EngineFactory interface {
	NewEngine(remote domain.ParticipantID, hooks EngineHooks) (NegotiationEngine, error)
}

// LocalMedia is the capture side shared read-only by every pairing.
type LocalMedia interface {
	Tracks() []webrtc.TrackLocal
}

// PresentationSink re-renders whenever the list of remote peers changes.
type PresentationSink interface {
	Render(peers []domain.PeerView)
}
