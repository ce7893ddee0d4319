package rtc

import (
	"context"
	"errors"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// WebRTCConnection is the pion-backed negotiation engine for one pairing.
// Descriptions are returned as soon as they are applied locally; candidates
// trickle through the OnICECandidate hook.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	remote domain.ParticipantID
	hooks  core.EngineHooks
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
}

var _ core.NegotiationEngine = (*WebRTCConnection)(nil)

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{DefaultSTUN},
			},
		},
	}
}

// NewWebRTCConnection builds the peer connection, attaches tracks (or
// receive-only transceivers when there are none) and wires hooks before any
// negotiation can start.
func NewWebRTCConnection(api *webrtc.API, cfg webrtc.Configuration, remote domain.ParticipantID, hooks core.EngineHooks, tracks []webrtc.TrackLocal) (*WebRTCConnection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &WebRTCConnection{
		pc:     pc,
		remote: remote,
		hooks:  hooks,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With().Str("module", "webrtc").Str("peer", string(remote)).Logger(),
	}
	if err := c.attachMedia(tracks); err != nil {
		c.Close()
		return nil, err
	}
	c.bind()
	return c, nil
}

func (c *WebRTCConnection) attachMedia(tracks []webrtc.TrackLocal) error {
	if len(tracks) == 0 {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err := c.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				return err
			}
		}
		return nil
	}
	for _, t := range tracks {
		sender, err := c.pc.AddTrack(t)
		if err != nil {
			return err
		}
		go c.readRTCP(sender)
	}
	return nil
}

// readRTCP keeps interceptors (NACK, reports) fed for a local track.
func (c *WebRTCConnection) readRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (c *WebRTCConnection) bind() {
	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || c.hooks.OnICECandidate == nil {
			return
		}
		c.hooks.OnICECandidate(cand.ToJSON())
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		st, ok := Connectivity(s)
		if !ok || c.hooks.OnConnectivityChange == nil {
			return
		}
		c.hooks.OnConnectivityChange(st)
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if c.hooks.OnTrack != nil {
			c.hooks.OnTrack(domain.RemoteTrack{
				ID:       track.ID(),
				StreamID: track.StreamID(),
				Kind:     track.Kind().String(),
				Remote:   track,
			})
		}
		go Drain(c.ctx, track, c.logger)
	})
}

// Connectivity maps pion's aggregate connection state onto the mesh's.
func Connectivity(s webrtc.PeerConnectionState) (domain.ConnectivityState, bool) {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return domain.ConnectivityNew, true
	case webrtc.PeerConnectionStateConnecting:
		return domain.ConnectivityChecking, true
	case webrtc.PeerConnectionStateConnected:
		return domain.ConnectivityConnected, true
	case webrtc.PeerConnectionStateDisconnected:
		return domain.ConnectivityDisconnected, true
	case webrtc.PeerConnectionStateFailed:
		return domain.ConnectivityFailed, true
	case webrtc.PeerConnectionStateClosed:
		return domain.ConnectivityClosed, true
	}
	return "", false
}

func (c *WebRTCConnection) CreateOffer() (domain.Description, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return domain.Description{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return domain.Description{}, err
	}
	return offer, nil
}

func (c *WebRTCConnection) CreateAnswer() (domain.Description, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return domain.Description{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return domain.Description{}, err
	}
	return answer, nil
}

func (c *WebRTCConnection) SetRemoteDescription(d domain.Description) error {
	return c.pc.SetRemoteDescription(d)
}

func (c *WebRTCConnection) AddICECandidate(ci domain.Candidate) error {
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) Rollback() error {
	return c.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
}

func (c *WebRTCConnection) LocalDescription() *webrtc.SessionDescription {
	return c.pc.LocalDescription()
}

func (c *WebRTCConnection) Close() error {
	c.cancel()
	if err := c.pc.Close(); err != nil && !errors.Is(err, webrtc.ErrConnectionClosed) {
		c.logger.Error().Err(err).Msg("close error")
		return err
	}
	c.logger.Info().Msg("closed")
	return nil
}
