package rtc

import (
	"fmt"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultSTUN = "stun:stun.l.google.com:19302"

// ICEServers converts configured servers, falling back to the public STUN server.
func ICEServers(servers []domain.ICEServer) []webrtc.ICEServer {
	if len(servers) == 0 {
		return DefaultWebRTCConfig().ICEServers
	}
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		srv := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, srv)
	}
	return out
}

// Factory creates one WebRTCConnection per remote participant from a shared
// API (codecs, interceptors, logging) and shared local media.
type Factory struct {
	api    *webrtc.API
	cfg    webrtc.Configuration
	media  core.LocalMedia
	logger zerolog.Logger
}

var _ core.EngineFactory = (*Factory)(nil)

// NewFactory builds the API. media may be nil for a receive-only participant.
func NewFactory(iceServers []webrtc.ICEServer, media core.LocalMedia, pionLevel zerolog.Level) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	reg := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, reg); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	s := webrtc.SettingEngine{LoggerFactory: LoggerFactory{Level: pionLevel}}

	return &Factory{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(m),
			webrtc.WithInterceptorRegistry(reg),
			webrtc.WithSettingEngine(s),
		),
		cfg:    webrtc.Configuration{ICEServers: iceServers},
		media:  media,
		logger: log.With().Str("module", "rtc.factory").Logger(),
	}, nil
}

func (f *Factory) NewEngine(remote domain.ParticipantID, hooks core.EngineHooks) (core.NegotiationEngine, error) {
	var tracks []webrtc.TrackLocal
	if f.media != nil {
		tracks = f.media.Tracks()
	}
	c, err := NewWebRTCConnection(f.api, f.cfg, remote, hooks, tracks)
	if err != nil {
		return nil, err
	}
	f.logger.Debug().Str("peer", string(remote)).Int("tracks", len(tracks)).Msg("engine created")
	return c, nil
}
