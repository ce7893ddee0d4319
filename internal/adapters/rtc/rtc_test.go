package rtc

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectivity(t *testing.T) {
	cases := map[webrtc.PeerConnectionState]domain.ConnectivityState{
		webrtc.PeerConnectionStateNew:          domain.ConnectivityNew,
		webrtc.PeerConnectionStateConnecting:   domain.ConnectivityChecking,
		webrtc.PeerConnectionStateConnected:    domain.ConnectivityConnected,
		webrtc.PeerConnectionStateDisconnected: domain.ConnectivityDisconnected,
		webrtc.PeerConnectionStateFailed:       domain.ConnectivityFailed,
		webrtc.PeerConnectionStateClosed:       domain.ConnectivityClosed,
	}
	for in, want := range cases {
		got, ok := Connectivity(in)
		assert.True(t, ok, in.String())
		assert.Equal(t, want, got, in.String())
	}
	_, ok := Connectivity(webrtc.PeerConnectionStateUnknown)
	assert.False(t, ok)
}

func TestDrainStats(t *testing.T) {
	var s DrainStats
	for _, seq := range []uint16{10, 11, 13, 13, 12} {
		s.Observe(&rtp.Packet{Header: rtp.Header{SequenceNumber: seq}, Payload: []byte{1, 2}})
	}
	assert.Equal(t, uint64(5), s.Packets)
	assert.Equal(t, uint64(10), s.Bytes)
	assert.Equal(t, uint64(1), s.Lost)

	var w DrainStats
	w.Observe(&rtp.Packet{Header: rtp.Header{SequenceNumber: 65535}})
	w.Observe(&rtp.Packet{Header: rtp.Header{SequenceNumber: 0}})
	assert.Zero(t, w.Lost)
}

func TestICEServers(t *testing.T) {
	def := ICEServers(nil)
	require.Len(t, def, 1)
	assert.Equal(t, []string{DefaultSTUN}, def[0].URLs)

	got := ICEServers([]domain.ICEServer{{URLs: []string{"turn:turn.example.org:3478"}, Username: "u", Credential: "p"}})
	require.Len(t, got, 1)
	assert.Equal(t, "u", got[0].Username)
	assert.Equal(t, "p", got[0].Credential)
	assert.Equal(t, webrtc.ICECredentialTypePassword, got[0].CredentialType)
}

func TestLoggerFactory(t *testing.T) {
	l := LoggerFactory{Level: zerolog.Disabled}.NewLogger("ice")
	require.NotNil(t, l)
	assert.NotPanics(t, func() {
		l.Tracef("%d", 1)
		l.Debug("d")
		l.Infof("%s", "i")
		l.Warn("w")
		l.Errorf("%v", assert.AnError)
	})
}

func writeIVFHeader(t *testing.T, fourcc string) string {
	t.Helper()
	buf := make([]byte, 32)
	copy(buf[0:4], "DKIF")
	binary.LittleEndian.PutUint16(buf[4:6], 0)
	binary.LittleEndian.PutUint16(buf[6:8], 32)
	copy(buf[8:12], fourcc)
	binary.LittleEndian.PutUint16(buf[12:14], 640)
	binary.LittleEndian.PutUint16(buf[14:16], 480)
	binary.LittleEndian.PutUint32(buf[16:20], 30)
	binary.LittleEndian.PutUint32(buf[20:24], 1)
	path := filepath.Join(t.TempDir(), "video.ivf")
	require.NoError(t, os.WriteFile(path, buf, 0o600))
	return path
}

func TestOpenFileMedia(t *testing.T) {
	m, err := OpenFileMedia("", "")
	require.NoError(t, err)
	assert.Empty(t, m.Tracks())

	m, err = OpenFileMedia(writeIVFHeader(t, "VP80"), "")
	require.NoError(t, err)
	tracks := m.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, webrtc.RTPCodecTypeVideo, tracks[0].Kind())

	_, err = OpenFileMedia(filepath.Join(t.TempDir(), "missing.ivf"), "")
	assert.ErrorIs(t, err, core.ErrMediaAcquisition)

	_, err = OpenFileMedia(writeIVFHeader(t, "H264"), "")
	assert.ErrorIs(t, err, core.ErrMediaAcquisition)

	_, err = OpenFileMedia("", filepath.Join(t.TempDir(), "missing.ogg"))
	assert.ErrorIs(t, err, core.ErrMediaAcquisition)
}

func TestDetectIVFCodec(t *testing.T) {
	mime, err := detectIVFCodec(writeIVFHeader(t, "VP90"))
	require.NoError(t, err)
	assert.Equal(t, webrtc.MimeTypeVP9, mime)

	mime, err = detectIVFCodec(writeIVFHeader(t, "VP80"))
	require.NoError(t, err)
	assert.Equal(t, webrtc.MimeTypeVP8, mime)
}

func TestFrameDuration(t *testing.T) {
	cases := []struct {
		num, den uint32
		want     time.Duration
	}{
		{1, 30, 33333333 * time.Nanosecond},
		{1, 25, 40 * time.Millisecond},
		{1, 90000, defaultFrameDuration},
		{1, 1000000, defaultFrameDuration},
		{0, 30, defaultFrameDuration},
		{1, 0, defaultFrameDuration},
	}
	for _, tc := range cases {
		h := &ivfreader.IVFFileHeader{TimebaseNumerator: tc.num, TimebaseDenominator: tc.den}
		assert.Equal(t, tc.want, frameDuration(h), "%d/%d", tc.num, tc.den)
	}
}

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	f, err := NewFactory(nil, nil, zerolog.Disabled)
	require.NoError(t, err)
	return f
}

func TestConnection_OfferAnswer(t *testing.T) {
	f := newTestFactory(t)
	a, err := f.NewEngine("b", core.EngineHooks{})
	require.NoError(t, err)
	defer a.Close()
	b, err := f.NewEngine("a", core.EngineHooks{})
	require.NoError(t, err)
	defer b.Close()

	offer, err := a.CreateOffer()
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Type)
	assert.NotEmpty(t, offer.SDP)

	require.NoError(t, b.SetRemoteDescription(offer))
	answer, err := b.CreateAnswer()
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)

	require.NoError(t, a.SetRemoteDescription(answer))
}

func TestConnection_CandidateNeedsRemoteDescription(t *testing.T) {
	f := newTestFactory(t)
	e, err := f.NewEngine("b", core.EngineHooks{})
	require.NoError(t, err)
	defer e.Close()

	assert.Error(t, e.AddICECandidate(domain.Candidate{Candidate: "candidate:1 1 udp 2130706431 192.0.2.1 5000 typ host"}))
}

func TestConnection_Rollback(t *testing.T) {
	f := newTestFactory(t)
	a, err := f.NewEngine("b", core.EngineHooks{})
	require.NoError(t, err)
	defer a.Close()
	b, err := f.NewEngine("a", core.EngineHooks{})
	require.NoError(t, err)
	defer b.Close()

	_, err = a.CreateOffer()
	require.NoError(t, err)
	theirs, err := b.CreateOffer()
	require.NoError(t, err)

	require.NoError(t, a.Rollback())
	require.NoError(t, a.SetRemoteDescription(theirs))
	_, err = a.CreateAnswer()
	require.NoError(t, err)
}

func TestConnection_CloseIsIdempotent(t *testing.T) {
	f := newTestFactory(t)
	e, err := f.NewEngine("b", core.EngineHooks{})
	require.NoError(t, err)
	require.NoError(t, e.Close())
	assert.NoError(t, e.Close())
}
