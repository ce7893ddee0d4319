package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const oggPageDuration = 20 * time.Millisecond

// FileMedia is local media read from disk: an IVF video file and/or an Ogg
// Opus file, looped forever. The same tracks are shared by every session.
type FileMedia struct {
	videoPath string
	audioPath string
	video     *webrtc.TrackLocalStaticSample
	audio     *webrtc.TrackLocalStaticSample
	logger    zerolog.Logger
}

var _ core.LocalMedia = (*FileMedia)(nil)

// OpenFileMedia validates the files and creates one track per file. Empty
// paths are skipped; with both empty the result has no tracks and sessions
// fall back to receive-only.
func OpenFileMedia(videoPath, audioPath string) (*FileMedia, error) {
	m := &FileMedia{
		videoPath: videoPath,
		audioPath: audioPath,
		logger:    log.With().Str("module", "rtc.media").Logger(),
	}
	streamID := "mesh-" + uuid.NewString()

	if videoPath != "" {
		mime, err := detectIVFCodec(videoPath)
		if err != nil {
			return nil, fmt.Errorf("%w: video %s: %v", core.ErrMediaAcquisition, videoPath, err)
		}
		m.video, err = webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, "video", streamID)
		if err != nil {
			return nil, fmt.Errorf("%w: video track: %v", core.ErrMediaAcquisition, err)
		}
	}
	if audioPath != "" {
		if err := checkOgg(audioPath); err != nil {
			return nil, fmt.Errorf("%w: audio %s: %v", core.ErrMediaAcquisition, audioPath, err)
		}
		var err error
		m.audio, err = webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
		if err != nil {
			return nil, fmt.Errorf("%w: audio track: %v", core.ErrMediaAcquisition, err)
		}
	}
	return m, nil
}

func (m *FileMedia) Tracks() []webrtc.TrackLocal {
	var out []webrtc.TrackLocal
	if m.audio != nil {
		out = append(out, m.audio)
	}
	if m.video != nil {
		out = append(out, m.video)
	}
	return out
}

// Run writes samples until ctx ends.
func (m *FileMedia) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if m.video != nil {
		g.Go(func() error { return m.loop(ctx, "video", m.playIVF) })
	}
	if m.audio != nil {
		g.Go(func() error { return m.loop(ctx, "audio", m.playOgg) })
	}
	return g.Wait()
}

func (m *FileMedia) loop(ctx context.Context, kind string, play func(context.Context) error) error {
	for {
		err := play(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, io.EOF):
			m.logger.Debug().Str("kind", kind).Msg("rewinding")
		case err != nil:
			return fmt.Errorf("%s pump: %w", kind, err)
		}
	}
}

func (m *FileMedia) playIVF(ctx context.Context) error {
	f, err := os.Open(m.videoPath)
	if err != nil {
		return err
	}
	defer f.Close()

	ivf, header, err := ivfreader.NewWith(f)
	if err != nil {
		return err
	}
	frame := frameDuration(header)
	ticker := time.NewTicker(frame)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		data, _, err := ivf.ParseNextFrame()
		if err != nil {
			return err
		}
		if err := m.video.WriteSample(media.Sample{Data: data, Duration: frame}); err != nil {
			return err
		}
	}
}

func (m *FileMedia) playOgg(ctx context.Context) error {
	f, err := os.Open(m.audioPath)
	if err != nil {
		return err
	}
	defer f.Close()

	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		return err
	}
	var lastGranule uint64
	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		page, header, err := ogg.ParseNextPage()
		if err != nil {
			return err
		}
		// Opus granule positions count 48 kHz samples.
		samples := float64(header.GranulePosition - lastGranule)
		lastGranule = header.GranulePosition
		d := time.Duration(samples/48000*1000) * time.Millisecond
		if err := m.audio.WriteSample(media.Sample{Data: page, Duration: d}); err != nil {
			return err
		}
	}
}

const defaultFrameDuration = 33 * time.Millisecond

// frameDuration is the pacing interval taken from the IVF timebase. Timebases
// finer than a millisecond are timestamp clocks, not frame rates.
func frameDuration(h *ivfreader.IVFFileHeader) time.Duration {
	if h.TimebaseDenominator == 0 || h.TimebaseNumerator == 0 {
		return defaultFrameDuration
	}
	d := time.Duration(uint64(time.Second) * uint64(h.TimebaseNumerator) / uint64(h.TimebaseDenominator))
	if d < time.Millisecond {
		return defaultFrameDuration
	}
	return d
}

// detectIVFCodec reads the IVF header and maps its FourCC onto a codec.
func detectIVFCodec(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	_, header, err := ivfreader.NewWith(f)
	if err != nil {
		return "", err
	}
	return mimeForFourCC(header.FourCC)
}

func mimeForFourCC(fourcc string) (string, error) {
	switch fourcc {
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	case "AV01":
		return webrtc.MimeTypeAV1, nil
	}
	return "", fmt.Errorf("unsupported ivf codec %q", fourcc)
}

func checkOgg(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, _, err = oggreader.NewWith(f)
	return err
}
