package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Mesh/internal/adapters/relayclient"
	"github.com/dkeye/Mesh/internal/adapters/rtc"
	"github.com/dkeye/Mesh/internal/config"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/mesh"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("peer failed")
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "peer",
		Short:         "Join a room on the relay and keep a full mesh of WebRTC sessions with every other member",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			zerolog.SetGlobalLevel(cfg.Level())
			return run(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.String("server", "", "relay websocket url")
	f.String("room", "", "room to join")
	f.String("video", "", "IVF file to send as video")
	f.String("audio", "", "Ogg Opus file to send as audio")
	f.String("log-level", "", "log level")
	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	sigCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	media, err := rtc.OpenFileMedia(cfg.Peer.VideoFile, cfg.Peer.AudioFile)
	if err != nil {
		return err
	}
	factory, err := rtc.NewFactory(rtc.ICEServers(cfg.Peer.ICEServers), media, zerolog.WarnLevel)
	if err != nil {
		return err
	}

	client := relayclient.New(cfg.Peer.ServerURL, relayclient.Options{})
	dialCtx, cancelDial := context.WithTimeout(sigCtx, 10*time.Second)
	err = client.Dial(dialCtx)
	cancelDial()
	if err != nil {
		return err
	}

	orch := mesh.NewOrchestrator(factory, client, mesh.Options{Room: domain.NormalizeRoomID(cfg.Peer.Room)})
	orch.Peers().Subscribe(mesh.LogSink{})

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return orch.Run(ctx) })
	g.Go(func() error { return client.Run(ctx, orch) })
	g.Go(func() error { return media.Run(ctx) })
	g.Go(func() error {
		select {
		case <-sigCtx.Done():
			log.Info().Str("module", "peer").Msg("leaving room")
			leaveCtx, cancelLeave := context.WithTimeout(context.Background(), 2*time.Second)
			if err := orch.Leave(leaveCtx); err != nil {
				log.Warn().Err(err).Str("module", "peer").Msg("leave")
			}
			cancelLeave()
			cancel()
		case <-ctx.Done():
		}
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info().Str("module", "peer").Msg("peer exited")
	return err
}
