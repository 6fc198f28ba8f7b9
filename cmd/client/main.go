package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VideoCall/internal/adapters/capture"
	"github.com/dkeye/VideoCall/internal/adapters/render"
	"github.com/dkeye/VideoCall/internal/adapters/rtc"
	sig "github.com/dkeye/VideoCall/internal/adapters/signal"
	"github.com/dkeye/VideoCall/internal/app/session"
	"github.com/dkeye/VideoCall/internal/config"
	"github.com/dkeye/VideoCall/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	flags := config.Flags("client")
	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("bad flags")
	}
	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	camera, err := capture.NewTestPattern("test-pattern", cfg.Video.CaptureWidth, cfg.Video.CaptureHeight, cfg.Video.FrameRate)
	if err != nil {
		log.Fatal().Err(err).Msg("open capture")
	}
	engine, err := rtc.NewEngine(rtc.WebRTCConfig(cfg.ICEServers))
	if err != nil {
		log.Fatal().Err(err).Msg("create engine")
	}
	// Capture frames feed the local preview only.
	log.Warn().
		Str("video_track", session.VideoTrackName).
		Str("audio_track", session.AudioTrackName).
		Msg("local media is not encoded: the remote peer receives silent tracks with no video")

	transport, err := newTransport(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create signal transport")
	}

	sess, err := session.New(session.Config{
		Endpoint:       cfg.Endpoint(),
		LocalCapacity:  cfg.Video.LocalCapacity,
		RemoteCapacity: cfg.Video.RemoteCapacity,
		FrameRate:      cfg.Video.FrameRate,
	}, camera, engine, transport, render.NewStatsSurface())
	if err != nil {
		log.Fatal().Err(err).Msg("create session")
	}
	defer sess.Shutdown()

	if err := sess.Start(ctx); err != nil {
		log.Error().Err(err).Msg("start session")
		return
	}

	if cfg.Initiate {
		callCtx, callCancel := context.WithTimeout(ctx, cfg.Signal.RequestTimeout)
		if err := sess.Call(callCtx); err != nil {
			log.Error().Err(err).Msg("place call")
		}
		callCancel()
	}

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down")
			return
		case <-ticker.C:
			local, remote := sess.BridgeStats()
			log.Info().
				Interface("local", local).
				Interface("remote", remote).
				Msg("bridge stats")
		}
	}
}

func newTransport(cfg *config.Config) (core.SignalTransport, error) {
	tc := sig.Config{
		ServerAddress:  cfg.Signal.ServerAddress,
		Local:          cfg.Endpoint().Local,
		PollInterval:   cfg.Signal.PollInterval,
		RequestTimeout: cfg.Signal.RequestTimeout,
		MaxBackoff:     cfg.Signal.MaxBackoff,
	}
	if cfg.Signal.Transport == "ws" {
		return sig.NewWSTransport(tc)
	}
	return sig.NewPollingTransport(tc)
}
