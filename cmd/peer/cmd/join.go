package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/services"
	"roomlink/internal/infrastructure/media"
	"roomlink/internal/infrastructure/monitoring"
	"roomlink/internal/infrastructure/signal"
	webrtcinfra "roomlink/internal/infrastructure/webrtc"
	"roomlink/pkg/config"
	"roomlink/pkg/logger"
	"roomlink/pkg/tracing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const statusInterval = 10 * time.Second

var (
	flagRoom        string
	flagRelay       string
	flagVideo       string
	flagAudio       string
	flagNoAudio     bool
	flagNoVideo     bool
	flagMetricsAddr string
	flagTable       bool
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a room and stream local media to every member",
	Long: `Join a room on the relay. Every member already present receives an offer
from this peer; members arriving later offer to it.

SIGUSR1 toggles audio and SIGUSR2 toggles video while connected.

Examples:
  roomlink-peer join --room standup --video clip.ivf --audio voice.ogg
  roomlink-peer join --room "http://localhost:8081/?room=standup" --no-video
  roomlink-peer join --relay ws://relay.example.com/ws`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadJoinConfig(cmd)
		if err != nil {
			return err
		}
		return join(cfg)
	},
}

func init() {
	joinCmd.Flags().StringVarP(&flagRoom, "room", "r", "", "room id or invite link (a new room when empty)")
	joinCmd.Flags().StringVar(&flagRelay, "relay", "", "relay websocket URL")
	joinCmd.Flags().StringVar(&flagVideo, "video", "", "IVF (VP8/VP9) file used as the camera")
	joinCmd.Flags().StringVar(&flagAudio, "audio", "", "Ogg/Opus file used as the microphone")
	joinCmd.Flags().BoolVar(&flagNoAudio, "no-audio", false, "start with audio muted")
	joinCmd.Flags().BoolVar(&flagNoVideo, "no-video", false, "start with video disabled")
	joinCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	joinCmd.Flags().BoolVar(&flagTable, "table", false, "print a peer table to stdout instead of status log lines")
}

// loadJoinConfig layers command flags over the config file.
func loadJoinConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("room") {
		cfg.Session.RoomID = flagRoom
	}
	if flags.Changed("relay") {
		cfg.Session.RelayURL = flagRelay
	}
	if flags.Changed("video") {
		cfg.Media.VideoFile = flagVideo
	}
	if flags.Changed("audio") {
		cfg.Media.AudioFile = flagAudio
	}
	if flagNoAudio {
		cfg.Media.AudioEnabled = false
	}
	if flagNoVideo {
		cfg.Media.VideoEnabled = false
	}
	if flags.Changed("metrics-addr") {
		cfg.Monitoring.MetricsAddress = flagMetricsAddr
	}
	return cfg, nil
}

func join(cfg *config.Config) error {
	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar().With("component", "peer")

	roomID, created, err := resolveRoomID(cfg.Session.RoomID)
	if err != nil {
		return err
	}

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName + "-peer",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialise tracing: %w", err)
	}
	defer tp.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Local media first: without it there is nothing to join with.
	stream, err := media.Acquire(media.ConfigFromApp(cfg), log.With("component", "media"))
	if err != nil {
		log.Errorw("failed to acquire local media", "error", err)
		return err
	}
	defer stream.Close()
	if err := stream.Start(ctx); err != nil {
		return err
	}

	wc, err := webrtcinfra.ConfigFromApp(cfg)
	if err != nil {
		return err
	}
	factory, err := webrtcinfra.NewNegotiatorFactory(wc, log.With("component", "webrtc"))
	if err != nil {
		return err
	}

	transport, err := signal.Dial(ctx, signal.TransportConfigFromApp(cfg), log.With("component", "transport"))
	if err != nil {
		return err
	}

	opts := []services.Option{
		services.WithLogger(log.With("component", "session")),
		services.WithPlayback(media.NewPlayback(cfg.Media.RecordDir, log.With("component", "playback"))),
		services.WithNegotiationTimeout(cfg.Session.NegotiationTimeout),
		services.WithQualityMonitor(
			services.NewQualityMonitor(cfg.Quality.Interval, log.With("component", "quality")).
				WithStatsTimeout(cfg.Quality.StatsTimeout),
		),
	}

	var metricsSrv *http.Server
	if cfg.Monitoring.PrometheusEnabled && cfg.Monitoring.MetricsAddress != "" {
		opts = append(opts, services.WithMetrics(monitoring.NewPrometheusCollector(nil)))
		metricsSrv = serveMetrics(cfg.Monitoring.MetricsAddress, log)
	}

	session := services.NewSessionManager(transport, factory, opts...)
	runErr := make(chan error, 1)
	go func() {
		runErr <- session.Run(ctx)
	}()

	joinCtx, joinCancel := context.WithTimeout(ctx, cfg.Session.JoinTimeout)
	err = session.Join(joinCtx, roomID, stream)
	joinCancel()
	if err != nil {
		cancel()
		<-runErr
		return err
	}

	if created {
		log.Infow("started a new room", "room_id", roomID, "invite", inviteLink(cfg.Session.RelayURL, roomID))
	}

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	defer ossignal.Stop(sigChan)

	status := time.NewTicker(statusInterval)
	defer status.Stop()

	for {
		select {
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGUSR1:
				stream.SetAudioEnabled(!stream.AudioEnabled())
				log.Infow("audio toggled", "enabled", stream.AudioEnabled())
				continue
			case syscall.SIGUSR2:
				stream.SetVideoEnabled(!stream.VideoEnabled())
				log.Infow("video toggled", "enabled", stream.VideoEnabled())
				continue
			}
			log.Infow("leaving room", "signal", sig)
			leaveCtx, leaveCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			if err := session.Leave(leaveCtx); err != nil {
				log.Warnw("leave did not complete", "error", err)
			}
			leaveCancel()
			stopMetrics(metricsSrv, log)
			return waitRun(runErr, cancel)

		case <-status.C:
			if flagTable {
				fmt.Println(renderPeerTable(roomID, session.Snapshot()))
			} else {
				logStatus(log, session.Snapshot())
			}

		case err := <-runErr:
			stopMetrics(metricsSrv, log)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		}
	}
}

func waitRun(runErr <-chan error, cancel context.CancelFunc) error {
	select {
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	case <-time.After(5 * time.Second):
		cancel()
		<-runErr
		return nil
	}
}

func logStatus(log *zap.SugaredLogger, peers []domain.RemotePeerInfo) {
	if len(peers) == 0 {
		log.Info("waiting for other members")
		return
	}
	for _, p := range peers {
		log.Infow("remote peer",
			"peer_id", p.ID,
			"role", p.Role,
			"state", p.State.String(),
			"rtt", p.Quality.RTT(),
			"packets_lost", p.Quality.PacketsLost,
		)
	}
}

func serveMetrics(addr string, log *zap.SugaredLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Infow("serving metrics", "address", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warnw("metrics server failed", "error", err)
		}
	}()
	return srv
}

func stopMetrics(srv *http.Server, log *zap.SugaredLogger) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warnw("failed to stop metrics server", "error", err)
	}
}
