package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"roomlink/internal/core/domain"
	"roomlink/internal/core/ports"
	"roomlink/internal/core/services"
	httphandlers "roomlink/internal/handlers/http"
	"roomlink/internal/infrastructure/distributed"
	"roomlink/internal/infrastructure/middleware"
	"roomlink/internal/infrastructure/monitoring"
	"roomlink/internal/infrastructure/reliability"
	"roomlink/internal/infrastructure/repositories"
	"roomlink/internal/infrastructure/signal"
	"roomlink/pkg/config"
	"roomlink/pkg/logger"
	"roomlink/pkg/tracing"
	"roomlink/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// roomDirectory prefers the shared registry when rooms span instances.
type roomDirectory struct {
	hub    *signal.Hub
	bridge *distributed.RelayBridge
}

func (d roomDirectory) Stats(ctx context.Context) (signal.HubStats, error) {
	return d.hub.Stats(ctx)
}

func (d roomDirectory) Members(ctx context.Context, roomID domain.RoomID) ([]domain.PeerID, error) {
	if d.bridge != nil {
		return d.bridge.RoomMembers(ctx, roomID)
	}
	return d.hub.Members(ctx, roomID)
}

func main() {
	startTime := time.Now()

	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// logger is not configured yet
		logger.New("info").Sugar().Fatalw("failed to load config", "path", *configPath, "error", err)
	}

	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar().With("component", "relay")

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName + "-relay",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialise tracing", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := monitoring.NewPrometheusCollector(nil)

	repoFactory := repositories.NewRepositoryFactory(cfg, log)
	transcripts := repoFactory.CreateTranscriptRepository()
	if w, ok := transcripts.(*reliability.TranscriptRepositoryWrapper); ok {
		collector.WatchCircuitBreaker(w.CircuitBreaker())
	}
	var minutesService ports.MinutesService = services.NewMinutesService(transcripts, log.With("component", "minutes"))
	if cfg.Minutes.CacheTTL > 0 {
		cached := services.NewCachedMinutesService(minutesService, cfg.Minutes.CacheTTL)
		defer cached.Close()
		minutesService = cached
	}

	hubOpts := []signal.HubOption{signal.WithHubMetrics(collector)}
	var bridge *distributed.RelayBridge
	var bus *distributed.EventBus
	if cfg.Signal.Distributed {
		if client := repoFactory.RedisClient(); client != nil {
			instanceID := cfg.Signal.InstanceID
			if instanceID == "" {
				instanceID = utils.GenerateID("relay")
			}
			bus = distributed.NewEventBus(client, instanceID, log)
			bridge = distributed.NewRelayBridge(bus, distributed.NewSharedPeerRegistry(client, instanceID, log), log)
			hubOpts = append(hubOpts, signal.WithBridge(bridge))
			log.Infow("relay bridge enabled", "instance_id", instanceID)
		} else {
			log.Warn("signal.distributed is set but Redis is unavailable; rooms stay local to this instance")
		}
	}

	hub := signal.NewHub(log.With("component", "hub"), hubOpts...)
	go hub.Run(ctx)

	if bus != nil {
		ready := make(chan struct{})
		go func() {
			if err := bus.Subscribe(ctx, ready, hub.Remote); err != nil && ctx.Err() == nil {
				log.Errorw("relay bridge subscription ended", "error", err)
			}
		}()
	}

	wsServer := signal.NewWebSocketServer(hub, signal.SettingsFromConfig(cfg), log.With("component", "websocket"))

	health := monitoring.NewHealthChecker()
	health.AddRelayCheck(func(ctx context.Context) (int, error) {
		stats, err := hub.Stats(ctx)
		return stats.Rooms, err
	}, 2*time.Second)
	health.AddRepositoryCheck(transcripts, 2*time.Second)
	if client := repoFactory.RedisClient(); client != nil {
		health.AddRedisCheck(client, 2*time.Second)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.LoggingMiddleware(logger.NewContextLogger(zapLogger.Named("http")), "/health", "/ready", "/metrics"))
	router.Use(middleware.ErrorHandlerMiddleware(log))

	router.GET("/ws", gin.WrapF(wsServer.HandleWebSocket))

	api := router.Group("/")
	api.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	httphandlers.NewMinutesHandler(minutesService).SetupRoutes(api)
	httphandlers.NewRoomHandler(roomDirectory{hub: hub, bridge: bridge}).SetupRoutes(api)

	router.GET("/health", func(c *gin.Context) {
		details, err := wsServer.Health(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		details["status"] = "healthy"
		details["uptime"] = time.Since(startTime).String()
		c.JSON(http.StatusOK, details)
	})

	router.GET("/ready", func(c *gin.Context) {
		status := health.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// no WriteTimeout: hijacked websocket connections manage their own deadlines
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting relay", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdown(log, cfg, srv, bridge, repoFactory, tp)
	cancel()
	log.Info("relay stopped")
}

func shutdown(
	log *zap.SugaredLogger,
	cfg *config.Config,
	srv *http.Server,
	bridge *distributed.RelayBridge,
	repoFactory *repositories.RepositoryFactory,
	tp *tracing.TracerProvider,
) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}

	if bridge != nil {
		if err := bridge.Shutdown(ctx); err != nil {
			log.Warnw("failed to clear room presence", "error", err)
		}
	}

	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}

	if err := tp.Shutdown(ctx); err != nil {
		log.Warnw("failed to flush traces", "error", err)
	}
}
