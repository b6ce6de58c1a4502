package main

import (
	"context"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"
	"roomrelay/internal/core/services"
	httphandlers "roomrelay/internal/handlers/http"
	"roomrelay/internal/infrastructure/distributed"
	"roomrelay/internal/infrastructure/engine"
	"roomrelay/internal/infrastructure/middleware"
	"roomrelay/internal/infrastructure/monitoring"
	"roomrelay/internal/infrastructure/recorder"
	"roomrelay/internal/infrastructure/repositories"
	"roomrelay/internal/infrastructure/signal"
	"roomrelay/pkg/config"
	"roomrelay/pkg/logger"
	"roomrelay/pkg/storage"
	"roomrelay/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/roomrelay/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	// Media engine
	engineCfg := engine.Config{WorkerCount: cfg.Engine.WorkerCount}
	engineCfg.PortRange.Min = cfg.Engine.PortRange.Min
	engineCfg.PortRange.Max = cfg.Engine.PortRange.Max
	for _, s := range cfg.Engine.ICEServers {
		engineCfg.ICEServers = append(engineCfg.ICEServers, s.URLs...)
	}
	mediaEngine, err := engine.New(engineCfg, log)
	if err != nil {
		log.Fatalw("failed to start media engine", "error", err)
	}
	defer mediaEngine.Close()

	ctx := context.Background()
	routerPool, err := services.NewRouterPool(ctx, mediaEngine, cfg.Rooms.RouterPoolSize, log)
	if err != nil {
		log.Fatalw("failed to warm router pool", "error", err)
	}

	// Persistence: Redis with memory fallback, flat files for artifacts
	storeFactory, err := repositories.NewStoreFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create store factory", "error", err)
	}
	defer storeFactory.Close()
	metadataStore := storeFactory.CreateMetadataStore()

	objectStore, err := storage.NewFileStorage(cfg.Storage.Dir)
	if err != nil {
		log.Fatalw("failed to open object storage", "error", err)
	}

	// Event bus rides the Redis connection when available
	var events ports.EventPublisher = distributed.NopPublisher{}
	if client := storeFactory.RedisClient(); client != nil {
		bus := distributed.NewEventBus(client, utils.GenerateID("instance"), log)
		go func() {
			err := bus.Subscribe(ctx, func(event ports.RoomEvent) error {
				log.Debugw("room event observed", "type", event.Type, "room_id", event.RoomID)
				return nil
			})
			if err != nil {
				log.Warnw("event bus subscription ended", "error", err)
			}
		}()
		events = bus
	}

	// Metrics
	var metrics services.Metrics = services.NopMetrics{}
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector()
	}

	// Recorder subprocess factory
	recorderFactory, err := recorder.NewFactory(recorder.Config{
		BinaryPath:      cfg.Recording.FFmpegPath,
		GracefulTimeout: cfg.Recording.GracefulTimeout,
		KillTimeout:     cfg.Recording.KillTimeout,
	}, log)
	if err != nil {
		log.Fatalw("ffmpeg binary not available", "error", err, "path", cfg.Recording.FFmpegPath)
	}

	tokenService := services.NewTokenService(cfg.Auth.JWTSecret, 0)
	capabilityRegistry := services.NewCapabilityRegistry(mediaEngine)
	sessionTracker := services.NewSessionTracker(metadataStore, events, log)

	// The websocket server doubles as the services' Notifier, so it is
	// built first and bound to the services afterwards.
	wsServer := signal.NewWebSocketServer(signal.Config{
		PingInterval: cfg.Signal.PingInterval,
		ReadTimeout:  cfg.Signal.PongTimeout,
	}, nil, nil, nil, tokenService, log)

	roomService := services.NewRoomService(
		services.RoomConfig{EvictionDelay: cfg.Rooms.EvictionDelay},
		routerPool,
		capabilityRegistry,
		sessionTracker,
		metadataStore,
		events,
		wsServer,
		metrics,
		log,
	)
	mediaService := services.NewMediaService(roomService, wsServer, log)
	recordingService := services.NewRecordingService(
		services.RecordingConfig{
			MaxConcurrent:    cfg.Recording.MaxConcurrent,
			OutputDir:        cfg.Recording.OutputDir,
			ReadinessTimeout: cfg.Recording.ReadinessTimeout,
			DrainInterval:    cfg.Recording.DrainInterval,
			MinFileSize:      cfg.Recording.MinFileSize,
			CapturePortMin:   cfg.Recording.CapturePortMin,
			CapturePortMax:   cfg.Recording.CapturePortMax,
		},
		roomService,
		capabilityRegistry,
		recorderFactory,
		metadataStore,
		objectStore,
		events,
		wsServer,
		metrics,
		log,
	)
	roomService.BindRecording(recordingService.IsRecording, func(ctx context.Context, roomID domain.RoomID) {
		if _, err := recordingService.StopRecording(ctx, roomID); err != nil {
			log.Warnw("failed to auto-stop recording for evicted room", "room_id", roomID, "error", err)
		}
	})
	wsServer.BindServices(roomService, mediaService, recordingService)
	mediaService.BindProducerObserver(recordingService.OnProducerAdded)

	// REST / metrics surface
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	roomHandler := httphandlers.NewRoomHandler(roomService, recordingService, metadataStore, tokenService, storeFactory.HealthCheck)
	roomHandler.SetupRoutes(router)

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	apiSrv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Signaling surface
	signalMux := http.NewServeMux()
	signalMux.HandleFunc("/ws", wsServer.HandleWebSocket)
	signalSrv := &http.Server{
		Addr:    cfg.Signal.Address,
		Handler: signalMux,
	}

	serverErr := make(chan error, 2)
	go func() {
		log.Infof("Starting roomrelay API server on %s", cfg.Server.Address)
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()
	go func() {
		log.Infof("Starting roomrelay signaling server on %s", cfg.Signal.Address)
		if err := signalSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case err := <-mediaEngine.Fatal():
		log.Fatalw("Media engine died", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down roomrelay...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new work before finalizing recordings and rooms.
	if err := signalSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during signaling shutdown", "error", err)
	}
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during API shutdown", "error", err)
	}

	recordingService.StopAll(shutdownCtx)
	if err := roomService.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during room registry shutdown", "error", err)
	}

	log.Info("roomrelay stopped")
}
