package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"camward/internal/core/domain"
	"camward/internal/core/ports"
	"camward/internal/core/services"
	httphandlers "camward/internal/handlers/http"
	"camward/internal/infrastructure/lockfile"
	"camward/internal/infrastructure/middleware"
	"camward/internal/infrastructure/monitoring"
	"camward/internal/infrastructure/repositories/recordings"
	signalhub "camward/internal/infrastructure/signal"
	"camward/internal/infrastructure/transcoder"
	"camward/pkg/cache"
	"camward/pkg/config"
	"camward/pkg/logger"
	"camward/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/camward/config.yaml",
		"config.yaml",
	}

	configPath := configPaths[len(configPaths)-1]
	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			configPath = path
			break
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "camward: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Load validates only when a config file exists; the defaults path
	// still needs a stream target from the environment.
	if err := cfg.Validate(); err != nil {
		log.Fatalw("invalid configuration", "error", err)
	}

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "camward",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: "production",
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			log.Errorw("error shutting down tracer provider", "error", err)
		}
	}()

	// One camward per output directory: a second instance writing the
	// same rotation contract would corrupt the catalog.
	lock, err := lockfile.Acquire(cfg.Recording.OutputDir, log)
	if err != nil {
		log.Fatalw("failed to lock output directory", "error", err)
	}
	defer lock.Release()

	target := domain.StreamTarget{
		URL:               cfg.ResolveStreamURL(),
		Transport:         cfg.Stream.Transport,
		ConnectTimeout:    cfg.Stream.ConnectTimeout,
		ReconnectAttempts: cfg.Stream.ReconnectAttempts,
		ReconnectDelay:    cfg.Stream.ReconnectDelay,
	}

	launcher := transcoder.NewLauncher(log)
	builder := transcoder.NewFFmpegBuilder(transcoder.BuilderConfig{
		Binary:      cfg.Transcoder.Binary,
		LogLevel:    cfg.Transcoder.LogLevel,
		Target:      target,
		FrameRate:   cfg.Stream.FrameRate,
		JPEGQuality: cfg.Stream.JPEGQuality,
		VideoCodec:  cfg.Recording.VideoCodec,
		Preset:      cfg.Recording.Preset,
		CRF:         cfg.Recording.CRF,
		Scale:       cfg.Recording.Scale,
	})

	// Initialize monitoring
	prometheusCollector := monitoring.NewPrometheusCollector()

	stats := services.NewStatsRecorder()
	stats.SetObserver(prometheusCollector)

	shutdownCfg := services.ShutdownConfig{
		GracefulWait:  cfg.Shutdown.GracefulWait,
		TerminateWait: cfg.Shutdown.TerminateWait,
		KillWait:      cfg.Shutdown.KillWait,
	}

	collector := services.NewFrameCollector(services.FrameCollectorConfig{
		PollInterval:      cfg.Stream.PollInterval,
		SettleDelay:       cfg.Stream.SettleDelay,
		MinFrameBytes:     cfg.Stream.MinFrameBytes,
		ScratchRetention:  cfg.Stream.ScratchRetention,
		FreshnessWindow:   cfg.Stream.FreshnessWindow,
		ReconnectAttempts: cfg.Stream.ReconnectAttempts,
		ReconnectDelay:    cfg.Stream.ReconnectDelay,
		Shutdown:          shutdownCfg,
	}, launcher, builder, stats, log)

	monitor := services.NewHealthMonitor(services.HealthMonitorConfig{
		CheckInterval: cfg.Health.Tick,
		WarnAfter:     cfg.Health.WarnTimeout,
		RestartAfter:  cfg.Health.RestartTimeout,
		WarnInterval:  cfg.Health.WarnEvery,
		StatsInterval: cfg.Health.StatsInterval,
	}, collector, stats, log)

	// The catalog flags the file the recorder is writing right now, and
	// every finalized segment invalidates the cached listing.
	listCache := cache.NewCache(30 * time.Second)
	defer listCache.Stop()

	var recorder ports.Recorder
	catalog := recordings.NewCatalog(cfg.Recording.OutputDir, func() (string, bool) {
		if recorder == nil {
			return "", false
		}
		file, ok := recorder.CurrentFile()
		return file.Path, ok
	}, log)
	catalogCache := recordings.NewCachedCatalog(catalog, listCache, 5*time.Second)

	recCfg := services.DefaultRecordingSessionConfig()
	recCfg.OutputDir = cfg.Recording.OutputDir
	recCfg.Extension = cfg.Recording.Extension
	recCfg.RotateSize = cfg.Recording.RotateSize
	recCfg.PollInterval = cfg.Recording.PollInterval
	recCfg.RestartBackoff = cfg.Recording.RestartBackoff
	recCfg.Shutdown = shutdownCfg
	recorder = services.NewRecordingSession(recCfg, launcher, builder, func(file domain.RecordingFile) {
		prometheusCollector.RecordRecordingRotation()
		catalogCache.Refresh()
	}, log)

	supervisor := services.NewStreamSupervisor(target, launcher, builder, collector, recorder, monitor, stats, log)

	frameInterval := time.Second / time.Duration(cfg.Stream.FrameRate)

	hubCfg := signalhub.DefaultHubConfig()
	hubCfg.FrameInterval = frameInterval
	hubCfg.PingInterval = cfg.Signal.PingInterval
	hubCfg.PongTimeout = cfg.Signal.PongTimeout
	hubCfg.SendBuffer = cfg.Signal.SendBuffer
	hub := signalhub.NewFrameHub(hubCfg, supervisor, log)
	hub.Start(context.Background())

	sweeper := recordings.NewSweeper(catalogCache, cfg.Recording.RetentionAge, cfg.Recording.SweepInterval, log)
	sweeper.Start(context.Background())

	prometheusCollector.ObserveViewerCount(hub.ViewerCount)
	prometheusCollector.ObserveFrameAge(collector.LastFrameAt)
	prometheusCollector.ObserveRecordingSize(func() int64 {
		file, ok := recorder.CurrentFile()
		if !ok {
			return 0
		}
		if info, err := os.Stat(file.Path); err == nil {
			return info.Size()
		}
		return file.Size
	})

	healthChecker := monitoring.NewHealthChecker()
	if cfg.Monitoring.HealthEnabled {
		healthChecker.AddToolCheck(launcher, cfg.Transcoder.Binary, 5*time.Second)
		healthChecker.AddOutputDirCheck(cfg.Recording.OutputDir, 2*time.Second)
		healthChecker.AddSupervisorCheck(supervisor, 2*time.Second)
	}

	var requireAuth gin.HandlerFunc
	var authHandler *httphandlers.AuthHandler
	if cfg.Auth.Enabled {
		authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Username, cfg.Auth.Password)
		requireAuth = middleware.AuthMiddleware(authService)
		authHandler = httphandlers.NewAuthHandler(authService, cfg.Auth.TokenTTL)
	}

	streamHandler := httphandlers.NewStreamHandler(supervisor, catalogCache, hub, frameInterval)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.RequestLoggerMiddleware(zapLogger))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	if cfg.Monitoring.PrometheusEnabled {
		router.Use(middleware.MetricsMiddleware(prometheusCollector))
	}

	// Global HTTP rate limiting (if enabled)
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	if authHandler != nil {
		authHandler.SetupRoutes(router)
	}
	streamHandler.SetupRoutes(router, requireAuth)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})

	// Readiness: the tool, the output dir and the supervisor must all answer
	router.GET("/ready", func(c *gin.Context) {
		status := healthChecker.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// No write timeout: the MJPEG and WebSocket endpoints hold their
	// responses open for as long as a viewer stays connected.
	srv := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting camward",
			"address", cfg.Server.Address,
			"stream", target.Redacted(),
			"output_dir", cfg.Recording.OutputDir,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	log.Info("shutting down camward...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Close the listener first, then tear down streaming: stopping the hub
	// and supervisor is what unblocks the long-lived handlers Shutdown
	// waits on.
	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- srv.Shutdown(shutdownCtx) }()

	hub.Stop()
	if err := supervisor.Stop(); err != nil {
		log.Errorw("error stopping supervisor", "error", err)
	}
	sweeper.Stop()

	if err := <-shutdownDone; err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	} else {
		log.Info("server shutdown gracefully")
	}

	log.Info("camward stopped")
}
