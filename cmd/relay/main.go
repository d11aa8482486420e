package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sigrelay/internal/core/services"
	httphandlers "sigrelay/internal/handlers/http"
	"sigrelay/internal/infrastructure/middleware"
	"sigrelay/internal/infrastructure/monitoring"
	repositories "sigrelay/internal/infrastructure/repositories"
	signalws "sigrelay/internal/infrastructure/signal"
	"sigrelay/pkg/config"
	"sigrelay/pkg/logger"
	"sigrelay/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/root/configs/config.yaml",
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

	// Initialize logger
	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Initialize repository factory
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	// Initialize repositories
	endpointRepo := repoFactory.CreateEndpointRepository()
	sessionRepo := repoFactory.CreateSessionRepository()

	// Initialize monitoring
	prometheusCollector := monitoring.NewPrometheusCollector()

	// Initialize signal service
	signalService := services.NewSignalService(endpointRepo, sessionRepo, prometheusCollector, log)

	// Initialize WebSocket server
	wsServer := signalws.NewWebSocketServer(signalService, prometheusCollector, log)
	wsServer.SetPingInterval(cfg.Signal.PingInterval)
	wsServer.SetPongTimeout(cfg.Signal.PongTimeout)
	wsServer.SetWriteTimeout(cfg.Signal.WriteTimeout)
	wsServer.SetTracingEnabled(cfg.Tracing.Enabled)
	if cfg.RateLimiting.Enabled {
		wsServer.SetMessageRateLimit(cfg.RateLimiting.WebSocket.MessagesPerSecond, cfg.RateLimiting.WebSocket.Burst)
		wsServer.SetMaxMessageSize(cfg.RateLimiting.WebSocket.MaxMessageSizeBytes)
	}

	// Health checks
	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddCheck("repositories", func(ctx context.Context) (bool, error) {
		if err := repoFactory.HealthCheck(ctx); err != nil {
			return false, err
		}
		return true, nil
	}, 2*time.Second)

	// Initialize HTTP handlers
	presenceHandler := httphandlers.NewPresenceHandler(endpointRepo, sessionRepo, wsServer, healthChecker)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	presenceHandler.SetupRoutes(router)

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// Signaling server (WebSocket)
	signalMux := http.NewServeMux()
	signalMux.HandleFunc("/ws", wsServer.HandleWebSocket)

	signalSrv := &http.Server{
		Addr:    cfg.Signal.Address,
		Handler: signalMux,
	}

	// API server
	apiSrv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 2)
	go func() {
		log.Infof("Starting signaling server on %s", cfg.Signal.Address)
		if err := signalSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()
	go func() {
		log.Infof("Starting API server on %s", cfg.Server.Address)
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Signal.ShutdownTimeout)
	defer shutdownCancel()

	if err := signalSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during signaling server shutdown", "error", err)
		if closeErr := signalSrv.Close(); closeErr != nil {
			log.Errorw("Error force closing signaling server", "error", closeErr)
		}
	}
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during API server shutdown", "error", err)
		if closeErr := apiSrv.Close(); closeErr != nil {
			log.Errorw("Error force closing API server", "error", closeErr)
		}
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer provider", "error", err)
	}

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("Server stopped")
}
