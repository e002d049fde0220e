package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"
	"callrelay/internal/core/services"
	httphandlers "callrelay/internal/handlers/http"
	"callrelay/internal/infrastructure/bus"
	"callrelay/internal/infrastructure/middleware"
	"callrelay/internal/infrastructure/monitoring"
	"callrelay/internal/infrastructure/repositories/memory"
	redisinfra "callrelay/internal/infrastructure/repositories/redis"
	"callrelay/internal/infrastructure/transport/ws"
	"callrelay/internal/infrastructure/transport/wt"
	"callrelay/pkg/config"
	"callrelay/pkg/logger"
	"callrelay/pkg/tracing"
	"callrelay/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/callrelay/config.yaml",
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
	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	instanceID := utils.GenerateInstanceID()
	log.Infow("starting callrelay", "instance_id", instanceID)

	// Initialize tracing (no-op provider when disabled)
	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "callrelay",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Initialize metrics collector
	var collector ports.Collector = monitoring.NewNopCollector()
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewPrometheusCollector()
	}

	// Bus gateway: absent on single-instance deployments
	var relayBus ports.Bus
	var emitter *monitoring.DiagnosticsEmitter
	var redisClient *redis.Client
	if cfg.Bus.Enabled {
		redisClient, err = redisinfra.NewRedisClient(cfg.Bus.Address, cfg.Bus.Password, cfg.Bus.DB, cfg.Bus.PoolSize, log)
		if err != nil {
			log.Fatalw("failed to connect to bus", "address", cfg.Bus.Address, "error", err)
		}
		relayBus = bus.NewRedisBus(redisClient, instanceID, cfg.Bus.Namespace, cfg.Bus.PublishQueueSize, log)
		emitter = monitoring.NewDiagnosticsEmitter(relayBus, 32, 5*time.Second, log)
	}

	// Core services
	registry := memory.NewMemorySessionRegistry()

	var events ports.EventEmitter
	if emitter != nil {
		events = emitter
	}

	relay := services.NewRelayService(registry, relayBus, collector, events, instanceID, services.RelayConfig{
		MediaQueueSize:   cfg.Relay.MediaQueueSize,
		ControlQueueSize: cfg.Relay.ControlQueueSize,
		ResubscribeGrace: cfg.Bus.ResubscribeGrace,
	}, log)

	if relayBus != nil {
		relayBus.SetHandler(relay.HandleFromBus)
	}

	admission := services.NewAdmissionService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	// Liveness sweep
	monitorCtx, monitorCancel := context.WithCancel(context.Background())
	defer monitorCancel()

	liveness := services.NewLivenessMonitor(registry, relay, cfg.Liveness.ClientTimeout, cfg.Liveness.SweepInterval, log)
	liveness.Start(monitorCtx)

	// Readiness probes
	checker := monitoring.NewChecker(2 * time.Second)
	if relayBus != nil {
		checker.AddBusCheck(relayBus)
	}

	// Configure gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.ErrorHandler(log))
	if cfg.Tracing.Enabled {
		router.Use(middleware.Tracing())
	}
	router.Use(middleware.RateLimit(cfg))

	// WebSocket lobby routes
	wsServer := ws.NewServer(relay, collector, ws.Config{
		PingInterval:   cfg.Server.PingInterval,
		PongTimeout:    cfg.Server.PongTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		ReadLimit:      cfg.Server.ReadLimit,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, log)
	wsServer.SetupRoutes(router, admission, cfg.Auth.EnforceAdmission)

	// Health and stats routes
	httphandlers.NewStatsHandler(relay, checker, cfg.Monitoring.StatsCacheTTL).SetupRoutes(router)

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("prometheus metrics enabled")
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 2)
	go func() {
		log.Infow("websocket lobby listening", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Optional WebTransport listener
	var wtServer *wt.Server
	if cfg.WebTransport.Enabled {
		wtServer = wt.NewServer(relay, admission, collector, wt.Config{
			Address:           cfg.WebTransport.Address,
			CertFile:          cfg.WebTransport.CertFile,
			KeyFile:           cfg.WebTransport.KeyFile,
			IdleTimeout:       cfg.WebTransport.IdleTimeout,
			KeepAliveInterval: cfg.WebTransport.KeepAliveInterval,
			DatagramThreshold: cfg.WebTransport.DatagramThreshold,
			WriteTimeout:      cfg.Server.WriteTimeout,
			ReadLimit:         cfg.Server.ReadLimit,
			AllowedOrigins:    cfg.Server.AllowedOrigins,
			EnforceAdmission:  cfg.Auth.EnforceAdmission,
		}, log)
		go func() {
			if err := wtServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErr <- err
			}
		}()
	}

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	log.Info("shutting down callrelay...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop admitting: close the HTTP listener first. Hijacked websocket
	// connections are not tracked by Shutdown, the drain below handles
	// them.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}

	liveness.Stop()

	// Tear down remaining sessions so every client gets a close frame
	// and remote instances hear the departures.
	for _, room := range registry.Rooms(shutdownCtx) {
		for _, sess := range registry.MembersOf(shutdownCtx, room.RoomID) {
			relay.Teardown(shutdownCtx, sess.ID, domain.DepartShutdown)
		}
	}

	if wtServer != nil {
		if err := wtServer.Close(); err != nil {
			log.Errorw("error closing webtransport server", "error", err)
		}
	}

	if emitter != nil {
		if err := emitter.Flush(shutdownCtx); err != nil {
			log.Errorw("error flushing diagnostics", "error", err)
		}
		emitter.Stop()
	}

	if relayBus != nil {
		if err := relayBus.Close(); err != nil {
			log.Errorw("error closing bus", "error", err)
		}
	}
	if redisClient != nil {
		if err := redisinfra.CloseRedisClient(redisClient); err != nil {
			log.Errorw("error closing redis client", "error", err)
		}
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracing", "error", err)
	}

	log.Info("callrelay stopped")
}
