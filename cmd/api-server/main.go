package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"dockhub/internal/config"
	"dockhub/internal/microservices/http-api/handler"
	"dockhub/internal/microservices/http-api/middleware"
	"dockhub/internal/microservices/http-api/service"
	"dockhub/internal/microservices/websocket"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load config (.env first, then environment)
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}
	if err := cfg.Validate(true); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	tokens := service.NewTokenService(cfg.JWTSecret)

	// Relay and REST API share one hub
	hub := websocket.NewHub(logger)
	wsCfg := websocket.ServerConfig{
		Addr: cfg.WSAddr,
		Client: websocket.ClientOptions{
			WriteWait:      cfg.WSWriteWait,
			PongWait:       cfg.WSPongWait,
			MaxMessageSize: cfg.WSMaxMessageSize,
		},
		Logger: logger,
	}
	if cfg.WSRequireToken {
		wsCfg.Tokens = tokens
	}
	relay := websocket.NewServer(wsCfg, hub)
	if err := relay.Listen(); err != nil {
		logger.Error("relay_bind_failed", "error", err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.ClusterEnabled() {
		opts, err := cfg.RedisOptions()
		if err != nil {
			logger.Error("redis_config_invalid", "error", err.Error())
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		bridge := websocket.NewClusterBridge(rdb, cfg.WSClusterChannel, hub, logger)
		hub.SetForwarder(bridge)
		go func() {
			if err := bridge.Run(ctx); err != nil {
				logger.Error("cluster_bridge_failed", "error", err.Error())
			}
		}()
	}

	limiter := middleware.NewRateLimiter(cfg.PublishRate, cfg.PublishBurst)
	router := handler.NewRouter(tokens, hub, limiter)
	api := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 2)
	go func() {
		if err := relay.Serve(); err != nil {
			errChan <- err
		}
	}()
	go func() {
		logger.Info("http_api_listening", "addr", api.Addr)
		if err := api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-sigChan:
		logger.Info("received_shutdown_signal")
	case err := <-errChan:
		logger.Error("server_error", "error", err.Error())
		exitCode = 1
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_api_shutdown_error", "error", err.Error())
	}
	if err := relay.Stop(shutdownCtx); err != nil {
		logger.Warn("relay_shutdown_error", "error", err.Error())
	}
	cancel()
	logger.Info("server_stopped_gracefully")

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
