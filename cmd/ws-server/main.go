package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"dockhub/internal/config"
	"dockhub/internal/microservices/http-api/service"
	"dockhub/internal/microservices/websocket"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(false); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Setup structured logging
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

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
		wsCfg.Tokens = service.NewTokenService(cfg.JWTSecret)
	}
	server := websocket.NewServer(wsCfg, nil)

	logger.Info("starting_ws_server",
		"ws_addr", cfg.WSAddr,
		"cluster", cfg.ClusterEnabled(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.ClusterEnabled() {
		opts, err := cfg.RedisOptions()
		if err != nil {
			log.Fatalf("Invalid Redis config: %v", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		bridge := websocket.NewClusterBridge(rdb, cfg.WSClusterChannel, server.Hub, logger)
		server.Hub.SetForwarder(bridge)
		go func() {
			if err := bridge.Run(ctx); err != nil {
				logger.Error("cluster_bridge_failed", "error", err.Error())
			}
		}()
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		logger.Info("received_shutdown_signal")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := server.Stop(stopCtx); err != nil {
			logger.Warn("relay_shutdown_error", "error", err.Error())
		}
		logger.Info("server_stopped_gracefully")
	case err := <-errChan:
		logger.Error("server_error", "error", err.Error())
		os.Exit(1)
	}
}
