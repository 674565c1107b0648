package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	redisClient "github.com/aaronwang/lot-auction/broadcast-service/internal/redis"
	"github.com/aaronwang/lot-auction/shared/broadcast"
	"github.com/aaronwang/lot-auction/shared/config"
	"github.com/aaronwang/lot-auction/shared/logging"
	"github.com/aaronwang/lot-auction/shared/websocket"
)

func main() {
	config.Load()
	cfg := loadConfig()

	logger, err := logging.New("broadcast-service", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Broadcast Service")

	subscriber, err := redisClient.NewSubscriber(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger.Named("redis"))
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer subscriber.Close()
	logger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := subscriber.SubscribeAll(ctx); err != nil {
		logger.Fatal("Failed to subscribe to Redis channels", zap.Error(err))
	}

	hub := broadcast.NewHub(cfg.SubscriberBuffer)
	go func() {
		if err := subscriber.Listen(ctx, hub); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Redis listener stopped", zap.Error(err))
		}
	}()

	manager := websocket.NewManager(hub, logger.Named("websocket"))
	watch := websocket.NewHandler(manager, logger.Named("websocket"))

	router := mux.NewRouter()
	watch.Register(router)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"broadcast-service"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/stats/lots/{id}", func(w http.ResponseWriter, r *http.Request) {
		lotID := mux.Vars(r)["id"]
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"lot_id":      lotID,
			"subscribers": watch.SubscriberCount(lotID),
		})
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("Broadcast Service listening", zap.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// Config holds application configuration
type Config struct {
	ServerAddr       string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	SubscriberBuffer int
	LogLevel         string
	LogFormat        string
}

// loadConfig loads configuration from environment variables
func loadConfig() *Config {
	return &Config{
		ServerAddr:       config.GetEnv("SERVER_ADDR", ":8081"),
		RedisAddr:        config.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    config.GetEnv("REDIS_PASSWORD", ""),
		RedisDB:          config.GetEnvInt("REDIS_DB", 0),
		SubscriberBuffer: config.GetEnvInt("SUBSCRIBER_BUFFER", broadcast.DefaultBuffer),
		LogLevel:         config.GetEnv("LOG_LEVEL", "info"),
		LogFormat:        config.GetEnv("LOG_FORMAT", "json"),
	}
}
