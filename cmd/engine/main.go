// cmd/engine/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/pokerhall/tableserv/internal/bus"
	"github.com/pokerhall/tableserv/internal/cache"
	"github.com/pokerhall/tableserv/internal/database"
	"github.com/pokerhall/tableserv/internal/engine"
)

func main() {
	logger := logrus.New()
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		logger.Fatalf("database connect failed: %v", err)
	}
	defer pool.Close()

	notifier := bus.New(pool)
	store := database.NewStore(pool, notifier)

	// Hand history is best-effort; the engine runs without redis.
	var history engine.HandHistory
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
		h, err := cache.ConnectHistory(ctx, addr, db, cache.DefaultQueueName, logger)
		if err != nil {
			logger.WithError(err).Warn("redis unavailable, hand history disabled")
		} else {
			history = h
			defer h.Close()
		}
	}

	listener := bus.NewListener(pool, logger)
	registry := engine.NewRegistry(store, listener, history, logger)
	if err := registry.Start(ctx); err != nil {
		logger.Fatalf("registry start failed: %v", err)
	}
	logger.Info("engine online")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	sig := <-sigs
	logger.Infof("terminating: %v", sig)

	registry.Shutdown()
	logger.Info("all table sessions drained")
}
