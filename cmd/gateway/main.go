// cmd/gateway/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/pokerhall/tableserv/internal/auth"
	"github.com/pokerhall/tableserv/internal/bus"
	"github.com/pokerhall/tableserv/internal/database"
	"github.com/pokerhall/tableserv/internal/middleware"
	"github.com/pokerhall/tableserv/internal/ws"
)

func main() {
	logger := logrus.New()
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	privPath := os.Getenv("JWT_PRIVATE_KEY_PATH")
	pubPath := os.Getenv("JWT_PUBLIC_KEY_PATH")
	if privPath != "" && pubPath != "" {
		if err := auth.InitFromPath(privPath, pubPath); err != nil {
			logger.Fatalf("auth key load failed: %v", err)
		}
	} else {
		// Without the shared key pair only tokens minted by this process
		// verify, which is a dev-only setup.
		logger.Warn("JWT key paths not set, generating ephemeral keys")
		auth.Init()
	}

	pool, err := database.Connect(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		logger.Fatalf("database connect failed: %v", err)
	}
	defer pool.Close()

	notifier := bus.New(pool)
	store := database.NewStore(pool, notifier)

	cm := ws.NewClientsManager(store, logger)

	listener := bus.NewListener(pool, logger)
	listener.Subscribe(bus.ChanTableMsg, func(ctx context.Context, n bus.Notification) {
		cm.OnTableMsg(ctx, n)
	})
	listener.SetCatchup(cm.Catchup)
	if err := listener.Start(ctx); err != nil {
		logger.Fatalf("bus listener start failed: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", middleware.LogMiddleware(logger)(ws.Handler(logger, cm)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()
	logger.Infof("gateway listening on %s", addr)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errc:
		logger.Errorf("server exited: %v", err)
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	listener.Stop()
}
