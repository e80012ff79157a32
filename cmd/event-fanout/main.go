package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/synapse/orchestrator/common/bootstrap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := bootstrap.Setup(ctx, "event-fanout",
		bootstrap.WithoutDB(),
		bootstrap.WithoutQueue(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap event-fanout: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(context.Background())

	hub := NewHub(components.Logger)
	go hub.Run()

	subscriber := NewEventSubscriber(components.Redis, components.Config.Queue.EventChannel, hub, components.Logger)
	go subscriber.Start(ctx)

	server := NewServer(hub, components.Logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.HandleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := components.Health(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// No read/write timeouts: WebSocket connections are long-lived and
	// timeouts would kill active subscribers
	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", components.Config.Service.Port),
		Handler:     mux,
		IdleTimeout: 120 * time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		components.Logger.Info("event-fanout listening", "addr", httpServer.Addr)
		serverDone <- httpServer.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		components.Logger.Info("shutdown signal received", "signal", s.String())
	case err := <-serverDone:
		if err != nil && err != http.ErrServerClosed {
			components.Logger.Error("server error", "error", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		components.Logger.Error("server shutdown error", "error", err)
	}
}
