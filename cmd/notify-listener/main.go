package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/synapse/orchestrator/cmd/notify-listener/pglisten"
	"github.com/synapse/orchestrator/common/bootstrap"
	"github.com/synapse/orchestrator/common/server"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := bootstrap.Setup(ctx, "notify-listener")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap notify-listener: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(context.Background())

	listener := pglisten.New(pglisten.Opts{
		ConnString:   components.Config.DatabaseURL(),
		Queue:        components.Queue,
		Events:       components.Redis,
		EventChannel: components.Config.Queue.EventChannel,
		Logger:       components.Logger,
	})

	listenerDone := make(chan error, 1)
	go func() {
		listenerDone <- listener.Run(ctx)
	}()

	// Health endpoint on a side port so orchestration can probe the
	// bridge without touching the listen connection. Start owns the
	// interrupt signal and returns after graceful shutdown.
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := components.Health(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	})
	healthServer := server.New("notify-listener health", components.Config.Service.Port, mux, components.Logger)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- healthServer.Start()
	}()

	select {
	case err := <-listenerDone:
		if err != nil {
			components.Logger.Error("listener stopped", "error", err)
			os.Exit(1)
		}
	case err := <-serverDone:
		if err != nil {
			components.Logger.Error("health server stopped", "error", err)
		}
		cancel()
		<-listenerDone
	}
}
