package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/synapse/orchestrator/cmd/graph-engine/engine"
	"github.com/synapse/orchestrator/common/blueprint"
	"github.com/synapse/orchestrator/common/bootstrap"
	"github.com/synapse/orchestrator/common/clients"
	"github.com/synapse/orchestrator/common/repository"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := bootstrap.Setup(ctx, "graph-engine")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap graph-engine: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(context.Background())

	taskRepo := repository.NewTaskRepository(components.DB)
	edgeRepo := repository.NewEdgeRepository(components.DB)
	materializer := blueprint.NewMaterializer(components.DB, taskRepo, edgeRepo, components.Logger)

	httpClient := clients.NewJSONClient(components.Config.Executors.RequestTimeout, components.Logger)
	agentClient := clients.NewAgentClient(httpClient, components.Config.Executors.AgentServiceURL, components.Logger)
	toolClient := clients.NewToolClient(httpClient, components.Config.Executors.ToolServiceURL, components.Logger)

	eng := engine.New(engine.Opts{
		Tasks:        taskRepo,
		Edges:        edgeRepo,
		Materializer: materializer,
		Agents:       agentClient,
		Tools:        toolClient,
		Queue:        components.Queue,
		Logger:       components.Logger,
		BlueprintLimits: blueprint.Limits{
			MaxTasks: components.Config.Limits.MaxBlueprintTasks,
			MaxEdges: components.Config.Limits.MaxBlueprintEdges,
		},
		Workers:    components.Config.Engine.Workers,
		PopTimeout: components.Config.Queue.PopTimeout,
	})

	// Recover work persisted while no engine was listening
	if components.Config.Engine.SeedPending {
		if _, err := eng.SeedPendingTasks(ctx); err != nil {
			components.Logger.Error("failed to seed pending tasks", "error", err)
			os.Exit(1)
		}
	}

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- eng.Run(ctx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		components.Logger.Info("shutdown signal received", "signal", s.String())
		cancel()
		// Workers drain their in-flight task before returning
		<-engineDone
	case err := <-engineDone:
		if err != nil {
			components.Logger.Error("engine stopped", "error", err)
			os.Exit(1)
		}
	}
}
