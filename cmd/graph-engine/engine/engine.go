package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/synapse/orchestrator/cmd/graph-engine/condition"
	"github.com/synapse/orchestrator/cmd/graph-engine/dataflow"
	"github.com/synapse/orchestrator/common/blueprint"
	"github.com/synapse/orchestrator/common/models"
	"github.com/synapse/orchestrator/common/queue"
)

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// TaskStore is the persistence surface the engine drives tasks through
type TaskStore interface {
	Claim(ctx context.Context, taskID uuid.UUID) (*models.Task, error)
	ListPending(ctx context.Context) ([]*models.Task, error)
	UpdateStatusAndResult(ctx context.Context, taskID uuid.UUID, status models.TaskStatus, result map[string]interface{}) error
	UpdateInputAndStatus(ctx context.Context, taskID uuid.UUID, input map[string]interface{}, status models.TaskStatus) error
}

// EdgeStore loads the outgoing edges of a completed task
type EdgeStore interface {
	GetOutgoing(ctx context.Context, sourceTaskID uuid.UUID) ([]*models.Edge, error)
}

// Materializer expands an agent-returned sub-plan into persisted rows
type Materializer interface {
	CreateWorkflowFromBlueprint(ctx context.Context, bp *models.PlanBlueprint) (*blueprint.Materialized, error)
}

// AgentExecutor runs one agent dispatch cycle for a task
type AgentExecutor interface {
	ExecuteAgent(ctx context.Context, task *models.Task) (*models.AgentResult, error)
}

// ToolExecutor runs one tool invocation
type ToolExecutor interface {
	RunTool(ctx context.Context, call *models.ToolCallRequest) (*models.ToolResult, error)
}

// Engine is the graph execution core: workers pop task ids from the
// work queue, claim them, and route on the claimed status. PENDING
// tasks are dispatched to their executor; COMPLETED tasks have their
// successors activated. A claim held elsewhere makes the pop a no-op,
// which is what makes duplicate deliveries harmless.
type Engine struct {
	tasks        TaskStore
	edges        EdgeStore
	materializer Materializer
	agents       AgentExecutor
	tools        ToolExecutor
	queue        queue.TaskQueue
	evaluator    *condition.Evaluator
	mapper       *dataflow.Mapper
	limits       blueprint.Limits
	log          Logger

	workers    int
	popTimeout time.Duration
}

// Opts contains options for creating an engine
type Opts struct {
	Tasks        TaskStore
	Edges        EdgeStore
	Materializer Materializer
	Agents       AgentExecutor
	Tools        ToolExecutor
	Queue        queue.TaskQueue
	Logger       Logger

	// BlueprintLimits caps agent-emitted sub-plans
	BlueprintLimits blueprint.Limits

	// Workers is the number of concurrent dispatch loops (default 4)
	Workers int

	// PopTimeout bounds each blocking pop (default 5s)
	PopTimeout time.Duration
}

// New creates a new engine
func New(opts Opts) *Engine {
	workers := opts.Workers
	if workers < 1 {
		workers = 4
	}
	popTimeout := opts.PopTimeout
	if popTimeout <= 0 {
		popTimeout = 5 * time.Second
	}

	return &Engine{
		tasks:        opts.Tasks,
		edges:        opts.Edges,
		materializer: opts.Materializer,
		agents:       opts.Agents,
		tools:        opts.Tools,
		queue:        opts.Queue,
		evaluator:    condition.NewEvaluator(opts.Logger),
		mapper:       dataflow.NewMapper(opts.Logger),
		limits:       opts.BlueprintLimits,
		log:          opts.Logger,
		workers:      workers,
		popTimeout:   popTimeout,
	}
}

// SeedPendingTasks enqueues every PENDING task. Run at startup so work
// persisted while no engine was listening is not stranded; the claim
// step absorbs the duplicates this can produce.
func (e *Engine) SeedPendingTasks(ctx context.Context) (int, error) {
	pending, err := e.tasks.ListPending(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending tasks: %w", err)
	}

	seeded := 0
	for _, task := range pending {
		if err := e.queue.Push(ctx, task.ID.String()); err != nil {
			return seeded, fmt.Errorf("seed task %s: %w", task.ID, err)
		}
		seeded++
	}

	if seeded > 0 {
		e.log.Info("seeded pending tasks", "count", seeded)
	}
	return seeded, nil
}

// Run starts the worker pool and blocks until ctx is cancelled. Each
// worker drains its in-flight task before returning.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine starting", "workers", e.workers)

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			e.workerLoop(ctx, worker)
		}(i)
	}
	wg.Wait()

	e.log.Info("engine stopped")
	return nil
}

func (e *Engine) workerLoop(ctx context.Context, worker int) {
	e.log.Info("engine worker started", "worker", worker)

	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine worker stopping", "worker", worker)
			return
		default:
		}

		taskID, ok, err := e.queue.Pop(ctx, e.popTimeout)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				e.log.Info("engine worker stopping", "worker", worker)
				return
			}
			// Transient queue trouble must not kill the worker
			e.log.Error("queue pop failed", "worker", worker, "error", err)
			time.Sleep(time.Second)
			continue
		}
		if !ok {
			continue
		}

		e.HandleTask(ctx, taskID)
	}
}

// HandleTask claims one popped task id and routes on the status the
// claim observed. Unknown ids and rows locked by another worker are
// no-ops; at-least-once delivery upstream makes that safe.
func (e *Engine) HandleTask(ctx context.Context, rawID string) {
	taskID, err := uuid.Parse(rawID)
	if err != nil {
		e.log.Warn("discarding malformed task id", "task_id", rawID, "error", err)
		return
	}

	task, err := e.tasks.Claim(ctx, taskID)
	if err != nil {
		e.log.Error("task claim failed", "task_id", taskID, "error", err)
		return
	}
	if task == nil {
		e.log.Debug("task not claimable", "task_id", taskID)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic while handling task", "task_id", taskID, "panic", r)
			if task.Status == models.StatusPending {
				e.failTask(ctx, task.ID, fmt.Errorf("panic: %v", r))
			}
		}
	}()

	switch task.Status {
	case models.StatusPending:
		e.processPending(ctx, task)
	case models.StatusCompleted:
		e.activateSuccessors(ctx, task)
	case models.StatusRunning:
		e.log.Debug("stale notification for running task", "task_id", task.ID)
	case models.StatusFailed:
		e.log.Debug("ignoring notification for failed task", "task_id", task.ID)
	default:
		e.log.Warn("unknown task status", "task_id", task.ID, "status", task.Status)
	}
}

// processPending dispatches one claimed PENDING task to its executor.
// Every failure path lands in the task row, never in the worker: the
// task goes FAILED and the loop moves on.
func (e *Engine) processPending(ctx context.Context, task *models.Task) {
	if task.Directives != nil {
		e.log.Info("task carries directives",
			"task_id", task.ID,
			"loop", task.Directives.LoopDirective != nil,
			"timeout_seconds", task.Directives.TimeoutSeconds,
			"on_failure", task.Directives.OnFailure != nil,
			"human_interaction", task.Directives.HumanInteraction != nil)
	}

	switch task.AssigneeKind() {
	case models.AssigneeKindAgent:
		e.dispatchAgent(ctx, task)
	case models.AssigneeKindTool:
		e.dispatchTool(ctx, task)
	default:
		e.log.Warn("unsupported assignee", "task_id", task.ID, "assignee_id", task.AssigneeID)
		e.failTask(ctx, task.ID, fmt.Errorf("unsupported assignee %q", task.AssigneeID))
	}
}

// dispatchAgent runs one agent cycle and interprets the returned intent
func (e *Engine) dispatchAgent(ctx context.Context, task *models.Task) {
	e.log.Info("dispatching agent task", "task_id", task.ID, "assignee_id", task.AssigneeID)

	agentResult, err := e.agents.ExecuteAgent(ctx, task)
	if err != nil {
		e.log.Error("agent execution failed", "task_id", task.ID, "error", err)
		e.failTask(ctx, task.ID, err)
		return
	}

	if agentResult.Status != models.ResultSuccess {
		result := map[string]interface{}{
			"failure_details": agentResult.FailureDetails,
		}
		if agentResult.Output != nil {
			result["thought"] = agentResult.Output.Thought
		}
		e.log.Warn("agent reported failure", "task_id", task.ID)
		e.updateTask(ctx, task.ID, models.StatusFailed, result)
		return
	}

	if agentResult.Output == nil || agentResult.Output.Intent == nil {
		e.failTask(ctx, task.ID, fmt.Errorf("agent returned success without an intent"))
		return
	}

	switch intent := agentResult.Output.Intent.(type) {
	case *models.FinalAnswer:
		e.log.Info("agent returned final answer", "task_id", task.ID)
		e.updateTask(ctx, task.ID, models.StatusCompleted, map[string]interface{}{
			"content": intent.Content,
		})

	case *models.ToolCallRequest:
		e.handleToolCall(ctx, task, intent)

	case *models.PlanBlueprint:
		e.handlePlanBlueprint(ctx, task, intent)

	default:
		e.failTask(ctx, task.ID, fmt.Errorf("unknown intent kind %q", intent.IntentKind()))
	}
}

// handleToolCall runs the requested tool and re-enters the task: the
// tool result lands in the task's result column as context and status
// goes back to PENDING, so the next notification re-dispatches the
// agent with its prior context available.
func (e *Engine) handleToolCall(ctx context.Context, task *models.Task, call *models.ToolCallRequest) {
	e.log.Info("agent requested tool call", "task_id", task.ID, "tool_id", call.ToolID)

	toolResult, err := e.tools.RunTool(ctx, call)
	if err != nil {
		e.log.Error("tool execution failed", "task_id", task.ID, "tool_id", call.ToolID, "error", err)
		e.failTask(ctx, task.ID, err)
		return
	}

	if toolResult.PostExecutionPlan != nil {
		// Carried on the wire for forward compatibility, not acted on
		e.log.Warn("ignoring post-execution plan from tool", "task_id", task.ID, "tool_id", call.ToolID)
	}

	// Merge over the previous context so earlier tool results survive
	// multi-step chains
	taskContext := make(map[string]interface{}, len(task.Result)+1)
	for k, v := range task.Result {
		taskContext[k] = v
	}
	taskContext["last_tool_result"] = toolResultDocument(toolResult)

	e.updateTask(ctx, task.ID, models.StatusPending, taskContext)
}

// handlePlanBlueprint validates and materializes an agent-returned
// sub-plan, parenting its tasks to the emitting task.
func (e *Engine) handlePlanBlueprint(ctx context.Context, task *models.Task, bp *models.PlanBlueprint) {
	e.log.Info("agent returned plan blueprint",
		"task_id", task.ID,
		"new_tasks", len(bp.NewTasks),
		"new_edges", len(bp.NewEdges),
		"update_tasks", len(bp.UpdateTasks))

	if err := blueprint.Validate(bp, e.limits); err != nil {
		e.log.Warn("agent blueprint rejected", "task_id", task.ID, "error", err)
		e.failTask(ctx, task.ID, fmt.Errorf("invalid blueprint: %w", err))
		return
	}

	// Sub-plan tasks expand the emitting task's workflow
	if bp.WorkflowID == nil {
		workflowID := task.WorkflowID
		bp.WorkflowID = &workflowID
	}
	parentID := task.ID.String()
	for i := range bp.NewTasks {
		if bp.NewTasks[i].ParentTaskID == nil {
			bp.NewTasks[i].ParentTaskID = &parentID
		}
	}

	if _, err := e.materializer.CreateWorkflowFromBlueprint(ctx, bp); err != nil {
		e.log.Error("blueprint materialization failed", "task_id", task.ID, "error", err)
		e.failTask(ctx, task.ID, err)
		return
	}

	e.updateTask(ctx, task.ID, models.StatusCompleted, map[string]interface{}{
		"message": "Plan executed successfully",
	})
}

// dispatchTool runs a directly-assigned tool task: the assignee name is
// the tool id and input_data its arguments.
func (e *Engine) dispatchTool(ctx context.Context, task *models.Task) {
	e.log.Info("dispatching tool task", "task_id", task.ID, "assignee_id", task.AssigneeID)

	toolResult, err := e.tools.RunTool(ctx, &models.ToolCallRequest{
		ToolID:    task.AssigneeName(),
		Arguments: task.InputData,
	})
	if err != nil {
		e.log.Error("tool execution failed", "task_id", task.ID, "error", err)
		e.failTask(ctx, task.ID, err)
		return
	}

	if toolResult.Status != models.ResultSuccess {
		e.updateTask(ctx, task.ID, models.StatusFailed, map[string]interface{}{
			"failure_details": &models.FailureDetails{
				Type:    models.FailureToolExecution,
				Message: toolResult.ErrorMessage,
			},
		})
		return
	}

	e.updateTask(ctx, task.ID, models.StatusCompleted, toolResultDocument(toolResult))
}

// activateSuccessors routes a completed task's result along its
// outgoing edges: evaluate each predicate, project the result through
// the edge's data flow, and reactivate the target. Each satisfied edge
// activates independently; when several hit one target the last writer
// wins for input_data.
func (e *Engine) activateSuccessors(ctx context.Context, task *models.Task) {
	result := task.Result
	if result == nil {
		result = map[string]interface{}{}
	}

	edges, err := e.edges.GetOutgoing(ctx, task.ID)
	if err != nil {
		e.log.Error("failed to load outgoing edges", "task_id", task.ID, "error", err)
		return
	}
	if len(edges) == 0 {
		e.log.Debug("no successors", "task_id", task.ID)
		return
	}

	for _, edge := range edges {
		if !e.evaluator.EvaluateCondition(edge.Condition, result) {
			e.log.Info("edge condition not met",
				"edge_id", edge.ID,
				"source_task_id", edge.SourceTaskID,
				"target_task_id", edge.TargetTaskID)
			continue
		}

		newInput := e.mapper.Apply(edge.DataFlow, result)

		if err := e.tasks.UpdateInputAndStatus(ctx, edge.TargetTaskID, newInput, models.StatusPending); err != nil {
			e.log.Error("successor activation failed",
				"edge_id", edge.ID,
				"target_task_id", edge.TargetTaskID,
				"error", err)
			continue
		}

		e.log.Info("successor activated",
			"source_task_id", task.ID,
			"target_task_id", edge.TargetTaskID)
	}
}

func (e *Engine) updateTask(ctx context.Context, taskID uuid.UUID, status models.TaskStatus, result map[string]interface{}) {
	if err := e.tasks.UpdateStatusAndResult(ctx, taskID, status, result); err != nil {
		e.log.Error("task update failed", "task_id", taskID, "status", status, "error", err)
	}
}

func (e *Engine) failTask(ctx context.Context, taskID uuid.UUID, cause error) {
	if err := e.tasks.UpdateStatusAndResult(ctx, taskID, models.StatusFailed, map[string]interface{}{
		"error": cause.Error(),
	}); err != nil {
		e.log.Error("failed to mark task FAILED", "task_id", taskID, "error", err)
	}
}

// toolResultDocument is the JSON shape a tool result takes inside a
// task's result column
func toolResultDocument(res *models.ToolResult) map[string]interface{} {
	doc := map[string]interface{}{
		"status": string(res.Status),
	}
	if res.Output != nil {
		doc["output"] = res.Output
	}
	if res.ErrorType != "" {
		doc["error_type"] = res.ErrorType
	}
	if res.ErrorMessage != "" {
		doc["error_message"] = res.ErrorMessage
	}
	return doc
}
