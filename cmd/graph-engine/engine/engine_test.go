package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synapse/orchestrator/common/blueprint"
	"github.com/synapse/orchestrator/common/logger"
	"github.com/synapse/orchestrator/common/models"
	"github.com/synapse/orchestrator/common/queue"
)

// fakeStore backs TaskStore and EdgeStore with maps. Claim mirrors the
// production semantics: under the lock the pre-claim status is read and
// a PENDING row is promoted to RUNNING, so only one concurrent claimer
// ever observes PENDING.
type fakeStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*models.Task
	edges map[uuid.UUID][]*models.Edge
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks: make(map[uuid.UUID]*models.Task),
		edges: make(map[uuid.UUID][]*models.Edge),
	}
}

func (s *fakeStore) addTask(task *models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
}

func (s *fakeStore) addEdge(edge *models.Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[edge.SourceTaskID] = append(s.edges[edge.SourceTaskID], edge)
}

func (s *fakeStore) snapshot(taskID uuid.UUID) models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tasks[taskID]
}

func (s *fakeStore) Claim(ctx context.Context, taskID uuid.UUID) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, nil
	}

	claimed := *task
	if task.Status == models.StatusPending {
		task.Status = models.StatusRunning
	}
	return &claimed, nil
}

func (s *fakeStore) ListPending(ctx context.Context) ([]*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*models.Task
	for _, task := range s.tasks {
		if task.Status == models.StatusPending {
			copied := *task
			pending = append(pending, &copied)
		}
	}
	return pending, nil
}

func (s *fakeStore) UpdateStatusAndResult(ctx context.Context, taskID uuid.UUID, status models.TaskStatus, result map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s not found", taskID)
	}
	task.Status = status
	task.Result = result
	return nil
}

func (s *fakeStore) UpdateInputAndStatus(ctx context.Context, taskID uuid.UUID, input map[string]interface{}, status models.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %s not found", taskID)
	}
	task.InputData = input
	task.Status = status
	return nil
}

func (s *fakeStore) GetOutgoing(ctx context.Context, sourceTaskID uuid.UUID) ([]*models.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edges[sourceTaskID], nil
}

type fakeAgent struct {
	execute func(task *models.Task) (*models.AgentResult, error)
	calls   atomic.Int64
}

func (a *fakeAgent) ExecuteAgent(ctx context.Context, task *models.Task) (*models.AgentResult, error) {
	a.calls.Add(1)
	return a.execute(task)
}

type fakeTool struct {
	run func(call *models.ToolCallRequest) (*models.ToolResult, error)
}

func (t *fakeTool) RunTool(ctx context.Context, call *models.ToolCallRequest) (*models.ToolResult, error) {
	return t.run(call)
}

type fakeMaterializer struct {
	created []*models.PlanBlueprint
	err     error
}

func (m *fakeMaterializer) CreateWorkflowFromBlueprint(ctx context.Context, bp *models.PlanBlueprint) (*blueprint.Materialized, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.created = append(m.created, bp)
	return &blueprint.Materialized{WorkflowID: uuid.New()}, nil
}

func successOutput(intent models.Intent) *models.AgentResult {
	return &models.AgentResult{
		Status: models.ResultSuccess,
		Output: &models.AgentOutput{Thought: "thinking", Intent: intent},
	}
}

func newTestEngine(store *fakeStore, agent *fakeAgent, tool *fakeTool, mat *fakeMaterializer) *Engine {
	log := logger.New("error", "text")
	return New(Opts{
		Tasks:        store,
		Edges:        store,
		Materializer: mat,
		Agents:       agent,
		Tools:        tool,
		Queue:        queue.NewMemoryTaskQueue(64, log),
		Logger:       log,
	})
}

func pendingAgentTask(assignee string) *models.Task {
	return &models.Task{
		ID:         uuid.New(),
		WorkflowID: uuid.New(),
		AssigneeID: assignee,
		Status:     models.StatusPending,
		InputData:  map[string]interface{}{},
	}
}

func TestHandleTask_FinalAnswer(t *testing.T) {
	store := newFakeStore()
	task := pendingAgentTask("Agent:Hello")
	store.addTask(task)

	agent := &fakeAgent{execute: func(*models.Task) (*models.AgentResult, error) {
		return successOutput(&models.FinalAnswer{Content: "hi"}), nil
	}}
	eng := newTestEngine(store, agent, &fakeTool{}, &fakeMaterializer{})

	eng.HandleTask(context.Background(), task.ID.String())

	got := store.snapshot(task.ID)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, map[string]interface{}{"content": "hi"}, got.Result)
	assert.EqualValues(t, 1, agent.calls.Load())
}

func TestHandleTask_ToolReentry(t *testing.T) {
	store := newFakeStore()
	task := pendingAgentTask("Agent:A")
	task.InputData = map[string]interface{}{"q": "2+2"}
	store.addTask(task)

	// First dispatch asks for a tool, the re-entry answers from the
	// tool result in the context
	agent := &fakeAgent{}
	agent.execute = func(current *models.Task) (*models.AgentResult, error) {
		if current.Result == nil {
			return successOutput(&models.ToolCallRequest{
				ToolID:    "calc",
				Arguments: map[string]interface{}{"expr": "2+2"},
			}), nil
		}
		return successOutput(&models.FinalAnswer{Content: "4"}), nil
	}
	tool := &fakeTool{run: func(call *models.ToolCallRequest) (*models.ToolResult, error) {
		require.Equal(t, "calc", call.ToolID)
		return &models.ToolResult{Status: models.ResultSuccess, Output: 4}, nil
	}}
	eng := newTestEngine(store, agent, tool, &fakeMaterializer{})

	eng.HandleTask(context.Background(), task.ID.String())

	afterFirst := store.snapshot(task.ID)
	require.Equal(t, models.StatusPending, afterFirst.Status)
	require.Equal(t, map[string]interface{}{
		"last_tool_result": map[string]interface{}{"output": 4, "status": "SUCCESS"},
	}, afterFirst.Result)

	eng.HandleTask(context.Background(), task.ID.String())

	final := store.snapshot(task.ID)
	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Equal(t, map[string]interface{}{"content": "4"}, final.Result)
	assert.EqualValues(t, 2, agent.calls.Load())
}

func TestHandleTask_PlanBlueprint(t *testing.T) {
	store := newFakeStore()
	task := pendingAgentTask("Agent:Planner")
	store.addTask(task)

	bp := &models.PlanBlueprint{
		NewTasks: []models.TaskDefinition{
			{TaskID: "p1", AssigneeID: "Agent:A", InputData: map[string]interface{}{}},
		},
	}
	agent := &fakeAgent{execute: func(*models.Task) (*models.AgentResult, error) {
		return successOutput(bp), nil
	}}
	mat := &fakeMaterializer{}
	eng := newTestEngine(store, agent, &fakeTool{}, mat)

	eng.HandleTask(context.Background(), task.ID.String())

	got := store.snapshot(task.ID)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, map[string]interface{}{"message": "Plan executed successfully"}, got.Result)

	require.Len(t, mat.created, 1)
	created := mat.created[0]
	require.NotNil(t, created.WorkflowID)
	assert.Equal(t, task.WorkflowID, *created.WorkflowID, "sub-plan expands the emitting workflow")
	require.NotNil(t, created.NewTasks[0].ParentTaskID)
	assert.Equal(t, task.ID.String(), *created.NewTasks[0].ParentTaskID)
}

func TestHandleTask_InvalidBlueprintFailsTask(t *testing.T) {
	store := newFakeStore()
	task := pendingAgentTask("Agent:Planner")
	store.addTask(task)

	agent := &fakeAgent{execute: func(*models.Task) (*models.AgentResult, error) {
		return successOutput(&models.PlanBlueprint{
			NewTasks: []models.TaskDefinition{{TaskID: "p1", AssigneeID: "not-an-assignee"}},
		}), nil
	}}
	mat := &fakeMaterializer{}
	eng := newTestEngine(store, agent, &fakeTool{}, mat)

	eng.HandleTask(context.Background(), task.ID.String())

	got := store.snapshot(task.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.Result["error"], "invalid blueprint")
	assert.Empty(t, mat.created)
}

func TestHandleTask_AgentFailure(t *testing.T) {
	store := newFakeStore()
	task := pendingAgentTask("Agent:A")
	store.addTask(task)

	agent := &fakeAgent{execute: func(*models.Task) (*models.AgentResult, error) {
		return &models.AgentResult{
			Status: models.ResultFailure,
			Output: &models.AgentOutput{Thought: "cannot comply"},
			FailureDetails: &models.FailureDetails{
				Type:    models.FailureLLMRefusal,
				Message: "refused",
			},
		}, nil
	}}
	eng := newTestEngine(store, agent, &fakeTool{}, &fakeMaterializer{})

	eng.HandleTask(context.Background(), task.ID.String())

	got := store.snapshot(task.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "cannot comply", got.Result["thought"])
	require.NotNil(t, got.Result["failure_details"])
}

func TestHandleTask_AgentErrorFailsTask(t *testing.T) {
	store := newFakeStore()
	task := pendingAgentTask("Agent:A")
	store.addTask(task)

	agent := &fakeAgent{execute: func(*models.Task) (*models.AgentResult, error) {
		return nil, fmt.Errorf("executor unreachable")
	}}
	eng := newTestEngine(store, agent, &fakeTool{}, &fakeMaterializer{})

	eng.HandleTask(context.Background(), task.ID.String())

	got := store.snapshot(task.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "executor unreachable", got.Result["error"])
}

func TestHandleTask_PanicFailsTaskNotWorker(t *testing.T) {
	store := newFakeStore()
	task := pendingAgentTask("Agent:A")
	store.addTask(task)

	agent := &fakeAgent{execute: func(*models.Task) (*models.AgentResult, error) {
		panic("boom")
	}}
	eng := newTestEngine(store, agent, &fakeTool{}, &fakeMaterializer{})

	require.NotPanics(t, func() {
		eng.HandleTask(context.Background(), task.ID.String())
	})

	got := store.snapshot(task.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.Result["error"], "boom")
}

func TestHandleTask_DirectToolDispatch(t *testing.T) {
	store := newFakeStore()
	task := pendingAgentTask("Tool:calc")
	task.InputData = map[string]interface{}{"expr": "2+2"}
	store.addTask(task)

	tool := &fakeTool{run: func(call *models.ToolCallRequest) (*models.ToolResult, error) {
		require.Equal(t, "calc", call.ToolID)
		require.Equal(t, task.InputData, call.Arguments)
		return &models.ToolResult{Status: models.ResultSuccess, Output: 4}, nil
	}}
	eng := newTestEngine(store, &fakeAgent{}, tool, &fakeMaterializer{})

	eng.HandleTask(context.Background(), task.ID.String())

	got := store.snapshot(task.ID)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, map[string]interface{}{"output": 4, "status": "SUCCESS"}, got.Result)
}

func TestHandleTask_UnsupportedAssignee(t *testing.T) {
	store := newFakeStore()
	task := pendingAgentTask("Group:reviewers")
	store.addTask(task)

	eng := newTestEngine(store, &fakeAgent{}, &fakeTool{}, &fakeMaterializer{})

	eng.HandleTask(context.Background(), task.ID.String())

	got := store.snapshot(task.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.Result["error"], "unsupported assignee")
}

func TestHandleTask_UnknownAndMalformedIDsAreNoOps(t *testing.T) {
	store := newFakeStore()
	eng := newTestEngine(store, &fakeAgent{}, &fakeTool{}, &fakeMaterializer{})

	require.NotPanics(t, func() {
		eng.HandleTask(context.Background(), uuid.NewString())
		eng.HandleTask(context.Background(), "not-a-uuid")
	})
}

func TestActivateSuccessors_ConditionalEdgeFires(t *testing.T) {
	store := newFakeStore()
	researcher := pendingAgentTask("Agent:Researcher")
	researcher.Status = models.StatusCompleted
	researcher.Result = map[string]interface{}{
		"success": true,
		"data":    map[string]interface{}{"temp": 25},
	}
	writer := pendingAgentTask("Agent:Writer")
	writer.Status = models.StatusFailed // any claimable-from state works for activation
	store.addTask(researcher)
	store.addTask(writer)
	store.addEdge(&models.Edge{
		ID:           uuid.New(),
		WorkflowID:   researcher.WorkflowID,
		SourceTaskID: researcher.ID,
		TargetTaskID: writer.ID,
		Condition:    &models.Condition{Evaluator: models.EvaluatorCEL, Expression: "result.success == true"},
		DataFlow:     &models.DataFlow{Mappings: map[string]string{"weather_data": "result.data"}},
	})

	eng := newTestEngine(store, &fakeAgent{}, &fakeTool{}, &fakeMaterializer{})

	eng.HandleTask(context.Background(), researcher.ID.String())

	got := store.snapshot(writer.ID)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, map[string]interface{}{
		"weather_data": map[string]interface{}{"temp": float64(25)},
	}, got.InputData)
}

func TestActivateSuccessors_ConditionalEdgeBlocks(t *testing.T) {
	store := newFakeStore()
	researcher := pendingAgentTask("Agent:Researcher")
	researcher.Status = models.StatusCompleted
	researcher.Result = map[string]interface{}{"success": false}
	writer := pendingAgentTask("Agent:Writer")
	writer.Status = models.StatusFailed
	store.addTask(researcher)
	store.addTask(writer)
	store.addEdge(&models.Edge{
		ID:           uuid.New(),
		WorkflowID:   researcher.WorkflowID,
		SourceTaskID: researcher.ID,
		TargetTaskID: writer.ID,
		Condition:    &models.Condition{Evaluator: models.EvaluatorCEL, Expression: "result.success == true"},
	})

	eng := newTestEngine(store, &fakeAgent{}, &fakeTool{}, &fakeMaterializer{})

	eng.HandleTask(context.Background(), researcher.ID.String())

	got := store.snapshot(writer.ID)
	assert.Equal(t, models.StatusFailed, got.Status, "blocked edge must not activate its target")
	assert.Nil(t, got.InputData)
}

func TestActivateSuccessors_UnconditionalEdgeFiresOnMissingResult(t *testing.T) {
	store := newFakeStore()
	source := pendingAgentTask("Agent:A")
	source.Status = models.StatusCompleted
	source.Result = nil
	target := pendingAgentTask("Agent:B")
	target.Status = models.StatusCompleted
	store.addTask(source)
	store.addTask(target)
	store.addEdge(&models.Edge{
		ID:           uuid.New(),
		WorkflowID:   source.WorkflowID,
		SourceTaskID: source.ID,
		TargetTaskID: target.ID,
	})

	eng := newTestEngine(store, &fakeAgent{}, &fakeTool{}, &fakeMaterializer{})

	eng.HandleTask(context.Background(), source.ID.String())

	got := store.snapshot(target.ID)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, map[string]interface{}{}, got.InputData)
}

func TestHandleTask_DuplicateDeliverySingleDispatch(t *testing.T) {
	store := newFakeStore()
	task := pendingAgentTask("Agent:A")
	store.addTask(task)

	inFlight := atomic.Int64{}
	maxInFlight := atomic.Int64{}
	agent := &fakeAgent{execute: func(*models.Task) (*models.AgentResult, error) {
		current := inFlight.Add(1)
		if current > maxInFlight.Load() {
			maxInFlight.Store(current)
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return successOutput(&models.FinalAnswer{Content: "hi"}), nil
	}}
	eng := newTestEngine(store, agent, &fakeTool{}, &fakeMaterializer{})

	// The same id delivered to two concurrent workers: the claim's
	// PENDING->RUNNING gate lets exactly one of them dispatch
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eng.HandleTask(context.Background(), task.ID.String())
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, agent.calls.Load(), "duplicate delivery must dispatch once")
	assert.EqualValues(t, 1, maxInFlight.Load(), "no concurrent dispatch for one task")
	assert.Equal(t, models.StatusCompleted, store.snapshot(task.ID).Status)
}

func TestSeedPendingTasks(t *testing.T) {
	store := newFakeStore()
	pending1 := pendingAgentTask("Agent:A")
	pending2 := pendingAgentTask("Agent:B")
	done := pendingAgentTask("Agent:C")
	done.Status = models.StatusCompleted
	store.addTask(pending1)
	store.addTask(pending2)
	store.addTask(done)

	log := logger.New("error", "text")
	q := queue.NewMemoryTaskQueue(16, log)
	eng := New(Opts{
		Tasks:        store,
		Edges:        store,
		Materializer: &fakeMaterializer{},
		Agents:       &fakeAgent{},
		Tools:        &fakeTool{},
		Queue:        q,
		Logger:       log,
	})

	seeded, err := eng.SeedPendingTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, seeded)

	length, err := q.Length(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, length)
}

func TestRun_DrainsOnCancel(t *testing.T) {
	store := newFakeStore()
	task := pendingAgentTask("Agent:A")
	store.addTask(task)

	agent := &fakeAgent{execute: func(*models.Task) (*models.AgentResult, error) {
		return successOutput(&models.FinalAnswer{Content: "hi"}), nil
	}}
	log := logger.New("error", "text")
	q := queue.NewMemoryTaskQueue(16, log)
	eng := New(Opts{
		Tasks:        store,
		Edges:        store,
		Materializer: &fakeMaterializer{},
		Agents:       agent,
		Tools:        &fakeTool{},
		Queue:        q,
		Logger:       log,
		Workers:      2,
		PopTimeout:   20 * time.Millisecond,
	})

	require.NoError(t, q.Push(context.Background(), task.ID.String()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	require.Eventually(t, func() bool {
		return store.snapshot(task.ID).Status == models.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop after cancel")
	}
}
