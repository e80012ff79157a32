//go:build integration

package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synapse/orchestrator/common/config"
	"github.com/synapse/orchestrator/common/db"
	"github.com/synapse/orchestrator/common/logger"
	"github.com/synapse/orchestrator/common/models"
)

func setupIntegration(t *testing.T) *db.DB {
	t.Helper()

	log := logger.New("error", "text")
	cfg, err := config.Load("repository-integration-test")
	require.NoError(t, err)

	database, err := db.New(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(database.Close)

	require.NoError(t, db.EnsureSchema(context.Background(), database))
	return database
}

// Two workers race to claim one PENDING task. Exactly one observes the
// PENDING pre-claim status; the other either loses the lock (nil task)
// or observes RUNNING, which the engine skips.
func TestIntegration_ClaimIsExclusive(t *testing.T) {
	database := setupIntegration(t)
	tasks := NewTaskRepository(database)
	ctx := context.Background()

	task, err := tasks.Create(ctx, CreateTaskParams{
		WorkflowID: uuid.New(),
		AssigneeID: "Agent:writer",
		InputData:  map[string]interface{}{"prompt": "contention"},
	})
	require.NoError(t, err)

	const workers = 2
	claims := make([]*models.Task, workers)
	errs := make([]error, workers)

	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer done.Done()
			start.Wait()
			claims[i], errs[i] = tasks.Claim(ctx, task.ID)
		}(i)
	}
	start.Done()
	done.Wait()

	pendingClaims := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		if claims[i] != nil && claims[i].Status == models.StatusPending {
			pendingClaims++
		}
	}
	assert.Equal(t, 1, pendingClaims, "exactly one worker may dispatch")

	// The row ends up RUNNING regardless of who won
	current, err := tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, current.Status)
}

func TestIntegration_GuardedUpdateRejectsIllegalTransition(t *testing.T) {
	database := setupIntegration(t)
	tasks := NewTaskRepository(database)
	ctx := context.Background()

	task, err := tasks.Create(ctx, CreateTaskParams{
		WorkflowID: uuid.New(),
		AssigneeID: "Agent:writer",
	})
	require.NoError(t, err)

	// PENDING -> COMPLETED skips RUNNING and must be rejected
	err = tasks.UpdateStatusAndResult(ctx, task.ID, models.StatusCompleted, map[string]interface{}{"content": "done"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	current, err := tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, current.Status)
}
