package blueprint

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/synapse/orchestrator/common/db"
	"github.com/synapse/orchestrator/common/logger"
	"github.com/synapse/orchestrator/common/models"
	"github.com/synapse/orchestrator/common/repository"
)

// Materializer expands a PlanBlueprint into persisted rows. The whole
// expansion runs in one transaction: placeholder ids are remapped to
// DB-assigned UUIDs as tasks are inserted, edges are rewritten through
// that map, and task updates apply last. Any error rolls back the
// entire blueprint.
type Materializer struct {
	db    *db.DB
	tasks *repository.TaskRepository
	edges *repository.EdgeRepository
	log   *logger.Logger
}

// NewMaterializer creates a new materializer
func NewMaterializer(database *db.DB, tasks *repository.TaskRepository, edges *repository.EdgeRepository, log *logger.Logger) *Materializer {
	return &Materializer{
		db:    database,
		tasks: tasks,
		edges: edges,
		log:   log,
	}
}

// Materialized reports what a committed blueprint produced: the
// workflow id and the ids assigned to each placeholder and edge.
type Materialized struct {
	WorkflowID uuid.UUID            `json:"workflow_id"`
	TaskIDs    map[string]uuid.UUID `json:"task_ids"`
	EdgeIDs    []uuid.UUID          `json:"edge_ids"`
}

// CreateWorkflowFromBlueprint materializes the blueprint and returns
// the assigned ids. The workflow id is generated when the blueprint
// does not carry one.
func (m *Materializer) CreateWorkflowFromBlueprint(ctx context.Context, bp *models.PlanBlueprint) (*Materialized, error) {
	workflowID := uuid.New()
	if bp.WorkflowID != nil {
		workflowID = *bp.WorkflowID
	}

	m.log.Info("materializing blueprint",
		"workflow_id", workflowID,
		"new_tasks", len(bp.NewTasks),
		"new_edges", len(bp.NewEdges),
		"update_tasks", len(bp.UpdateTasks))

	idMap := make(map[string]uuid.UUID, len(bp.NewTasks))
	var edgeIDs []uuid.UUID

	err := m.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, def := range bp.NewTasks {
			parentID, err := resolveParent(idMap, def.ParentTaskID)
			if err != nil {
				return fmt.Errorf("task %q: %w", def.TaskID, err)
			}

			task, err := m.tasks.CreateIn(ctx, tx, repository.CreateTaskParams{
				WorkflowID:   workflowID,
				AssigneeID:   def.AssigneeID,
				InputData:    def.InputData,
				ParentTaskID: parentID,
				Directives:   def.Directives,
			})
			if err != nil {
				return err
			}

			idMap[def.TaskID] = task.ID
			m.log.Debug("blueprint task created", "placeholder", def.TaskID, "task_id", task.ID)
		}

		for _, edgeDef := range bp.NewEdges {
			sourceID, err := resolveRef(idMap, edgeDef.SourceTaskID)
			if err != nil {
				return fmt.Errorf("edge source: %w", err)
			}
			targetID, err := resolveRef(idMap, edgeDef.TargetTaskID)
			if err != nil {
				return fmt.Errorf("edge target: %w", err)
			}

			edge, err := m.edges.CreateIn(ctx, tx, repository.CreateEdgeParams{
				WorkflowID:   workflowID,
				SourceTaskID: sourceID,
				TargetTaskID: targetID,
				Condition:    edgeDef.Condition,
				DataFlow:     edgeDef.DataFlow,
			})
			if err != nil {
				return err
			}
			edgeIDs = append(edgeIDs, edge.ID)
		}

		for _, update := range bp.UpdateTasks {
			if err := m.applyUpdate(ctx, tx, update); err != nil {
				return fmt.Errorf("update task %s: %w", update.TaskID, err)
			}
		}

		return nil
	})
	if err != nil {
		m.log.Error("blueprint materialization failed", "workflow_id", workflowID, "error", err)
		return nil, fmt.Errorf("materialize blueprint: %w", err)
	}

	m.log.Info("blueprint materialized", "workflow_id", workflowID, "tasks", len(idMap), "edges", len(edgeIDs))
	return &Materialized{
		WorkflowID: workflowID,
		TaskIDs:    idMap,
		EdgeIDs:    edgeIDs,
	}, nil
}

func (m *Materializer) applyUpdate(ctx context.Context, tx pgx.Tx, update models.TaskUpdate) error {
	switch {
	case update.NewInputData != nil && update.NewStatus != nil:
		return m.tasks.UpdateInputAndStatusIn(ctx, tx, update.TaskID, update.NewInputData, *update.NewStatus)
	case update.NewInputData != nil:
		return m.tasks.UpdateInputIn(ctx, tx, update.TaskID, update.NewInputData)
	case update.NewStatus != nil:
		return m.tasks.UpdateStatusIn(ctx, tx, update.TaskID, *update.NewStatus)
	default:
		m.log.Debug("empty task update skipped", "task_id", update.TaskID)
		return nil
	}
}

// resolveRef maps a blueprint task reference to a real id: first via
// the placeholder map, then as a literal UUID of a pre-existing task.
func resolveRef(idMap map[string]uuid.UUID, ref string) (uuid.UUID, error) {
	if real, ok := idMap[ref]; ok {
		return real, nil
	}
	id, err := uuid.Parse(ref)
	if err != nil {
		return uuid.Nil, fmt.Errorf("reference %q is neither a placeholder nor a task id", ref)
	}
	return id, nil
}

// resolveParent resolves an optional parent reference. Placeholders
// only reach tasks inserted earlier in the same blueprint.
func resolveParent(idMap map[string]uuid.UUID, ref *string) (*uuid.UUID, error) {
	if ref == nil {
		return nil, nil
	}
	id, err := resolveRef(idMap, *ref)
	if err != nil {
		return nil, fmt.Errorf("parent %w", err)
	}
	return &id, nil
}
