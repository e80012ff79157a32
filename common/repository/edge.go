package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/synapse/orchestrator/common/db"
	"github.com/synapse/orchestrator/common/models"
)

// EdgeRepository handles database operations for edges
type EdgeRepository struct {
	db *db.DB
}

// NewEdgeRepository creates a new edge repository
func NewEdgeRepository(database *db.DB) *EdgeRepository {
	return &EdgeRepository{db: database}
}

// CreateEdgeParams are the caller-supplied fields of a new edge
type CreateEdgeParams struct {
	WorkflowID   uuid.UUID
	SourceTaskID uuid.UUID
	TargetTaskID uuid.UUID
	Condition    *models.Condition
	DataFlow     *models.DataFlow
}

const edgeColumns = `id, workflow_id, source_task_id, target_task_id, condition, data_flow, created_at`

func scanEdge(row pgx.Row) (*models.Edge, error) {
	edge := &models.Edge{}
	err := row.Scan(
		&edge.ID,
		&edge.WorkflowID,
		&edge.SourceTaskID,
		&edge.TargetTaskID,
		&edge.Condition,
		&edge.DataFlow,
		&edge.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return edge, nil
}

// Create inserts a new edge and returns the stored row
func (r *EdgeRepository) Create(ctx context.Context, params CreateEdgeParams) (*models.Edge, error) {
	return r.CreateIn(ctx, r.db.Pool, params)
}

// CreateIn is Create against a caller-supplied Querier
func (r *EdgeRepository) CreateIn(ctx context.Context, q db.Querier, params CreateEdgeParams) (*models.Edge, error) {
	query := `
		INSERT INTO edges (workflow_id, source_task_id, target_task_id, condition, data_flow)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + edgeColumns

	edge, err := scanEdge(q.QueryRow(
		ctx,
		query,
		params.WorkflowID,
		params.SourceTaskID,
		params.TargetTaskID,
		params.Condition,
		params.DataFlow,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create edge: %w", err)
	}

	return edge, nil
}

// GetOutgoing returns all edges whose source is the given task
func (r *EdgeRepository) GetOutgoing(ctx context.Context, sourceTaskID uuid.UUID) ([]*models.Edge, error) {
	return r.listWhere(ctx, `source_task_id = $1`, sourceTaskID)
}

// ListByWorkflow returns all edges of a workflow
func (r *EdgeRepository) ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*models.Edge, error) {
	return r.listWhere(ctx, `workflow_id = $1`, workflowID)
}

func (r *EdgeRepository) listWhere(ctx context.Context, where string, args ...any) ([]*models.Edge, error) {
	query := `SELECT ` + edgeColumns + ` FROM edges WHERE ` + where + ` ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	defer rows.Close()

	var edges []*models.Edge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read edges: %w", err)
	}

	return edges, nil
}
