package blueprint

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/synapse/orchestrator/common/models"
)

// Limits caps blueprint size. Zero values disable the respective cap.
type Limits struct {
	MaxTasks int
	MaxEdges int
}

var assigneePattern = regexp.MustCompile(`^(Agent|Tool|Group):.+$`)

// Validate checks a blueprint before materialization: size caps,
// placeholder integrity, assignee format and condition dialect.
// Structural errors here would otherwise surface as mid-transaction
// rollbacks with worse diagnostics.
func Validate(bp *models.PlanBlueprint, limits Limits) error {
	if bp == nil {
		return fmt.Errorf("blueprint is nil")
	}

	if limits.MaxTasks > 0 && len(bp.NewTasks) > limits.MaxTasks {
		return fmt.Errorf("blueprint has %d tasks, limit is %d", len(bp.NewTasks), limits.MaxTasks)
	}
	if limits.MaxEdges > 0 && len(bp.NewEdges) > limits.MaxEdges {
		return fmt.Errorf("blueprint has %d edges, limit is %d", len(bp.NewEdges), limits.MaxEdges)
	}

	placeholders := make(map[string]bool, len(bp.NewTasks))
	for i, def := range bp.NewTasks {
		if def.TaskID == "" {
			return fmt.Errorf("task %d has an empty task_id", i)
		}
		if placeholders[def.TaskID] {
			return fmt.Errorf("duplicate placeholder %q", def.TaskID)
		}
		placeholders[def.TaskID] = true

		if !assigneePattern.MatchString(def.AssigneeID) {
			return fmt.Errorf("task %q has malformed assignee %q", def.TaskID, def.AssigneeID)
		}
	}

	// Parent references may only point at earlier tasks in the same
	// blueprint or at real task ids
	seen := make(map[string]bool, len(bp.NewTasks))
	for _, def := range bp.NewTasks {
		if def.ParentTaskID != nil && !seen[*def.ParentTaskID] {
			if _, err := uuid.Parse(*def.ParentTaskID); err != nil {
				return fmt.Errorf("task %q references undefined parent %q", def.TaskID, *def.ParentTaskID)
			}
		}
		seen[def.TaskID] = true
	}

	for i, edge := range bp.NewEdges {
		if err := validateEdgeRef(placeholders, edge.SourceTaskID); err != nil {
			return fmt.Errorf("edge %d source: %w", i, err)
		}
		if err := validateEdgeRef(placeholders, edge.TargetTaskID); err != nil {
			return fmt.Errorf("edge %d target: %w", i, err)
		}
		if edge.Condition != nil && edge.Condition.Evaluator != models.EvaluatorCEL {
			return fmt.Errorf("edge %d has unsupported evaluator %q", i, edge.Condition.Evaluator)
		}
	}

	for i, update := range bp.UpdateTasks {
		if update.NewStatus != nil && !update.NewStatus.Valid() {
			return fmt.Errorf("update %d has unknown status %q", i, *update.NewStatus)
		}
	}

	return nil
}

func validateEdgeRef(placeholders map[string]bool, ref string) error {
	if ref == "" {
		return fmt.Errorf("empty task reference")
	}
	if placeholders[ref] {
		return nil
	}
	if _, err := uuid.Parse(ref); err != nil {
		return fmt.Errorf("reference %q is neither a placeholder nor a task id", ref)
	}
	return nil
}
