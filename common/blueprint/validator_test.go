package blueprint

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/synapse/orchestrator/common/models"
)

func validBlueprint() *models.PlanBlueprint {
	return &models.PlanBlueprint{
		NewTasks: []models.TaskDefinition{
			{TaskID: "p1", AssigneeID: "Agent:Researcher", InputData: map[string]interface{}{}},
			{TaskID: "p2", AssigneeID: "Agent:Writer", InputData: map[string]interface{}{}},
		},
		NewEdges: []models.EdgeDefinition{
			{SourceTaskID: "p1", TargetTaskID: "p2"},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := Validate(validBlueprint(), Limits{MaxTasks: 200, MaxEdges: 400}); err != nil {
		t.Fatalf("Valid blueprint rejected: %v", err)
	}
}

func TestValidate_EmptyBlueprint(t *testing.T) {
	// Zero tasks and zero edges commit trivially, so validation passes
	if err := Validate(&models.PlanBlueprint{}, Limits{}); err != nil {
		t.Fatalf("Empty blueprint rejected: %v", err)
	}
}

func TestValidate_TaskLimit(t *testing.T) {
	bp := validBlueprint()
	err := Validate(bp, Limits{MaxTasks: 1})
	if err == nil || !strings.Contains(err.Error(), "limit") {
		t.Fatalf("Expected task limit error, got %v", err)
	}
}

func TestValidate_DuplicatePlaceholder(t *testing.T) {
	bp := validBlueprint()
	bp.NewTasks[1].TaskID = "p1"
	err := Validate(bp, Limits{})
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("Expected duplicate placeholder error, got %v", err)
	}
}

func TestValidate_MalformedAssignee(t *testing.T) {
	cases := []string{"researcher", "Agent", "Agent:", "Robot:X", ""}
	for _, assignee := range cases {
		bp := validBlueprint()
		bp.NewTasks[0].AssigneeID = assignee
		if err := Validate(bp, Limits{}); err == nil {
			t.Errorf("Assignee %q should be rejected", assignee)
		}
	}

	for _, assignee := range []string{"Agent:A", "Tool:calc", "Group:review:board"} {
		bp := validBlueprint()
		bp.NewTasks[0].AssigneeID = assignee
		if err := Validate(bp, Limits{}); err != nil {
			t.Errorf("Assignee %q should be accepted: %v", assignee, err)
		}
	}
}

func TestValidate_UndefinedEdgeReference(t *testing.T) {
	bp := validBlueprint()
	bp.NewEdges[0].TargetTaskID = "p9"
	err := Validate(bp, Limits{})
	if err == nil || !strings.Contains(err.Error(), "p9") {
		t.Fatalf("Expected undefined reference error, got %v", err)
	}
}

func TestValidate_EdgeToRealTaskID(t *testing.T) {
	bp := validBlueprint()
	bp.NewEdges[0].TargetTaskID = uuid.NewString()
	if err := Validate(bp, Limits{}); err != nil {
		t.Fatalf("Edge to a real task id should validate: %v", err)
	}
}

func TestValidate_ParentReferences(t *testing.T) {
	// Parent naming an earlier placeholder is fine
	bp := validBlueprint()
	parent := "p1"
	bp.NewTasks[1].ParentTaskID = &parent
	if err := Validate(bp, Limits{}); err != nil {
		t.Fatalf("Parent placeholder should validate: %v", err)
	}

	// Parent naming a later placeholder is not resolvable at insert time
	bp = validBlueprint()
	late := "p2"
	bp.NewTasks[0].ParentTaskID = &late
	if err := Validate(bp, Limits{}); err == nil {
		t.Fatal("Forward parent reference should be rejected")
	}

	// Parent naming a real task id is fine
	bp = validBlueprint()
	real := uuid.NewString()
	bp.NewTasks[0].ParentTaskID = &real
	if err := Validate(bp, Limits{}); err != nil {
		t.Fatalf("Real parent id should validate: %v", err)
	}
}

func TestValidate_UnsupportedEvaluator(t *testing.T) {
	bp := validBlueprint()
	bp.NewEdges[0].Condition = &models.Condition{Evaluator: "JSONPATH", Expression: "$.x"}
	if err := Validate(bp, Limits{}); err == nil {
		t.Fatal("Non-CEL evaluator should be rejected at submission")
	}

	bp.NewEdges[0].Condition = &models.Condition{Evaluator: models.EvaluatorCEL, Expression: "result.ok == true"}
	if err := Validate(bp, Limits{}); err != nil {
		t.Fatalf("CEL condition should validate: %v", err)
	}
}

func TestValidate_UnknownUpdateStatus(t *testing.T) {
	bp := validBlueprint()
	bad := models.TaskStatus("UPDATED")
	bp.UpdateTasks = []models.TaskUpdate{{TaskID: uuid.New(), NewStatus: &bad}}
	if err := Validate(bp, Limits{}); err == nil {
		t.Fatal("Unknown update status should be rejected")
	}
}

func TestResolveRef(t *testing.T) {
	real := uuid.New()
	idMap := map[string]uuid.UUID{"p1": real}

	got, err := resolveRef(idMap, "p1")
	if err != nil || got != real {
		t.Fatalf("Placeholder lookup failed: %v %v", got, err)
	}

	pre := uuid.New()
	got, err = resolveRef(idMap, pre.String())
	if err != nil || got != pre {
		t.Fatalf("UUID passthrough failed: %v %v", got, err)
	}

	if _, err := resolveRef(idMap, "p-missing"); err == nil {
		t.Fatal("Undefined placeholder should error")
	}
}
