package clients

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/synapse/orchestrator/common/models"
)

// agentExecuteRequest is the wire shape of one agent dispatch. The
// task's result document rides along as context so a re-entered agent
// sees its previous tool results.
type agentExecuteRequest struct {
	TaskID     uuid.UUID              `json:"task_id"`
	WorkflowID uuid.UUID              `json:"workflow_id"`
	AssigneeID string                 `json:"assignee_id"`
	InputData  map[string]interface{} `json:"input_data"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Directives *models.TaskDirectives `json:"directives,omitempty"`
}

// AgentClient invokes the agent runtime over HTTP
type AgentClient struct {
	http    *JSONClient
	baseURL string
	logger  Logger
}

// NewAgentClient creates a client for the agent runtime at baseURL
func NewAgentClient(http *JSONClient, baseURL string, logger Logger) *AgentClient {
	return &AgentClient{
		http:    http,
		baseURL: baseURL,
		logger:  logger,
	}
}

// ExecuteAgent runs one agent dispatch cycle for the task
func (c *AgentClient) ExecuteAgent(ctx context.Context, task *models.Task) (*models.AgentResult, error) {
	req := agentExecuteRequest{
		TaskID:     task.ID,
		WorkflowID: task.WorkflowID,
		AssigneeID: task.AssigneeID,
		InputData:  task.InputData,
		Context:    task.Result,
		Directives: task.Directives,
	}

	var result models.AgentResult
	if err := c.http.PostJSON(ctx, c.baseURL+"/execute", req, &result); err != nil {
		return nil, fmt.Errorf("agent execution request failed: %w", err)
	}

	if result.Status != models.ResultSuccess && result.Status != models.ResultFailure {
		return nil, fmt.Errorf("agent returned unknown status %q", result.Status)
	}

	c.logger.Debug("agent executed", "task_id", task.ID, "status", result.Status)
	return &result, nil
}

// ToolClient invokes the tool runtime over HTTP
type ToolClient struct {
	http    *JSONClient
	baseURL string
	logger  Logger
}

// NewToolClient creates a client for the tool runtime at baseURL
func NewToolClient(http *JSONClient, baseURL string, logger Logger) *ToolClient {
	return &ToolClient{
		http:    http,
		baseURL: baseURL,
		logger:  logger,
	}
}

// RunTool runs one tool invocation
func (c *ToolClient) RunTool(ctx context.Context, call *models.ToolCallRequest) (*models.ToolResult, error) {
	var result models.ToolResult
	if err := c.http.PostJSON(ctx, c.baseURL+"/run", call, &result); err != nil {
		return nil, fmt.Errorf("tool execution request failed: %w", err)
	}

	if result.Status != models.ResultSuccess && result.Status != models.ResultFailure {
		return nil, fmt.Errorf("tool returned unknown status %q", result.Status)
	}

	c.logger.Debug("tool executed", "tool_id", call.ToolID, "status", result.Status)
	return &result, nil
}
