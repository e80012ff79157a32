package models

import (
	"encoding/json"
	"fmt"
)

// IntentKind tags the variant of an agent's successful output
type IntentKind string

const (
	IntentFinalAnswer     IntentKind = "final_answer"
	IntentToolCallRequest IntentKind = "tool_call_request"
	IntentPlanBlueprint   IntentKind = "plan_blueprint"
)

// Intent is the tagged variant the engine switches on: a final answer,
// a tool call, or a sub-plan expanding the graph at runtime.
type Intent interface {
	IntentKind() IntentKind
}

// FinalAnswer terminates the task with its content as the result
type FinalAnswer struct {
	Content interface{} `json:"content"`
}

// IntentKind implements Intent
func (*FinalAnswer) IntentKind() IntentKind { return IntentFinalAnswer }

// ToolCallRequest asks the engine to run a tool and re-enter the agent
// with the tool's result in the task context
type ToolCallRequest struct {
	ToolID    string                 `json:"tool_id"`
	Arguments map[string]interface{} `json:"arguments"`
}

// IntentKind implements Intent
func (*ToolCallRequest) IntentKind() IntentKind { return IntentToolCallRequest }

// IntentKind implements Intent
func (*PlanBlueprint) IntentKind() IntentKind { return IntentPlanBlueprint }

// AgentOutput pairs the agent's reasoning with its chosen intent
type AgentOutput struct {
	Thought string `json:"thought"`
	Intent  Intent `json:"intent"`
}

// UnmarshalJSON decodes the intent union by shape: the three variants
// have disjoint required keys, so key presence identifies the arm.
func (o *AgentOutput) UnmarshalJSON(data []byte) error {
	var raw struct {
		Thought string          `json:"thought"`
		Intent  json.RawMessage `json:"intent"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	o.Thought = raw.Thought
	if len(raw.Intent) == 0 || string(raw.Intent) == "null" {
		return fmt.Errorf("agent output has no intent")
	}

	intent, err := UnmarshalIntent(raw.Intent)
	if err != nil {
		return err
	}
	o.Intent = intent
	return nil
}

// UnmarshalIntent decodes a single intent variant from its JSON shape
func UnmarshalIntent(data []byte) (Intent, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode intent: %w", err)
	}

	if _, ok := probe["content"]; ok {
		var fa FinalAnswer
		if err := json.Unmarshal(data, &fa); err != nil {
			return nil, fmt.Errorf("decode final answer: %w", err)
		}
		return &fa, nil
	}

	if _, ok := probe["tool_id"]; ok {
		var tc ToolCallRequest
		if err := json.Unmarshal(data, &tc); err != nil {
			return nil, fmt.Errorf("decode tool call request: %w", err)
		}
		return &tc, nil
	}

	_, hasTasks := probe["new_tasks"]
	_, hasEdges := probe["new_edges"]
	_, hasUpdates := probe["update_tasks"]
	if hasTasks || hasEdges || hasUpdates {
		var bp PlanBlueprint
		if err := json.Unmarshal(data, &bp); err != nil {
			return nil, fmt.Errorf("decode plan blueprint: %w", err)
		}
		return &bp, nil
	}

	return nil, fmt.Errorf("unrecognized intent shape: keys %v", rawKeys(probe))
}

func rawKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// ResultStatus is the success/failure flag shared by executor results
type ResultStatus string

const (
	ResultSuccess ResultStatus = "SUCCESS"
	ResultFailure ResultStatus = "FAILURE"
)

// FailureType encodes why an executor failed
type FailureType string

const (
	FailureLLMRefusal          FailureType = "LLM_REFUSAL"
	FailureToolExecution       FailureType = "TOOL_EXECUTION_FAILED"
	FailureValidation          FailureType = "VALIDATION_ERROR"
	FailureResourceUnavailable FailureType = "RESOURCE_UNAVAILABLE"
)

// FailureDetails carries a structured reason for a FAILURE result
type FailureDetails struct {
	Type    FailureType `json:"type"`
	Message string      `json:"message"`
}

// AgentResult is what the agent executor returns for one dispatch
type AgentResult struct {
	Status         ResultStatus           `json:"status"`
	Output         *AgentOutput           `json:"output,omitempty"`
	FailureDetails *FailureDetails        `json:"failure_details,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// ToolResult is what the tool executor returns for one invocation
type ToolResult struct {
	Status            ResultStatus   `json:"status"`
	Output            interface{}    `json:"output,omitempty"`
	ErrorType         string         `json:"error_type,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	PostExecutionPlan *PlanBlueprint `json:"post_execution_plan,omitempty"`
}
