// Package agent implements the LLM runtime contract (spec.md
// "LLM runtime contract"): invoke a model with a system prompt, a tool
// catalog, and a user prompt, and drive the tool_call/tool_result loop
// until the model produces a final message with no further tool calls.
package agent

import (
	"context"
	"encoding/json"
)

// ToolCall is one tool_call(name, input) event the runtime produced.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResult is what the caller feeds back after executing a ToolCall.
// Content is the tool's output rendered as text (the Tool Registry's
// handlers already return JSON-shaped maps; the executor is
// responsible for rendering them before this struct is built).
type ToolResult struct {
	ToolCallID string
	Content    string
	IsError    bool
}

// ToolExecutor runs one tool call to completion and returns its
// result. The Session Supervisor's implementation routes this through
// the Hook Pipeline, not directly to the Tool Registry, so every call
// the model makes still passes Security Gate / Risk Classifier /
// Autonomy Manager / Checkpoint Manager.
type ToolExecutor func(ctx context.Context, call ToolCall) ToolResult

// Callbacks lets the caller observe streaming events as they happen,
// ahead of the final Result being returned. Any field may be nil.
type Callbacks struct {
	OnMessage  func(text string)
	OnToolCall func(call ToolCall)

	// OnUsage reports the token cost of one model turn as soon as that
	// turn completes (not cumulative) so a caller tracking a live budget
	// doesn't have to wait for Run to return.
	OnUsage func(usage Usage)
}

// Usage is an input/output token count. Result.Usage carries the total of
// one Run call summed across every turn; OnUsage receives one turn's count.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Result is what Run returns once the model stops requesting tools.
type Result struct {
	FinalText     string
	Usage         Usage
	ToolCallCount int
}

// ToolSpec is the runtime-agnostic shape of one catalog entry: just
// enough for a Runtime to declare it to the model. internal/toolreg's
// Tool already has this exact shape.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Runtime is the LLM runtime contract: given a system prompt, a tool
// catalog, and a user prompt, drive tool calls through executor and
// report streaming events through callbacks until the model finishes.
type Runtime interface {
	Run(ctx context.Context, systemPrompt string, catalog []ToolSpec, userPrompt string, executor ToolExecutor, callbacks Callbacks) (Result, error)
}
