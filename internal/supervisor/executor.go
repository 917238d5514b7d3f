package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/webrlabs/arcadiaforge/internal/agent"
	"github.com/webrlabs/arcadiaforge/internal/budget"
	"github.com/webrlabs/arcadiaforge/internal/hooks"
	"github.com/webrlabs/arcadiaforge/internal/toolreg"
	"github.com/webrlabs/arcadiaforge/internal/types"
)

// buildToolCatalog converts the Tool Registry's catalogue into the
// runtime-agnostic shape the LLM runtime declares to the model.
func buildToolCatalog(tools *toolreg.Registry) []agent.ToolSpec {
	catalog := tools.Catalog()
	out := make([]agent.ToolSpec, 0, len(catalog))
	for _, t := range catalog {
		out = append(out, agent.ToolSpec{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return out
}

func toolNames(catalog []agent.ToolSpec) []string {
	out := make([]string, 0, len(catalog))
	for _, t := range catalog {
		out = append(out, t.Name)
	}
	return out
}

// usageStamper hands out each model turn's token cost to exactly one
// tool call: the first call made after that turn completes. Every
// later call in the same turn sees the zero value, so a turn's cost is
// never double-counted across the TOOL_CALL events it produced.
type usageStamper struct {
	mu      sync.Mutex
	pending types.TokenUsage
}

func (u *usageStamper) set(usage agent.Usage) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.pending = types.TokenUsage{InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens}
}

func (u *usageStamper) take() types.TokenUsage {
	u.mu.Lock()
	defer u.mu.Unlock()
	taken := u.pending
	u.pending = types.TokenUsage{}
	return taken
}

// buildExecutor wires an agent.ToolExecutor that routes every model
// tool call through pipeline, feeding the Budget watchdog's stall/cyclic
// counters as calls and errors happen and stamping each turn's token
// cost onto the first call that turn produced.
func (s *Supervisor) buildExecutor(pipeline *hooks.Pipeline, sessionID int64, wd *budget.Watchdog) (agent.ToolExecutor, *usageStamper) {
	stamper := &usageStamper{}

	executor := func(ctx context.Context, call agent.ToolCall) agent.ToolResult {
		wd.RecordToolCall(time.Now())

		usage := stamper.take()
		confidence := extractConfidence(call.Input)
		invocationID := types.ToolInvocationID(call.ID)

		result, err := pipeline.Run(ctx, sessionID, invocationID, call.Name, call.Input, confidence, usage)
		if err != nil {
			s.deps.Metrics.RecordToolCall(call.Name, "error")
			if featureIdx := s.currentFeatureIndex(); featureIdx != nil {
				wd.RecordError(*featureIdx, err.Error())
			}
			return agent.ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true}
		}
		s.deps.Metrics.RecordHookLatency(call.Name, result.Duration.Seconds())

		switch {
		case result.Blocked:
			s.deps.Metrics.RecordToolCall(call.Name, "blocked")
			return agent.ToolResult{ToolCallID: call.ID, Content: "blocked: " + result.BlockMsg, IsError: true}
		case result.Denied:
			s.deps.Metrics.RecordToolCall(call.Name, "denied")
			return agent.ToolResult{ToolCallID: call.ID, Content: "denied: " + result.DenyMsg, IsError: true}
		case result.Err != nil:
			s.deps.Metrics.RecordToolCall(call.Name, "error")
			if featureIdx := s.currentFeatureIndex(); featureIdx != nil {
				wd.RecordError(*featureIdx, result.Err.Error())
			}
			return agent.ToolResult{ToolCallID: call.ID, Content: result.Err.Error(), IsError: true}
		}

		s.deps.Metrics.RecordToolCall(call.Name, "ok")
		return agent.ToolResult{ToolCallID: call.ID, Content: renderOutput(result.Output)}
	}

	return executor, stamper
}

func renderOutput(output map[string]any) string {
	if output == nil {
		return "{}"
	}
	data, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf("tool output could not be rendered: %v", err)
	}
	return string(data)
}

// extractConfidence reads a self-reported "confidence" field off the
// tool's own input, if the calling tool declares one, for the Autonomy
// Manager's confidence-floor check. Most tools carry none.
func extractConfidence(input map[string]any) *float64 {
	v, ok := input["confidence"]
	if !ok {
		return nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}
