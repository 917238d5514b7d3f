// Package hooks implements the Hook Pipeline (spec.md §4.9): the single
// path every tool invocation travels through — Security Gate, Risk
// Classifier, Autonomy Manager, Checkpoint Manager, then Observability,
// before and after the Tool Registry actually runs the tool.
//
// Hooks are pure functions over context; the only I/O they perform is
// through the collaborators passed into New (store-backed managers and
// the event log), never directly.
package hooks

import (
	"context"
	"fmt"
	"time"

	"github.com/webrlabs/arcadiaforge/internal/autonomy"
	"github.com/webrlabs/arcadiaforge/internal/checkpoint"
	"github.com/webrlabs/arcadiaforge/internal/risk"
	"github.com/webrlabs/arcadiaforge/internal/security"
	"github.com/webrlabs/arcadiaforge/internal/types"
)

// Dispatcher runs the actual tool once the PRE stage has cleared it.
// internal/toolreg implements this.
type Dispatcher interface {
	Dispatch(ctx context.Context, tool string, input map[string]any) (output map[string]any, err error)
}

// Observer receives the events the pipeline emits at each stage. The
// Session Supervisor implements this over the Event Log and Hot memory.
type Observer interface {
	Emit(event types.Event)
}

// InjectionOpener blocks (up to a timeout) waiting for a human response
// when a PRE-stage decision requires approval. internal/human implements
// this over Injection Points.
type InjectionOpener interface {
	RequestApproval(ctx context.Context, sessionID int64, toolName string, assessment types.RiskAssessment, decision autonomy.Decision) (approved bool, err error)
}

// Pipeline wires the five PRE stages, dispatch, and the two POST stages
// together for one project.
type Pipeline struct {
	risk       *risk.Classifier
	autonomy   *autonomy.Manager
	checkpoint *checkpoint.Manager
	dispatcher Dispatcher
	observer   Observer
	injections InjectionOpener
	platform   security.Platform
}

// New constructs a Pipeline. injections may be nil if the autonomy
// configuration never requires approval (e.g. OBSERVE-only setups under
// test); a nil InjectionOpener makes any approval requirement an
// automatic denial instead of blocking forever.
func New(riskClassifier *risk.Classifier, autonomyMgr *autonomy.Manager, checkpointMgr *checkpoint.Manager, dispatcher Dispatcher, observer Observer, injections InjectionOpener, platform security.Platform) *Pipeline {
	return &Pipeline{
		risk:       riskClassifier,
		autonomy:   autonomyMgr,
		checkpoint: checkpointMgr,
		dispatcher: dispatcher,
		observer:   observer,
		injections: injections,
		platform:   platform,
	}
}

// Result is what Run returns to the caller: either the dispatched
// tool's output, or a description of why it was blocked/denied.
type Result struct {
	Output   map[string]any
	Blocked  bool
	BlockMsg string
	Denied   bool
	DenyMsg  string
	Err      error

	Assessment types.RiskAssessment
	Decision   autonomy.Decision
	Checkpoint *types.Checkpoint
	Duration   time.Duration
}

// Run executes the full PRE → EXEC → POST pipeline for one tool
// invocation. confidence is the agent's self-reported confidence in
// this action, if it reported one; nil means "not reported". usage
// carries the token cost of the LLM call that decided to make this
// tool call, stamped onto the TOOL_CALL/TOOL_RESULT events so the
// Budget watchdog can sum spend straight from the event log; the zero
// value means the caller isn't tracking cost.
func (p *Pipeline) Run(ctx context.Context, sessionID int64, invocationID types.ToolInvocationID, tool string, input map[string]any, confidence *float64, usage types.TokenUsage) (Result, error) {
	now := time.Now().UTC()

	// 1. PRE: Security Gate.
	if command, ok := commandFromInput(tool, input); ok {
		verdict := security.Evaluate(command, p.platform)
		if !verdict.Allowed {
			p.emit(types.EventToolBlocked, sessionID, map[string]any{
				"invocation_id": invocationID,
				"tool":          tool,
				"reason":        verdict.Reason,
			}, now)
			return Result{Blocked: true, BlockMsg: verdict.Reason}, nil
		}
	}

	// 2. PRE: Risk Classifier.
	assessment, err := p.risk.Assess(tool, input)
	if err != nil {
		return Result{}, fmt.Errorf("assess risk: %w", err)
	}

	// 3. PRE: Autonomy Manager.
	decision, err := p.autonomy.CheckAction(tool, input, confidence)
	if err != nil {
		return Result{}, fmt.Errorf("check autonomy: %w", err)
	}
	if !decision.Allowed {
		p.emit(types.EventDecision, sessionID, map[string]any{
			"invocation_id": invocationID,
			"tool":          tool,
			"allowed":       false,
			"reason":        decision.Reason,
		}, now)
		return Result{Denied: true, DenyMsg: decision.Reason, Assessment: assessment, Decision: decision}, nil
	}
	if decision.RequiresApproval {
		approved, err := p.requestApproval(ctx, sessionID, tool, assessment, decision)
		if err != nil {
			return Result{}, fmt.Errorf("request approval: %w", err)
		}
		if !approved {
			p.emit(types.EventDecision, sessionID, map[string]any{
				"invocation_id": invocationID,
				"tool":          tool,
				"allowed":       false,
				"reason":        "human declined approval",
			}, now)
			return Result{Denied: true, DenyMsg: "human declined approval", Assessment: assessment, Decision: decision}, nil
		}
	}

	// 4. PRE: Checkpoint Manager.
	var cp *types.Checkpoint
	if assessment.RequiresCheckpoint {
		created, err := p.checkpoint.Create(ctx, sessionID, types.TriggerBeforeRiskyOp, nil, fmt.Sprintf("before %s (%s)", tool, assessment.Action))
		if err != nil {
			return Result{}, fmt.Errorf("create pre-op checkpoint: %w", err)
		}
		cp = &created
		p.emit(types.EventCheckpoint, sessionID, map[string]any{
			"invocation_id": invocationID,
			"checkpoint_id": created.ID,
			"trigger":       created.Trigger,
		}, now)
	}

	// 5. PRE: Observability.
	p.emit(types.EventToolCall, sessionID, map[string]any{
		"invocation_id": invocationID,
		"tool":          tool,
		"input":         input,
		"risk_level":    assessment.RiskLevel,
		"input_tokens":  usage.InputTokens,
	}, now)

	// 6. EXEC.
	start := time.Now()
	output, execErr := p.dispatcher.Dispatch(ctx, tool, input)
	duration := time.Since(start)

	// 7. POST: Observability + outcome recording.
	success := execErr == nil
	if success {
		p.emit(types.EventToolResult, sessionID, map[string]any{
			"invocation_id": invocationID,
			"tool":          tool,
			"duration_ms":   duration.Milliseconds(),
			"output_tokens": usage.OutputTokens,
		}, time.Now().UTC())
	} else {
		p.emit(types.EventToolError, sessionID, map[string]any{
			"invocation_id": invocationID,
			"tool":          tool,
			"duration_ms":   duration.Milliseconds(),
			"error":         execErr.Error(),
		}, time.Now().UTC())
	}

	if _, err := p.autonomy.RecordOutcome(success); err != nil {
		return Result{}, fmt.Errorf("record autonomy outcome: %w", err)
	}

	if featureIndex, marked := featureMarkedPassing(tool, input, output, success); marked {
		created, err := p.checkpoint.Create(ctx, sessionID, types.TriggerFeatureComplete, nil, fmt.Sprintf("feature %d complete", featureIndex))
		if err != nil {
			return Result{}, fmt.Errorf("create feature-complete checkpoint: %w", err)
		}
		cp = &created
		p.emit(types.EventCheckpoint, sessionID, map[string]any{
			"invocation_id": invocationID,
			"checkpoint_id": created.ID,
			"trigger":       created.Trigger,
		}, time.Now().UTC())
	}

	return Result{
		Output:     output,
		Err:        execErr,
		Assessment: assessment,
		Decision:   decision,
		Checkpoint: cp,
		Duration:   duration,
	}, nil
}

func (p *Pipeline) requestApproval(ctx context.Context, sessionID int64, tool string, assessment types.RiskAssessment, decision autonomy.Decision) (bool, error) {
	if p.injections == nil {
		return false, nil
	}
	return p.injections.RequestApproval(ctx, sessionID, tool, assessment, decision)
}

func (p *Pipeline) emit(eventType types.EventType, sessionID int64, payload map[string]any, ts time.Time) {
	if p.observer == nil {
		return
	}
	p.observer.Emit(types.Event{
		SessionID: sessionID,
		Timestamp: ts,
		Type:      eventType,
		Payload:   payload,
	})
}

// commandFromInput extracts the shell command line for tools the
// Security Gate needs to look at. Only shell_exec carries one.
func commandFromInput(tool string, input map[string]any) (string, bool) {
	if tool != "shell_exec" {
		return "", false
	}
	command, ok := input["command"].(string)
	if !ok || command == "" {
		return "", false
	}
	return command, true
}

// featureMarkedPassing reports whether this invocation was a successful
// feature_mark call, and if so, which feature index it marked — the
// trigger for a FEATURE_COMPLETE checkpoint.
func featureMarkedPassing(tool string, input map[string]any, output map[string]any, success bool) (int, bool) {
	if !success || tool != "feature_mark" {
		return 0, false
	}
	if passes, ok := output["passes"].(bool); ok && !passes {
		return 0, false
	}
	switch idx := input["index"].(type) {
	case int:
		return idx, true
	case float64:
		return int(idx), true
	default:
		return 0, false
	}
}
