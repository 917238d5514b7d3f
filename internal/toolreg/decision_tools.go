package toolreg

import (
	"context"
	"fmt"
	"time"

	"github.com/webrlabs/arcadiaforge/internal/human"
	"github.com/webrlabs/arcadiaforge/internal/types"
)

// DecisionStore persists Decision rows. internal/store/sqlite implements
// this; it is kept local so this package never needs to know about the
// storage layer's concrete types.
type DecisionStore interface {
	SaveDecision(types.Decision) (int64, error)
	ListDecisions(limit int) ([]types.Decision, error)
}

// HypothesisStore persists Hypothesis rows.
type HypothesisStore interface {
	SaveHypothesis(types.Hypothesis) (int64, error)
	ListHypotheses(status types.HypothesisStatus) ([]types.Hypothesis, error)
	UpdateHypothesisStatus(id int64, status types.HypothesisStatus) (bool, error)
}

var validDecisionTypes = map[string]bool{
	"architecture": true, "implementation": true, "fix": true,
	"refactor": true, "dependency": true, "testing": true, "prioritization": true,
}

// DecisionTools exposes decision logging, hypothesis tracking, and
// learned-intervention lookups to the LLM runtime.
type DecisionTools struct {
	decisions  DecisionStore
	hypotheses HypothesisStore
	learner    *human.Learner
	sessionID  int64
}

// NewDecisionTools wraps the decision/hypothesis stores and the
// Intervention Learner for sessionID. learner may be nil if intervention
// pattern lookups are not wired for this deployment.
func NewDecisionTools(decisions DecisionStore, hypotheses HypothesisStore, learner *human.Learner, sessionID int64) *DecisionTools {
	return &DecisionTools{decisions: decisions, hypotheses: hypotheses, learner: learner, sessionID: sessionID}
}

// RegisterAll adds every decision/hypothesis/intervention tool to r.
func (dt *DecisionTools) RegisterAll(r *Registry) error {
	regs := []struct {
		name, desc string
		schema     string
		handler    Handler
	}{
		{"decision_log", "Log a significant decision for future reference and traceability.", `{
			"type": "object",
			"properties": {
				"decision_type": {"type": "string"},
				"context": {"type": "string"},
				"choice": {"type": "string"},
				"alternatives": {"type": "array", "items": {"type": "string"}},
				"rationale": {"type": "string"},
				"confidence": {"type": "number"},
				"related_features": {"type": "array", "items": {"type": "integer"}}
			},
			"required": ["decision_type", "context", "choice", "rationale"]
		}`, dt.decisionLog},
		{"decision_list", "List recently logged decisions.", `{
			"type": "object",
			"properties": {"limit": {"type": "integer"}}
		}`, dt.decisionList},
		{"hypothesis_log", "Record a diagnostic hypothesis for later validation.", `{
			"type": "object",
			"properties": {
				"observation": {"type": "string"},
				"hypothesis": {"type": "string"},
				"confidence": {"type": "number"},
				"evidence_for": {"type": "array", "items": {"type": "string"}},
				"evidence_against": {"type": "array", "items": {"type": "string"}},
				"related_features": {"type": "array", "items": {"type": "integer"}}
			},
			"required": ["observation", "hypothesis"]
		}`, dt.hypothesisLog},
		{"hypothesis_list", "List hypotheses filtered by status (default: open).", `{
			"type": "object",
			"properties": {"status": {"type": "string"}}
		}`, dt.hypothesisList},
		{"hypothesis_resolve", "Mark a hypothesis confirmed, rejected, or irrelevant.", `{
			"type": "object",
			"properties": {
				"id": {"type": "integer"},
				"status": {"type": "string", "enum": ["confirmed", "rejected", "irrelevant"]}
			},
			"required": ["id", "status"]
		}`, dt.hypothesisResolve},
		{"intervention_lookup", "Check whether a learned intervention pattern applies to a tool/action context.", `{
			"type": "object",
			"properties": {
				"tool": {"type": "string"},
				"action_type": {"type": "string"},
				"trigger_type": {"type": "string"},
				"decision_type": {"type": "string"}
			},
			"required": ["tool", "trigger_type"]
		}`, dt.interventionLookup},
	}
	for _, reg := range regs {
		if err := r.Register(reg.name, reg.desc, []byte(reg.schema), reg.handler); err != nil {
			return fmt.Errorf("register %s: %w", reg.name, err)
		}
	}
	return nil
}

func (dt *DecisionTools) decisionLog(ctx context.Context, input map[string]any) (map[string]any, error) {
	decisionType, _ := argString(input, "decision_type")
	if !validDecisionTypes[decisionType] {
		decisionType = "implementation"
	}
	decisionContext, err := requireString(input, "context")
	if err != nil {
		return nil, err
	}
	choice, err := requireString(input, "choice")
	if err != nil {
		return nil, err
	}
	rationale, err := requireString(input, "rationale")
	if err != nil {
		return nil, err
	}
	confidence := 0.7
	if v, ok := input["confidence"].(float64); ok {
		confidence = clamp(v, 0, 1)
	}

	d := types.Decision{
		SessionID:       dt.sessionID,
		Type:            decisionType,
		Context:         decisionContext,
		Choice:          choice,
		Alternatives:    argStringSlice(input, "alternatives"),
		Rationale:       rationale,
		Confidence:      confidence,
		RelatedFeatures: argIntSlice(input, "related_features"),
		Timestamp:       time.Now().UTC(),
	}
	id, err := dt.decisions.SaveDecision(d)
	if err != nil {
		return nil, fmt.Errorf("save decision: %w", err)
	}
	return map[string]any{"id": id}, nil
}

func (dt *DecisionTools) decisionList(ctx context.Context, input map[string]any) (map[string]any, error) {
	limit, _ := argInt(input, "limit")
	if limit <= 0 {
		limit = 20
	}
	decisions, err := dt.decisions.ListDecisions(limit)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	out := make([]map[string]any, 0, len(decisions))
	for _, d := range decisions {
		out = append(out, map[string]any{
			"id":         d.ID,
			"type":       d.Type,
			"context":    d.Context,
			"choice":     d.Choice,
			"rationale":  d.Rationale,
			"confidence": d.Confidence,
			"timestamp":  d.Timestamp.Format(time.RFC3339),
		})
	}
	return map[string]any{"decisions": out}, nil
}

func (dt *DecisionTools) hypothesisLog(ctx context.Context, input map[string]any) (map[string]any, error) {
	observation, err := requireString(input, "observation")
	if err != nil {
		return nil, err
	}
	hypothesisText, err := requireString(input, "hypothesis")
	if err != nil {
		return nil, err
	}
	confidence := 0.5
	if v, ok := input["confidence"].(float64); ok {
		confidence = clamp(v, 0, 1)
	}

	h := types.Hypothesis{
		CreatedSession:  dt.sessionID,
		Observation:     observation,
		HypothesisText:  hypothesisText,
		Confidence:      confidence,
		EvidenceFor:     argStringSlice(input, "evidence_for"),
		EvidenceAgainst: argStringSlice(input, "evidence_against"),
		Status:          types.HypothesisOpen,
		RelatedFeatures: argIntSlice(input, "related_features"),
		Timestamp:       time.Now().UTC(),
	}
	id, err := dt.hypotheses.SaveHypothesis(h)
	if err != nil {
		return nil, fmt.Errorf("save hypothesis: %w", err)
	}
	return map[string]any{"id": id}, nil
}

func (dt *DecisionTools) hypothesisList(ctx context.Context, input map[string]any) (map[string]any, error) {
	status, _ := argString(input, "status")
	if status == "" {
		status = string(types.HypothesisOpen)
	}
	hypotheses, err := dt.hypotheses.ListHypotheses(types.HypothesisStatus(status))
	if err != nil {
		return nil, fmt.Errorf("list hypotheses: %w", err)
	}
	out := make([]map[string]any, 0, len(hypotheses))
	for _, h := range hypotheses {
		out = append(out, map[string]any{
			"id":          h.ID,
			"observation": h.Observation,
			"hypothesis":  h.HypothesisText,
			"confidence":  h.Confidence,
			"status":      string(h.Status),
			"timestamp":   h.Timestamp.Format(time.RFC3339),
		})
	}
	return map[string]any{"hypotheses": out}, nil
}

func (dt *DecisionTools) hypothesisResolve(ctx context.Context, input map[string]any) (map[string]any, error) {
	id, err := requireInt(input, "id")
	if err != nil {
		return nil, err
	}
	status, err := requireString(input, "status")
	if err != nil {
		return nil, err
	}
	ok, err := dt.hypotheses.UpdateHypothesisStatus(int64(id), types.HypothesisStatus(status))
	if err != nil {
		return nil, fmt.Errorf("update hypothesis %d: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("hypothesis %d not found", id)
	}
	return map[string]any{"updated": true}, nil
}

func (dt *DecisionTools) interventionLookup(ctx context.Context, input map[string]any) (map[string]any, error) {
	if dt.learner == nil {
		return map[string]any{"found": false}, nil
	}
	tool, err := requireString(input, "tool")
	if err != nil {
		return nil, err
	}
	triggerType, err := requireString(input, "trigger_type")
	if err != nil {
		return nil, err
	}
	actionType, _ := argString(input, "action_type")
	decisionType, _ := argString(input, "decision_type")

	sig := human.ContextSignature{
		Tool:         tool,
		ActionType:   actionType,
		TriggerType:  triggerType,
		DecisionType: decisionType,
	}
	pattern, found, err := dt.learner.Match(sig)
	if err != nil {
		return nil, fmt.Errorf("match intervention pattern: %w", err)
	}
	if !found {
		return map[string]any{"found": false}, nil
	}
	return map[string]any{
		"found":            true,
		"learned_response": pattern.LearnedResponse,
		"confidence":       pattern.Confidence,
		"auto_apply":       pattern.AutoApply,
		"times_applied":    pattern.TimesApplied,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
