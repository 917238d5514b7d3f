// Package human implements the Human Channel (spec.md §4.10): Injection
// Points that block the pipeline for out-of-process human input,
// Escalation Rules evaluated against session context (Evaluate reports
// which rules fire; it does not open injection points itself), and
// Intervention Learning that lets repeated human corrections bypass the
// injection point entirely once a pattern is proven.
//
// Channel never reaches a human directly. It writes rows a human reads
// and responds to through another process (CLI or dashboard) and polls
// the store for the response, the same division of labor as the
// teacher's file-based request/response handoff.
package human

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/webrlabs/arcadiaforge/internal/autonomy"
	"github.com/webrlabs/arcadiaforge/internal/types"
)

// Store is the persistence surface for injection points, interventions,
// learned patterns, and any custom escalation rules.
type Store interface {
	SaveInjectionPoint(types.InjectionPoint) (int64, error)
	GetInjectionPoint(id int64) (types.InjectionPoint, bool, error)
	UpdateInjectionPoint(types.InjectionPoint) error
	ListPendingInjectionPoints() ([]types.InjectionPoint, error)

	SaveIntervention(types.Intervention) (int64, error)
	LoadInterventionPatterns() ([]types.InterventionPattern, error)
	SaveInterventionPattern(types.InterventionPattern) (int64, error)

	LoadCustomEscalationRules() ([]types.EscalationRule, error)
}

// Channel creates, polls, and resolves Injection Points for one session.
type Channel struct {
	store        Store
	sessionID    int64
	pollInterval time.Duration
	learner      *Learner
}

// New constructs a Channel. pollInterval mirrors the teacher's fixed
// 1-second poll; tests pass a much shorter interval.
func New(store Store, sessionID int64, pollInterval time.Duration, learner *Learner) *Channel {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Channel{store: store, sessionID: sessionID, pollInterval: pollInterval, learner: learner}
}

// Request opens an Injection Point and blocks until it is responded to,
// cancelled, or timeout elapses. timeout <= 0 means wait forever (subject
// only to ctx cancellation) and mirrors default_on_timeout == "" meaning
// "no timeout default".
func (c *Channel) Request(ctx context.Context, pointType types.InjectionType, requestContext string, options []string, recommendation string, timeout time.Duration, defaultOnTimeout string) (types.InjectionPoint, error) {
	ip := types.InjectionPoint{
		SessionID:        c.sessionID,
		Type:             pointType,
		Context:          requestContext,
		Options:          options,
		Recommendation:   recommendation,
		TimeoutSeconds:   int(timeout / time.Second),
		DefaultOnTimeout: defaultOnTimeout,
		Status:           types.InjectionPending,
		CreatedAt:        time.Now().UTC(),
	}
	id, err := c.store.SaveInjectionPoint(ip)
	if err != nil {
		return types.InjectionPoint{}, fmt.Errorf("save injection point: %w", err)
	}
	ip.ID = id

	return c.poll(ctx, ip, timeout, defaultOnTimeout)
}

func (c *Channel) poll(ctx context.Context, ip types.InjectionPoint, timeout time.Duration, defaultOnTimeout string) (types.InjectionPoint, error) {
	var deadline time.Time
	hasDeadline := timeout > 0
	if hasDeadline {
		deadline = time.Now().Add(timeout)
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		cur, ok, err := c.store.GetInjectionPoint(ip.ID)
		if err != nil {
			return ip, fmt.Errorf("poll injection point %d: %w", ip.ID, err)
		}
		if ok && cur.Status != types.InjectionPending {
			return cur, nil
		}

		if hasDeadline && !time.Now().Before(deadline) {
			now := time.Now().UTC()
			ip.Status = types.InjectionTimeout
			ip.RespondedBy = "timeout_default"
			ip.Response = defaultOnTimeout
			ip.RespondedAt = &now
			if err := c.store.UpdateInjectionPoint(ip); err != nil {
				return ip, fmt.Errorf("record timeout for injection point %d: %w", ip.ID, err)
			}
			return ip, nil
		}

		select {
		case <-ctx.Done():
			return ip, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Respond records a human response to a pending Injection Point. It is
// the counterpart to the out-of-process CLI/dashboard write the poller
// in Request observes.
func (c *Channel) Respond(pointID int64, response string) (bool, error) {
	ip, ok, err := c.store.GetInjectionPoint(pointID)
	if err != nil {
		return false, fmt.Errorf("get injection point %d: %w", pointID, err)
	}
	if !ok || ip.Status != types.InjectionPending {
		return false, nil
	}
	now := time.Now().UTC()
	ip.Response = response
	ip.RespondedBy = "human"
	ip.Status = types.InjectionResponded
	ip.RespondedAt = &now
	if err := c.store.UpdateInjectionPoint(ip); err != nil {
		return false, fmt.Errorf("update injection point %d: %w", pointID, err)
	}
	return true, nil
}

// Cancel marks a pending Injection Point cancelled without a response.
func (c *Channel) Cancel(pointID int64) (bool, error) {
	ip, ok, err := c.store.GetInjectionPoint(pointID)
	if err != nil {
		return false, fmt.Errorf("get injection point %d: %w", pointID, err)
	}
	if !ok || ip.Status != types.InjectionPending {
		return false, nil
	}
	now := time.Now().UTC()
	ip.RespondedBy = "cancelled"
	ip.Status = types.InjectionCancelled
	ip.RespondedAt = &now
	if err := c.store.UpdateInjectionPoint(ip); err != nil {
		return false, fmt.Errorf("update injection point %d: %w", pointID, err)
	}
	return true, nil
}

// RequestApproval implements hooks.InjectionOpener: it is what the Hook
// Pipeline calls when the Autonomy Manager requires human approval
// before a risky action proceeds. A proven Intervention Pattern short-
// circuits the injection point entirely.
func (c *Channel) RequestApproval(ctx context.Context, sessionID int64, toolName string, assessment types.RiskAssessment, decision autonomy.Decision) (bool, error) {
	sig := ContextSignature{
		Tool:         toolName,
		ActionType:   assessment.Action,
		TriggerType:  "approval",
		DecisionType: "tool_approval",
	}

	if c.learner != nil {
		if pattern, found, err := c.learner.Match(sig); err != nil {
			return false, err
		} else if found && pattern.AutoApply {
			return pattern.LearnedResponse == "approve", nil
		}
	}

	recommendation := "approve"
	requestContext := fmt.Sprintf("%s wants to run %q (risk level %d, reversible=%v): %s",
		toolName, assessment.Action, assessment.RiskLevel, assessment.IsReversible, assessment.Mitigation)

	ip, err := c.Request(ctx, types.InjectionApproval, requestContext, []string{"approve", "deny"}, recommendation, 300*time.Second, "deny")
	if err != nil {
		return false, err
	}
	approved := ip.Response == "approve"

	if c.learner != nil {
		if _, err := c.learner.RecordIntervention(sessionID, ip.ID, sig, recommendation, ip.Response, time.Now().UTC()); err != nil {
			return approved, err
		}
	}
	return approved, nil
}

// ParseTimeout turns a human-typed phrase ("in 2 hours", "tomorrow
// morning", "45m") into a duration from now, so a timeout can be given
// in plain English instead of counted in seconds.
func ParseTimeout(phrase string, now time.Time) (time.Duration, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	result, err := w.Parse(phrase, now)
	if err != nil {
		return 0, fmt.Errorf("parse timeout %q: %w", phrase, err)
	}
	if result == nil {
		return 0, fmt.Errorf("could not understand timeout phrase %q", phrase)
	}
	d := result.Time.Sub(now)
	if d <= 0 {
		return 0, fmt.Errorf("timeout phrase %q resolved to a non-future time", phrase)
	}
	return d, nil
}

// ContextSignature is the normalized fingerprint of a situation that
// provoked human intervention: tool, action, trigger, error class,
// feature category, decision type. Two situations with the same
// signature hash are treated as the same situation for learning
// purposes.
type ContextSignature struct {
	Tool            string
	ActionType      string
	TriggerType     string
	ErrorPattern    string
	FeatureCategory string
	DecisionType    string
}

// Hash returns a stable short fingerprint for this signature.
func (s ContextSignature) Hash() string {
	parts := strings.Join([]string{
		s.Tool, s.ActionType, s.TriggerType, s.ErrorPattern, s.FeatureCategory, s.DecisionType,
	}, "|")
	sum := sha256.Sum256([]byte(parts))
	return hex.EncodeToString(sum[:])[:16]
}

// defaultMinSamplesForAuto and defaultAutoApplyConfidence are the
// teacher's own learning thresholds (intervention_learning.py): a
// pattern needs at least 3 observed applications and an 80% success
// rate before the pipeline is allowed to skip the human.
const (
	defaultMinSamplesForAuto   = 3
	defaultAutoApplyConfidence = 0.8
)

// Learner aggregates repeated human corrections into Intervention
// Patterns and decides when one is proven enough to auto-apply.
type Learner struct {
	store               Store
	minSamplesForAuto   int
	autoApplyConfidence float64
}

// NewLearner constructs a Learner with the teacher's default thresholds.
func NewLearner(store Store) *Learner {
	return &Learner{
		store:               store,
		minSamplesForAuto:   defaultMinSamplesForAuto,
		autoApplyConfidence: defaultAutoApplyConfidence,
	}
}

// Match looks up the pattern learned for an exact signature hash, if any.
func (l *Learner) Match(sig ContextSignature) (types.InterventionPattern, bool, error) {
	patterns, err := l.store.LoadInterventionPatterns()
	if err != nil {
		return types.InterventionPattern{}, false, fmt.Errorf("load intervention patterns: %w", err)
	}
	hash := sig.Hash()
	for _, p := range patterns {
		if p.ContextSignature == hash {
			return p, true, nil
		}
	}
	return types.InterventionPattern{}, false, nil
}

// RecordIntervention writes an Intervention row when the human's
// response differs from the agent's recommendation (a default response
// teaches nothing) and folds it into the matching pattern. It returns
// nil, nil when the response matched the recommendation.
func (l *Learner) RecordIntervention(sessionID, injectionPointID int64, sig ContextSignature, agentRecommendation, humanResponse string, now time.Time) (*types.InterventionPattern, error) {
	if humanResponse == "" || humanResponse == agentRecommendation {
		return nil, nil
	}

	if _, err := l.store.SaveIntervention(types.Intervention{
		SessionID:           sessionID,
		InjectionPointID:    injectionPointID,
		ContextSignature:    sig.Hash(),
		AgentRecommendation: agentRecommendation,
		HumanResponse:       humanResponse,
		Timestamp:           now,
	}); err != nil {
		return nil, fmt.Errorf("save intervention: %w", err)
	}

	pattern, found, err := l.Match(sig)
	if err != nil {
		return nil, err
	}
	if !found {
		pattern = types.InterventionPattern{
			ContextSignature:     sig.Hash(),
			MinConfidenceForAuto: l.autoApplyConfidence,
		}
	}
	pattern.LearnedResponse = humanResponse
	pattern.TimesApplied++

	id, err := l.store.SaveInterventionPattern(pattern)
	if err != nil {
		return nil, fmt.Errorf("save intervention pattern: %w", err)
	}
	pattern.ID = id
	return &pattern, nil
}

// RecordOutcome folds an observed success/failure of applying (manually
// or automatically) a pattern's learned response back into its
// confidence, and flips AutoApply once the sample size and success rate
// both clear the thresholds.
func (l *Learner) RecordOutcome(pattern types.InterventionPattern, success bool) (types.InterventionPattern, error) {
	if success {
		pattern.TimesSucceeded++
	}
	if pattern.TimesApplied > 0 {
		pattern.Confidence = float64(pattern.TimesSucceeded) / float64(pattern.TimesApplied)
	}
	pattern.AutoApply = pattern.TimesApplied >= l.minSamplesForAuto && pattern.Confidence >= pattern.MinConfidenceForAuto

	id, err := l.store.SaveInterventionPattern(pattern)
	if err != nil {
		return pattern, fmt.Errorf("save intervention pattern: %w", err)
	}
	pattern.ID = id
	return pattern, nil
}

// EscalationContext carries the situational fields the built-in and
// custom Escalation Rules evaluate against.
type EscalationContext struct {
	Confidence           float64
	FeatureIndex         int
	ConsecutiveFailures  int
	PreviouslyPassing    bool
	CurrentlyPassing     bool
	Action               string
	IsIrreversible       bool
	AffectsSourceOfTruth bool
	ErrorMessage         string
	ErrorCount           int
	DecisionType         string
}

// EscalationResult is one rule firing against a context.
type EscalationResult struct {
	Rule              types.EscalationRule
	Message           string
	RecommendedAction string
	Timestamp         time.Time
}

// Escalator evaluates Escalation Rules against session context. Default
// rules are always present; custom rules loaded from the store are
// merged in and may override a default by id.
type Escalator struct {
	rules []types.EscalationRule
}

// NewEscalator loads custom rules from the store and merges them with
// the teacher's built-in set, sorted highest severity first.
func NewEscalator(store Store) (*Escalator, error) {
	rules := defaultEscalationRules()
	custom, err := store.LoadCustomEscalationRules()
	if err != nil {
		return nil, fmt.Errorf("load custom escalation rules: %w", err)
	}
	for _, c := range custom {
		replaced := false
		for i, r := range rules {
			if r.ID == c.ID {
				rules[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			rules = append(rules, c)
		}
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Severity > rules[j].Severity })
	return &Escalator{rules: rules}, nil
}

// Evaluate runs every rule against ctx and returns every match, highest
// severity first (rules are kept pre-sorted).
func (e *Escalator) Evaluate(ctx EscalationContext) []EscalationResult {
	now := time.Now().UTC()
	var results []EscalationResult
	for _, rule := range e.rules {
		if !evaluateCondition(rule.Condition, ctx) {
			continue
		}
		recommended := "review"
		if len(rule.SuggestedActions) > 0 {
			recommended = rule.SuggestedActions[0]
		}
		results = append(results, EscalationResult{
			Rule:              rule,
			Message:           formatMessage(rule.MessageTemplate, ctx),
			RecommendedAction: recommended,
			Timestamp:         now,
		})
	}
	return results
}

// Rules returns the merged, severity-sorted rule set.
func (e *Escalator) Rules() []types.EscalationRule {
	return e.rules
}

func evaluateCondition(condition string, ctx EscalationContext) bool {
	switch condition {
	case "low_confidence":
		return ctx.Confidence < 0.5
	case "very_low_confidence":
		return ctx.Confidence < 0.3
	case "feature_regression":
		return ctx.PreviouslyPassing && !ctx.CurrentlyPassing
	case "multiple_failures":
		return ctx.ConsecutiveFailures >= 3
	case "many_failures":
		return ctx.ConsecutiveFailures >= 5
	case "irreversible_action":
		return ctx.IsIrreversible
	case "source_of_truth_change":
		return ctx.AffectsSourceOfTruth
	case "repeated_errors":
		return ctx.ErrorCount >= 3
	default:
		return false
	}
}

// formatMessage renders a rule's message template (Go template syntax,
// fields matching EscalationContext) against ctx. A template error
// falls back to the raw template text rather than failing the rule.
func formatMessage(tmpl string, ctx EscalationContext) string {
	t, err := template.New("escalation").Parse(tmpl)
	if err != nil {
		return tmpl
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return tmpl
	}
	return buf.String()
}

// defaultEscalationRules mirrors escalation.py's built-in rule table.
func defaultEscalationRules() []types.EscalationRule {
	return []types.EscalationRule{
		{
			ID:               "low_confidence",
			Condition:        "low_confidence",
			Severity:         3,
			InjectionType:    types.InjectionDecision,
			MessageTemplate:  "agent confidence is low ({{.Confidence}}) for decision: {{.DecisionType}}",
			SuggestedActions: []string{"Approve agent choice", "Select alternative", "Provide guidance"},
			AutoPause:        false,
			TimeoutSeconds:   300,
			BuiltIn:          true,
		},
		{
			ID:               "very_low_confidence",
			Condition:        "very_low_confidence",
			Severity:         4,
			InjectionType:    types.InjectionGuidance,
			MessageTemplate:  "agent confidence is very low ({{.Confidence}}). context: {{.Action}}",
			SuggestedActions: []string{"Provide guidance", "Take over manually", "Skip this task"},
			AutoPause:        true,
			TimeoutSeconds:   600,
			BuiltIn:          true,
		},
		{
			ID:               "feature_regression",
			Condition:        "feature_regression",
			Severity:         4,
			InjectionType:    types.InjectionReview,
			MessageTemplate:  "feature #{{.FeatureIndex}} regressed from passing to failing",
			SuggestedActions: []string{"Investigate", "Rollback to checkpoint", "Accept regression"},
			AutoPause:        true,
			TimeoutSeconds:   600,
			BuiltIn:          true,
		},
		{
			ID:               "multiple_failures",
			Condition:        "multiple_failures",
			Severity:         4,
			InjectionType:    types.InjectionGuidance,
			MessageTemplate:  "agent has failed {{.ConsecutiveFailures}} times on feature #{{.FeatureIndex}}",
			SuggestedActions: []string{"Skip feature", "Provide hints", "Take over manually"},
			AutoPause:        true,
			TimeoutSeconds:   600,
			BuiltIn:          true,
		},
		{
			ID:               "many_failures",
			Condition:        "many_failures",
			Severity:         5,
			InjectionType:    types.InjectionRedirect,
			MessageTemplate:  "agent stuck: {{.ConsecutiveFailures}} failures on feature #{{.FeatureIndex}}",
			SuggestedActions: []string{"Skip feature", "Change approach", "Abort session"},
			AutoPause:        true,
			TimeoutSeconds:   900,
			BuiltIn:          true,
		},
		{
			ID:               "irreversible_action",
			Condition:        "irreversible_action",
			Severity:         5,
			InjectionType:    types.InjectionApproval,
			MessageTemplate:  "agent wants to perform an irreversible action: {{.Action}}",
			SuggestedActions: []string{"Approve", "Deny", "Request checkpoint first"},
			AutoPause:        true,
			TimeoutSeconds:   600,
			BuiltIn:          true,
		},
		{
			ID:               "source_of_truth_change",
			Condition:        "source_of_truth_change",
			Severity:         3,
			InjectionType:    types.InjectionApproval,
			MessageTemplate:  "agent wants to modify the source of truth: {{.Action}}",
			SuggestedActions: []string{"Approve", "Deny", "Review first"},
			AutoPause:        false,
			TimeoutSeconds:   300,
			BuiltIn:          true,
		},
		{
			ID:               "repeated_errors",
			Condition:        "repeated_errors",
			Severity:         3,
			InjectionType:    types.InjectionReview,
			MessageTemplate:  "error occurring repeatedly ({{.ErrorCount}} times): {{.ErrorMessage}}",
			SuggestedActions: []string{"Investigate error", "Skip task", "Change approach"},
			AutoPause:        false,
			TimeoutSeconds:   300,
			BuiltIn:          true,
		},
	}
}
