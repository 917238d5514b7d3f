// Package autonomy implements the Autonomy Manager (spec.md §4.5): a
// graduated permission gate that decides whether a proposed tool call may
// run at the current autonomy level, and adjusts that level over time from
// a rolling window of action outcomes.
package autonomy

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

// ActionCategory classifies a tool call for the purpose of level gating.
type ActionCategory string

const (
	CategoryRead           ActionCategory = "read"
	CategoryWrite          ActionCategory = "write"
	CategoryExecute        ActionCategory = "execute"
	CategoryFeatureModify  ActionCategory = "feature_modify"
	CategoryExternal       ActionCategory = "external"
	CategoryDestructive    ActionCategory = "destructive"
)

// DefaultActionCategories maps well-known tool names to a category.
var DefaultActionCategories = map[string]ActionCategory{
	"Read":                 CategoryRead,
	"Glob":                 CategoryRead,
	"Grep":                 CategoryRead,
	"Write":                CategoryWrite,
	"Edit":                 CategoryWrite,
	"Bash":                 CategoryExecute,
	"feature_mark":         CategoryFeatureModify,
	"feature_skip":         CategoryFeatureModify,
	"feature_add":          CategoryFeatureModify,
	"puppeteer_navigate":   CategoryExternal,
	"puppeteer_screenshot": CategoryRead,
	"WebFetch":             CategoryExternal,
}

// CategoryRequiredLevels is the minimum autonomy level each category needs.
var CategoryRequiredLevels = map[ActionCategory]types.AutonomyLevel{
	CategoryRead:          types.AutonomyObserve,
	CategoryWrite:         types.AutonomyExecuteSafe,
	CategoryExecute:       types.AutonomyExecuteSafe,
	CategoryFeatureModify: types.AutonomyExecuteReview,
	CategoryExternal:      types.AutonomyExecuteSafe,
	CategoryDestructive:   types.AutonomyFullAuto,
}

// Config is the persisted, operator-tunable behavior of the manager.
type Config struct {
	Level types.AutonomyLevel

	ActionLevels map[string]types.AutonomyLevel

	ConfidenceThreshold    float64
	ErrorDemotionCount     int
	SuccessPromotionCount  int

	AutoAdjust bool
	MinLevel   types.AutonomyLevel
	MaxLevel   types.AutonomyLevel
}

// DefaultConfig mirrors the defaults used when no stored config exists.
func DefaultConfig() Config {
	return Config{
		Level:                 types.AutonomyExecuteSafe,
		ActionLevels:          map[string]types.AutonomyLevel{},
		ConfidenceThreshold:   0.5,
		ErrorDemotionCount:    3,
		SuccessPromotionCount: 10,
		AutoAdjust:            true,
		MinLevel:              types.AutonomyObserve,
		MaxLevel:              types.AutonomyExecuteReview,
	}
}

// Decision is the outcome of checking one proposed action.
type Decision struct {
	Action          string
	Tool            string
	Allowed         bool
	RequiredLevel   types.AutonomyLevel
	CurrentLevel    types.AutonomyLevel
	EffectiveLevel  types.AutonomyLevel
	Reason          string
	Alternatives    []string
	RequiresApproval   bool
	RequiresCheckpoint bool
	Confidence      *float64
	Timestamp       time.Time
}

// LevelChange records one promotion or demotion for the audit trail.
type LevelChange struct {
	Timestamp time.Time
	FromLevel types.AutonomyLevel
	ToLevel   types.AutonomyLevel
	Reason    string
}

// Metrics tracks a rolling window of action outcomes used to drive
// automatic promotion/demotion.
type Metrics struct {
	ConsecutiveSuccesses int
	ConsecutiveErrors    int
	TotalActions         int
	TotalErrors          int

	RecentOutcomes []bool
	MaxHistory     int

	LevelChanges []LevelChange
}

func newMetrics() Metrics {
	return Metrics{MaxHistory: 50}
}

func (m *Metrics) recordSuccess() {
	m.ConsecutiveSuccesses++
	m.ConsecutiveErrors = 0
	m.TotalActions++
	m.addOutcome(true)
}

func (m *Metrics) recordError() {
	m.ConsecutiveErrors++
	m.ConsecutiveSuccesses = 0
	m.TotalActions++
	m.TotalErrors++
	m.addOutcome(false)
}

func (m *Metrics) addOutcome(success bool) {
	m.RecentOutcomes = append(m.RecentOutcomes, success)
	if len(m.RecentOutcomes) > m.MaxHistory {
		m.RecentOutcomes = m.RecentOutcomes[1:]
	}
}

// SuccessRate returns the fraction of recent actions that succeeded.
func (m *Metrics) SuccessRate() float64 {
	if len(m.RecentOutcomes) == 0 {
		return 1.0
	}
	var n int
	for _, ok := range m.RecentOutcomes {
		if ok {
			n++
		}
	}
	return float64(n) / float64(len(m.RecentOutcomes))
}

func (m *Metrics) recordLevelChange(from, to types.AutonomyLevel, reason string) {
	m.LevelChanges = append(m.LevelChanges, LevelChange{
		Timestamp: time.Now().UTC(),
		FromLevel: from,
		ToLevel:   to,
		Reason:    reason,
	})
}

// Store is the persistence surface the Manager needs: config and metrics
// are singleton rows, decisions are an append-only history.
type Store interface {
	LoadAutonomyConfig() (Config, bool, error)
	SaveAutonomyConfig(Config) error
	LoadAutonomyMetrics() (Metrics, bool, error)
	SaveAutonomyMetrics(Metrics) error
	LogAutonomyDecision(Decision) error
}

// Manager gates tool calls against the current autonomy level and adjusts
// that level from a rolling window of outcomes.
type Manager struct {
	store     Store
	sessionID int64

	config  Config
	metrics Metrics

	effectiveOverride *types.AutonomyLevel

	actionCheckers map[string]func(map[string]any) types.AutonomyLevel
}

// New constructs a Manager, loading persisted config/metrics from store if
// present, otherwise seeding from DefaultConfig (with level overridden by
// the caller's configured initial level).
func New(store Store, sessionID int64, initialLevel types.AutonomyLevel) (*Manager, error) {
	m := &Manager{
		store:          store,
		sessionID:      sessionID,
		actionCheckers: map[string]func(map[string]any) types.AutonomyLevel{},
	}

	cfg := DefaultConfig()
	cfg.Level = initialLevel

	if store != nil {
		loaded, found, err := store.LoadAutonomyConfig()
		if err != nil {
			return nil, fmt.Errorf("load autonomy config: %w", err)
		}
		if found {
			cfg = loaded
		} else if err := store.SaveAutonomyConfig(cfg); err != nil {
			return nil, fmt.Errorf("seed autonomy config: %w", err)
		}
	}
	m.config = cfg

	met := newMetrics()
	if store != nil {
		loaded, found, err := store.LoadAutonomyMetrics()
		if err != nil {
			return nil, fmt.Errorf("load autonomy metrics: %w", err)
		}
		if found {
			met = loaded
		}
	}
	m.metrics = met

	return m, nil
}

// CurrentLevel returns the configured (unadjusted) autonomy level.
func (m *Manager) CurrentLevel() types.AutonomyLevel { return m.config.Level }

// EffectiveLevel returns the level after the most recent confidence or
// performance adjustment, defaulting to the configured level.
func (m *Manager) EffectiveLevel() types.AutonomyLevel {
	if m.effectiveOverride != nil {
		return *m.effectiveOverride
	}
	return m.config.Level
}

// SetLevel changes the configured level, recording the transition.
func (m *Manager) SetLevel(level types.AutonomyLevel, reason string) error {
	old := m.config.Level
	m.config.Level = level
	m.effectiveOverride = &level

	if m.store != nil {
		if err := m.store.SaveAutonomyConfig(m.config); err != nil {
			return fmt.Errorf("save autonomy config: %w", err)
		}
	}
	if old != level {
		m.metrics.recordLevelChange(old, level, reason)
		if m.store != nil {
			if err := m.store.SaveAutonomyMetrics(m.metrics); err != nil {
				return fmt.Errorf("save autonomy metrics: %w", err)
			}
		}
	}
	return nil
}

// GetEffectiveLevel computes the level after applying confidence and
// performance adjustments, without persisting anything.
func (m *Manager) GetEffectiveLevel(confidence *float64) types.AutonomyLevel {
	base := m.config.Level

	if confidence != nil && *confidence < m.config.ConfidenceThreshold {
		reduction := 1
		if *confidence < 0.3 {
			reduction = 2
		}
		lvl := int(base) - reduction
		if lvl < int(m.config.MinLevel) {
			lvl = int(m.config.MinLevel)
		}
		if lvl < 1 {
			lvl = 1
		}
		return types.AutonomyLevel(lvl)
	}

	if m.config.AutoAdjust && m.metrics.ConsecutiveErrors >= m.config.ErrorDemotionCount {
		lvl := int(base) - 1
		if lvl < int(m.config.MinLevel) {
			lvl = int(m.config.MinLevel)
		}
		if lvl < 1 {
			lvl = 1
		}
		return types.AutonomyLevel(lvl)
	}

	return base
}

// CheckAction decides whether tool may run given the current/effective
// level, returning the full Decision for logging and for the Hook
// Pipeline's downstream gates.
func (m *Manager) CheckAction(tool string, actionInput map[string]any, confidence *float64) (Decision, error) {
	required := m.requiredLevel(tool, actionInput)
	effective := m.GetEffectiveLevel(confidence)
	allowed := effective >= required

	decision := Decision{
		Action:         summarizeAction(tool, actionInput),
		Tool:           tool,
		Allowed:        allowed,
		RequiredLevel:  required,
		CurrentLevel:   m.config.Level,
		EffectiveLevel: effective,
		Reason:         buildReason(allowed, required, effective, tool),
		Confidence:     confidence,
		Timestamp:      time.Now().UTC(),
	}

	if !allowed {
		decision.Alternatives = suggestAlternatives(tool, required)
		decision.RequiresApproval = true
		if required >= types.AutonomyExecuteReview {
			decision.RequiresCheckpoint = true
		}
	}

	if m.store != nil {
		if err := m.store.LogAutonomyDecision(decision); err != nil {
			return decision, fmt.Errorf("log autonomy decision: %w", err)
		}
	}
	return decision, nil
}

func (m *Manager) requiredLevel(tool string, actionInput map[string]any) types.AutonomyLevel {
	if lvl, ok := m.config.ActionLevels[tool]; ok {
		return lvl
	}
	if checker, ok := m.actionCheckers[tool]; ok {
		return checker(actionInput)
	}
	category, ok := DefaultActionCategories[tool]
	if !ok {
		category = CategoryExecute
	}
	if lvl, ok := CategoryRequiredLevels[category]; ok {
		return lvl
	}
	return types.AutonomyExecuteSafe
}

// RegisterActionChecker installs a custom required-level function for a
// tool, overriding the category default (but not a per-action override in
// config.ActionLevels).
func (m *Manager) RegisterActionChecker(tool string, checker func(map[string]any) types.AutonomyLevel) {
	m.actionCheckers[tool] = checker
}

func summarizeAction(tool string, actionInput map[string]any) string {
	switch tool {
	case "Write":
		if fp, ok := actionInput["file_path"].(string); ok {
			return fmt.Sprintf("Write to %s", filepath.Base(fp))
		}
	case "Edit":
		if fp, ok := actionInput["file_path"].(string); ok {
			return fmt.Sprintf("Edit %s", filepath.Base(fp))
		}
	case "Read":
		if fp, ok := actionInput["file_path"].(string); ok {
			return fmt.Sprintf("Read %s", filepath.Base(fp))
		}
	case "Bash":
		if cmd, ok := actionInput["command"].(string); ok {
			if len(cmd) > 50 {
				cmd = cmd[:50]
			}
			return fmt.Sprintf("Run: %s...", cmd)
		}
	case "feature_mark":
		if idx, ok := actionInput["index"]; ok {
			return fmt.Sprintf("Mark feature #%v as passing", idx)
		}
	}
	return fmt.Sprintf("%s operation", tool)
}

func buildReason(allowed bool, required, effective types.AutonomyLevel, tool string) string {
	if allowed {
		return fmt.Sprintf("Action allowed: %s requires level %s (current effective: %s)", tool, required, effective)
	}
	return fmt.Sprintf("Action denied: %s requires level %s but effective level is %s", tool, required, effective)
}

func suggestAlternatives(tool string, required types.AutonomyLevel) []string {
	var alts []string
	if required == types.AutonomyFullAuto {
		alts = append(alts, "Request human approval for this action", "Create a checkpoint before proceeding")
	}
	if required >= types.AutonomyExecuteReview {
		alts = append(alts, "Queue action for human review", fmt.Sprintf("Temporarily elevate to level %s", required))
	}
	if tool == "Write" {
		alts = append(alts, "Use Read to review current state first")
	}
	if tool == "Bash" {
		alts = append(alts, "Use a safer alternative command", "Request approval for command execution")
	}
	return alts
}

// RecordOutcome folds one action's success/failure into the rolling
// metrics window and auto-adjusts the level when a threshold is crossed.
// It returns the new level if one was applied.
func (m *Manager) RecordOutcome(success bool) (*types.AutonomyLevel, error) {
	if success {
		m.metrics.recordSuccess()
	} else {
		m.metrics.recordError()
	}

	var changed *types.AutonomyLevel
	if m.config.AutoAdjust {
		current := m.config.Level

		if m.metrics.ConsecutiveErrors >= m.config.ErrorDemotionCount {
			newLevel := current - 1
			if newLevel < m.config.MinLevel {
				newLevel = m.config.MinLevel
			}
			if newLevel != current {
				if err := m.SetLevel(newLevel, fmt.Sprintf("Demoted due to %d consecutive errors", m.metrics.ConsecutiveErrors)); err != nil {
					return nil, err
				}
				changed = &newLevel
			}
		} else if m.metrics.ConsecutiveSuccesses >= m.config.SuccessPromotionCount {
			newLevel := current + 1
			if newLevel > m.config.MaxLevel {
				newLevel = m.config.MaxLevel
			}
			if newLevel != current {
				if err := m.SetLevel(newLevel, fmt.Sprintf("Promoted due to %d consecutive successes", m.metrics.ConsecutiveSuccesses)); err != nil {
					return nil, err
				}
				m.metrics.ConsecutiveSuccesses = 0
				changed = &newLevel
			}
		}
	}

	if m.store != nil {
		if err := m.store.SaveAutonomyMetrics(m.metrics); err != nil {
			return changed, fmt.Errorf("save autonomy metrics: %w", err)
		}
	}
	return changed, nil
}

// Status is a point-in-time snapshot of the manager's levels, metrics,
// and thresholds, as returned by GetStatus.
type Status struct {
	ConfiguredLevel   types.AutonomyLevel
	EffectiveLevel    types.AutonomyLevel
	AutoAdjust        bool
	ConsecutiveSuccesses int
	ConsecutiveErrors    int
	SuccessRate          float64
	TotalActions         int
	ConfidenceThreshold  float64
	ErrorDemotionCount   int
	SuccessPromotionCount int
	MinLevel             types.AutonomyLevel
	MaxLevel             types.AutonomyLevel
}

// GetStatus returns the current status snapshot.
func (m *Manager) GetStatus() Status {
	return Status{
		ConfiguredLevel:       m.config.Level,
		EffectiveLevel:        m.EffectiveLevel(),
		AutoAdjust:            m.config.AutoAdjust,
		ConsecutiveSuccesses:  m.metrics.ConsecutiveSuccesses,
		ConsecutiveErrors:     m.metrics.ConsecutiveErrors,
		SuccessRate:           m.metrics.SuccessRate(),
		TotalActions:          m.metrics.TotalActions,
		ConfidenceThreshold:   m.config.ConfidenceThreshold,
		ErrorDemotionCount:    m.config.ErrorDemotionCount,
		SuccessPromotionCount: m.config.SuccessPromotionCount,
		MinLevel:              m.config.MinLevel,
		MaxLevel:              m.config.MaxLevel,
	}
}

// RequestElevation builds the payload of a human-approval request for
// temporarily running above the current level. It only returns the map;
// it does not open an Injection Point.
func RequestElevation(current, target types.AutonomyLevel, reason string, durationActions int) map[string]any {
	return map[string]any{
		"request_type":      "autonomy_elevation",
		"current_level":     current.String(),
		"target_level":      target.String(),
		"reason":            reason,
		"duration_actions":  durationActions,
		"timestamp":         time.Now().UTC(),
		"requires_approval": true,
	}
}

// ResetMetrics clears the rolling performance window, e.g. after a human
// explicitly resets autonomy following an intervention.
func (m *Manager) ResetMetrics() error {
	m.metrics = newMetrics()
	if m.store != nil {
		return m.store.SaveAutonomyMetrics(m.metrics)
	}
	return nil
}
