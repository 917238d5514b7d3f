// Package risk implements the Risk Classifier (spec.md §4.4): it rates a
// proposed tool call on a 1-5 severity scale before the Autonomy and
// Checkpoint gates see it, using a table of regex patterns (DefaultPatterns
// plus any custom patterns from the store) and per-tool fallback levels
// when no pattern matches.
package risk

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

// DefaultPatterns seeds the Risk Pattern table on first run. Each pattern
// is independent; when several match the same call the Classifier takes
// the highest level and unions the gating flags.
var DefaultPatterns = []types.RiskPattern{
	{
		PatternID:            "feature_database_write",
		Description:          "Direct write to feature database",
		Tool:                 "Write",
		InputField:           "file_path",
		InputPattern:         `\.arcadia/project\.db$`,
		RiskLevel:            types.RiskHigh,
		AffectsSourceOfTruth: true,
		RequiresCheckpoint:   true,
		Mitigation:           "Use feature tools (feature_mark, etc.) instead of direct database access",
		Enabled:              true,
	},
	{
		PatternID:    "git_push",
		Description:  "Git push to remote",
		Tool:         "Bash",
		InputField:   "command",
		InputPattern: `git\s+push`,
		RiskLevel:    types.RiskHigh,
		IsReversible: false,
		HasExternalSideEffects: true,
		RequiresApproval:       true,
		Enabled:                true,
	},
	{
		PatternID:    "git_force_push",
		Description:  "Git force push",
		Tool:         "Bash",
		InputField:   "command",
		InputPattern: `git\s+push\s+.*(-f|--force)`,
		RiskLevel:    types.RiskCritical,
		IsReversible: false,
		HasExternalSideEffects: true,
		RequiresApproval:       true,
		Mitigation:             "Avoid force push unless absolutely necessary",
		Enabled:                true,
	},
	{
		PatternID:          "git_reset_hard",
		Description:        "Git hard reset",
		Tool:                "Bash",
		InputField:          "command",
		InputPattern:        `git\s+reset\s+--hard`,
		RiskLevel:           types.RiskHigh,
		IsReversible:        false,
		RequiresCheckpoint:  true,
		RequiresApproval:    true,
		Enabled:             true,
	},
	{
		PatternID:          "rm_recursive",
		Description:        "Recursive file deletion",
		Tool:                "Bash",
		InputField:          "command",
		InputPattern:        `rm\s+.*-r`,
		RiskLevel:           types.RiskHigh,
		IsReversible:        false,
		RequiresApproval:    true,
		RequiresCheckpoint:  true,
		Enabled:             true,
	},
	{
		PatternID:          "rm_force",
		Description:        "Force file deletion",
		Tool:                "Bash",
		InputField:          "command",
		InputPattern:        `rm\s+.*-f`,
		RiskLevel:           types.RiskModerate,
		IsReversible:        false,
		RequiresCheckpoint:  true,
		Enabled:             true,
	},
	{
		PatternID:              "npm_install",
		Description:            "NPM package installation",
		Tool:                   "Bash",
		InputField:             "command",
		InputPattern:           `npm\s+(install|i)\s`,
		RiskLevel:              types.RiskModerate,
		HasExternalSideEffects: true,
		RequiresCheckpoint:     true,
		Enabled:                true,
	},
	{
		PatternID:              "pip_install",
		Description:            "Python package installation",
		Tool:                   "Bash",
		InputField:             "command",
		InputPattern:           `pip\s+install`,
		RiskLevel:              types.RiskModerate,
		HasExternalSideEffects: true,
		RequiresCheckpoint:     true,
		Enabled:                true,
	},
	{
		PatternID:         "db_drop",
		Description:       "Database drop operation",
		Tool:               "Bash",
		InputField:         "command",
		InputPattern:       `(DROP\s+(TABLE|DATABASE)|dropdb)`,
		RiskLevel:          types.RiskCritical,
		IsReversible:       false,
		RequiresApproval:   true,
		RequiresCheckpoint: true,
		Mitigation:         "Create backup before dropping",
		Enabled:            true,
	},
	{
		PatternID:        "db_truncate",
		Description:      "Database truncate operation",
		Tool:              "Bash",
		InputField:        "command",
		InputPattern:      `TRUNCATE\s+TABLE`,
		RiskLevel:         types.RiskHigh,
		IsReversible:      false,
		RequiresApproval:  true,
		Enabled:           true,
	},
	{
		PatternID:              "curl_post",
		Description:            "HTTP POST request",
		Tool:                   "Bash",
		InputField:             "command",
		InputPattern:           `curl\s+.*(-X\s*POST|-d\s)`,
		RiskLevel:              types.RiskModerate,
		HasExternalSideEffects: true,
		Enabled:                true,
	},
	{
		PatternID:            "env_file_write",
		Description:          "Environment file modification",
		Tool:                 "Write",
		InputField:           "file_path",
		InputPattern:         `\.env`,
		RiskLevel:            types.RiskHigh,
		AffectsSourceOfTruth: true,
		RequiresApproval:     true,
		Enabled:              true,
	},
	{
		PatternID:          "config_file_write",
		Description:        "Configuration file modification",
		Tool:                "Write",
		InputField:          "file_path",
		InputPattern:        `(config|settings)\.(json|yaml|yml|toml)$`,
		RiskLevel:           types.RiskModerate,
		RequiresCheckpoint:  true,
		Enabled:             true,
	},
}

// DefaultToolRisks is the fallback risk level for a tool when no pattern
// matches.
var DefaultToolRisks = map[string]types.RiskLevel{
	"Read":     types.RiskMinimal,
	"Glob":     types.RiskMinimal,
	"Grep":     types.RiskMinimal,
	"WebFetch": types.RiskLow,

	"Write": types.RiskModerate,
	"Edit":  types.RiskModerate,

	"Bash": types.RiskModerate,

	"feature_mark":  types.RiskModerate,
	"feature_skip":  types.RiskLow,
	"feature_add":   types.RiskLow,
	"feature_list":  types.RiskMinimal,
	"feature_focus": types.RiskMinimal,

	"puppeteer_navigate":   types.RiskLow,
	"puppeteer_screenshot": types.RiskMinimal,
	"puppeteer_click":      types.RiskLow,
	"puppeteer_type":       types.RiskLow,
}

var reversibleTools = map[string]bool{
	"Read": true, "Glob": true, "Grep": true, "WebFetch": true, "puppeteer_screenshot": true,
}
var sourceOfTruthTools = map[string]bool{
	"Write": true, "Edit": true, "feature_mark": true,
}
var externalEffectTools = map[string]bool{
	"Bash": true, "WebFetch": true, "puppeteer_navigate": true,
}

// Store is the persistence surface the Classifier needs: custom pattern
// storage and an assessment history. Implemented by internal/store/sqlite.
type Store interface {
	LoadRiskPatterns() ([]types.RiskPattern, error)
	SaveRiskPattern(types.RiskPattern) error
	LogRiskAssessment(types.RiskAssessment) error
}

// Stats is a running tally of assessment outcomes, kept in memory for the
// life of the process (spec.md's stats surface is diagnostic, not durable).
type Stats struct {
	TotalAssessments    int
	ByLevel             map[types.RiskLevel]int
	ApprovalsRequired   int
	CheckpointsRequired int
}

// Classifier assesses the risk of a proposed tool call against the
// pattern table, falling back to per-tool defaults when nothing matches.
type Classifier struct {
	store     Store
	sessionID int64

	patterns []types.RiskPattern
	compiled map[string]*regexp.Regexp

	stats Stats
}

// New constructs a Classifier seeded with DefaultPatterns plus any custom
// patterns persisted in store.
func New(store Store, sessionID int64) (*Classifier, error) {
	c := &Classifier{
		store:     store,
		sessionID: sessionID,
		patterns:  append([]types.RiskPattern(nil), DefaultPatterns...),
		compiled:  make(map[string]*regexp.Regexp),
		stats: Stats{
			ByLevel: make(map[types.RiskLevel]int),
		},
	}

	if store != nil {
		custom, err := store.LoadRiskPatterns()
		if err != nil {
			return nil, fmt.Errorf("load custom risk patterns: %w", err)
		}
		existing := make(map[string]bool, len(c.patterns))
		for _, p := range c.patterns {
			existing[p.PatternID] = true
		}
		for _, p := range custom {
			if !existing[p.PatternID] {
				c.patterns = append(c.patterns, p)
				existing[p.PatternID] = true
			}
		}
	}

	for _, p := range c.patterns {
		if p.InputPattern == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + p.InputPattern)
		if err != nil {
			return nil, fmt.Errorf("compile risk pattern %s: %w", p.PatternID, err)
		}
		c.compiled[p.PatternID] = re
	}

	return c, nil
}

// AddPattern registers and persists a custom risk pattern.
func (c *Classifier) AddPattern(p types.RiskPattern) error {
	for _, existing := range c.patterns {
		if existing.PatternID == p.PatternID {
			return nil
		}
	}
	if p.InputPattern != "" {
		re, err := regexp.Compile("(?i)" + p.InputPattern)
		if err != nil {
			return fmt.Errorf("compile risk pattern %s: %w", p.PatternID, err)
		}
		c.compiled[p.PatternID] = re
	}
	c.patterns = append(c.patterns, p)
	if c.store != nil {
		return c.store.SaveRiskPattern(p)
	}
	return nil
}

// Assess rates one proposed tool call and logs the result.
func (c *Classifier) Assess(tool string, actionInput map[string]any) (types.RiskAssessment, error) {
	matched := c.matchPatterns(tool, actionInput)

	var assessment types.RiskAssessment
	if len(matched) > 0 {
		assessment = c.fromPatterns(tool, actionInput, matched)
	} else {
		assessment = c.defaultAssessment(tool, actionInput)
	}
	assessment.SessionID = c.sessionID
	assessment.Timestamp = time.Now().UTC()

	c.recordStats(assessment)
	if c.store != nil {
		if err := c.store.LogRiskAssessment(assessment); err != nil {
			return assessment, fmt.Errorf("log risk assessment: %w", err)
		}
	}
	return assessment, nil
}

func (c *Classifier) matchPatterns(tool string, actionInput map[string]any) []types.RiskPattern {
	var matches []types.RiskPattern
	for _, p := range c.patterns {
		if !p.Enabled {
			continue
		}
		if p.Tool != "" && p.Tool != tool {
			continue
		}
		if p.InputPattern != "" && p.InputField != "" {
			re := c.compiled[p.PatternID]
			value := fmt.Sprintf("%v", actionInput[p.InputField])
			if re == nil || !re.MatchString(value) {
				continue
			}
		}
		matches = append(matches, p)
	}
	return matches
}

func (c *Classifier) fromPatterns(tool string, actionInput map[string]any, patterns []types.RiskPattern) types.RiskAssessment {
	maxLevel := types.RiskMinimal
	concerns := make([]string, 0, len(patterns))
	reversible := true
	affectsSource := false
	hasExternal := false
	requiresApproval := false
	requiresCheckpoint := false
	var mitigation string

	for _, p := range patterns {
		if p.RiskLevel > maxLevel {
			maxLevel = p.RiskLevel
		}
		concerns = append(concerns, p.Description)
		if !p.IsReversible {
			reversible = false
		}
		affectsSource = affectsSource || p.AffectsSourceOfTruth
		hasExternal = hasExternal || p.HasExternalSideEffects
		requiresApproval = requiresApproval || p.RequiresApproval
		requiresCheckpoint = requiresCheckpoint || p.RequiresCheckpoint
		if mitigation == "" && p.Mitigation != "" {
			mitigation = p.Mitigation
		}
	}

	return types.RiskAssessment{
		Action:                 summarizeAction(tool, actionInput),
		Tool:                   tool,
		InputSummary:           summarizeInput(actionInput),
		RiskLevel:              maxLevel,
		IsReversible:           reversible,
		AffectsSourceOfTruth:   affectsSource,
		HasExternalSideEffects: hasExternal,
		Concerns:               concerns,
		RequiresApproval:       requiresApproval,
		RequiresCheckpoint:     requiresCheckpoint,
		RequiresReview:         maxLevel >= types.RiskHigh,
		Mitigation:             mitigation,
	}
}

func (c *Classifier) defaultAssessment(tool string, actionInput map[string]any) types.RiskAssessment {
	level, ok := DefaultToolRisks[tool]
	if !ok {
		level = types.RiskModerate
	}

	return types.RiskAssessment{
		Action:                 summarizeAction(tool, actionInput),
		Tool:                   tool,
		InputSummary:           summarizeInput(actionInput),
		RiskLevel:              level,
		IsReversible:           reversibleTools[tool],
		AffectsSourceOfTruth:   sourceOfTruthTools[tool],
		HasExternalSideEffects: externalEffectTools[tool],
		RequiresApproval:       level >= types.RiskHigh,
		RequiresCheckpoint:     level >= types.RiskModerate,
		RequiresReview:         level >= types.RiskHigh,
	}
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
			return fmt.Sprintf("Run: %s...", truncate(cmd, 50))
		}
	}
	return fmt.Sprintf("%s operation", tool)
}

func summarizeInput(actionInput map[string]any) string {
	if len(actionInput) == 0 {
		return "(no input)"
	}
	keys := make([]string, 0, len(actionInput))
	for k := range actionInput {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 3 {
		keys = keys[:3]
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, truncate(fmt.Sprintf("%v", actionInput[k]), 50)))
	}
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (c *Classifier) recordStats(a types.RiskAssessment) {
	c.stats.TotalAssessments++
	c.stats.ByLevel[a.RiskLevel]++
	if a.RequiresApproval {
		c.stats.ApprovalsRequired++
	}
	if a.RequiresCheckpoint {
		c.stats.CheckpointsRequired++
	}
}

// StatsSnapshot returns a copy of the classifier's in-memory counters.
func (c *Classifier) StatsSnapshot() Stats {
	byLevel := make(map[types.RiskLevel]int, len(c.stats.ByLevel))
	for k, v := range c.stats.ByLevel {
		byLevel[k] = v
	}
	return Stats{
		TotalAssessments:    c.stats.TotalAssessments,
		ByLevel:             byLevel,
		ApprovalsRequired:   c.stats.ApprovalsRequired,
		CheckpointsRequired: c.stats.CheckpointsRequired,
	}
}
