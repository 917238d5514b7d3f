// Package types holds the domain entities shared across the Arcadia Forge
// core: the State Store, the Hook Pipeline, the Session Supervisor, and
// everything downstream of them. Keeping these in one leaf package avoids
// the cyclic-import problems that come from letting every component define
// its own view of "Feature" or "Session".
package types

import "time"

// FeatureCategory classifies a Feature as a functional test case or a
// style/polish check.
type FeatureCategory string

const (
	CategoryFunctional FeatureCategory = "functional"
	CategoryStyle       FeatureCategory = "style"
)

// Feature is one test case in the catalogue: the unit of completion.
// Features are created only during initialization and explicit
// "add new requirements" flows. Only Passes, FailureCount, LastWorked,
// BlockedBy, VerifiedAt, VerificationArtifacts, SkipVerification,
// BlockedReason, and Priority are mutable after creation.
type Feature struct {
	Index       int             `json:"index"`
	Category    FeatureCategory `json:"category"`
	Description string          `json:"description"`
	Steps       []string        `json:"steps"`

	Passes       bool `json:"passes"`
	Priority     int  `json:"priority"` // 1 (highest) .. 4 (lowest)
	FailureCount int  `json:"failure_count"`

	LastWorked *time.Time `json:"last_worked,omitempty"`

	BlockedBy []int `json:"blocked_by"`
	Blocks    []int `json:"blocks"`

	VerifiedAt             *time.Time `json:"verified_at,omitempty"`
	VerificationArtifacts   []string   `json:"verification_artifacts"`
	SkipVerification        bool       `json:"skip_verification"`
	BlockedReason           string     `json:"blocked_reason,omitempty"`
}

// SessionStatus is the terminal (or in-flight) status of a Session row.
type SessionStatus string

const (
	SessionRunning        SessionStatus = "running"
	SessionSuccess        SessionStatus = "success"
	SessionFailed         SessionStatus = "failed"
	SessionIntervention   SessionStatus = "intervention"
	SessionCyclic         SessionStatus = "cyclic"
	SessionNoProgress     SessionStatus = "no_progress"
	SessionPaused         SessionStatus = "paused"
	SessionBudgetExceeded SessionStatus = "budget_exceeded"
)

// Session is one bounded run of the LLM agent with a fresh context window.
type Session struct {
	ID        int64         `json:"id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Status    SessionStatus `json:"status"`
	Summary   string        `json:"summary,omitempty"`
}

// TokenUsage carries the input/output token counts billed for the LLM
// call that produced a tool invocation, so the Hook Pipeline can stamp
// them onto TOOL_CALL/TOOL_RESULT events for eventlog.Metrics to sum.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// EventType enumerates every observable action the core records.
type EventType string

const (
	EventSessionStart EventType = "SESSION_START"
	EventSessionEnd   EventType = "SESSION_END"
	EventToolCall     EventType = "TOOL_CALL"
	EventToolResult   EventType = "TOOL_RESULT"
	EventToolError    EventType = "TOOL_ERROR"
	EventToolBlocked  EventType = "TOOL_BLOCKED"
	EventDecision     EventType = "DECISION"
	EventCheckpoint   EventType = "CHECKPOINT"
	EventInjection    EventType = "INJECTION"
	EventEscalation   EventType = "ESCALATION"
	EventError        EventType = "ERROR"
)

// Event is one row of the append-only timeline. Payload is an opaque JSON
// blob whose shape depends on Type.
type Event struct {
	EventID   int64           `json:"event_id"`
	SessionID int64           `json:"session_id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      EventType       `json:"type"`
	Payload   map[string]any  `json:"payload"`
}

// CheckpointTrigger names the semantic moment a checkpoint was taken at.
type CheckpointTrigger string

const (
	TriggerFeatureComplete CheckpointTrigger = "FEATURE_COMPLETE"
	TriggerBeforeRiskyOp   CheckpointTrigger = "BEFORE_RISKY_OP"
	TriggerErrorRecovery   CheckpointTrigger = "ERROR_RECOVERY"
	TriggerHumanRequest    CheckpointTrigger = "HUMAN_REQUEST"
	TriggerSessionStart    CheckpointTrigger = "SESSION_START"
	TriggerSessionEnd      CheckpointTrigger = "SESSION_END"
	TriggerPause           CheckpointTrigger = "PAUSE"
)

// Checkpoint pairs a durable VCS commit with a feature-status snapshot.
type Checkpoint struct {
	ID                    int64             `json:"id"`
	SessionID             int64             `json:"session_id"`
	Timestamp             time.Time         `json:"timestamp"`
	Trigger               CheckpointTrigger `json:"trigger"`
	VCSCommitHash         string            `json:"vcs_commit_hash"`
	FeatureStatusSnapshot map[int]bool      `json:"feature_status_snapshot"`
	PendingWork           []string          `json:"pending_work"`
	Notes                 string            `json:"notes,omitempty"`
	Sequence              int               `json:"sequence"`
}

// ArtifactType enumerates the kinds of verification evidence the core
// recognizes.
type ArtifactType string

const (
	ArtifactScreenshot ArtifactType = "screenshot"
	ArtifactFileWrite  ArtifactType = "file_write"
	ArtifactCommitRef  ArtifactType = "commit_ref"
	ArtifactTestResult ArtifactType = "test_result"
)

// Artifact is a content-addressed piece of verification evidence.
type Artifact struct {
	ID           int64          `json:"id"`
	SessionID    int64          `json:"session_id"`
	Type         ArtifactType   `json:"type"`
	PathRelative string         `json:"path_relative"`
	SHA256       string         `json:"sha256_checksum"`
	Metadata     map[string]any `json:"metadata"`
}

// Decision records a choice the agent made along with its alternatives and
// rationale, for later review and for Intervention Learning.
type Decision struct {
	ID               int64    `json:"id"`
	SessionID        int64    `json:"session_id"`
	Type             string   `json:"type"`
	Context          string   `json:"context"`
	Choice           string   `json:"choice"`
	Alternatives     []string `json:"alternatives"`
	Rationale        string   `json:"rationale"`
	Confidence       float64  `json:"confidence"`
	RelatedFeatures  []int    `json:"related_features"`
	Outcome          string   `json:"outcome,omitempty"`
	OutcomeSuccess   *bool    `json:"outcome_success,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// HypothesisStatus tracks the lifecycle of a Hypothesis row.
type HypothesisStatus string

const (
	HypothesisOpen       HypothesisStatus = "open"
	HypothesisConfirmed  HypothesisStatus = "confirmed"
	HypothesisRejected   HypothesisStatus = "rejected"
	HypothesisIrrelevant HypothesisStatus = "irrelevant"
)

// Hypothesis captures a diagnostic guess the agent formed while debugging.
type Hypothesis struct {
	ID              int64            `json:"id"`
	CreatedSession  int64            `json:"created_session"`
	Observation     string           `json:"observation"`
	HypothesisText  string           `json:"hypothesis"`
	Confidence      float64          `json:"confidence"`
	EvidenceFor     []string         `json:"evidence_for"`
	EvidenceAgainst []string         `json:"evidence_against"`
	Status          HypothesisStatus `json:"status"`
	RelatedFeatures []int            `json:"related_features"`
	Timestamp       time.Time        `json:"timestamp"`
}

// InjectionType names the kind of human input an Injection Point asks for.
type InjectionType string

const (
	InjectionDecision  InjectionType = "decision"
	InjectionApproval  InjectionType = "approval"
	InjectionGuidance  InjectionType = "guidance"
	InjectionReview    InjectionType = "review"
	InjectionRedirect  InjectionType = "redirect"
)

// InjectionStatus is the lifecycle state of an Injection Point.
type InjectionStatus string

const (
	InjectionPending   InjectionStatus = "pending"
	InjectionResponded InjectionStatus = "responded"
	InjectionTimeout   InjectionStatus = "timeout"
	InjectionCancelled InjectionStatus = "cancelled"
)

// InjectionPoint is a durable request for human input.
type InjectionPoint struct {
	ID                int64           `json:"id"`
	SessionID         int64           `json:"session_id"`
	Type              InjectionType   `json:"type"`
	Context           string          `json:"context"`
	Options           []string        `json:"options"`
	Recommendation    string          `json:"recommendation"`
	TimeoutSeconds    int             `json:"timeout_s"`
	DefaultOnTimeout  string          `json:"default_on_timeout"`
	Status            InjectionStatus `json:"status"`
	Response          string          `json:"response,omitempty"`
	RespondedBy       string          `json:"responded_by,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	RespondedAt       *time.Time      `json:"responded_at,omitempty"`
}

// Intervention is a resolved, non-default injection response.
type Intervention struct {
	ID                int64     `json:"id"`
	SessionID         int64     `json:"session_id"`
	InjectionPointID   int64     `json:"injection_point_id"`
	ContextSignature  string    `json:"context_signature"`
	AgentRecommendation string  `json:"agent_recommendation"`
	HumanResponse     string    `json:"human_response"`
	Timestamp         time.Time `json:"timestamp"`
}

// InterventionPattern aggregates Interventions sharing a context
// signature into a learned, potentially auto-applicable response.
type InterventionPattern struct {
	ID                  int64   `json:"id"`
	ContextSignature    string  `json:"context_signature"`
	LearnedResponse     string  `json:"learned_response"`
	TimesApplied        int     `json:"times_applied"`
	TimesSucceeded      int     `json:"times_succeeded"`
	Confidence          float64 `json:"confidence"`
	AutoApply           bool    `json:"auto_apply"`
	MinConfidenceForAuto float64 `json:"min_confidence_for_auto"`
}

// AutonomyLevel is a graduated control knob from read-only to full
// independence. Each level includes the capabilities of lower levels.
type AutonomyLevel int

const (
	AutonomyObserve      AutonomyLevel = 1
	AutonomyPlan         AutonomyLevel = 2
	AutonomyExecuteSafe  AutonomyLevel = 3
	AutonomyExecuteReview AutonomyLevel = 4
	AutonomyFullAuto     AutonomyLevel = 5
)

func (l AutonomyLevel) String() string {
	switch l {
	case AutonomyObserve:
		return "OBSERVE"
	case AutonomyPlan:
		return "PLAN"
	case AutonomyExecuteSafe:
		return "EXECUTE_SAFE"
	case AutonomyExecuteReview:
		return "EXECUTE_REVIEW"
	case AutonomyFullAuto:
		return "FULL_AUTO"
	default:
		return "UNKNOWN"
	}
}

// RiskLevel is the 1-5 severity scale the Risk Classifier assigns.
type RiskLevel int

const (
	RiskMinimal  RiskLevel = 1
	RiskLow      RiskLevel = 2
	RiskModerate RiskLevel = 3
	RiskHigh     RiskLevel = 4
	RiskCritical RiskLevel = 5
)

// RiskPattern is a rule-table row the Risk Classifier matches tool calls
// against.
type RiskPattern struct {
	PatternID    string    `json:"pattern_id"`
	Description  string    `json:"description"`
	Tool         string    `json:"tool,omitempty"` // empty means any tool
	InputField   string    `json:"input_field,omitempty"`
	InputPattern string    `json:"input_pattern,omitempty"` // regex

	RiskLevel                RiskLevel `json:"risk_level"`
	IsReversible              bool      `json:"is_reversible"`
	AffectsSourceOfTruth      bool      `json:"affects_source_of_truth"`
	HasExternalSideEffects    bool      `json:"has_external_side_effects"`
	RequiresApproval          bool      `json:"requires_approval"`
	RequiresCheckpoint        bool      `json:"requires_checkpoint"`
	Mitigation                string    `json:"mitigation,omitempty"`
	Enabled                   bool      `json:"is_enabled"`
}

// RiskAssessment is the persisted result of classifying one action.
type RiskAssessment struct {
	ID                     int64     `json:"id"`
	SessionID              int64     `json:"session_id"`
	Action                 string    `json:"action"`
	Tool                   string    `json:"tool"`
	InputSummary           string    `json:"input_summary"`
	RiskLevel              RiskLevel `json:"risk_level"`
	IsReversible           bool      `json:"is_reversible"`
	AffectsSourceOfTruth   bool      `json:"affects_source_of_truth"`
	HasExternalSideEffects bool      `json:"has_external_side_effects"`
	Concerns               []string  `json:"concerns"`
	RequiresApproval       bool      `json:"requires_approval"`
	RequiresCheckpoint     bool      `json:"requires_checkpoint"`
	RequiresReview         bool      `json:"requires_review"`
	Mitigation             string    `json:"mitigation,omitempty"`
	Timestamp              time.Time `json:"timestamp"`
}

// WarmSummary is one synthesized session summary living in Warm memory.
type WarmSummary struct {
	SessionID         int64     `json:"session_id"`
	Accomplished      []string  `json:"accomplished"`
	TestsCompleted    []string  `json:"tests_completed"`
	StatusString      string    `json:"status_string"`
	NextSteps         []string  `json:"next_steps"`
	IssuesFound       []string  `json:"issues_found"`
	IssuesFixed       []string  `json:"issues_fixed"`
	Notes             string    `json:"notes,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// ColdRecord is a compact, searchable archive of a demoted Warm summary.
type ColdRecord struct {
	ID              int64     `json:"id"`
	SessionID       int64     `json:"session_id"`
	Keywords        []string  `json:"keywords"`
	DistilledText   string    `json:"distilled_text"`
	ProvenSolutions map[string]string `json:"proven_solutions"`
	ArchivedAt      time.Time `json:"archived_at"`
}

// ToolInvocationID identifies one tool call end-to-end across TOOL_CALL /
// TOOL_RESULT / TOOL_ERROR / TOOL_BLOCKED events.
type ToolInvocationID string

// PausedSession is the on-disk snapshot written when the supervisor is
// asked to pause.
type PausedSession struct {
	SessionID       int64     `json:"session_id"`
	CurrentFeature  int       `json:"current_feature"`
	LastCheckpointID int64    `json:"last_checkpoint_id"`
	ResumePrompt    string    `json:"resume_prompt"`
	PauseReason     string    `json:"pause_reason"`
	HumanNotes      string    `json:"human_notes,omitempty"`
	PausedAt        time.Time `json:"paused_at"`
}

// FailureCategory classifies the session the Failure Analyzer examined.
type FailureCategory string

const (
	FailureCyclicError     FailureCategory = "cyclic_error"
	FailureBlockedCommands FailureCategory = "blocked_commands"
	FailureTimeout         FailureCategory = "timeout"
	FailureCrash           FailureCategory = "crash"
	FailureRegression      FailureCategory = "regression"
	FailureOK              FailureCategory = "ok"
)

// FailureReport is the persisted output of the Failure Analyzer for one
// session.
type FailureReport struct {
	ID                   int64           `json:"id"`
	SessionID            int64           `json:"session_id"`
	Category             FailureCategory `json:"category"`
	LastSuccessfulAction string          `json:"last_successful_action"`
	FailingAction        string          `json:"failing_action"`
	ErrorMessages        []string        `json:"error_messages"`
	LikelyCause          string          `json:"likely_cause"`
	Confidence           float64         `json:"confidence"`
	SimilarPastFailures  []int64         `json:"similar_past_failures"`
	SuggestedFixes       []string        `json:"suggested_fixes"`
	CreatedAt            time.Time       `json:"created_at"`
}

// EscalationRule is a declarative predicate over session context;
// human.Escalator.Evaluate reports the rules that hold.
type EscalationRule struct {
	ID                string        `json:"id"`
	Condition         string        `json:"condition"` // symbolic name matched in code, e.g. "low_confidence"
	Severity          int           `json:"severity"`  // 1-5
	InjectionType     InjectionType `json:"injection_type"`
	MessageTemplate   string        `json:"message_template"`
	SuggestedActions  []string      `json:"suggested_actions"`
	AutoPause         bool          `json:"auto_pause"`
	TimeoutSeconds    int           `json:"timeout_s"`
	BuiltIn           bool          `json:"built_in"`
}

// Exit codes of the supervisor process (spec.md §6).
const (
	ExitOK               = 0
	ExitPaused           = 10
	ExitBudgetExceeded   = 20
	ExitConfigError      = 30
	ExitCrashRecoveryFailed = 40
)
