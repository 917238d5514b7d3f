// Package failure implements the Failure Analyzer (spec.md §4.14):
// given a session id, scan its events and classify what went wrong.
package failure

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

// EventSource is the read surface the analyzer needs from the Event
// Log — just enough to replay one session's events in order.
type EventSource interface {
	Iter(sessionID int64) ([]types.Event, error)
}

// SearchResult mirrors internal/memory.SearchResult's shape without
// importing that package, so this one stays free to run against any
// knowledge searcher, not specifically the Tiered Memory manager.
type SearchResult struct {
	Record types.ColdRecord
	Score  int
}

// KnowledgeSearchFunc finds Cold memory records related to a query
// string, used to populate SimilarPastFailures by signature match. A
// func type rather than an interface so callers can adapt
// *memory.Manager.SearchKnowledge with a one-line closure instead of
// needing an identical concrete return type.
type KnowledgeSearchFunc func(query string) ([]SearchResult, error)

// Store persists FailureReport rows.
type Store interface {
	SaveFailureReport(types.FailureReport) (int64, error)
}

// Analyzer classifies sessions into a FailureCategory and assembles the
// accompanying report.
type Analyzer struct {
	events    EventSource
	store     Store
	knowledge KnowledgeSearchFunc
}

// New wraps events and store. knowledge may be nil, in which case
// SimilarPastFailures is always empty.
func New(events EventSource, store Store, knowledge KnowledgeSearchFunc) *Analyzer {
	return &Analyzer{events: events, store: store, knowledge: knowledge}
}

// AnalyzeSession scans sessionID's events, classifies the run, and
// persists the resulting report.
func (a *Analyzer) AnalyzeSession(sessionID int64) (types.FailureReport, error) {
	events, err := a.events.Iter(sessionID)
	if err != nil {
		return types.FailureReport{}, fmt.Errorf("iterate events: %w", err)
	}

	report := types.FailureReport{
		SessionID: sessionID,
		CreatedAt: time.Now().UTC(),
	}

	if len(events) == 0 {
		report.Category = types.FailureOK
		report.LikelyCause = "no events found for session"
		return a.save(report)
	}

	var (
		errorMessages   []string
		toolErrors      []string
		blockedCount    int
		escalationCount int
		toolCallCount   int
		featureComplete bool
		sessionCrashed  bool
	)

	for _, e := range events {
		switch e.Type {
		case types.EventError:
			if msg, ok := e.Payload["message"].(string); ok {
				errorMessages = append(errorMessages, msg)
			}
		case types.EventToolError:
			if msg, ok := e.Payload["error"].(string); ok {
				toolErrors = append(toolErrors, msg)
				report.FailingAction = fmt.Sprintf("%v: %s", e.Payload["tool"], truncate(msg, 100))
			}
		case types.EventToolBlocked:
			blockedCount++
		case types.EventEscalation:
			escalationCount++
		case types.EventToolCall:
			toolCallCount++
		case types.EventToolResult:
			report.LastSuccessfulAction = fmt.Sprintf("%v", e.Payload["tool"])
		case types.EventCheckpoint:
			if trigger, ok := e.Payload["trigger"].(string); ok && trigger == string(types.TriggerFeatureComplete) {
				featureComplete = true
			}
		case types.EventSessionEnd:
			if crashType, ok := e.Payload["type"].(string); ok && crashType == "crash" {
				sessionCrashed = true
			}
		}
	}
	report.ErrorMessages = append(errorMessages, toolErrors...)

	category, cause, confidence := classify(sessionCrashed, report.ErrorMessages, toolErrors, blockedCount, escalationCount, toolCallCount, featureComplete)
	report.Category = category
	report.LikelyCause = cause
	report.Confidence = confidence
	report.SuggestedFixes = suggestFixes(category, toolErrors)

	if a.knowledge != nil && len(report.ErrorMessages) > 0 {
		results, err := a.knowledge(report.ErrorMessages[0])
		if err == nil {
			sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
			for i, r := range results {
				if i >= 5 {
					break
				}
				report.SimilarPastFailures = append(report.SimilarPastFailures, r.Record.SessionID)
			}
		}
	}

	return a.save(report)
}

func (a *Analyzer) save(report types.FailureReport) (types.FailureReport, error) {
	id, err := a.store.SaveFailureReport(report)
	if err != nil {
		return report, fmt.Errorf("save failure report: %w", err)
	}
	report.ID = id
	return report, nil
}

// classify mirrors the priority order a human triaging a failed run
// would use: crash first, then cyclic errors, then security blocks,
// then generic tool errors, then escalation/stuck states.
func classify(crashed bool, errorMessages, toolErrors []string, blockedCount, escalationCount, toolCallCount int, featureComplete bool) (types.FailureCategory, string, float64) {
	if crashed {
		return types.FailureCrash, "session ended without a clean SESSION_END", 0.95
	}

	if len(errorMessages) >= 3 && distinctCount(errorMessages) <= 2 {
		return types.FailureCyclicError, fmt.Sprintf("same error repeated %d times", len(errorMessages)), 0.9
	}

	if blockedCount > 0 {
		return types.FailureBlockedCommands, fmt.Sprintf("%d actions blocked by security", blockedCount), 0.95
	}

	if len(toolErrors) > 0 {
		for _, msg := range toolErrors {
			lower := strings.ToLower(msg)
			switch {
			case strings.Contains(lower, "timeout"):
				return types.FailureTimeout, "operation timed out", 0.8
			case strings.Contains(lower, "permission denied"), strings.Contains(lower, "access denied"):
				return types.FailureTimeout, "permission denied", 0.6
			}
		}
		return types.FailureRegression, fmt.Sprintf("%d tool execution errors", len(toolErrors)), 0.7
	}

	if escalationCount > 0 {
		return types.FailureRegression, "human intervention required", 0.6
	}

	if !featureComplete && toolCallCount > 10 {
		return types.FailureRegression, "many tool calls without completing a feature", 0.5
	}

	return types.FailureOK, "no failure pattern detected", 0.5
}

func suggestFixes(category types.FailureCategory, toolErrors []string) []string {
	switch category {
	case types.FailureCyclicError:
		return []string{"try a different approach to the repeated action", "request human guidance via an injection point"}
	case types.FailureBlockedCommands:
		return []string{"review the security gate's allowlist for this command family"}
	case types.FailureTimeout:
		return []string{"increase the stall timeout for long-running tools", "check whether the blocked resource requires elevated permissions"}
	case types.FailureCrash:
		return []string{"inspect the last checkpoint and resume from there"}
	default:
		if len(toolErrors) > 0 {
			return []string{"review the tool error messages for a root cause"}
		}
		return nil
	}
}

func distinctCount(messages []string) int {
	seen := map[string]bool{}
	for _, m := range messages {
		seen[m] = true
	}
	return len(seen)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
