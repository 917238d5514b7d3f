// Package memory implements the Tiered Memory component (spec.md §4.7):
// Hot (per-session working state), Warm (recent session summaries), and
// Cold (unbounded, keyword-searchable archive).
package memory

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

const (
	maxRecentActions = 20
	maxRecentFiles   = 10
	maxFocusKeywords = 10
)

// Action is one recorded tool action in Hot memory.
type Action struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Result    string    `json:"result"`
	Tool      string    `json:"tool,omitempty"`
}

// ActiveError is an error currently being debugged this session.
type ActiveError struct {
	ErrorID         string    `json:"error_id"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	ErrorType       string    `json:"error_type"`
	Message         string    `json:"message"`
	OccurrenceCount int       `json:"occurrence_count"`
	AttemptedFixes  []string  `json:"attempted_fixes"`
	RelatedFeatures []int     `json:"related_features"`
	Resolved        bool      `json:"resolved"`
	Resolution      string    `json:"resolution,omitempty"`
}

// PendingDecision is a decision awaiting resolution.
type PendingDecision struct {
	DecisionID      string   `json:"decision_id"`
	CreatedAt       time.Time `json:"created_at"`
	DecisionType    string   `json:"decision_type"`
	Context         string   `json:"context"`
	Options         []string `json:"options"`
	Recommendation  string   `json:"recommendation,omitempty"`
	Confidence      float64  `json:"confidence"`
	BlockingFeature *int     `json:"blocking_feature,omitempty"`
}

// HotState is the current session's working context: the whole of Hot
// memory. It is cleared at SESSION_END once synthesized into a Warm
// summary.
type HotState struct {
	SessionID      int64             `json:"session_id"`
	StartedAt      time.Time         `json:"started_at"`
	CurrentFeature *int              `json:"current_feature,omitempty"`
	CurrentTask    string            `json:"current_task"`
	FocusKeywords  []string          `json:"focus_keywords"`
	RecentActions  []Action          `json:"recent_actions"`
	RecentFiles    []string          `json:"recent_files"`
	Errors         map[string]*ActiveError     `json:"errors"`
	Decisions      map[string]*PendingDecision `json:"decisions"`

	errorSeq    int
	decisionSeq int
}

// NewHotState starts an empty working context for sessionID.
func NewHotState(sessionID int64, now time.Time) *HotState {
	return &HotState{
		SessionID: sessionID,
		StartedAt: now,
		Errors:    map[string]*ActiveError{},
		Decisions: map[string]*PendingDecision{},
	}
}

// SetFocus updates the current feature/task/keywords the session is
// working on.
func (h *HotState) SetFocus(feature *int, task string, keywords []string) {
	h.CurrentFeature = feature
	h.CurrentTask = task
	if len(keywords) > maxFocusKeywords {
		keywords = keywords[:maxFocusKeywords]
	}
	h.FocusKeywords = keywords
}

// AddAction records a recent tool action, truncating the result and
// trimming to the most recent maxRecentActions entries.
func (h *HotState) AddAction(now time.Time, action, result, tool string) {
	if len(result) > 200 {
		result = result[:200]
	}
	h.RecentActions = append(h.RecentActions, Action{Timestamp: now, Action: action, Result: result, Tool: tool})
	if len(h.RecentActions) > maxRecentActions {
		h.RecentActions = h.RecentActions[len(h.RecentActions)-maxRecentActions:]
	}
}

// AddFile records a recently accessed file, moving it to the end if
// already present and trimming to maxRecentFiles.
func (h *HotState) AddFile(path string) {
	for i, f := range h.RecentFiles {
		if f == path {
			h.RecentFiles = append(h.RecentFiles[:i], h.RecentFiles[i+1:]...)
			break
		}
	}
	h.RecentFiles = append(h.RecentFiles, path)
	if len(h.RecentFiles) > maxRecentFiles {
		h.RecentFiles = h.RecentFiles[len(h.RecentFiles)-maxRecentFiles:]
	}
}

func errorKey(errorType, message string) string {
	return errorType + ":" + message
}

// AddError records an active error, bumping the occurrence count if the
// same (type, message) pair is already tracked.
func (h *HotState) AddError(now time.Time, errorType, message string, relatedFeatures []int) *ActiveError {
	key := errorKey(errorType, message)
	if len(message) > 500 {
		message = message[:500]
	}
	if existing, ok := h.Errors[key]; ok {
		existing.LastSeen = now
		existing.OccurrenceCount++
		existing.RelatedFeatures = unionInts(existing.RelatedFeatures, relatedFeatures)
		return existing
	}
	h.errorSeq++
	err := &ActiveError{
		ErrorID:         fmt.Sprintf("ERR-%d-%d", h.SessionID, h.errorSeq),
		FirstSeen:       now,
		LastSeen:        now,
		ErrorType:       errorType,
		Message:         message,
		OccurrenceCount: 1,
		RelatedFeatures: relatedFeatures,
	}
	h.Errors[key] = err
	return err
}

func unionInts(a, b []int) []int {
	seen := map[int]bool{}
	var out []int
	for _, x := range a {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	for _, x := range b {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	return out
}

// RecordFixAttempt appends a fix description to the named error.
func (h *HotState) RecordFixAttempt(errorID, description string) bool {
	for _, e := range h.Errors {
		if e.ErrorID == errorID {
			e.AttemptedFixes = append(e.AttemptedFixes, description)
			return true
		}
	}
	return false
}

// ResolveError marks the named error resolved.
func (h *HotState) ResolveError(errorID, resolution string) bool {
	for _, e := range h.Errors {
		if e.ErrorID == errorID {
			e.Resolved = true
			e.Resolution = resolution
			return true
		}
	}
	return false
}

// ActiveErrors returns unresolved errors.
func (h *HotState) ActiveErrors() []*ActiveError {
	var out []*ActiveError
	for _, e := range h.Errors {
		if !e.Resolved {
			out = append(out, e)
		}
	}
	return out
}

// AddPendingDecision records a decision awaiting resolution.
func (h *HotState) AddPendingDecision(now time.Time, decisionType, context string, options []string, recommendation string, confidence float64, blockingFeature *int) *PendingDecision {
	h.decisionSeq++
	d := &PendingDecision{
		DecisionID:      fmt.Sprintf("PD-%d-%d", h.SessionID, h.decisionSeq),
		CreatedAt:       now,
		DecisionType:    decisionType,
		Context:         context,
		Options:         options,
		Recommendation:  recommendation,
		Confidence:      confidence,
		BlockingFeature: blockingFeature,
	}
	h.Decisions[d.DecisionID] = d
	return d
}

// RebuildSequenceCounters restores errorSeq/decisionSeq after a round
// trip through a store, which can only carry the exported fields. It
// scans the IDs already present for the highest issued suffix, so the
// next AddError/AddPendingDecision call never reuses one.
func (h *HotState) RebuildSequenceCounters() {
	for _, e := range h.Errors {
		if n := idSeq(e.ErrorID); n > h.errorSeq {
			h.errorSeq = n
		}
	}
	for id := range h.Decisions {
		if n := idSeq(id); n > h.decisionSeq {
			h.decisionSeq = n
		}
	}
}

func idSeq(id string) int {
	i := strings.LastIndex(id, "-")
	if i < 0 || i == len(id)-1 {
		return 0
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return 0
	}
	return n
}

// ResolveDecision removes a decision once it has been made.
func (h *HotState) ResolveDecision(decisionID string) (*PendingDecision, bool) {
	d, ok := h.Decisions[decisionID]
	if ok {
		delete(h.Decisions, decisionID)
	}
	return d, ok
}

// ContextForPrompt renders the working context as a block of text
// suitable for inclusion in the next PREP prompt.
func (h *HotState) ContextForPrompt() string {
	var lines []string
	if h.CurrentFeature != nil {
		lines = append(lines, fmt.Sprintf("Current Feature: #%d", *h.CurrentFeature))
	}
	if h.CurrentTask != "" {
		lines = append(lines, fmt.Sprintf("Current Task: %s", h.CurrentTask))
	}
	if len(h.FocusKeywords) > 0 {
		lines = append(lines, fmt.Sprintf("Focus Areas: %s", strings.Join(h.FocusKeywords, ", ")))
	}
	if len(h.RecentFiles) > 0 {
		n := len(h.RecentFiles)
		start := max(0, n-5)
		lines = append(lines, fmt.Sprintf("Recently Modified: %s", strings.Join(h.RecentFiles[start:], ", ")))
	}
	if active := h.ActiveErrors(); len(active) > 0 {
		lines = append(lines, fmt.Sprintf("Active Errors: %d unresolved", len(active)))
	}
	if len(h.Decisions) > 0 {
		lines = append(lines, fmt.Sprintf("Pending Decisions: %d", len(h.Decisions)))
	}
	if len(lines) == 0 {
		return "No active context."
	}
	return strings.Join(lines, "\n")
}

// HotStore persists the single in-flight HotState so it survives a
// supervisor crash and can be resumed.
type HotStore interface {
	SaveHotState(HotState) error
	LoadHotState(sessionID int64) (HotState, bool, error)
	ClearHotState(sessionID int64) error
}

// WarmStore persists the bounded window of recent session summaries.
type WarmStore interface {
	SaveWarmSummary(types.WarmSummary) error
	ListWarmSummaries() ([]types.WarmSummary, error)
	DeleteWarmSummary(sessionID int64) error
}

// ColdStore persists the unbounded archive.
type ColdStore interface {
	SaveColdRecord(types.ColdRecord) error
	ListColdRecords() ([]types.ColdRecord, error)
}

// Manager coordinates the three tiers for one project.
type Manager struct {
	hotStore  HotStore
	warmStore WarmStore
	coldStore ColdStore
	maxWarm   int
}

// New constructs a Manager. maxWarm is the Warm window size (spec
// default 5).
func New(hotStore HotStore, warmStore WarmStore, coldStore ColdStore, maxWarm int) *Manager {
	if maxWarm <= 0 {
		maxWarm = 5
	}
	return &Manager{hotStore: hotStore, warmStore: warmStore, coldStore: coldStore, maxWarm: maxWarm}
}

// SaveHot persists the current Hot state.
func (m *Manager) SaveHot(h HotState) error {
	return m.hotStore.SaveHotState(h)
}

// LoadHot retrieves the current Hot state for a session, if any.
func (m *Manager) LoadHot(sessionID int64) (HotState, bool, error) {
	return m.hotStore.LoadHotState(sessionID)
}

// RecentWarmSummaries returns the current Warm window, most recent
// first — the "status/summary from Warm memory" the Session Supervisor
// composes into its prompt and the memory-query tool family exposes to
// the agent directly.
func (m *Manager) RecentWarmSummaries() ([]types.WarmSummary, error) {
	summaries, err := m.warmStore.ListWarmSummaries()
	if err != nil {
		return nil, fmt.Errorf("list warm summaries: %w", err)
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// PromoteSessionEnd synthesizes a Warm summary from Hot, deletes Hot,
// and — if Warm now exceeds the window — evicts the oldest summary to
// Cold. This is the SESSION_END promotion/decay step from spec.md §4.7.
func (m *Manager) PromoteSessionEnd(h HotState, statusString string, now time.Time) (types.WarmSummary, error) {
	summary := synthesizeWarmSummary(h, statusString, now)

	if err := m.warmStore.SaveWarmSummary(summary); err != nil {
		return types.WarmSummary{}, fmt.Errorf("save warm summary: %w", err)
	}
	if err := m.hotStore.ClearHotState(h.SessionID); err != nil {
		return types.WarmSummary{}, fmt.Errorf("clear hot state: %w", err)
	}

	if err := m.evictOverflow(now); err != nil {
		return types.WarmSummary{}, err
	}
	return summary, nil
}

func synthesizeWarmSummary(h HotState, statusString string, now time.Time) types.WarmSummary {
	var accomplished, issuesFound, issuesFixed, nextSteps []string

	for _, e := range h.Errors {
		if e.Resolved {
			issuesFixed = append(issuesFixed, fmt.Sprintf("%s: %s", e.ErrorType, e.Resolution))
		} else {
			issuesFound = append(issuesFound, fmt.Sprintf("%s: %s", e.ErrorType, e.Message))
		}
	}
	for _, a := range h.RecentActions {
		if a.Result != "" {
			accomplished = append(accomplished, a.Action)
		}
	}
	for _, d := range h.Decisions {
		nextSteps = append(nextSteps, fmt.Sprintf("resolve %s: %s", d.DecisionType, d.Context))
	}

	return types.WarmSummary{
		SessionID:      h.SessionID,
		Accomplished:   accomplished,
		StatusString:   statusString,
		NextSteps:      nextSteps,
		IssuesFound:    issuesFound,
		IssuesFixed:    issuesFixed,
		CreatedAt:      now,
	}
}

// evictOverflow moves the oldest Warm summaries to Cold until the
// window is within maxWarm, compressing issues that already have a
// matching proven solution in Cold.
func (m *Manager) evictOverflow(now time.Time) error {
	summaries, err := m.warmStore.ListWarmSummaries()
	if err != nil {
		return fmt.Errorf("list warm summaries: %w", err)
	}
	if len(summaries) <= m.maxWarm {
		return nil
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].CreatedAt.Before(summaries[j].CreatedAt) })
	overflow := summaries[:len(summaries)-m.maxWarm]

	cold, err := m.coldStore.ListColdRecords()
	if err != nil {
		return fmt.Errorf("list cold records: %w", err)
	}
	proven := map[string]string{}
	for _, c := range cold {
		for k, v := range c.ProvenSolutions {
			proven[k] = v
		}
	}

	for _, s := range overflow {
		record := compressToCold(s, proven, now)
		if err := m.coldStore.SaveColdRecord(record); err != nil {
			return fmt.Errorf("archive warm summary %d to cold: %w", s.SessionID, err)
		}
		if err := m.warmStore.DeleteWarmSummary(s.SessionID); err != nil {
			return fmt.Errorf("delete warm summary %d: %w", s.SessionID, err)
		}
	}
	return nil
}

func compressToCold(s types.WarmSummary, proven map[string]string, now time.Time) types.ColdRecord {
	keywords := extractKeywords(s)
	solutions := map[string]string{}
	var distilled []string

	distilled = append(distilled, s.StatusString)
	for _, issue := range s.IssuesFound {
		if sol, ok := proven[issue]; ok {
			solutions[issue] = sol
			continue
		}
		distilled = append(distilled, "unresolved: "+issue)
	}
	for _, issue := range s.IssuesFixed {
		solutions[issue] = issue
		distilled = append(distilled, "fixed: "+issue)
	}

	return types.ColdRecord{
		SessionID:       s.SessionID,
		Keywords:        keywords,
		DistilledText:   strings.Join(distilled, "; "),
		ProvenSolutions: solutions,
		ArchivedAt:      now,
	}
}

func extractKeywords(s types.WarmSummary) []string {
	seen := map[string]bool{}
	var out []string
	add := func(text string) {
		for _, w := range strings.Fields(strings.ToLower(text)) {
			w = strings.Trim(w, ".,:;!?()[]{}\"'")
			if len(w) < 4 || seen[w] {
				continue
			}
			seen[w] = true
			out = append(out, w)
		}
	}
	add(s.StatusString)
	for _, a := range s.Accomplished {
		add(a)
	}
	for _, i := range s.IssuesFound {
		add(i)
	}
	return out
}

// CompactCold writes one combined cold record for every session that has
// two or more, joining their distilled text and taking the union of their
// keywords and proven solutions. The original records are left in place.
// Callers run this periodically, not per session.
func (m *Manager) CompactCold(now time.Time) error {
	records, err := m.coldStore.ListColdRecords()
	if err != nil {
		return fmt.Errorf("list cold records: %w", err)
	}
	bySession := map[int64][]types.ColdRecord{}
	for _, r := range records {
		bySession[r.SessionID] = append(bySession[r.SessionID], r)
	}
	for sessionID, group := range bySession {
		if len(group) < 2 {
			continue
		}
		merged := mergeColdRecords(sessionID, group, now)
		if err := m.coldStore.SaveColdRecord(merged); err != nil {
			return fmt.Errorf("save compacted cold record for session %d: %w", sessionID, err)
		}
	}
	return nil
}

func mergeColdRecords(sessionID int64, group []types.ColdRecord, now time.Time) types.ColdRecord {
	keywordSet := map[string]bool{}
	solutions := map[string]string{}
	var texts []string
	for _, r := range group {
		for _, k := range r.Keywords {
			keywordSet[k] = true
		}
		for k, v := range r.ProvenSolutions {
			solutions[k] = v
		}
		texts = append(texts, r.DistilledText)
	}
	keywords := make([]string, 0, len(keywordSet))
	for k := range keywordSet {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)
	return types.ColdRecord{
		SessionID:       sessionID,
		Keywords:        keywords,
		DistilledText:   strings.Join(texts, "; "),
		ProvenSolutions: solutions,
		ArchivedAt:      now,
	}
}

// SearchResult pairs a Cold record with its relevance score.
type SearchResult struct {
	Record types.ColdRecord
	Score  int
}

// SearchKnowledge scores Cold records against a free-text query: exact
// substring match against the distilled text scores 3, each query word
// present in the text scores 1, each query word matching a keyword
// scores 2. Results are returned highest-scoring first.
func (m *Manager) SearchKnowledge(query string) ([]SearchResult, error) {
	records, err := m.coldStore.ListColdRecords()
	if err != nil {
		return nil, fmt.Errorf("list cold records: %w", err)
	}

	queryLower := strings.ToLower(query)
	words := strings.Fields(queryLower)

	var results []SearchResult
	for _, r := range records {
		text := strings.ToLower(r.DistilledText)
		keywordSet := map[string]bool{}
		for _, k := range r.Keywords {
			keywordSet[strings.ToLower(k)] = true
		}

		score := 0
		if queryLower != "" && strings.Contains(text, queryLower) {
			score += 3
		}
		for _, w := range words {
			if strings.Contains(text, w) {
				score++
			}
			if keywordSet[w] {
				score += 2
			}
		}
		if score > 0 {
			results = append(results, SearchResult{Record: r, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}
