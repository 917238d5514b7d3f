package human

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrlabs/arcadiaforge/internal/autonomy"
	"github.com/webrlabs/arcadiaforge/internal/types"
)

type fakeStore struct {
	mu        sync.Mutex
	nextID    int64
	points    map[int64]types.InjectionPoint
	intervs   []types.Intervention
	patterns  map[int64]types.InterventionPattern
	nextPatID int64
	custom    []types.EscalationRule
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:   1,
		points:   map[int64]types.InjectionPoint{},
		patterns: map[int64]types.InterventionPattern{},
		nextPatID: 1,
	}
}

func (f *fakeStore) SaveInjectionPoint(ip types.InjectionPoint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	ip.ID = id
	f.points[id] = ip
	return id, nil
}

func (f *fakeStore) GetInjectionPoint(id int64) (types.InjectionPoint, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ip, ok := f.points[id]
	return ip, ok, nil
}

func (f *fakeStore) UpdateInjectionPoint(ip types.InjectionPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points[ip.ID] = ip
	return nil
}

func (f *fakeStore) ListPendingInjectionPoints() ([]types.InjectionPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.InjectionPoint
	for _, ip := range f.points {
		if ip.Status == types.InjectionPending {
			out = append(out, ip)
		}
	}
	return out, nil
}

func (f *fakeStore) SaveIntervention(i types.Intervention) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intervs = append(f.intervs, i)
	return int64(len(f.intervs)), nil
}

func (f *fakeStore) LoadInterventionPatterns() ([]types.InterventionPattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.InterventionPattern
	for _, p := range f.patterns {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) SaveInterventionPattern(p types.InterventionPattern) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == 0 {
		p.ID = f.nextPatID
		f.nextPatID++
	}
	f.patterns[p.ID] = p
	return p.ID, nil
}

func (f *fakeStore) LoadCustomEscalationRules() ([]types.EscalationRule, error) {
	return f.custom, nil
}

func TestRequestRespondedBeforeTimeoutReturnsHumanResponse(t *testing.T) {
	store := newFakeStore()
	c := New(store, 1, 5*time.Millisecond, nil)

	var ip types.InjectionPoint
	var reqErr error
	done := make(chan struct{})
	go func() {
		ip, reqErr = c.Request(context.Background(), types.InjectionApproval, "run rm -rf /tmp/x", []string{"approve", "deny"}, "approve", time.Minute, "deny")
		close(done)
	}()

	// wait for the point to be persisted, then respond as the human would.
	require.Eventually(t, func() bool {
		pending, _ := store.ListPendingInjectionPoints()
		return len(pending) == 1
	}, time.Second, time.Millisecond)

	pending, _ := store.ListPendingInjectionPoints()
	ok, err := c.Respond(pending[0].ID, "deny")
	require.NoError(t, err)
	assert.True(t, ok)

	<-done
	require.NoError(t, reqErr)
	assert.Equal(t, types.InjectionResponded, ip.Status)
	assert.Equal(t, "deny", ip.Response)
	assert.Equal(t, "human", ip.RespondedBy)
}

func TestRequestTimesOutToDefault(t *testing.T) {
	store := newFakeStore()
	c := New(store, 1, 2*time.Millisecond, nil)

	ip, err := c.Request(context.Background(), types.InjectionApproval, "ctx", []string{"approve", "deny"}, "approve", 10*time.Millisecond, "deny")
	require.NoError(t, err)
	assert.Equal(t, types.InjectionTimeout, ip.Status)
	assert.Equal(t, "deny", ip.Response)
	assert.Equal(t, "timeout_default", ip.RespondedBy)
}

func TestCancelMarksPendingPointCancelled(t *testing.T) {
	store := newFakeStore()
	id, err := store.SaveInjectionPoint(types.InjectionPoint{SessionID: 1, Status: types.InjectionPending})
	require.NoError(t, err)

	c := New(store, 1, time.Millisecond, nil)
	ok, err := c.Cancel(id)
	require.NoError(t, err)
	assert.True(t, ok)

	ip, _, _ := store.GetInjectionPoint(id)
	assert.Equal(t, types.InjectionCancelled, ip.Status)
}

func TestContextSignatureHashIsStableAndDistinguishesFields(t *testing.T) {
	a := ContextSignature{Tool: "Bash", ActionType: "shell_exec", TriggerType: "approval"}
	b := ContextSignature{Tool: "Bash", ActionType: "shell_exec", TriggerType: "approval"}
	c := ContextSignature{Tool: "Write", ActionType: "shell_exec", TriggerType: "approval"}

	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotEqual(t, a.Hash(), c.Hash())
}

func TestLearnerIgnoresMatchingResponse(t *testing.T) {
	store := newFakeStore()
	l := NewLearner(store)
	sig := ContextSignature{Tool: "Bash", TriggerType: "approval"}

	pattern, err := l.RecordIntervention(1, 1, sig, "approve", "approve", time.Now())
	require.NoError(t, err)
	assert.Nil(t, pattern)
	assert.Empty(t, store.intervs)
}

func TestLearnerAutoAppliesAfterEnoughSuccessfulCorrections(t *testing.T) {
	store := newFakeStore()
	l := NewLearner(store)
	sig := ContextSignature{Tool: "Bash", ActionType: "git_force_push", TriggerType: "approval"}

	var pattern *types.InterventionPattern
	for i := 0; i < 3; i++ {
		var err error
		pattern, err = l.RecordIntervention(1, int64(i+1), sig, "approve", "deny", time.Now())
		require.NoError(t, err)
		require.NotNil(t, pattern)

		updated, err := l.RecordOutcome(*pattern, true)
		require.NoError(t, err)
		pattern = &updated
	}

	assert.Equal(t, 3, pattern.TimesApplied)
	assert.True(t, pattern.AutoApply)
	assert.Equal(t, "deny", pattern.LearnedResponse)

	matched, found, err := l.Match(sig)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, matched.AutoApply)
}

func TestRequestApprovalShortCircuitsOnAutoApplyPattern(t *testing.T) {
	store := newFakeStore()
	learner := NewLearner(store)
	sig := ContextSignature{Tool: "Bash", ActionType: "git push --force", TriggerType: "approval", DecisionType: "tool_approval"}

	_, err := store.SaveInterventionPattern(types.InterventionPattern{
		ContextSignature:     sig.Hash(),
		LearnedResponse:      "deny",
		TimesApplied:         3,
		TimesSucceeded:       3,
		Confidence:           1.0,
		AutoApply:            true,
		MinConfidenceForAuto: 0.8,
	})
	require.NoError(t, err)

	c := New(store, 1, time.Millisecond, learner)
	decision := autonomy.Decision{Action: "shell_exec", Tool: "Bash", RequiresApproval: true}
	assessment := types.RiskAssessment{Action: "git push --force", RiskLevel: types.RiskHigh}

	approved, err := c.RequestApproval(context.Background(), 1, "Bash", assessment, decision)
	require.NoError(t, err)
	assert.False(t, approved)

	pending, _ := store.ListPendingInjectionPoints()
	assert.Empty(t, pending, "auto-applied pattern must not open a new injection point")
}

func TestEscalatorEvaluateFlagsMultipleFailures(t *testing.T) {
	store := newFakeStore()
	e, err := NewEscalator(store)
	require.NoError(t, err)

	results := e.Evaluate(EscalationContext{
		Confidence:          0.9,
		ConsecutiveFailures: 4,
		FeatureIndex:        7,
	})

	var sawMultiple bool
	for _, r := range results {
		if r.Rule.ID == "multiple_failures" {
			sawMultiple = true
			assert.Contains(t, r.Message, "4")
			assert.Contains(t, r.Message, "7")
		}
	}
	assert.True(t, sawMultiple)
}

func TestEscalatorEvaluateOrdersBySeverityDescending(t *testing.T) {
	store := newFakeStore()
	e, err := NewEscalator(store)
	require.NoError(t, err)

	results := e.Evaluate(EscalationContext{
		Confidence:          0.2,
		ConsecutiveFailures: 6,
		IsIrreversible:      true,
	})
	require.NotEmpty(t, results)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Rule.Severity, results[i].Rule.Severity)
	}
}

func TestEscalatorCustomRuleOverridesDefaultByID(t *testing.T) {
	store := newFakeStore()
	store.custom = []types.EscalationRule{
		{ID: "low_confidence", Condition: "low_confidence", Severity: 1, MessageTemplate: "custom override"},
	}
	e, err := NewEscalator(store)
	require.NoError(t, err)

	var found types.EscalationRule
	for _, r := range e.Rules() {
		if r.ID == "low_confidence" {
			found = r
		}
	}
	assert.Equal(t, 1, found.Severity)
	assert.Equal(t, "custom override", found.MessageTemplate)
}

func TestParseTimeoutResolvesRelativePhrase(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d, err := ParseTimeout("in 30 minutes", now)
	require.NoError(t, err)
	assert.InDelta(t, 30*time.Minute, d, float64(time.Second))
}

func TestParseTimeoutRejectsUnparseablePhrase(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	_, err := ParseTimeout("zzz not a time", now)
	assert.Error(t, err)
}
