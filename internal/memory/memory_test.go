package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

type fakeHotStore struct {
	saved map[int64]HotState
}

func newFakeHotStore() *fakeHotStore { return &fakeHotStore{saved: map[int64]HotState{}} }

func (f *fakeHotStore) SaveHotState(h HotState) error { f.saved[h.SessionID] = h; return nil }
func (f *fakeHotStore) LoadHotState(sessionID int64) (HotState, bool, error) {
	h, ok := f.saved[sessionID]
	return h, ok, nil
}
func (f *fakeHotStore) ClearHotState(sessionID int64) error {
	delete(f.saved, sessionID)
	return nil
}

type fakeWarmStore struct {
	summaries map[int64]types.WarmSummary
}

func newFakeWarmStore() *fakeWarmStore { return &fakeWarmStore{summaries: map[int64]types.WarmSummary{}} }

func (f *fakeWarmStore) SaveWarmSummary(s types.WarmSummary) error {
	f.summaries[s.SessionID] = s
	return nil
}
func (f *fakeWarmStore) ListWarmSummaries() ([]types.WarmSummary, error) {
	var out []types.WarmSummary
	for _, s := range f.summaries {
		out = append(out, s)
	}
	return out, nil
}
func (f *fakeWarmStore) DeleteWarmSummary(sessionID int64) error {
	delete(f.summaries, sessionID)
	return nil
}

type fakeColdStore struct {
	records []types.ColdRecord
}

func (f *fakeColdStore) SaveColdRecord(r types.ColdRecord) error {
	f.records = append(f.records, r)
	return nil
}
func (f *fakeColdStore) ListColdRecords() ([]types.ColdRecord, error) { return f.records, nil }

func TestHotStateAddActionTrimsToLimit(t *testing.T) {
	h := NewHotState(1, time.Now())
	for i := 0; i < maxRecentActions+5; i++ {
		h.AddAction(time.Now(), "act", "ok", "Bash")
	}
	assert.Len(t, h.RecentActions, maxRecentActions)
}

func TestHotStateAddFileMovesToEndAndTrims(t *testing.T) {
	h := NewHotState(1, time.Now())
	h.AddFile("a.go")
	h.AddFile("b.go")
	h.AddFile("a.go")
	require.Len(t, h.RecentFiles, 2)
	assert.Equal(t, "a.go", h.RecentFiles[len(h.RecentFiles)-1])
}

func TestHotStateAddErrorDedupesByTypeAndMessage(t *testing.T) {
	h := NewHotState(1, time.Now())
	h.AddError(time.Now(), "TypeError", "cannot read x", nil)
	err := h.AddError(time.Now(), "TypeError", "cannot read x", []int{2})
	assert.Equal(t, 2, err.OccurrenceCount)
	assert.Len(t, h.Errors, 1)
}

func TestHotStateResolveErrorMarksResolved(t *testing.T) {
	h := NewHotState(1, time.Now())
	err := h.AddError(time.Now(), "TypeError", "boom", nil)
	ok := h.ResolveError(err.ErrorID, "added nil check")
	assert.True(t, ok)
	assert.Empty(t, h.ActiveErrors())
}

func TestPromoteSessionEndClearsHotAndSavesWarm(t *testing.T) {
	hotStore := newFakeHotStore()
	warmStore := newFakeWarmStore()
	coldStore := &fakeColdStore{}
	m := New(hotStore, warmStore, coldStore, 5)

	h := NewHotState(1, time.Now())
	h.AddError(time.Now(), "TypeError", "boom", nil)

	summary, err := m.PromoteSessionEnd(*h, "in progress", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.SessionID)
	assert.Contains(t, summary.IssuesFound, "TypeError: boom")

	_, found, err := hotStore.LoadHotState(1)
	require.NoError(t, err)
	assert.False(t, found)

	all, err := warmStore.ListWarmSummaries()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPromoteSessionEndEvictsOldestWhenWarmOverflows(t *testing.T) {
	hotStore := newFakeHotStore()
	warmStore := newFakeWarmStore()
	coldStore := &fakeColdStore{}
	m := New(hotStore, warmStore, coldStore, 2)

	base := time.Now()
	for i := int64(1); i <= 3; i++ {
		h := NewHotState(i, base)
		_, err := m.PromoteSessionEnd(*h, "status", base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}

	remaining, err := warmStore.ListWarmSummaries()
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
	assert.Len(t, coldStore.records, 1)
	assert.Equal(t, int64(1), coldStore.records[0].SessionID)
}

func TestSearchKnowledgeRanksByScore(t *testing.T) {
	coldStore := &fakeColdStore{records: []types.ColdRecord{
		{SessionID: 1, Keywords: []string{"authentication", "token"}, DistilledText: "fixed authentication token refresh bug"},
		{SessionID: 2, Keywords: []string{"layout"}, DistilledText: "fixed layout shift on mobile"},
	}}
	m := New(newFakeHotStore(), newFakeWarmStore(), coldStore, 5)

	results, err := m.SearchKnowledge("authentication token")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, int64(1), results[0].Record.SessionID)
}

func TestSearchKnowledgeReturnsNoMatchesForUnrelatedQuery(t *testing.T) {
	coldStore := &fakeColdStore{records: []types.ColdRecord{
		{SessionID: 1, DistilledText: "fixed authentication bug"},
	}}
	m := New(newFakeHotStore(), newFakeWarmStore(), coldStore, 5)

	results, err := m.SearchKnowledge("nonexistent gibberish zzz")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCompactColdMergesSameSessionRecords(t *testing.T) {
	coldStore := &fakeColdStore{records: []types.ColdRecord{
		{SessionID: 5, Keywords: []string{"auth"}, DistilledText: "part one"},
		{SessionID: 5, Keywords: []string{"token"}, DistilledText: "part two"},
	}}
	m := New(newFakeHotStore(), newFakeWarmStore(), coldStore, 5)

	require.NoError(t, m.CompactCold(time.Now()))
	assert.Len(t, coldStore.records, 3)
	merged := coldStore.records[2]
	assert.Equal(t, int64(5), merged.SessionID)
	assert.ElementsMatch(t, []string{"auth", "token"}, merged.Keywords)
}
