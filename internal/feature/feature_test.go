package feature

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

type fakeStore struct {
	features []types.Feature
	saved    []types.Feature
	nextIdx  int
}

func (f *fakeStore) LoadFeatures() ([]types.Feature, error) { return f.features, nil }

func (f *fakeStore) SaveFeature(feat types.Feature) error {
	f.saved = append(f.saved, feat)
	return nil
}

func (f *fakeStore) InsertFeature(feat types.Feature) (int, error) {
	idx := f.nextIdx
	f.nextIdx++
	return idx, nil
}

func seedStore() *fakeStore {
	return &fakeStore{
		nextIdx: 3,
		features: []types.Feature{
			{Index: 0, Category: types.CategoryFunctional, Description: "user can log in", Priority: 1},
			{Index: 1, Category: types.CategoryFunctional, Description: "user can log out", Priority: 3, Passes: true},
			{Index: 2, Category: types.CategoryStyle, Description: "button has hover state", Priority: 4, BlockedBy: []int{0}},
		},
	}
}

func TestLoadComputesStats(t *testing.T) {
	r, err := Load(seedStore())
	require.NoError(t, err)

	stats := r.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Passing)
	assert.Equal(t, 2, stats.FunctionalTotal)
	assert.Equal(t, 1, stats.FunctionalPassing)
	assert.Equal(t, 1, stats.StyleTotal)
}

func TestIsBlockedReflectsDependencyStatus(t *testing.T) {
	r, err := Load(seedStore())
	require.NoError(t, err)

	f2, ok := r.Get(2)
	require.True(t, ok)
	assert.True(t, r.IsBlocked(f2))

	_, _, err = r.MarkPassing(0, nil, true)
	require.NoError(t, err)

	f2, _ = r.Get(2)
	assert.False(t, r.IsBlocked(f2))
}

func TestNextBySalienceSkipsBlockedAndPassing(t *testing.T) {
	r, err := Load(seedStore())
	require.NoError(t, err)

	next, ok := r.NextBySalience(Context{}, "", true, time.Now())
	require.True(t, ok)
	assert.Equal(t, 0, next.Index)
}

func TestNextBySalienceIncludesBlockedWhenNotSkipping(t *testing.T) {
	store := &fakeStore{features: []types.Feature{
		{Index: 0, Priority: 1, Passes: true},
		{Index: 1, Priority: 4, BlockedBy: []int{0, 2}},
		{Index: 2, Priority: 4},
	}}
	r, err := Load(store)
	require.NoError(t, err)

	// index 1 is blocked by 2 which hasn't passed; excluded by default.
	next, ok := r.NextBySalience(Context{}, "", true, time.Now())
	require.True(t, ok)
	assert.Equal(t, 2, next.Index)

	all, ok := r.NextBySalience(Context{}, "", false, time.Now())
	require.True(t, ok)
	assert.Contains(t, []int{1, 2}, all.Index)
}

func TestSalienceHigherPriorityScoresHigher(t *testing.T) {
	now := time.Now()
	critical := types.Feature{Priority: 1}
	low := types.Feature{Priority: 4}

	assert.Greater(t, Salience(critical, Context{}, now), Salience(low, Context{}, now))
}

func TestSalienceFailurePenaltyIsCapped(t *testing.T) {
	now := time.Now()
	threeFails := types.Feature{Priority: 3, FailureCount: 3}
	tenFails := types.Feature{Priority: 3, FailureCount: 10}

	assert.Equal(t, Salience(threeFails, Context{}, now), Salience(tenFails, Context{}, now))
}

func TestSalienceRelatedFeatureBonus(t *testing.T) {
	now := time.Now()
	f := types.Feature{Index: 7, Priority: 3}

	base := Salience(f, Context{}, now)
	boosted := Salience(f, Context{RelatedFeatures: []int{7}}, now)

	assert.InDelta(t, 0.20, boosted-base, 0.001)
}

func TestSalienceClampsToUnitInterval(t *testing.T) {
	now := time.Now()
	f := types.Feature{Priority: 4, FailureCount: 50}
	assert.GreaterOrEqual(t, Salience(f, Context{}, now), 0.0)
	assert.LessOrEqual(t, Salience(f, Context{}, now), 1.0)
}

func TestMarkPassingResetsFailureCountAndPersists(t *testing.T) {
	store := seedStore()
	r, err := Load(store)
	require.NoError(t, err)

	_, _, err = r.RecordAttempt(0, false)
	require.NoError(t, err)
	_, _, err = r.RecordAttempt(0, false)
	require.NoError(t, err)

	f, _ := r.Get(0)
	assert.Equal(t, 2, f.FailureCount)

	f, ok, err := r.MarkPassing(0, nil, true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, f.Passes)
	assert.Equal(t, 0, f.FailureCount)
	assert.NotEmpty(t, store.saved)
}

func TestAddAssignsNextIndexAndPersists(t *testing.T) {
	store := seedStore()
	r, err := Load(store)
	require.NoError(t, err)

	f, err := r.Add(types.CategoryFunctional, "user can reset password", []string{"step 1"})
	require.NoError(t, err)
	assert.Equal(t, 3, f.Index)
	assert.Equal(t, 4, r.Len())
}

func TestAddDependencyUpdatesBothSides(t *testing.T) {
	r, err := Load(seedStore())
	require.NoError(t, err)

	ok, err := r.AddDependency(1, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	f1, _ := r.Get(1)
	f2, _ := r.Get(2)
	assert.Contains(t, f1.BlockedBy, 2)
	assert.Contains(t, f2.Blocks, 1)
}

func TestStatusSnapshotAndRestore(t *testing.T) {
	r, err := Load(seedStore())
	require.NoError(t, err)

	status, passing, total := r.StatusSnapshot()
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, passing)

	_, _, err = r.MarkPassing(0, nil, true)
	require.NoError(t, err)

	require.NoError(t, r.RestoreStatus(status))
	f0, _ := r.Get(0)
	assert.False(t, f0.Passes)
}

func TestMarkPassingRequiresEvidence(t *testing.T) {
	store := seedStore()
	r, err := Load(store)
	require.NoError(t, err)

	_, _, err = r.MarkPassing(0, nil, false)
	require.ErrorIs(t, err, ErrMissingEvidence)

	f0, _ := r.Get(0)
	assert.False(t, f0.Passes)
	assert.Empty(t, store.saved)
}

func TestMarkPassingWithArtifactsRecordsVerification(t *testing.T) {
	r, err := Load(seedStore())
	require.NoError(t, err)

	f, ok, err := r.MarkPassing(0, []string{"verification/feature_0_login.png"}, false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, f.Passes)
	assert.NotNil(t, f.VerifiedAt)
	assert.Equal(t, []string{"verification/feature_0_login.png"}, f.VerificationArtifacts)
}

func TestMarkPassingTwiceIsNoOp(t *testing.T) {
	store := seedStore()
	r, err := Load(store)
	require.NoError(t, err)

	_, _, err = r.MarkPassing(0, []string{"verification/feature_0_login.png"}, false)
	require.NoError(t, err)
	saveCountAfterFirst := len(store.saved)

	f, ok, err := r.MarkPassing(0, []string{"verification/feature_0_login.png"}, false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, f.Passes)
	assert.Len(t, store.saved, saveCountAfterFirst)
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	r, err := Load(seedStore())
	require.NoError(t, err)

	results := r.Search("LOG IN", 0)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Index)
}
