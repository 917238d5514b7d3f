package autonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

type fakeStore struct {
	cfg       Config
	cfgFound  bool
	metrics   Metrics
	metFound  bool
	decisions []Decision
}

func (f *fakeStore) LoadAutonomyConfig() (Config, bool, error)   { return f.cfg, f.cfgFound, nil }
func (f *fakeStore) SaveAutonomyConfig(c Config) error           { f.cfg = c; f.cfgFound = true; return nil }
func (f *fakeStore) LoadAutonomyMetrics() (Metrics, bool, error) { return f.metrics, f.metFound, nil }
func (f *fakeStore) SaveAutonomyMetrics(m Metrics) error         { f.metrics = m; f.metFound = true; return nil }
func (f *fakeStore) LogAutonomyDecision(d Decision) error {
	f.decisions = append(f.decisions, d)
	return nil
}

func TestCheckActionReadAllowedAtObserve(t *testing.T) {
	store := &fakeStore{}
	m, err := New(store, 1, types.AutonomyObserve)
	require.NoError(t, err)

	d, err := m.CheckAction("Read", map[string]any{"file_path": "main.go"}, nil)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCheckActionWriteDeniedAtObserve(t *testing.T) {
	m, err := New(&fakeStore{}, 1, types.AutonomyObserve)
	require.NoError(t, err)

	d, err := m.CheckAction("Write", map[string]any{"file_path": "a.go"}, nil)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.True(t, d.RequiresApproval)
	assert.NotEmpty(t, d.Alternatives)
}

func TestLowConfidenceReducesEffectiveLevel(t *testing.T) {
	m, err := New(&fakeStore{}, 1, types.AutonomyFullAuto)
	require.NoError(t, err)

	low := 0.2
	eff := m.GetEffectiveLevel(&low)
	assert.Less(t, eff, types.AutonomyFullAuto)
}

func TestRecordOutcomeDemotesAfterConsecutiveErrors(t *testing.T) {
	m, err := New(&fakeStore{}, 1, types.AutonomyExecuteReview)
	require.NoError(t, err)

	var changed *types.AutonomyLevel
	for i := 0; i < 3; i++ {
		changed, err = m.RecordOutcome(false)
		require.NoError(t, err)
	}
	require.NotNil(t, changed)
	assert.Equal(t, types.AutonomyExecuteSafe, *changed)
}

func TestRecordOutcomePromotesAfterConsecutiveSuccesses(t *testing.T) {
	m, err := New(&fakeStore{}, 1, types.AutonomyExecuteSafe)
	require.NoError(t, err)

	var changed *types.AutonomyLevel
	for i := 0; i < 10; i++ {
		changed, err = m.RecordOutcome(true)
		require.NoError(t, err)
	}
	require.NotNil(t, changed)
	assert.Equal(t, types.AutonomyExecuteReview, *changed)
}

func TestSetLevelRecordsLevelChangeInMetrics(t *testing.T) {
	store := &fakeStore{}
	m, err := New(store, 1, types.AutonomyExecuteSafe)
	require.NoError(t, err)

	require.NoError(t, m.SetLevel(types.AutonomyFullAuto, "manual override"))
	assert.Equal(t, types.AutonomyFullAuto, m.CurrentLevel())
	require.Len(t, store.metrics.LevelChanges, 1)
	assert.Equal(t, "manual override", store.metrics.LevelChanges[0].Reason)
}
