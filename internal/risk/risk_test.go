package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

type fakeStore struct {
	patterns []types.RiskPattern
	logged   []types.RiskAssessment
	saved    []types.RiskPattern
}

func (f *fakeStore) LoadRiskPatterns() ([]types.RiskPattern, error) { return f.patterns, nil }
func (f *fakeStore) SaveRiskPattern(p types.RiskPattern) error {
	f.saved = append(f.saved, p)
	return nil
}
func (f *fakeStore) LogRiskAssessment(a types.RiskAssessment) error {
	f.logged = append(f.logged, a)
	return nil
}

func TestAssessGitForcePushIsCritical(t *testing.T) {
	store := &fakeStore{}
	c, err := New(store, 1)
	require.NoError(t, err)

	a, err := c.Assess("Bash", map[string]any{"command": "git push --force origin main"})
	require.NoError(t, err)

	assert.Equal(t, types.RiskCritical, a.RiskLevel)
	assert.True(t, a.RequiresApproval)
	assert.False(t, a.IsReversible)
	assert.Len(t, store.logged, 1)
}

func TestAssessPlainReadIsMinimal(t *testing.T) {
	c, err := New(&fakeStore{}, 1)
	require.NoError(t, err)

	a, err := c.Assess("Read", map[string]any{"file_path": "main.go"})
	require.NoError(t, err)

	assert.Equal(t, types.RiskMinimal, a.RiskLevel)
	assert.True(t, a.IsReversible)
	assert.False(t, a.RequiresApproval)
}

func TestAssessUnknownToolDefaultsModerate(t *testing.T) {
	c, err := New(&fakeStore{}, 1)
	require.NoError(t, err)

	a, err := c.Assess("mystery_tool", map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, types.RiskModerate, a.RiskLevel)
}

func TestAssessCombinesMultiplePatternsTakingHighestLevel(t *testing.T) {
	c, err := New(&fakeStore{}, 1)
	require.NoError(t, err)

	a, err := c.Assess("Bash", map[string]any{"command": "rm -rf build/ && npm install"})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, a.RiskLevel, types.RiskHigh)
	assert.True(t, a.RequiresCheckpoint)
}

func TestAddPatternPersistsAndIsUsed(t *testing.T) {
	store := &fakeStore{}
	c, err := New(store, 1)
	require.NoError(t, err)

	require.NoError(t, c.AddPattern(types.RiskPattern{
		PatternID:    "custom_dangerous_tool",
		Description:  "custom dangerous tool",
		Tool:         "danger_tool",
		RiskLevel:    types.RiskCritical,
		IsReversible: false,
		Enabled:      true,
	}))

	a, err := c.Assess("danger_tool", nil)
	require.NoError(t, err)
	assert.Equal(t, types.RiskCritical, a.RiskLevel)
	assert.Len(t, store.saved, 1)
}

func TestStatsSnapshotTracksCounts(t *testing.T) {
	c, err := New(&fakeStore{}, 1)
	require.NoError(t, err)

	_, err = c.Assess("Read", map[string]any{"file_path": "a.go"})
	require.NoError(t, err)
	_, err = c.Assess("Bash", map[string]any{"command": "git push --force"})
	require.NoError(t, err)

	stats := c.StatsSnapshot()
	assert.Equal(t, 2, stats.TotalAssessments)
	assert.Equal(t, 1, stats.ApprovalsRequired)
}
