package supervisor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

func TestLoadPausedSessionMissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	_, ok, err := loadPausedSession(path)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSavePausedSessionRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "paused.json")
	paused := types.PausedSession{
		SessionID:        7,
		CurrentFeature:   3,
		LastCheckpointID: 42,
		ResumePrompt:     "continue feature 3",
		PauseReason:      "signal received",
		PausedAt:         time.Now().UTC().Truncate(time.Second),
	}

	require.NoError(t, savePausedSession(path, paused))

	loaded, ok, err := loadPausedSession(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, paused.SessionID, loaded.SessionID)
	assert.Equal(t, paused.CurrentFeature, loaded.CurrentFeature)
	assert.Equal(t, paused.ResumePrompt, loaded.ResumePrompt)
}

func TestClearPausedSessionRemovesMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paused.json")
	require.NoError(t, savePausedSession(path, types.PausedSession{SessionID: 1}))

	require.NoError(t, clearPausedSession(path))

	_, ok, err := loadPausedSession(path)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearPausedSessionMissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	assert.NoError(t, clearPausedSession(path))
}
