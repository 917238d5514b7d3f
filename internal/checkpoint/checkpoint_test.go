package checkpoint

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

type fakeStore struct {
	seq         map[int64]int
	checkpoints map[int64]types.Checkpoint
	nextID      int64
	restored    map[int]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		seq:         map[int64]int{},
		checkpoints: map[int64]types.Checkpoint{},
		nextID:      1,
	}
}

func (f *fakeStore) NextCheckpointSequence(sessionID int64) (int, error) {
	f.seq[sessionID]++
	return f.seq[sessionID], nil
}

func (f *fakeStore) SaveCheckpoint(cp types.Checkpoint) (int64, error) {
	id := f.nextID
	f.nextID++
	f.checkpoints[id] = cp
	return id, nil
}

func (f *fakeStore) GetCheckpoint(id int64) (types.Checkpoint, bool, error) {
	cp, ok := f.checkpoints[id]
	return cp, ok, nil
}

func (f *fakeStore) ListCheckpoints(sessionID int64, trigger types.CheckpointTrigger, limit int) ([]types.Checkpoint, error) {
	var out []types.Checkpoint
	for _, cp := range f.checkpoints {
		if sessionID != 0 && cp.SessionID != sessionID {
			continue
		}
		if trigger != "" && cp.Trigger != trigger {
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}

func (f *fakeStore) FindCheckpoint(sessionID int64, trigger types.CheckpointTrigger, sequence int) (types.Checkpoint, bool, error) {
	for _, cp := range f.checkpoints {
		if cp.SessionID == sessionID && cp.Trigger == trigger && cp.Sequence == sequence {
			return cp, true, nil
		}
	}
	return types.Checkpoint{}, false, nil
}

func (f *fakeStore) RestoreFeatureStatus(status map[int]bool) error {
	f.restored = status
	return nil
}

type fakeFeatures struct {
	status  map[int]bool
	passing int
	total   int
}

func (f *fakeFeatures) StatusSnapshot() (map[int]bool, int, int) {
	return f.status, f.passing, f.total
}

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}
	run("init")
	run("-c", "user.name=test", "-c", "user.email=test@test.local", "commit", "--allow-empty", "-m", "initial")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0644))
	return dir
}

func TestCreateCommitsDirtyTreeAndSnapshotsFeatures(t *testing.T) {
	dir := initTestRepo(t)
	store := newFakeStore()
	features := &fakeFeatures{status: map[int]bool{1: true, 2: false}, passing: 1, total: 2}

	m := New(dir, store, features, "Arcadia Forge", "forge@arcadia.local")
	cp, err := m.Create(context.Background(), 1, types.TriggerFeatureComplete, nil, "")
	require.NoError(t, err)

	assert.NotEmpty(t, cp.VCSCommitHash)
	assert.Equal(t, map[int]bool{1: true, 2: false}, cp.FeatureStatusSnapshot)
	assert.Equal(t, 1, cp.Sequence)

	ok, err := m.VerifyCommit(cp.VCSCommitHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyCommitRejectsUnknownHash(t *testing.T) {
	dir := initTestRepo(t)
	m := New(dir, newFakeStore(), &fakeFeatures{}, "Arcadia Forge", "forge@arcadia.local")

	ok, err := m.VerifyCommit("0000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRollbackToRestoresFeatureStatusAndRecordsNewCheckpoint(t *testing.T) {
	dir := initTestRepo(t)
	store := newFakeStore()
	features := &fakeFeatures{status: map[int]bool{1: true}, passing: 1, total: 1}
	m := New(dir, store, features, "Arcadia Forge", "forge@arcadia.local")

	first, err := m.Create(context.Background(), 1, types.TriggerFeatureComplete, nil, "")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("more"), 0644))
	_, err = m.Create(context.Background(), 1, types.TriggerFeatureComplete, nil, "")
	require.NoError(t, err)

	result, err := m.RollbackTo(context.Background(), first.ID, 1)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.GitReset)
	assert.True(t, result.FeaturesRestored)
	assert.Equal(t, map[int]bool{1: true}, store.restored)

	_, err = os.Stat(filepath.Join(dir, "b.txt"))
	assert.True(t, os.IsNotExist(err))
}
