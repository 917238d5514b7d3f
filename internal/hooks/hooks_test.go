package hooks

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrlabs/arcadiaforge/internal/autonomy"
	"github.com/webrlabs/arcadiaforge/internal/checkpoint"
	"github.com/webrlabs/arcadiaforge/internal/risk"
	"github.com/webrlabs/arcadiaforge/internal/security"
	"github.com/webrlabs/arcadiaforge/internal/types"
)

type fakeRiskStore struct{}

func (fakeRiskStore) LoadRiskPatterns() ([]types.RiskPattern, error) { return nil, nil }
func (fakeRiskStore) SaveRiskPattern(types.RiskPattern) error        { return nil }
func (fakeRiskStore) LogRiskAssessment(types.RiskAssessment) error   { return nil }

type fakeAutonomyStore struct {
	cfg     autonomy.Config
	metrics autonomy.Metrics
}

func (f *fakeAutonomyStore) LoadAutonomyConfig() (autonomy.Config, bool, error) { return f.cfg, false, nil }
func (f *fakeAutonomyStore) SaveAutonomyConfig(c autonomy.Config) error        { f.cfg = c; return nil }
func (f *fakeAutonomyStore) LoadAutonomyMetrics() (autonomy.Metrics, bool, error) {
	return f.metrics, false, nil
}
func (f *fakeAutonomyStore) SaveAutonomyMetrics(m autonomy.Metrics) error { f.metrics = m; return nil }
func (f *fakeAutonomyStore) LogAutonomyDecision(autonomy.Decision) error { return nil }

type fakeCheckpointStore struct {
	seq         map[int64]int
	checkpoints map[int64]types.Checkpoint
	nextID      int64
}

func newFakeCheckpointStore() *fakeCheckpointStore {
	return &fakeCheckpointStore{seq: map[int64]int{}, checkpoints: map[int64]types.Checkpoint{}, nextID: 1}
}
func (f *fakeCheckpointStore) NextCheckpointSequence(sessionID int64) (int, error) {
	f.seq[sessionID]++
	return f.seq[sessionID], nil
}
func (f *fakeCheckpointStore) SaveCheckpoint(cp types.Checkpoint) (int64, error) {
	id := f.nextID
	f.nextID++
	f.checkpoints[id] = cp
	return id, nil
}
func (f *fakeCheckpointStore) GetCheckpoint(id int64) (types.Checkpoint, bool, error) {
	cp, ok := f.checkpoints[id]
	return cp, ok, nil
}
func (f *fakeCheckpointStore) ListCheckpoints(sessionID int64, trigger types.CheckpointTrigger, limit int) ([]types.Checkpoint, error) {
	return nil, nil
}
func (f *fakeCheckpointStore) FindCheckpoint(sessionID int64, trigger types.CheckpointTrigger, sequence int) (types.Checkpoint, bool, error) {
	return types.Checkpoint{}, false, nil
}
func (f *fakeCheckpointStore) RestoreFeatureStatus(status map[int]bool) error { return nil }

type fakeFeatures struct{}

func (fakeFeatures) StatusSnapshot() (map[int]bool, int, int) { return map[int]bool{}, 0, 0 }

type fakeDispatcher struct {
	output map[string]any
	err    error
	calls  int
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, tool string, input map[string]any) (map[string]any, error) {
	f.calls++
	return f.output, f.err
}

type fakeObserver struct {
	events []types.Event
}

func (f *fakeObserver) Emit(e types.Event) { f.events = append(f.events, e) }

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
	return dir
}

func newTestPipeline(t *testing.T, level types.AutonomyLevel, dispatcher Dispatcher, observer Observer) *Pipeline {
	t.Helper()
	dir := initTestRepo(t)

	riskClassifier, err := risk.New(fakeRiskStore{}, 1)
	require.NoError(t, err)

	autonomyMgr, err := autonomy.New(&fakeAutonomyStore{}, 1, level)
	require.NoError(t, err)

	checkpointMgr := checkpoint.New(dir, newFakeCheckpointStore(), fakeFeatures{}, "Arcadia Forge", "forge@arcadia.local")

	return New(riskClassifier, autonomyMgr, checkpointMgr, dispatcher, observer, nil, security.CurrentPlatform())
}

func TestRunBlocksDisallowedShellCommand(t *testing.T) {
	dispatcher := &fakeDispatcher{output: map[string]any{}}
	observer := &fakeObserver{}
	p := newTestPipeline(t, types.AutonomyFullAuto, dispatcher, observer)

	result, err := p.Run(context.Background(), 1, "inv-1", "shell_exec", map[string]any{"command": "cd /tmp"}, nil, types.TokenUsage{})
	require.NoError(t, err)
	assert.True(t, result.Blocked)
	assert.Equal(t, 0, dispatcher.calls)
}

func TestRunDeniesWriteAtObserveLevel(t *testing.T) {
	dispatcher := &fakeDispatcher{output: map[string]any{}}
	observer := &fakeObserver{}
	p := newTestPipeline(t, types.AutonomyObserve, dispatcher, observer)

	result, err := p.Run(context.Background(), 1, "inv-1", "Write", map[string]any{"file_path": "a.go"}, nil, types.TokenUsage{})
	require.NoError(t, err)
	assert.True(t, result.Denied)
	assert.Equal(t, 0, dispatcher.calls)
}

func TestRunDispatchesAllowedActionAndEmitsToolCallAndResult(t *testing.T) {
	dispatcher := &fakeDispatcher{output: map[string]any{"ok": true}}
	observer := &fakeObserver{}
	p := newTestPipeline(t, types.AutonomyFullAuto, dispatcher, observer)

	result, err := p.Run(context.Background(), 1, "inv-1", "Read", map[string]any{"file_path": "main.go"}, nil, types.TokenUsage{})
	require.NoError(t, err)
	assert.False(t, result.Denied)
	assert.False(t, result.Blocked)
	assert.Equal(t, 1, dispatcher.calls)

	var sawCall, sawResult bool
	for _, e := range observer.events {
		if e.Type == types.EventToolCall {
			sawCall = true
		}
		if e.Type == types.EventToolResult {
			sawResult = true
		}
	}
	assert.True(t, sawCall)
	assert.True(t, sawResult)
}

func TestRunEmitsToolErrorOnDispatchFailure(t *testing.T) {
	dispatcher := &fakeDispatcher{err: errors.New("boom")}
	observer := &fakeObserver{}
	p := newTestPipeline(t, types.AutonomyFullAuto, dispatcher, observer)

	result, err := p.Run(context.Background(), 1, "inv-1", "Read", map[string]any{"file_path": "main.go"}, nil, types.TokenUsage{})
	require.NoError(t, err)
	assert.Error(t, result.Err)

	var sawError bool
	for _, e := range observer.events {
		if e.Type == types.EventToolError {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

func TestRunCreatesFeatureCompleteCheckpointOnSuccessfulMark(t *testing.T) {
	dispatcher := &fakeDispatcher{output: map[string]any{"passes": true}}
	observer := &fakeObserver{}
	p := newTestPipeline(t, types.AutonomyFullAuto, dispatcher, observer)

	result, err := p.Run(context.Background(), 1, "inv-1", "feature_mark", map[string]any{"index": 3}, nil, types.TokenUsage{})
	require.NoError(t, err)
	require.NotNil(t, result.Checkpoint)
	assert.Equal(t, types.TriggerFeatureComplete, result.Checkpoint.Trigger)
}

func TestRunCreatesBeforeRiskyOpCheckpointWhenRiskRequiresIt(t *testing.T) {
	dispatcher := &fakeDispatcher{output: map[string]any{}}
	observer := &fakeObserver{}
	p := newTestPipeline(t, types.AutonomyFullAuto, dispatcher, observer)

	result, err := p.Run(context.Background(), 1, "inv-1", "shell_exec", map[string]any{"command": "git push --force origin main"}, nil, types.TokenUsage{})
	require.NoError(t, err)
	require.NotNil(t, result.Checkpoint)
	assert.Equal(t, types.TriggerBeforeRiskyOp, result.Checkpoint.Trigger)
}
