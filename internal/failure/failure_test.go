package failure

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

type fakeEventSource struct {
	events []types.Event
}

func (f *fakeEventSource) Iter(sessionID int64) ([]types.Event, error) {
	return f.events, nil
}

type fakeStore struct {
	saved []types.FailureReport
}

func (f *fakeStore) SaveFailureReport(r types.FailureReport) (int64, error) {
	f.saved = append(f.saved, r)
	return int64(len(f.saved)), nil
}

func toolError(tool, msg string) types.Event {
	return types.Event{Type: types.EventToolError, Payload: map[string]any{"tool": tool, "error": msg}}
}

func TestAnalyzeSessionNoEventsIsOK(t *testing.T) {
	store := &fakeStore{}
	a := New(&fakeEventSource{}, store, nil)

	report, err := a.AnalyzeSession(1)
	require.NoError(t, err)
	assert.Equal(t, types.FailureOK, report.Category)
	assert.Equal(t, int64(1), report.ID)
}

func TestAnalyzeSessionDetectsCyclicError(t *testing.T) {
	events := []types.Event{
		toolError("shell_exec", "command not found: foo"),
		toolError("shell_exec", "command not found: foo"),
		toolError("shell_exec", "command not found: foo"),
	}
	a := New(&fakeEventSource{events: events}, &fakeStore{}, nil)

	report, err := a.AnalyzeSession(2)
	require.NoError(t, err)
	assert.Equal(t, types.FailureCyclicError, report.Category)
	assert.GreaterOrEqual(t, report.Confidence, 0.9)
}

func TestAnalyzeSessionDetectsBlockedCommands(t *testing.T) {
	events := []types.Event{
		{Type: types.EventToolBlocked, Payload: map[string]any{"tool": "shell_exec", "reason": "risky command"}},
	}
	a := New(&fakeEventSource{events: events}, &fakeStore{}, nil)

	report, err := a.AnalyzeSession(3)
	require.NoError(t, err)
	assert.Equal(t, types.FailureBlockedCommands, report.Category)
}

func TestAnalyzeSessionDetectsTimeout(t *testing.T) {
	events := []types.Event{
		toolError("server_wait", "dial tcp: i/o timeout"),
	}
	a := New(&fakeEventSource{events: events}, &fakeStore{}, nil)

	report, err := a.AnalyzeSession(4)
	require.NoError(t, err)
	assert.Equal(t, types.FailureTimeout, report.Category)
}

func TestAnalyzeSessionDetectsCrashFromSyntheticSessionEnd(t *testing.T) {
	events := []types.Event{
		{Type: types.EventSessionEnd, Payload: map[string]any{"type": "crash"}},
	}
	a := New(&fakeEventSource{events: events}, &fakeStore{}, nil)

	report, err := a.AnalyzeSession(5)
	require.NoError(t, err)
	assert.Equal(t, types.FailureCrash, report.Category)
}

func TestAnalyzeSessionFallsBackToOKWhenNothingFailed(t *testing.T) {
	events := []types.Event{
		{Type: types.EventToolResult, Payload: map[string]any{"tool": "file_read"}},
	}
	a := New(&fakeEventSource{events: events}, &fakeStore{}, nil)

	report, err := a.AnalyzeSession(6)
	require.NoError(t, err)
	assert.Equal(t, types.FailureOK, report.Category)
}

func TestAnalyzeSessionPopulatesSimilarPastFailures(t *testing.T) {
	events := []types.Event{
		toolError("shell_exec", "connection refused"),
		toolError("shell_exec", "connection refused"),
		toolError("shell_exec", "connection refused"),
	}
	searcher := func(query string) ([]SearchResult, error) {
		return []SearchResult{
			{Record: types.ColdRecord{SessionID: 99, ArchivedAt: time.Now()}, Score: 5},
			{Record: types.ColdRecord{SessionID: 98, ArchivedAt: time.Now()}, Score: 2},
		}, nil
	}
	a := New(&fakeEventSource{events: events}, &fakeStore{}, searcher)

	report, err := a.AnalyzeSession(7)
	require.NoError(t, err)
	require.Len(t, report.SimilarPastFailures, 2)
	assert.Equal(t, int64(99), report.SimilarPastFailures[0])
}
