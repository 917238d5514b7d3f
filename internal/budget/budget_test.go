package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerCheckExceedsCap(t *testing.T) {
	rates := RateTable{InputPer1K: 0.003, OutputPer1K: 0.015}
	tr := NewTracker(rates, 1.00)

	status := tr.Check(100_000, 50_000)
	assert.InDelta(t, 0.3+0.75, status.SpentUSD, 0.0001)
	assert.True(t, status.Exceeded)
}

func TestTrackerCheckUnderCap(t *testing.T) {
	rates := RateTable{InputPer1K: 0.003, OutputPer1K: 0.015}
	tr := NewTracker(rates, 10.00)

	status := tr.Check(1000, 1000)
	assert.False(t, status.Exceeded)
}

func TestTrackerZeroCapDisablesEnforcement(t *testing.T) {
	rates := RateTable{InputPer1K: 0.003, OutputPer1K: 0.015}
	tr := NewTracker(rates, 0)

	status := tr.Check(1_000_000, 1_000_000)
	assert.False(t, status.Exceeded)
}

func TestStallWatcherDetectsStallAfterTimeout(t *testing.T) {
	w := NewStallWatcher(10 * time.Millisecond)
	start := time.Now()
	w.RecordToolCall(start)

	assert.False(t, w.IsStalled(start.Add(5*time.Millisecond)))
	assert.True(t, w.IsStalled(start.Add(20*time.Millisecond)))
}

func TestStallWatcherResetsOnToolCall(t *testing.T) {
	w := NewStallWatcher(10 * time.Millisecond)
	start := time.Now()
	w.RecordToolCall(start)
	w.RecordToolCall(start.Add(8 * time.Millisecond))

	assert.False(t, w.IsStalled(start.Add(15*time.Millisecond)))
}

func TestCyclicDetectorFlagsRepeatedPairWithinWindow(t *testing.T) {
	d := NewCyclicDetector(10, 3)

	assert.False(t, d.Observe(2, "err-a"))
	assert.False(t, d.Observe(2, "err-a"))
	assert.True(t, d.Observe(2, "err-a"))
}

func TestCyclicDetectorDoesNotConfuseDifferentFeatures(t *testing.T) {
	d := NewCyclicDetector(10, 3)

	assert.False(t, d.Observe(1, "err-a"))
	assert.False(t, d.Observe(2, "err-a"))
	assert.False(t, d.Observe(3, "err-a"))
}

func TestCyclicDetectorWindowEvictsOldObservations(t *testing.T) {
	d := NewCyclicDetector(3, 3)

	d.Observe(1, "err-a")
	d.Observe(1, "err-a")
	d.Observe(9, "err-b")
	d.Observe(9, "err-b")
	assert.True(t, d.Observe(9, "err-b"))
	assert.True(t, d.Observe(9, "err-b"))
}

func TestWatchdogPollPrioritizesStallOverBudget(t *testing.T) {
	tr := NewTracker(RateTable{InputPer1K: 100, OutputPer1K: 100}, 0.01)
	sw := NewStallWatcher(time.Millisecond)
	start := time.Now()
	sw.RecordToolCall(start)

	wd := New(tr, sw, NewCyclicDetector(10, 3))
	reason := wd.Poll(start.Add(10*time.Millisecond), 1000, 1000)
	assert.Equal(t, ReasonStall, reason)
}

func TestWatchdogPollReportsCyclicUntilReset(t *testing.T) {
	tr := NewTracker(RateTable{InputPer1K: 0.003, OutputPer1K: 0.015}, 10)
	sw := NewStallWatcher(time.Hour)
	sw.RecordToolCall(time.Now())

	wd := New(tr, sw, NewCyclicDetector(10, 2))
	wd.RecordError(4, "boom")
	assert.True(t, wd.RecordError(4, "boom"))

	assert.Equal(t, ReasonCyclic, wd.Poll(time.Now(), 10, 10))

	wd.Reset()
	assert.Equal(t, ReasonNone, wd.Poll(time.Now(), 10, 10))
}

func TestWatchdogPollReportsBudgetExceeded(t *testing.T) {
	tr := NewTracker(RateTable{InputPer1K: 0.003, OutputPer1K: 0.015}, 0.001)
	sw := NewStallWatcher(time.Hour)
	sw.RecordToolCall(time.Now())

	wd := New(tr, sw, NewCyclicDetector(10, 3))
	assert.Equal(t, ReasonBudgetExceeded, wd.Poll(time.Now(), 1000, 1000))
}
