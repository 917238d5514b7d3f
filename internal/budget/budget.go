// Package budget implements the Budget & Stall watchdog (spec.md
// §4.13): the per-run USD cap, the stall-timeout check, and the
// cyclic-error check the Session Supervisor polls concurrently with
// RUN.
package budget

import (
	"sync"
	"time"
)

// RateTable prices tokens the way BudgetConfig.from_env priced them:
// a flat per-1k-tokens rate for input and output, no volume tiers.
type RateTable struct {
	InputPer1K  float64
	OutputPer1K float64
}

// Cost returns the USD cost of inputTokens + outputTokens at this
// rate table.
func (rt RateTable) Cost(inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)/1000*rt.InputPer1K + float64(outputTokens)/1000*rt.OutputPer1K
}

// Status is the result of a budget check.
type Status struct {
	SpentUSD float64
	CapUSD   float64
	Exceeded bool
}

// Tracker enforces a per-run USD cap computed from cumulative token
// counts. It holds no state of its own beyond the rate table and cap;
// the caller supplies cumulative token counts each time it checks, so
// a Tracker can be shared across sessions without getting bound to one.
type Tracker struct {
	rates  RateTable
	capUSD float64
}

// NewTracker builds a Tracker from rates and a cap. A non-positive cap
// disables enforcement: Check never reports Exceeded.
func NewTracker(rates RateTable, capUSD float64) *Tracker {
	return &Tracker{rates: rates, capUSD: capUSD}
}

// Check prices cumulative inputTokens/outputTokens and reports whether
// the run has crossed the cap.
func (t *Tracker) Check(inputTokens, outputTokens int64) Status {
	spent := t.rates.Cost(inputTokens, outputTokens)
	return Status{
		SpentUSD: spent,
		CapUSD:   t.capUSD,
		Exceeded: t.capUSD > 0 && spent >= t.capUSD,
	}
}

// StallWatcher flags a run as stalled once timeout has elapsed since
// the last observed TOOL_CALL. Tool calls that legitimately block for
// a long time (browser automation, a slow build) are expected to set
// a generous timeout rather than call RecordToolCall more often.
type StallWatcher struct {
	mu      sync.Mutex
	last    time.Time
	timeout time.Duration
}

// NewStallWatcher starts the clock at creation time.
func NewStallWatcher(timeout time.Duration) *StallWatcher {
	return &StallWatcher{last: time.Now(), timeout: timeout}
}

// RecordToolCall resets the stall clock; call it whenever a TOOL_CALL
// event is observed.
func (w *StallWatcher) RecordToolCall(at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if at.After(w.last) {
		w.last = at
	}
}

// IsStalled reports whether timeout has elapsed since the last
// recorded tool call, as of now.
func (w *StallWatcher) IsStalled(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return now.Sub(w.last) >= w.timeout
}

// Since returns how long it has been since the last recorded tool call.
func (w *StallWatcher) Since(now time.Time) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return now.Sub(w.last)
}
