package budget

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"
)

// Reason names why the watchdog wants the session paused.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonStall          Reason = "no_progress"
	ReasonCyclic         Reason = "cyclic"
	ReasonBudgetExceeded Reason = "budget_exceeded"
)

// Watchdog bundles the three concurrent checks spec.md's Session
// Supervisor polls during RUN: stall, cyclic, and budget.
type Watchdog struct {
	budget        *Tracker
	stall         *StallWatcher
	cyclic        *CyclicDetector
	cyclicFlagged atomic.Bool
}

// New builds a Watchdog from its three component checks.
func New(budget *Tracker, stall *StallWatcher, cyclic *CyclicDetector) *Watchdog {
	return &Watchdog{budget: budget, stall: stall, cyclic: cyclic}
}

// RecordToolCall resets the stall clock. Call this whenever the
// Session Supervisor observes a TOOL_CALL event.
func (w *Watchdog) RecordToolCall(at time.Time) {
	w.stall.RecordToolCall(at)
}

// RecordError feeds one (feature, error message) pairing to the
// cyclic detector, hashing the message the way the Failure Analyzer
// groups repeated errors. Once the threshold is crossed, Poll reports
// ReasonCyclic until Reset clears it.
func (w *Watchdog) RecordError(featureIndex int, errorMessage string) bool {
	if w.cyclic == nil {
		return false
	}
	cyclic := w.cyclic.Observe(featureIndex, ErrorHash(errorMessage))
	if cyclic {
		w.cyclicFlagged.Store(true)
	}
	return cyclic
}

// Reset clears a cyclic flag raised by RecordError, used once the
// session has paused or the feature causing it has been marked blocked.
func (w *Watchdog) Reset() {
	w.cyclicFlagged.Store(false)
	if w.cyclic != nil {
		w.cyclic.Reset()
	}
}

// Poll runs all three checks and returns the first one that fires, in
// stall → cyclic → budget priority: a stalled run is the most urgent
// to interrupt since nothing is happening at all.
func (w *Watchdog) Poll(now time.Time, inputTokens, outputTokens int64) Reason {
	if w.stall != nil && w.stall.IsStalled(now) {
		return ReasonStall
	}
	if w.cyclicFlagged.Load() {
		return ReasonCyclic
	}
	if w.budget != nil {
		if status := w.budget.Check(inputTokens, outputTokens); status.Exceeded {
			return ReasonBudgetExceeded
		}
	}
	return ReasonNone
}

// ErrorHash collapses an error message to a short, stable key for
// cyclic-window comparisons. Only byte-identical messages share a hash;
// messages that differ in any substring (PIDs, timestamps) do not group.
func ErrorHash(message string) string {
	sum := sha256.Sum256([]byte(message))
	return hex.EncodeToString(sum[:8])
}
