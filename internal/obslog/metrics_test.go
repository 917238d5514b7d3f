package obslog

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordingIsObservable(t *testing.T) {
	m := NewMetrics()

	m.RecordSessionOutcome("success")
	m.RecordBudgetSpend(4.5, 10.0)
	m.RecordHookLatency("file_write", 0.02)
	m.RecordToolCall("file_write", "ok")
	m.SetAutonomyLevel(3)

	if got := testutil.ToFloat64(m.SessionOutcomesTotal.WithLabelValues("success")); got < 1 {
		t.Errorf("expected at least 1 recorded success outcome, got %v", got)
	}
	if got := testutil.ToFloat64(m.BudgetSpendUSD); got != 4.5 {
		t.Errorf("BudgetSpendUSD = %v, want 4.5", got)
	}
	if got := testutil.ToFloat64(m.BudgetCapUSD); got != 10.0 {
		t.Errorf("BudgetCapUSD = %v, want 10.0", got)
	}
	if got := testutil.ToFloat64(m.AutonomyLevel); got != 3 {
		t.Errorf("AutonomyLevel = %v, want 3", got)
	}
}

func TestMetricsNilReceiverIsANoOp(t *testing.T) {
	var m *Metrics

	m.RecordSessionOutcome("success")
	m.RecordBudgetSpend(1, 2)
	m.RecordHookLatency("x", 1)
	m.RecordToolCall("x", "ok")
	m.SetAutonomyLevel(1)
}

func TestNewMetricsReturnsTheSameSingletonOnRepeatedCalls(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()
	if a != b {
		t.Error("expected NewMetrics to return the same process-wide singleton")
	}
}

func TestHandlerServesPrometheusExpositionFormat(t *testing.T) {
	NewMetrics().RecordToolCall("file_write", "ok")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "forge_tool_calls_total") {
		t.Error("expected exposition body to contain forge_tool_calls_total")
	}
}
