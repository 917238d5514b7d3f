package main

import (
	"strings"
	"testing"
	"time"

	"github.com/webrlabs/arcadiaforge/internal/feature"
	"github.com/webrlabs/arcadiaforge/internal/types"
)

func TestRenderStatusReportWithSession(t *testing.T) {
	stats := feature.Stats{Total: 10, Passing: 7}
	session := types.Session{
		ID:        3,
		StartTime: time.Now(),
		Status:    types.SessionSuccess,
		Summary:   "fixed the widget",
	}

	out := renderStatusReport(stats, session, true)

	if !strings.Contains(out, "status") {
		t.Error("expected header to mention status")
	}
	if !strings.Contains(out, "#3") {
		t.Error("expected the session id to appear")
	}
	if !strings.Contains(out, "fixed the widget") {
		t.Error("expected the session summary to appear")
	}
}

func TestRenderStatusReportWithoutSession(t *testing.T) {
	stats := feature.Stats{Total: 0, Passing: 0}

	out := renderStatusReport(stats, types.Session{}, false)

	if !strings.Contains(out, "no sessions recorded yet") {
		t.Error("expected the no-sessions fallback line")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate should not touch strings under the limit, got %q", got)
	}
	if got := truncate("a very long context string", 10); got != "a very lon…" {
		t.Errorf("truncate(...) = %q, want %q", got, "a very lon…")
	}
}
