package obslog

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestNewWritesJSONRecordsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forge.log")

	logger, closer, err := New(Options{
		Path:      path,
		MaxSizeMB: 1,
		Level:     slog.LevelInfo,
		Quiet:     true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer.Close()

	logger.Info("session started", "session_id", 7)
	logger.Debug("this should be filtered out by Level")

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log file: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (Debug should be filtered), got %d: %v", len(lines), lines)
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("record is not valid JSON: %v", err)
	}
	if record["msg"] != "session started" {
		t.Errorf("msg = %v, want %q", record["msg"], "session started")
	}
	if record["component"] != "forge" {
		t.Errorf("component = %v, want forge", record["component"])
	}
	if _, ok := record["session_id"]; !ok {
		t.Error("expected session_id attribute to be present")
	}
}

func TestTeeHandlerFansOutToBothHandlers(t *testing.T) {
	var fileRecords, stdoutRecords int

	tee := &teeHandler{
		file:   &countingHandler{count: &fileRecords},
		stdout: &countingHandler{count: &stdoutRecords},
	}

	logger := slog.New(tee)
	logger.Info("one")
	logger.Info("two")

	if fileRecords != 2 {
		t.Errorf("file handler got %d records, want 2", fileRecords)
	}
	if stdoutRecords != 2 {
		t.Errorf("stdout handler got %d records, want 2", stdoutRecords)
	}
}

func TestTeeHandlerWithAttrsPropagatesToBothHandlers(t *testing.T) {
	var fileAttrs, stdoutAttrs int

	tee := &teeHandler{
		file:   &countingHandler{count: &fileAttrs},
		stdout: &countingHandler{count: &stdoutAttrs},
	}

	next := tee.WithAttrs([]slog.Attr{slog.String("run_id", "abc")})
	nextTee, ok := next.(*teeHandler)
	if !ok {
		t.Fatal("WithAttrs should return a *teeHandler")
	}
	if nextTee.file == tee.file {
		t.Error("WithAttrs should not mutate the original file handler in place")
	}
	if nextTee.stdout == tee.stdout {
		t.Error("WithAttrs should not mutate the original stdout handler in place")
	}
}

// countingHandler is a minimal slog.Handler test double that counts
// Handle calls, standing in for the real file/stdout handlers so the
// fan-out behavior of teeHandler can be asserted without touching disk.
type countingHandler struct {
	count *int
}

func (h *countingHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *countingHandler) Handle(_ context.Context, _ slog.Record) error {
	*h.count++
	return nil
}

func (h *countingHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	n := *h.count
	return &countingHandler{count: &n}
}

func (h *countingHandler) WithGroup(_ string) slog.Handler {
	return h
}
