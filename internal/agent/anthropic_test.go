package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestNewAnthropicRuntime_RequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := NewAnthropicRuntime("", "")
	if err == nil {
		t.Fatal("expected error when API key is missing")
	}
	if !errors.Is(err, ErrAPIKeyRequired) {
		t.Fatalf("expected ErrAPIKeyRequired, got %v", err)
	}
}

func TestNewAnthropicRuntime_EnvVarOverridesExplicitKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key-from-env")

	rt, err := NewAnthropicRuntime("test-key-explicit", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rt == nil {
		t.Fatal("expected non-nil runtime")
	}
	if rt.model != defaultModel {
		t.Errorf("expected default model, got %v", rt.model)
	}
}

func TestNewAnthropicRuntime_ExplicitModel(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	rt, err := NewAnthropicRuntime("", "claude-opus-4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(rt.model) != "claude-opus-4" {
		t.Errorf("expected explicit model to be kept, got %v", rt.model)
	}
}

func TestBuildToolsEmptyCatalogReturnsNil(t *testing.T) {
	tools, err := buildTools(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tools != nil {
		t.Errorf("expected nil tools for empty catalog, got %v", tools)
	}
}

func TestBuildToolsDecodesInputSchema(t *testing.T) {
	schema := json.RawMessage(`{"properties":{"path":{"type":"string"}},"required":["path"]}`)
	tools, err := buildTools([]ToolSpec{
		{Name: "read_file", Description: "reads a file", InputSchema: schema},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	tool := tools[0].OfTool
	if tool == nil {
		t.Fatal("expected OfTool to be set")
	}
	if tool.Name != "read_file" {
		t.Errorf("unexpected tool name: %v", tool.Name)
	}
	if _, ok := tool.InputSchema.Properties["path"]; !ok {
		t.Error("expected path property to be present")
	}
	if len(tool.InputSchema.Required) != 1 || tool.InputSchema.Required[0] != "path" {
		t.Errorf("unexpected required fields: %v", tool.InputSchema.Required)
	}
}

func TestBuildToolsRejectsMalformedSchema(t *testing.T) {
	_, err := buildTools([]ToolSpec{
		{Name: "broken", InputSchema: json.RawMessage(`not-json`)},
	})
	if err == nil {
		t.Fatal("expected error for malformed input schema")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"context canceled", context.Canceled, false},
		{"context deadline exceeded", context.DeadlineExceeded, false},
		{"generic error", errors.New("some error"), false},
		{"timeout error", timeoutErr{}, true},
		{"anthropic 429", &anthropic.Error{StatusCode: 429}, true},
		{"anthropic 500", &anthropic.Error{StatusCode: 500}, true},
		{"anthropic 400", &anthropic.Error{StatusCode: 400}, false},
		{"wrapped timeout", fmt.Errorf("wrap: %w", timeoutErr{}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isRetryable(tt.err)
			if got != tt.expected {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}
