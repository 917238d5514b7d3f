// Package toolreg implements the Tool Registry (spec.md §4.12): the
// statically declared catalogue of named tools the Hook Pipeline
// dispatches into once a PRE-stage decision has cleared. Each tool
// carries a JSON input schema used to validate arguments before its
// handler ever runs.
package toolreg

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Handler executes one tool call against already-validated input and
// returns a JSON-shaped output.
type Handler func(ctx context.Context, input map[string]any) (map[string]any, error)

// Tool is one catalogue entry: a name, a human-readable description the
// LLM runtime surfaces to the model, a JSON Schema for its input, and
// the handler that serves it.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage

	schema  *jsonschema.Schema
	handler Handler
}

// Registry holds the compiled tool catalogue for one project. Tools are
// registered once at startup; Dispatch is safe for concurrent use
// thereafter since registration never happens after the Hook Pipeline
// starts sending calls.
type Registry struct {
	tools map[string]*Tool
}

// New returns an empty registry. Callers populate it with Register
// calls for each tool family before wiring it into the Hook Pipeline
// as a Dispatcher.
func New() *Registry {
	return &Registry{tools: map[string]*Tool{}}
}

// Register compiles schema and adds tool to the catalogue. A nil or
// empty schema means the tool takes no input beyond whatever keys the
// handler chooses to tolerate; an empty JSON object `{}` is treated the
// same way. Registering the same name twice is a programmer error and
// panics, since the catalogue is assembled once at startup.
func (r *Registry) Register(name, description string, schema json.RawMessage, handler Handler) error {
	if _, exists := r.tools[name]; exists {
		panic(fmt.Sprintf("toolreg: tool %q already registered", name))
	}
	t := &Tool{Name: name, Description: description, InputSchema: schema, handler: handler}

	if len(schema) > 0 && strings.TrimSpace(string(schema)) != "{}" {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(schema)))
		if err != nil {
			return fmt.Errorf("tool %s: unmarshal input schema: %w", name, err)
		}
		c := jsonschema.NewCompiler()
		resource := name + ".schema.json"
		if err := c.AddResource(resource, doc); err != nil {
			return fmt.Errorf("tool %s: add schema resource: %w", name, err)
		}
		compiled, err := c.Compile(resource)
		if err != nil {
			return fmt.Errorf("tool %s: compile input schema: %w", name, err)
		}
		t.schema = compiled
	}

	r.tools[name] = t
	return nil
}

// Catalog returns every registered tool, sorted by name, for exposing
// to the LLM runtime's tool-use declaration.
func (r *Registry) Catalog() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch implements hooks.Dispatcher: validate input against the
// tool's schema, then invoke its handler. Called only after the Hook
// Pipeline's PRE stages (security gate, risk classification, autonomy
// approval, checkpointing) have already cleared the call.
func (r *Registry) Dispatch(ctx context.Context, tool string, input map[string]any) (map[string]any, error) {
	t, ok := r.tools[tool]
	if !ok {
		return nil, fmt.Errorf("toolreg: unknown tool %q", tool)
	}
	if t.schema != nil {
		if err := t.schema.Validate(input); err != nil {
			return nil, fmt.Errorf("toolreg: %s: invalid input: %w", tool, err)
		}
	}
	return t.handler(ctx, input)
}
