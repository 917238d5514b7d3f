package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultModel   = "claude-sonnet-4-5-20250929"
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxTurns       = 50
)

// ErrAPIKeyRequired is returned when an API key is needed but not provided.
var ErrAPIKeyRequired = errors.New("API key required")

// AnthropicRuntime drives the tool-use loop against the Anthropic
// Messages API: send the conversation so far, execute whatever tools
// the model asked for, feed the results back, and repeat until the
// model stops asking.
type AnthropicRuntime struct {
	client         anthropic.Client
	model          anthropic.Model
	maxTokens      int64
	maxRetries     int
	initialBackoff time.Duration
}

// NewAnthropicRuntime creates a runtime bound to model. Env var
// ANTHROPIC_API_KEY takes precedence over an explicit apiKey, same
// precedence as every other Anthropic-backed client in this tree.
func NewAnthropicRuntime(apiKey, model string) (*AnthropicRuntime, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY environment variable or provide via config", ErrAPIKeyRequired)
	}
	if model == "" {
		model = defaultModel
	}

	return &AnthropicRuntime{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          anthropic.Model(model),
		maxTokens:      4096,
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
	}, nil
}

// Run implements Runtime.
func (r *AnthropicRuntime) Run(ctx context.Context, systemPrompt string, catalog []ToolSpec, userPrompt string, executor ToolExecutor, callbacks Callbacks) (Result, error) {
	tools, err := buildTools(catalog)
	if err != nil {
		return Result{}, fmt.Errorf("build tool catalog: %w", err)
	}

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
	}

	var result Result

	for turn := 0; turn < maxTurns; turn++ {
		params := anthropic.MessageNewParams{
			Model:     r.model,
			MaxTokens: r.maxTokens,
			Messages:  messages,
			Tools:     tools,
		}
		if systemPrompt != "" {
			params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
		}

		message, err := r.callWithRetry(ctx, params)
		if err != nil {
			return result, err
		}

		turnUsage := Usage{InputTokens: message.Usage.InputTokens, OutputTokens: message.Usage.OutputTokens}
		result.Usage.InputTokens += turnUsage.InputTokens
		result.Usage.OutputTokens += turnUsage.OutputTokens
		if callbacks.OnUsage != nil {
			callbacks.OnUsage(turnUsage)
		}
		messages = append(messages, message.ToParam())

		var toolResultBlocks []anthropic.ContentBlockParamUnion
		for _, block := range message.Content {
			switch block.Type {
			case "text":
				result.FinalText = block.Text
				if callbacks.OnMessage != nil {
					callbacks.OnMessage(block.Text)
				}
			case "tool_use":
				var input map[string]any
				if err := json.Unmarshal(block.Input, &input); err != nil {
					input = map[string]any{}
				}
				call := ToolCall{ID: block.ID, Name: block.Name, Input: input}
				if callbacks.OnToolCall != nil {
					callbacks.OnToolCall(call)
				}
				result.ToolCallCount++
				toolResult := executor(ctx, call)
				toolResultBlocks = append(toolResultBlocks, anthropic.NewToolResultBlock(toolResult.ToolCallID, toolResult.Content, toolResult.IsError))
			}
		}

		if len(toolResultBlocks) == 0 {
			break
		}
		messages = append(messages, anthropic.NewUserMessage(toolResultBlocks...))
	}

	return result, nil
}

func buildTools(catalog []ToolSpec) ([]anthropic.ToolUnionParam, error) {
	if len(catalog) == 0 {
		return nil, nil
	}
	tools := make([]anthropic.ToolUnionParam, 0, len(catalog))
	for _, spec := range catalog {
		schema := anthropic.ToolInputSchemaParam{}
		if len(spec.InputSchema) > 0 {
			var decoded struct {
				Properties map[string]any `json:"properties"`
				Required   []string       `json:"required"`
			}
			if err := json.Unmarshal(spec.InputSchema, &decoded); err != nil {
				return nil, fmt.Errorf("tool %s: decode input schema: %w", spec.Name, err)
			}
			schema.Properties = decoded.Properties
			schema.Required = decoded.Required
		}
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        spec.Name,
				Description: anthropic.String(spec.Description),
				InputSchema: schema,
			},
		})
	}
	return tools, nil
}

func (r *AnthropicRuntime) callWithRetry(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := r.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		message, err := r.client.Messages.New(ctx, params)
		if err == nil {
			return message, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryable(err) {
			return nil, fmt.Errorf("non-retryable error: %w", err)
		}
	}
	return nil, fmt.Errorf("failed after %d retries: %w", r.maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		statusCode := apiErr.StatusCode
		return statusCode == 429 || statusCode >= 500
	}

	return false
}
