package toolreg

import (
	"context"
	"fmt"
	"time"

	"github.com/webrlabs/arcadiaforge/internal/memory"
)

// MemoryTools exposes the three memory tiers to the LLM runtime: Hot
// for the running session's working state, Warm for recent session
// summaries, Cold for the keyword-searchable archive.
type MemoryTools struct {
	manager *memory.Manager
}

// NewMemoryTools wraps manager for tool dispatch.
func NewMemoryTools(manager *memory.Manager) *MemoryTools {
	return &MemoryTools{manager: manager}
}

// RegisterAll adds every memory tool to r.
func (mt *MemoryTools) RegisterAll(r *Registry) error {
	regs := []struct {
		name, desc string
		schema     string
		handler    Handler
	}{
		{"memory_hot_get", "Get the current session's hot memory: current task, recent actions, active errors.", `{
			"type": "object",
			"properties": {"session_id": {"type": "integer"}},
			"required": ["session_id"]
		}`, mt.hotGet},
		{"memory_warm_sessions", "Get summaries of recent sessions from warm memory.", `{
			"type": "object",
			"properties": {"count": {"type": "integer"}}
		}`, mt.warmSessions},
		{"memory_cold_search", "Search the cold knowledge archive for a keyword or phrase.", `{
			"type": "object",
			"properties": {"query": {"type": "string"}},
			"required": ["query"]
		}`, mt.coldSearch},
	}
	for _, reg := range regs {
		if err := r.Register(reg.name, reg.desc, []byte(reg.schema), reg.handler); err != nil {
			return fmt.Errorf("register %s: %w", reg.name, err)
		}
	}
	return nil
}

func (mt *MemoryTools) hotGet(ctx context.Context, input map[string]any) (map[string]any, error) {
	sessionID, err := requireInt(input, "session_id")
	if err != nil {
		return nil, err
	}
	hot, found, err := mt.manager.LoadHot(int64(sessionID))
	if err != nil {
		return nil, fmt.Errorf("load hot memory: %w", err)
	}
	if !found {
		return map[string]any{"found": false}, nil
	}
	return map[string]any{
		"found":          true,
		"session_id":     hot.SessionID,
		"started_at":     hot.StartedAt.Format(time.RFC3339),
		"current_task":   hot.CurrentTask,
		"focus_keywords": hot.FocusKeywords,
		"recent_files":   hot.RecentFiles,
		"recent_actions": len(hot.RecentActions),
		"active_errors":  len(hot.Errors),
	}, nil
}

func (mt *MemoryTools) warmSessions(ctx context.Context, input map[string]any) (map[string]any, error) {
	count, _ := argInt(input, "count")
	if count <= 0 {
		count = 5
	}
	if count > 20 {
		count = 20
	}

	summaries, err := mt.manager.RecentWarmSummaries()
	if err != nil {
		return nil, fmt.Errorf("load warm summaries: %w", err)
	}
	if len(summaries) > count {
		summaries = summaries[:count]
	}

	out := make([]map[string]any, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, map[string]any{
			"session_id":      s.SessionID,
			"status":          s.StatusString,
			"accomplished":    s.Accomplished,
			"tests_completed": s.TestsCompleted,
			"next_steps":      s.NextSteps,
			"issues_found":    s.IssuesFound,
			"issues_fixed":    s.IssuesFixed,
			"created_at":      s.CreatedAt.Format(time.RFC3339),
		})
	}
	return map[string]any{"sessions": out}, nil
}

func (mt *MemoryTools) coldSearch(ctx context.Context, input map[string]any) (map[string]any, error) {
	query, err := requireString(input, "query")
	if err != nil {
		return nil, err
	}
	results, err := mt.manager.SearchKnowledge(query)
	if err != nil {
		return nil, fmt.Errorf("search knowledge: %w", err)
	}
	out := make([]map[string]any, 0, len(results))
	for _, res := range results {
		out = append(out, map[string]any{
			"session_id":     res.Record.SessionID,
			"score":          res.Score,
			"distilled_text": res.Record.DistilledText,
			"keywords":       res.Record.Keywords,
		})
	}
	return map[string]any{"results": out}, nil
}
