package toolreg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileTools implements the platform-agnostic file operations file_ops.py
// groups under one MCP server: read/write/edit/glob/grep, all confined
// to the project root regardless of host OS path conventions.
type FileTools struct {
	projectRoot string
}

// NewFileTools confines every file operation to projectRoot.
func NewFileTools(projectRoot string) *FileTools {
	return &FileTools{projectRoot: projectRoot}
}

// RegisterAll adds every file tool to r.
func (ft *FileTools) RegisterAll(r *Registry) error {
	regs := []struct {
		name, desc string
		schema     string
		handler    Handler
	}{
		{"file_read", "Read a text file's contents.", `{
			"type": "object",
			"properties": {"path": {"type": "string"}},
			"required": ["path"]
		}`, ft.read},
		{"file_write", "Write text to a file, creating parent directories as needed.", `{
			"type": "object",
			"properties": {
				"path": {"type": "string"},
				"content": {"type": "string"}
			},
			"required": ["path", "content"]
		}`, ft.write},
		{"file_edit", "Replace one exact occurrence of old_text with new_text in a file.", `{
			"type": "object",
			"properties": {
				"path": {"type": "string"},
				"old_text": {"type": "string"},
				"new_text": {"type": "string"},
				"replace_all": {"type": "boolean"}
			},
			"required": ["path", "old_text", "new_text"]
		}`, ft.edit},
		{"file_glob", "List files under the project matching a glob pattern.", `{
			"type": "object",
			"properties": {"pattern": {"type": "string"}},
			"required": ["pattern"]
		}`, ft.glob},
		{"file_grep", "Search files under the project for a substring, returning matching lines.", `{
			"type": "object",
			"properties": {
				"query": {"type": "string"},
				"glob": {"type": "string"}
			},
			"required": ["query"]
		}`, ft.grep},
	}
	for _, reg := range regs {
		if err := r.Register(reg.name, reg.desc, []byte(reg.schema), reg.handler); err != nil {
			return fmt.Errorf("register %s: %w", reg.name, err)
		}
	}
	return nil
}

func (ft *FileTools) read(ctx context.Context, input map[string]any) (map[string]any, error) {
	relPath, err := requireString(input, "path")
	if err != nil {
		return nil, err
	}
	absPath, err := resolveWithinRoot(ft.projectRoot, relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", relPath, err)
	}
	return map[string]any{"content": string(data)}, nil
}

func (ft *FileTools) write(ctx context.Context, input map[string]any) (map[string]any, error) {
	relPath, err := requireString(input, "path")
	if err != nil {
		return nil, err
	}
	content, ok := argString(input, "content")
	if !ok {
		return nil, fmt.Errorf("missing required field %q", "content")
	}
	absPath, err := resolveWithinRoot(ft.projectRoot, relPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("create parent directories: %w", err)
	}
	if err := os.WriteFile(absPath, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", relPath, err)
	}
	return map[string]any{"bytes_written": len(content)}, nil
}

func (ft *FileTools) edit(ctx context.Context, input map[string]any) (map[string]any, error) {
	relPath, err := requireString(input, "path")
	if err != nil {
		return nil, err
	}
	oldText, err := requireString(input, "old_text")
	if err != nil {
		return nil, err
	}
	newText, _ := argString(input, "new_text")
	replaceAll := argBool(input, "replace_all", false)

	absPath, err := resolveWithinRoot(ft.projectRoot, relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", relPath, err)
	}
	original := string(data)

	count := strings.Count(original, oldText)
	if count == 0 {
		return nil, fmt.Errorf("old_text not found in %s", relPath)
	}
	if !replaceAll && count > 1 {
		return nil, fmt.Errorf("old_text matches %d times in %s; pass replace_all or give a more specific match", count, relPath)
	}

	var updated string
	if replaceAll {
		updated = strings.ReplaceAll(original, oldText, newText)
	} else {
		updated = strings.Replace(original, oldText, newText, 1)
	}
	if err := os.WriteFile(absPath, []byte(updated), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", relPath, err)
	}
	return map[string]any{"replacements": count}, nil
}

func (ft *FileTools) glob(ctx context.Context, input map[string]any) (map[string]any, error) {
	pattern, err := requireString(input, "pattern")
	if err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(ft.projectRoot, pattern))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(matches)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(ft.projectRoot, m)
		if err != nil {
			continue
		}
		out = append(out, rel)
	}
	return map[string]any{"paths": out}, nil
}

func (ft *FileTools) grep(ctx context.Context, input map[string]any) (map[string]any, error) {
	query, err := requireString(input, "query")
	if err != nil {
		return nil, err
	}
	pattern, _ := argString(input, "glob")
	if pattern == "" {
		pattern = "*"
	}

	type match struct {
		Path string `json:"path"`
		Line int    `json:"line"`
		Text string `json:"text"`
	}
	var results []match

	err = filepath.WalkDir(ft.projectRoot, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		matched, err := filepath.Match(pattern, d.Name())
		if err != nil || !matched {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(ft.projectRoot, path)
		if err != nil {
			return nil
		}
		for i, line := range strings.Split(string(data), "\n") {
			if strings.Contains(line, query) {
				results = append(results, match{Path: rel, Line: i + 1, Text: line})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("grep %s: %w", query, err)
	}

	out := make([]map[string]any, 0, len(results))
	for _, m := range results {
		out = append(out, map[string]any{"path": m.Path, "line": m.Line, "text": m.Text})
	}
	return map[string]any{"matches": out}, nil
}
