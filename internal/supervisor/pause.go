package supervisor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/webrlabs/arcadiaforge/internal/types"
)

// savePausedSession writes the Paused Session snapshot atomically: write
// to a sibling temp file, then rename over the target, so a crash mid-
// write never leaves a half-written marker behind.
func savePausedSession(path string, paused types.PausedSession) error {
	data, err := json.MarshalIndent(paused, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal paused session: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write paused session: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename paused session into place: %w", err)
	}
	return nil
}

// loadPausedSession reads the Paused Session marker if present. A
// missing file is not an error, just "no paused session to resume".
func loadPausedSession(path string) (types.PausedSession, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return types.PausedSession{}, false, nil
	}
	if err != nil {
		return types.PausedSession{}, false, fmt.Errorf("read paused session: %w", err)
	}

	var paused types.PausedSession
	if err := json.Unmarshal(data, &paused); err != nil {
		return types.PausedSession{}, false, fmt.Errorf("decode paused session: %w", err)
	}
	return paused, true, nil
}

// clearPausedSession removes the marker once its resume has been
// consumed. Already-absent is not an error.
func clearPausedSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove paused session marker: %w", err)
	}
	return nil
}
