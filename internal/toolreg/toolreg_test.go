package toolreg

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrlabs/arcadiaforge/internal/feature"
	"github.com/webrlabs/arcadiaforge/internal/types"
)

type fakeFeatureStore struct {
	features []types.Feature
	nextIdx  int
}

func (f *fakeFeatureStore) LoadFeatures() ([]types.Feature, error) { return f.features, nil }
func (f *fakeFeatureStore) SaveFeature(feat types.Feature) error {
	for i, existing := range f.features {
		if existing.Index == feat.Index {
			f.features[i] = feat
			return nil
		}
	}
	return nil
}
func (f *fakeFeatureStore) InsertFeature(feat types.Feature) (int, error) {
	idx := f.nextIdx
	f.nextIdx++
	return idx, nil
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("noop", "does nothing", nil, func(ctx context.Context, input map[string]any) (map[string]any, error) {
		return nil, nil
	}))

	assert.Panics(t, func() {
		r.Register("noop", "does nothing again", nil, func(ctx context.Context, input map[string]any) (map[string]any, error) {
			return nil, nil
		})
	})
}

func TestDispatchValidatesInputAgainstSchema(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("echo", "echoes input", []byte(`{
		"type": "object",
		"properties": {"message": {"type": "string"}},
		"required": ["message"]
	}`), func(ctx context.Context, input map[string]any) (map[string]any, error) {
		return map[string]any{"message": input["message"]}, nil
	}))

	_, err := r.Dispatch(context.Background(), "echo", map[string]any{})
	assert.Error(t, err)

	out, err := r.Dispatch(context.Background(), "echo", map[string]any{"message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out["message"])
}

func TestDispatchUnknownToolErrors(t *testing.T) {
	r := New()
	_, err := r.Dispatch(context.Background(), "does_not_exist", map[string]any{})
	assert.Error(t, err)
}

func TestCatalogIsSortedByName(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("zzz", "z", nil, func(ctx context.Context, input map[string]any) (map[string]any, error) { return nil, nil }))
	require.NoError(t, r.Register("aaa", "a", nil, func(ctx context.Context, input map[string]any) (map[string]any, error) { return nil, nil }))

	catalog := r.Catalog()
	require.Len(t, catalog, 2)
	assert.Equal(t, "aaa", catalog[0].Name)
	assert.Equal(t, "zzz", catalog[1].Name)
}

func TestFeatureToolsNextAndMarkRoundTrip(t *testing.T) {
	store := &fakeFeatureStore{
		nextIdx: 1,
		features: []types.Feature{
			{Index: 0, Category: types.CategoryFunctional, Description: "user can log in", Priority: 1},
		},
	}
	registry, err := feature.Load(store)
	require.NoError(t, err)

	ft := NewFeatureTools(registry, nil, t.TempDir(), nil)
	r := New()
	require.NoError(t, ft.RegisterAll(r))

	next, err := r.Dispatch(context.Background(), "feature_next", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, true, next["found"])
	assert.Equal(t, 0, next["index"])

	_, err = r.Dispatch(context.Background(), "feature_mark", map[string]any{"index": float64(0), "passing": true})
	assert.Error(t, err)

	marked, err := r.Dispatch(context.Background(), "feature_mark", map[string]any{"index": float64(0), "passing": true, "skip_verification": true})
	require.NoError(t, err)
	assert.Equal(t, true, marked["passes"])

	stats, err := r.Dispatch(context.Background(), "feature_stats", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats["passing"])
}

func TestFeatureMarkRequiresEvidenceUnlessFileOnDisk(t *testing.T) {
	store := &fakeFeatureStore{
		nextIdx: 1,
		features: []types.Feature{
			{Index: 5, Category: types.CategoryFunctional, Description: "user can log in", Priority: 1},
		},
	}
	registry, err := feature.Load(store)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "verification"), 0o755))

	ft := NewFeatureTools(registry, nil, dir, nil)
	r := New()
	require.NoError(t, ft.RegisterAll(r))

	_, err = r.Dispatch(context.Background(), "feature_mark", map[string]any{"index": float64(5), "passing": true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MissingEvidence")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "verification", "feature_5_login.png"), []byte("png"), 0o644))

	marked, err := r.Dispatch(context.Background(), "feature_mark", map[string]any{"index": float64(5), "passing": true})
	require.NoError(t, err)
	assert.Equal(t, true, marked["passes"])
}

func TestFileToolsWriteReadEditConfinedToRoot(t *testing.T) {
	dir := t.TempDir()
	ft := NewFileTools(dir)
	r := New()
	require.NoError(t, ft.RegisterAll(r))

	_, err := r.Dispatch(context.Background(), "file_write", map[string]any{"path": "notes/a.txt", "content": "hello world"})
	require.NoError(t, err)

	read, err := r.Dispatch(context.Background(), "file_read", map[string]any{"path": "notes/a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", read["content"])

	_, err = r.Dispatch(context.Background(), "file_edit", map[string]any{
		"path": "notes/a.txt", "old_text": "world", "new_text": "forge",
	})
	require.NoError(t, err)

	read, err = r.Dispatch(context.Background(), "file_read", map[string]any{"path": "notes/a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "hello forge", read["content"])
}

func TestFileToolsRejectsPathEscapingRoot(t *testing.T) {
	dir := t.TempDir()
	ft := NewFileTools(dir)
	r := New()
	require.NoError(t, ft.RegisterAll(r))

	_, err := r.Dispatch(context.Background(), "file_read", map[string]any{"path": "../../etc/passwd"})
	assert.Error(t, err)
}

func TestFileToolsGrepFindsMatchingLine(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644))

	ft := NewFileTools(dir)
	r := New()
	require.NoError(t, ft.RegisterAll(r))

	out, err := r.Dispatch(context.Background(), "file_grep", map[string]any{"query": "func main", "glob": "*.go"})
	require.NoError(t, err)
	matches, ok := out["matches"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, matches, 1)
	assert.Equal(t, 3, matches[0]["line"])
}

func TestShellExecReturnsExitCodeAndOutput(t *testing.T) {
	dir := t.TempDir()
	st := NewShellTools(dir, 0)
	r := New()
	require.NoError(t, st.RegisterAll(r))

	out, err := r.Dispatch(context.Background(), "shell_exec", map[string]any{"command": "echo hi"})
	require.NoError(t, err)
	assert.Equal(t, 0, out["exit_code"])
	assert.Contains(t, out["stdout"], "hi")
}

func TestBrowserToolsErrorWithoutDriver(t *testing.T) {
	bt := NewBrowserTools(nil)
	r := New()
	require.NoError(t, bt.RegisterAll(r))

	_, err := r.Dispatch(context.Background(), "browser_navigate", map[string]any{"url": "http://localhost"})
	assert.Error(t, err)
}
