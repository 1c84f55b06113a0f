package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	r, err := Open(context.Background(), filepath.Join(dir, "registry.db"), filepath.Join(dir, "projects"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	_, err := r.Create(ctx, "docs", "/docs", "anthropic", "claude-3-5-sonnet", "")
	require.NoError(t, err)

	_, err = r.Create(ctx, "docs", "/other-docs", "ollama", "llama3", "http://localhost:11434")
	require.Error(t, err)
}

func TestCloneResetsStatusAndLastRunAt(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	source, err := r.Create(ctx, "kernel-docs", "/docs", "anthropic", "claude-3-5-sonnet", "")
	require.NoError(t, err)
	require.NoError(t, r.Update(ctx, source.Name, source.DocRoot, source.LLMProvider, source.LLMModel, source.LLMBaseURL, "completed"))
	require.NoError(t, r.MarkRunAt(ctx, source.Name, time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)))

	clone, err := r.Clone(ctx, "kernel-docs", "kernel-docs-copy")
	require.NoError(t, err)

	require.Equal(t, "created", clone.Status)
	require.Nil(t, clone.LastRunAt)
	require.Equal(t, source.DocRoot, clone.DocRoot)
	require.Equal(t, source.LLMProvider, clone.LLMProvider)
	require.NotEqual(t, source.DBPath, clone.DBPath)
}

func TestDeleteRemovesOnlyRegistryRow(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	p, err := r.Create(ctx, "temp-project", "/docs", "ollama", "llama3", "")
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, "temp-project"))

	_, err = r.Get(ctx, "temp-project")
	require.Error(t, err)

	// The project directory/db file is untouched by Delete.
	require.DirExists(t, filepath.Dir(p.DBPath))
}
