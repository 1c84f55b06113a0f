package executor

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/genglossary/genglossary/internal/apperr"
	"github.com/genglossary/genglossary/internal/domain"
	"github.com/genglossary/genglossary/internal/repo"
	"github.com/genglossary/genglossary/internal/runs"
	"github.com/genglossary/genglossary/internal/store"
	"github.com/stretchr/testify/require"
)

// fakeLLM is a scripted Client used by executor tests so stage logic can
// be exercised without a network call.
type fakeLLM struct {
	structuredResponses []string
	calls               int
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return "", nil
}

func (f *fakeLLM) GenerateStructured(ctx context.Context, prompt string, schema map[string]any) (string, error) {
	if f.calls >= len(f.structuredResponses) {
		return "[]", nil
	}
	resp := f.structuredResponses[f.calls]
	f.calls++
	return resp, nil
}

func openTestConn(t *testing.T) *store.Connection {
	t.Helper()
	dir := t.TempDir()
	conn, err := store.Open(context.Background(), filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, store.BootstrapProject(context.Background(), conn))
	return conn
}

func TestRunRejectsUnknownScope(t *testing.T) {
	conn := openTestConn(t)
	ec := ExecutionContext{RunID: 1, Conn: conn, CancelSignal: make(chan struct{})}

	err := Run(context.Background(), ec, "bogus")
	require.Error(t, err)
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestRunHonorsCancelSignalBeforeAnyWrite(t *testing.T) {
	conn := openTestConn(t)
	cancel := make(chan struct{})
	close(cancel)
	ec := ExecutionContext{RunID: 1, Conn: conn, CancelSignal: cancel}

	err := Run(context.Background(), ec, runs.ScopeGenerate)
	require.ErrorIs(t, err, apperr.Cancelled)
}

func TestGenerateWritesProvisionalGlossary(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()

	termsRepo := repo.TermsExtracted{}
	_, err := termsRepo.Create(ctx, conn.DB, "mutex", nil)
	require.NoError(t, err)

	fake := &fakeLLM{structuredResponses: []string{`{"definition": "a mutual exclusion lock", "confidence": 0.9}`}}
	ec := ExecutionContext{RunID: 1, Conn: conn, LLM: fake, CancelSignal: make(chan struct{})}

	require.NoError(t, Generate(ctx, ec))

	glossary := repo.Glossary{}
	entries, err := glossary.List(ctx, conn.DB, "glossary_provisional")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "mutex", entries[0].TermName)
	require.Equal(t, "a mutual exclusion lock", entries[0].Definition)
}

func TestGenerateContinuesPastPerTermFailure(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()

	termsRepo := repo.TermsExtracted{}
	_, err := termsRepo.Create(ctx, conn.DB, "heap", nil)
	require.NoError(t, err)
	_, err = termsRepo.Create(ctx, conn.DB, "stack", nil)
	require.NoError(t, err)

	// "heap" gets a malformed response (parse failure, logged and
	// skipped); "stack" succeeds.
	fake := &fakeLLM{structuredResponses: []string{
		`not json`,
		`{"definition": "a LIFO structure", "confidence": 0.8}`,
	}}
	ec := ExecutionContext{RunID: 1, Conn: conn, LLM: fake, CancelSignal: make(chan struct{})}

	require.NoError(t, Generate(ctx, ec))

	glossary := repo.Glossary{}
	entries, err := glossary.List(ctx, conn.DB, "glossary_provisional")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "stack", entries[0].TermName)
}

func TestRefineCopiesProvisionalWhenNoIssues(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()

	glossary := repo.Glossary{}
	require.NoError(t, glossary.Insert(ctx, conn.DB, "glossary_provisional", domain.GlossaryEntry{
		TermName: "kernel", Definition: "the core of the OS", Confidence: 0.95,
	}))

	ec := ExecutionContext{RunID: 1, Conn: conn, LLM: &fakeLLM{}, CancelSignal: make(chan struct{})}
	require.NoError(t, Refine(ctx, ec))

	refined, err := glossary.List(ctx, conn.DB, "glossary_refined")
	require.NoError(t, err)
	require.Len(t, refined, 1)
	require.Equal(t, "kernel", refined[0].TermName)
	require.Equal(t, "the core of the OS", refined[0].Definition)
}

func TestFullScopeRunsGenerateReviewRefineNotExtract(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()

	termsRepo := repo.TermsExtracted{}
	_, err := termsRepo.Create(ctx, conn.DB, "scheduler", nil)
	require.NoError(t, err)

	fake := &fakeLLM{structuredResponses: []string{
		`{"definition": "decides which task runs next", "confidence": 0.85}`, // generate
		`[]`, // review: no issues
		// refine is skipped (no issues) — provisional copied verbatim
	}}
	ec := ExecutionContext{RunID: 1, Conn: conn, LLM: fake, CancelSignal: make(chan struct{})}

	require.NoError(t, Run(ctx, ec, runs.ScopeFull))

	glossary := repo.Glossary{}
	refined, err := glossary.List(ctx, conn.DB, "glossary_refined")
	require.NoError(t, err)
	require.Len(t, refined, 1)
	require.Equal(t, "scheduler", refined[0].TermName)

	// Extraction did not run: terms_extracted still has only the seeded row.
	all, err := termsRepo.List(ctx, conn.DB)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.True(t, strings.EqualFold(all[0].TermText, "scheduler"))
}
