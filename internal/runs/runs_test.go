package runs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/genglossary/genglossary/internal/store"
	"github.com/stretchr/testify/require"
)

func openTestConn(t *testing.T) *store.Connection {
	t.Helper()
	dir := t.TempDir()
	conn, err := store.Open(context.Background(), filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, store.BootstrapProject(context.Background(), conn))
	return conn
}

func TestMarkStartedOnlyFromPending(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()
	r := Repo{}

	run, err := r.Create(ctx, conn.DB, ScopeExtract, "watcher")
	require.NoError(t, err)

	n, err := r.MarkStarted(ctx, conn.DB, run.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// Already running: a second start attempt is a no-op, not an error.
	n, err = r.MarkStarted(ctx, conn.DB, run.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), n)
}

func TestCompleteIfNotCancelledRefusesAfterCancel(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()
	r := Repo{}

	run, err := r.Create(ctx, conn.DB, ScopeGenerate, "cli")
	require.NoError(t, err)
	_, err = r.MarkStarted(ctx, conn.DB, run.ID)
	require.NoError(t, err)

	n, err := r.Cancel(ctx, conn.DB, run.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// The worker's late completion must not override the cancellation.
	n, err = r.CompleteIfNotCancelled(ctx, conn.DB, run.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	got, err := r.Get(ctx, conn.DB, run.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)
}

func TestFailIfNotTerminalIgnoredWhenAlreadyCompleted(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()
	r := Repo{}

	run, err := r.Create(ctx, conn.DB, ScopeReview, "cli")
	require.NoError(t, err)
	_, err = r.MarkStarted(ctx, conn.DB, run.ID)
	require.NoError(t, err)
	n, err := r.CompleteIfNotCancelled(ctx, conn.DB, run.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = r.FailIfNotTerminal(ctx, conn.DB, run.ID, "stray error after completion")
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	got, err := r.Get(ctx, conn.DB, run.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Nil(t, got.ErrorMessage)
}

func TestUpdateStatusClearsErrorOnRequeue(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()
	r := Repo{}

	run, err := r.Create(ctx, conn.DB, ScopeExtract, "cli")
	require.NoError(t, err)
	_, err = r.MarkStarted(ctx, conn.DB, run.ID)
	require.NoError(t, err)
	errMsg := "transient LLM timeout"
	_, err = r.FailIfNotTerminal(ctx, conn.DB, run.ID, errMsg)
	require.NoError(t, err)

	_, err = r.UpdateStatus(ctx, conn.DB, run.ID, StatusPending, nil, nil)
	require.NoError(t, err)

	got, err := r.Get(ctx, conn.DB, run.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
	require.Nil(t, got.ErrorMessage)
}

func TestGetCurrentOrLatestPrefersActiveRun(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()
	r := Repo{}

	completed, err := r.Create(ctx, conn.DB, ScopeGenerate, "cli")
	require.NoError(t, err)
	_, err = r.MarkStarted(ctx, conn.DB, completed.ID)
	require.NoError(t, err)
	_, err = r.CompleteIfNotCancelled(ctx, conn.DB, completed.ID)
	require.NoError(t, err)

	active, err := r.Create(ctx, conn.DB, ScopeRefine, "watcher")
	require.NoError(t, err)

	current, err := r.GetCurrentOrLatest(ctx, conn.DB)
	require.NoError(t, err)
	require.Equal(t, active.ID, current.ID)
	require.Equal(t, StatusPending, current.Status)
}

func TestGetCurrentOrLatestFallsBackToMostRecentWhenNoneActive(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()
	r := Repo{}

	run, err := r.Create(ctx, conn.DB, ScopeGenerate, "cli")
	require.NoError(t, err)
	_, err = r.MarkStarted(ctx, conn.DB, run.ID)
	require.NoError(t, err)
	_, err = r.CompleteIfNotCancelled(ctx, conn.DB, run.ID)
	require.NoError(t, err)

	current, err := r.GetCurrentOrLatest(ctx, conn.DB)
	require.NoError(t, err)
	require.Equal(t, run.ID, current.ID)
	require.Equal(t, StatusCompleted, current.Status)
}

func TestPendingToCompletedIsForbidden(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()
	r := Repo{}

	run, err := r.Create(ctx, conn.DB, ScopeExtract, "cli")
	require.NoError(t, err)

	// completeIfNotCancelled requires status = running; a pending run must
	// be refused (spec §4.4 "pending → completed is forbidden").
	n, err := r.CompleteIfNotCancelled(ctx, conn.DB, run.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	got, err := r.Get(ctx, conn.DB, run.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, got.Status)
}
