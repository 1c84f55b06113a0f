package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestConn(t *testing.T) *Connection {
	t.Helper()
	dir := t.TempDir()
	conn, err := Open(context.Background(), filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, BootstrapProject(context.Background(), conn))
	return conn
}

func insertTerm(ctx context.Context, q Querier, text string) error {
	_, err := q.ExecContext(ctx, "INSERT INTO terms_extracted (term_text) VALUES (?)", text)
	return err
}

func countTerms(t *testing.T, conn *Connection) []string {
	t.Helper()
	rows, err := conn.DB.QueryContext(context.Background(), "SELECT term_text FROM terms_extracted ORDER BY term_text")
	require.NoError(t, err)
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		require.NoError(t, rows.Scan(&s))
		out = append(out, s)
	}
	return out
}

// TestNestedTransactionPartialRollback is testable property #5 / scenario 5:
// an inner savepoint failure rolls back only the inner work.
func TestNestedTransactionPartialRollback(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()

	err := Transaction(ctx, conn, func(ctx context.Context) error {
		tx := FromContext(ctx, conn)
		if err := insertTerm(ctx, tx.Q(), "outer"); err != nil {
			return err
		}

		innerErr := Transaction(ctx, conn, func(ctx context.Context) error {
			inner := FromContext(ctx, conn)
			if err := insertTerm(ctx, inner.Q(), "inner"); err != nil {
				return err
			}
			return errors.New("boom")
		})
		if innerErr == nil {
			t.Fatal("expected inner transaction to fail")
		}

		tx = FromContext(ctx, conn)
		return insertTerm(ctx, tx.Q(), "after")
	})
	require.NoError(t, err)

	require.Equal(t, []string{"after", "outer"}, countTerms(t, conn))
}

func TestTopLevelRollbackOnError(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()

	err := Transaction(ctx, conn, func(ctx context.Context) error {
		tx := FromContext(ctx, conn)
		if err := insertTerm(ctx, tx.Q(), "doomed"); err != nil {
			return err
		}
		return errors.New("fail outer")
	})
	require.Error(t, err)
	require.Empty(t, countTerms(t, conn))
}

func TestImmediateTransactionDoesNotNest(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()

	err := ImmediateTransaction(ctx, conn, func(ctx context.Context) error {
		return ImmediateTransaction(ctx, conn, func(ctx context.Context) error {
			return nil
		})
	})
	require.Error(t, err)
}

func TestBatchInsertRejectsUnlistedTable(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()

	allowed := map[string]bool{"terms_extracted": true}
	err := BatchInsert(ctx, conn.DB, allowed, "sqlite_master", []string{"name"}, [][]any{{"x"}})
	require.Error(t, err)
}

func TestBatchInsertHappyPath(t *testing.T) {
	conn := openTestConn(t)
	ctx := context.Background()

	allowed := map[string]bool{"terms_extracted": true}
	err := BatchInsert(ctx, conn.DB, allowed, "terms_extracted", []string{"term_text"}, [][]any{
		{"alpha"}, {"beta"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "beta"}, countTerms(t, conn))
}
