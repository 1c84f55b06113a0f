// Package store implements the transactional storage primitives shared by
// the Registry DB and every per-project DB: connection bootstrap, nested
// transactions via SQLite savepoints, IMMEDIATE-mode transactions for
// cross-process write-lock acquisition, and a whitelisted batch-insert
// helper. Nothing above this package calls sql.Open itself: every
// *sql.DB that repositories write through is a Connection's DB, opened
// by Open.
package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/genglossary/genglossary/internal/apperr"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Connection wraps a *sql.DB opened against a single SQLite file, with
// the pragmas required by spec §4.1 applied at open time.
type Connection struct {
	DB   *sql.DB
	Path string
}

// Open opens (creating if necessary) the SQLite file at path and applies
// the busy_timeout and foreign_keys pragmas every connection in the pool
// must honor. The driver is the pure-Go, cgo-free ncruces/go-sqlite3
// driver so the module builds without a C toolchain.
func Open(ctx context.Context, path string) (*Connection, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	// The embedded engine is single-process-file but multi-connection;
	// cap the pool so busy_timeout (not pool starvation) is what callers
	// wait on, matching the "one writer at a time" model in spec §5.
	db.SetMaxOpenConns(8)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy_timeout on %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign_keys on %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s: %w", path, err)
	}

	return &Connection{DB: db, Path: path}, nil
}

// WithConnection opens path, runs fn, and closes the connection
// regardless of fn's outcome. Intended for short-lived API-handler reads
// that must never share a connection with a run worker (spec §5).
func WithConnection(ctx context.Context, path string, fn func(*Connection) error) error {
	conn, err := Open(ctx, path)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

func (c *Connection) Close() error {
	return c.DB.Close()
}

// querier is the subset of *sql.DB / *sql.Tx that repository functions
// need; it lets repositories run identically at top level or nested.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// Tx is the active transaction handle threaded through context. Callers
// obtain it via FromContext inside a Transaction/ImmediateTransaction
// callback; repositories never open their own transactions.
type Tx struct {
	q      Querier
	conn   *Connection
	nested bool
}

// Q returns the Querier to issue statements against: the active
// savepoint/transaction if one is open, or the bare connection otherwise.
func (t *Tx) Q() Querier { return t.q }

// FromContext retrieves the Tx installed by Transaction/ImmediateTransaction.
// Repository functions take this instead of a Connection so they compile
// to identical SQL whether running top-level or nested (spec §4.1).
func FromContext(ctx context.Context, conn *Connection) *Tx {
	if tx, ok := ctx.Value(txKey{}).(*Tx); ok {
		return tx
	}
	return &Tx{q: conn.DB, conn: conn}
}

// Transaction runs fn within a transaction boundary. If no transaction is
// already active on ctx, it behaves as a top-level BEGIN/COMMIT/ROLLBACK.
// If one is already active, it opens a uniquely-named SAVEPOINT nested
// inside it: normal return issues RELEASE, a returned error issues
// ROLLBACK TO followed by RELEASE, so inner failures unwind only the
// inner work while the outer transaction continues (spec §4.1, testable
// property #5).
func Transaction(ctx context.Context, conn *Connection, fn func(ctx context.Context) error) (err error) {
	if existing, ok := ctx.Value(txKey{}).(*Tx); ok && existing.conn == conn {
		return nestedSavepoint(ctx, existing, fn)
	}

	sqlTx, err := conn.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	nested := &Tx{q: sqlTx, conn: conn}
	ctx = context.WithValue(ctx, txKey{}, nested)

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err = fn(ctx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func nestedSavepoint(ctx context.Context, parent *Tx, fn func(ctx context.Context) error) (err error) {
	name, err := savepointName()
	if err != nil {
		return err
	}

	if _, err = parent.q.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("opening savepoint %s: %w", name, err)
	}

	child := &Tx{q: parent.q, conn: parent.conn, nested: true}
	childCtx := context.WithValue(ctx, txKey{}, child)

	defer func() {
		if p := recover(); p != nil {
			_, _ = parent.q.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name)
			_, _ = parent.q.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
			panic(p)
		}
	}()

	if err = fn(childCtx); err != nil {
		if _, rbErr := parent.q.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("%w (rollback to savepoint also failed: %v)", err, rbErr)
		}
		if _, relErr := parent.q.ExecContext(ctx, "RELEASE SAVEPOINT "+name); relErr != nil {
			return fmt.Errorf("%w (release after rollback also failed: %v)", err, relErr)
		}
		return err
	}

	if _, err = parent.q.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("releasing savepoint %s: %w", name, err)
	}
	return nil
}

// savepointName mints a random 8-character suffix so nested savepoints
// opened concurrently on independent connections never collide, per
// spec §9 "Savepoint names".
func savepointName() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating savepoint name: %w", err)
	}
	return "sp_" + hex.EncodeToString(buf), nil
}

// ImmediateTransaction acquires SQLite's write lock at BEGIN IMMEDIATE
// and runs fn. It does not nest — it is the primitive for cross-process
// check-then-act atomicity (the Run Manager start path uses it to check
// for an active run and insert a new one without a concurrent writer
// racing in between, spec §4.7).
func ImmediateTransaction(ctx context.Context, conn *Connection, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*Tx); ok {
		return apperr.New(apperr.KindInternal, "immediateTransaction does not support nesting")
	}

	if _, err = conn.DB.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("beginning immediate transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_, _ = conn.DB.ExecContext(ctx, "ROLLBACK")
		}
	}()

	tx := &Tx{q: conn.DB, conn: conn}
	txCtx := context.WithValue(ctx, txKey{}, tx)

	if err = fn(txCtx); err != nil {
		return err
	}
	if _, err = conn.DB.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("committing immediate transaction: %w", err)
	}
	committed = true
	return nil
}

// BatchInsert inserts rows into table(columns...) in a single multi-row
// INSERT. table and columns are validated against the caller-supplied
// whitelist before any SQL is built — this, not input sanitization, is
// the only barrier against SQL injection through the table name, so
// callers must never forward user input as table/columns (spec §4.1,
// §4.2 "generic operations validate their table argument").
func BatchInsert(ctx context.Context, q Querier, allowed map[string]bool, table string, columns []string, rows [][]any) error {
	if !allowed[table] {
		return apperr.New(apperr.KindInternal, fmt.Sprintf("batchInsert: table %q is not whitelisted", table))
	}
	if len(rows) == 0 {
		return nil
	}

	placeholderRow := "(" + placeholders(len(columns)) + ")"
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", table, joinColumns(columns))

	args := make([]any, 0, len(rows)*len(columns))
	rowSQLs := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) != len(columns) {
			return apperr.New(apperr.KindInternal, "batchInsert: row width does not match columns")
		}
		rowSQLs = append(rowSQLs, placeholderRow)
		args = append(args, row...)
	}

	full := query + joinStrings(rowSQLs, ", ")
	if _, err := q.ExecContext(ctx, full, args...); err != nil {
		return fmt.Errorf("batch insert into %s: %w", table, err)
	}
	return nil
}

func placeholders(n int) string {
	s := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			s = append(s, ',')
		}
		s = append(s, '?')
	}
	return string(s)
}

func joinColumns(columns []string) string {
	return joinStrings(columns, ", ")
}

func joinStrings(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}
