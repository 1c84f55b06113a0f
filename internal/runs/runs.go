// Package runs implements the Run Repository (spec §4.4): CRUD over the
// runs table plus the guarded status-transition functions that keep the
// pending → running → {completed, failed, cancelled} state machine honest
// even when two callers race to finalize the same run. The guard idiom
// generalizes the typed-error / affected-rows discipline in the teacher's
// internal/storage/sqlite/issues.go.
package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/genglossary/genglossary/internal/apperr"
	"github.com/genglossary/genglossary/internal/clock"
	"github.com/genglossary/genglossary/internal/store"
)

// Status enumerates runs.status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Scope enumerates runs.scope.
type Scope string

const (
	ScopeFull     Scope = "full"
	ScopeExtract  Scope = "extract"
	ScopeGenerate Scope = "generate"
	ScopeReview   Scope = "review"
	ScopeRefine   Scope = "refine"
)

// Run is one row of the runs table.
type Run struct {
	ID              int64
	Scope           Scope
	Status          Status
	StartedAt       *string
	FinishedAt      *string
	TriggeredBy     string
	ErrorMessage    *string
	ProgressCurrent int
	ProgressTotal   int
	CurrentStep     string
	CreatedAt       string
}

// Repo is the repository for the runs table.
type Repo struct{}

// Create inserts a new run in status pending. The Run Manager is
// responsible for wrapping this in an ImmediateTransaction alongside the
// single-active-run check (spec §4.7).
func (Repo) Create(ctx context.Context, q store.Querier, scope Scope, triggeredBy string) (*Run, error) {
	now := clock.MustFormat(clock.NowUTC())
	res, err := q.ExecContext(ctx, `
		INSERT INTO runs (scope, status, triggered_by, created_at)
		VALUES (?, 'pending', ?, ?)`, string(scope), triggeredBy, now)
	if err != nil {
		return nil, fmt.Errorf("inserting run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading inserted run id: %w", err)
	}
	return &Run{ID: id, Scope: scope, Status: StatusPending, TriggeredBy: triggeredBy, CreatedAt: now}, nil
}

func (Repo) Get(ctx context.Context, q store.Querier, id int64) (*Run, error) {
	row := q.QueryRowContext(ctx, runSelect+` WHERE id = ?`, id)
	return scanRun(row)
}

func (Repo) List(ctx context.Context, q store.Querier) ([]*Run, error) {
	rows, err := q.QueryContext(ctx, runSelect+` ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		run, err := scanRunRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// GetCurrentOrLatest returns the active run if one exists, else the most
// recent row regardless of status (spec §4.4) — the "current status"
// endpoint must still show the last completion after finish.
func (Repo) GetCurrentOrLatest(ctx context.Context, q store.Querier) (*Run, error) {
	row := q.QueryRowContext(ctx, runSelect+`
		WHERE status IN ('pending', 'running')
		ORDER BY id DESC LIMIT 1`)
	run, err := scanRun(row)
	if err == nil {
		return run, nil
	}
	if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}

	row = q.QueryRowContext(ctx, runSelect+` ORDER BY id DESC LIMIT 1`)
	return scanRun(row)
}

// UpdateStatus is the unrestricted setter: any pre-state to any target
// status, finished_at set only if the caller supplies it, error_message
// cleared when transitioning to a non-terminal state so a requeue never
// carries a stale error (spec §4.4).
func (Repo) UpdateStatus(ctx context.Context, q store.Querier, id int64, status Status, finishedAt *string, errMsg *string) (int64, error) {
	clearError := !status.terminal()
	query := `UPDATE runs SET status = ?`
	args := []any{string(status)}
	if finishedAt != nil {
		query += `, finished_at = ?`
		args = append(args, *finishedAt)
	}
	if clearError {
		query += `, error_message = NULL`
	} else if errMsg != nil {
		query += `, error_message = ?`
		args = append(args, *errMsg)
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("updating run %d status: %w", id, err)
	}
	return res.RowsAffected()
}

// UpdateIfActive transitions id to a terminal status only if it is
// currently pending or running, stamping finished_at to now-UTC if the
// caller didn't supply one. Returns rows affected: 1 on success, 0 if the
// run was already terminal or absent (spec §4.4).
func (Repo) UpdateIfActive(ctx context.Context, q store.Querier, id int64, status Status, finishedAt *string, errMsg *string) (int64, error) {
	if !status.terminal() {
		return 0, apperr.New(apperr.KindInternal, "updateIfActive requires a terminal target status")
	}
	stamp := finishedAt
	if stamp == nil {
		now := clock.MustFormat(clock.NowUTC())
		stamp = &now
	}
	res, err := q.ExecContext(ctx, `
		UPDATE runs SET status = ?, finished_at = ?, error_message = ?
		WHERE id = ? AND status IN ('pending', 'running')`,
		string(status), *stamp, errMsg, id)
	if err != nil {
		return 0, fmt.Errorf("updating run %d (if active): %w", id, err)
	}
	return res.RowsAffected()
}

// UpdateIfRunning transitions id to a terminal status only if it is
// currently running (spec §4.4).
func (Repo) UpdateIfRunning(ctx context.Context, q store.Querier, id int64, status Status, finishedAt *string, errMsg *string) (int64, error) {
	if !status.terminal() {
		return 0, apperr.New(apperr.KindInternal, "updateIfRunning requires a terminal target status")
	}
	stamp := finishedAt
	if stamp == nil {
		now := clock.MustFormat(clock.NowUTC())
		stamp = &now
	}
	res, err := q.ExecContext(ctx, `
		UPDATE runs SET status = ?, finished_at = ?, error_message = ?
		WHERE id = ? AND status = 'running'`,
		string(status), *stamp, errMsg, id)
	if err != nil {
		return 0, fmt.Errorf("updating run %d (if running): %w", id, err)
	}
	return res.RowsAffected()
}

// Cancel is the thin wrapper over UpdateIfActive → cancelled (spec §4.4).
func (r Repo) Cancel(ctx context.Context, q store.Querier, id int64) (int64, error) {
	return r.UpdateIfActive(ctx, q, id, StatusCancelled, nil, nil)
}

// CompleteIfNotCancelled transitions running → completed, refusing if the
// run has already been cancelled out from under the worker (spec §4.4,
// §4.7.1 finalizer rule 3).
func (r Repo) CompleteIfNotCancelled(ctx context.Context, q store.Querier, id int64) (int64, error) {
	return r.UpdateIfRunning(ctx, q, id, StatusCompleted, nil, nil)
}

// FailIfNotTerminal transitions pending/running → failed, used by the
// finalizer when a stage raises an unexpected error (spec §4.4, §4.7.1
// finalizer rule 2).
func (r Repo) FailIfNotTerminal(ctx context.Context, q store.Querier, id int64, errMsg string) (int64, error) {
	return r.UpdateIfActive(ctx, q, id, StatusFailed, nil, &errMsg)
}

// SetProgress updates the progress/current-step fields without touching
// status. The executor does not call it: stage progress is published as
// Log Bus events and the progress columns keep their defaults.
func (Repo) SetProgress(ctx context.Context, q store.Querier, id int64, current, total int, step string) error {
	if _, err := q.ExecContext(ctx, `
		UPDATE runs SET progress_current = ?, progress_total = ?, current_step = ? WHERE id = ?`,
		current, total, step, id); err != nil {
		return fmt.Errorf("updating run %d progress: %w", id, err)
	}
	return nil
}

// MarkStarted transitions pending → running and stamps started_at.
// Unlike the guarded terminal transitions, this has exactly one legal
// pre-state; callers that race here get 0 rows affected rather than a
// double start.
func (Repo) MarkStarted(ctx context.Context, q store.Querier, id int64) (int64, error) {
	now := clock.MustFormat(clock.NowUTC())
	res, err := q.ExecContext(ctx, `
		UPDATE runs SET status = 'running', started_at = ? WHERE id = ? AND status = 'pending'`, now, id)
	if err != nil {
		return 0, fmt.Errorf("starting run %d: %w", id, err)
	}
	return res.RowsAffected()
}

const runSelect = `SELECT id, scope, status, started_at, finished_at, triggered_by, error_message, progress_current, progress_total, current_step, created_at FROM runs`

func scanRun(row *sql.Row) (*Run, error) {
	run := &Run{}
	var scope, status string
	if err := row.Scan(&run.ID, &scope, &status, &run.StartedAt, &run.FinishedAt, &run.TriggeredBy, &run.ErrorMessage, &run.ProgressCurrent, &run.ProgressTotal, &run.CurrentStep, &run.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("run not found")
		}
		return nil, fmt.Errorf("reading run: %w", err)
	}
	run.Scope, run.Status = Scope(scope), Status(status)
	return run, nil
}

func scanRunRows(rows *sql.Rows) (*Run, error) {
	run := &Run{}
	var scope, status string
	if err := rows.Scan(&run.ID, &scope, &status, &run.StartedAt, &run.FinishedAt, &run.TriggeredBy, &run.ErrorMessage, &run.ProgressCurrent, &run.ProgressTotal, &run.CurrentStep, &run.CreatedAt); err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	run.Scope, run.Status = Scope(scope), Status(status)
	return run, nil
}
