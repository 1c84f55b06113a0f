// Package registry implements the project registry (spec §4.3): the
// single Registry DB that tracks every project's name, doc root, db_path,
// and LLM configuration. Unlike the teacher's JSON-file registry
// (internal/daemon/registry.go), ours is a row in a SQLite table — but we
// keep the teacher's discipline of guarding directory creation against
// concurrent CLI invocations with a cross-process file lock rather than
// trusting SQLite alone to serialize the "does this project dir already
// exist" check.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/genglossary/genglossary/internal/apperr"
	"github.com/genglossary/genglossary/internal/clock"
	"github.com/genglossary/genglossary/internal/store"
	"github.com/gofrs/flock"
)

// Project is one row of the Registry DB's projects table.
type Project struct {
	ID          int64
	Name        string
	DocRoot     string
	DBPath      string
	LLMProvider string
	LLMModel    string
	LLMBaseURL  string
	Status      string
	CreatedAt   string
	UpdatedAt   string
	LastRunAt   *string
}

// Registry is the repository for the projects table plus the directory
// bookkeeping (lock file, per-project directory creation) that needs to
// happen alongside it.
type Registry struct {
	conn     *store.Connection
	baseDir  string // parent directory holding every project's db_path
	lockPath string
}

// Open bootstraps the Registry DB at dbPath and prepares the directory
// lock used by Create/Clone/Delete. baseDir is where new project
// directories are created (one per project, named after the project).
func Open(ctx context.Context, dbPath, baseDir string) (*Registry, error) {
	conn, err := store.Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.BootstrapRegistry(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating registry base dir %s: %w", baseDir, err)
	}
	return &Registry{
		conn:     conn,
		baseDir:  baseDir,
		lockPath: filepath.Join(baseDir, ".registry.lock"),
	}, nil
}

func (r *Registry) Close() error { return r.conn.DB.Close() }

// withDirLock serializes directory-creating operations (Create, Clone,
// Delete) across processes. Two `genglossary project create` invocations
// racing on the same machine must not both succeed in creating the same
// project directory before either has inserted its registry row.
func (r *Registry) withDirLock(fn func() error) error {
	fl := flock.New(r.lockPath)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("acquiring registry directory lock: %w", err)
	}
	defer fl.Unlock()
	return fn()
}

// Create inserts a new project row and creates its project directory.
// Name and db_path are unique (spec §4.3); a collision on either surfaces
// as apperr.ConstraintViolation.
func (r *Registry) Create(ctx context.Context, name, docRoot, llmProvider, llmModel, llmBaseURL string) (*Project, error) {
	var project *Project
	err := r.withDirLock(func() error {
		dbPath := filepath.Join(r.baseDir, name, "project.db")
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return fmt.Errorf("creating project directory for %q: %w", name, err)
		}

		projectConn, err := store.Open(ctx, dbPath)
		if err != nil {
			return fmt.Errorf("opening new project db for %q: %w", name, err)
		}
		bootstrapErr := store.BootstrapProject(ctx, projectConn)
		projectConn.Close()
		if bootstrapErr != nil {
			return fmt.Errorf("bootstrapping project db for %q: %w", name, bootstrapErr)
		}

		now := clock.MustFormat(clock.NowUTC())
		res, err := r.conn.DB.ExecContext(ctx, `
			INSERT INTO projects (name, doc_root, db_path, llm_provider, llm_model, llm_base_url, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 'created', ?, ?)`,
			name, docRoot, dbPath, llmProvider, llmModel, llmBaseURL, now, now)
		if err != nil {
			if isUniqueViolation(err) {
				return apperr.ConstraintViolationf("project %q already exists", name)
			}
			return fmt.Errorf("inserting project %q: %w", name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("reading inserted project id: %w", err)
		}
		project = &Project{
			ID: id, Name: name, DocRoot: docRoot, DBPath: dbPath,
			LLMProvider: llmProvider, LLMModel: llmModel, LLMBaseURL: llmBaseURL,
			Status: "created", CreatedAt: now, UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

func (r *Registry) Get(ctx context.Context, name string) (*Project, error) {
	row := r.conn.DB.QueryRowContext(ctx, `
		SELECT id, name, doc_root, db_path, llm_provider, llm_model, llm_base_url, status, created_at, updated_at, last_run_at
		FROM projects WHERE name = ?`, name)
	return scanProject(row)
}

func (r *Registry) GetByID(ctx context.Context, id int64) (*Project, error) {
	row := r.conn.DB.QueryRowContext(ctx, `
		SELECT id, name, doc_root, db_path, llm_provider, llm_model, llm_base_url, status, created_at, updated_at, last_run_at
		FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

func (r *Registry) List(ctx context.Context) ([]*Project, error) {
	rows, err := r.conn.DB.QueryContext(ctx, `
		SELECT id, name, doc_root, db_path, llm_provider, llm_model, llm_base_url, status, created_at, updated_at, last_run_at
		FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p := &Project{}
		if err := rows.Scan(&p.ID, &p.Name, &p.DocRoot, &p.DBPath, &p.LLMProvider, &p.LLMModel, &p.LLMBaseURL, &p.Status, &p.CreatedAt, &p.UpdatedAt, &p.LastRunAt); err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Update rewrites a project's mutable settings (doc root, LLM config,
// status). Name and db_path are immutable after creation — renaming a
// project is a delete+create at the boundary layer, per spec §4.3 "Name
// changes are pre-checked by the boundary layer."
func (r *Registry) Update(ctx context.Context, name, docRoot, llmProvider, llmModel, llmBaseURL, status string) error {
	now := clock.MustFormat(clock.NowUTC())
	res, err := r.conn.DB.ExecContext(ctx, `
		UPDATE projects SET doc_root = ?, llm_provider = ?, llm_model = ?, llm_base_url = ?, status = ?, updated_at = ?
		WHERE name = ?`, docRoot, llmProvider, llmModel, llmBaseURL, status, now, name)
	if err != nil {
		return fmt.Errorf("updating project %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFoundf("project %q not found", name)
	}
	return nil
}

// MarkRunAt stamps last_run_at for the named project. The Run Manager does
// not call it, so starting a run leaves last_run_at unchanged.
func (r *Registry) MarkRunAt(ctx context.Context, name string, at time.Time) error {
	stamp := clock.MustFormat(at)
	res, err := r.conn.DB.ExecContext(ctx, `UPDATE projects SET last_run_at = ?, updated_at = ? WHERE name = ?`, stamp, stamp, name)
	if err != nil {
		return fmt.Errorf("stamping last_run_at for %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFoundf("project %q not found", name)
	}
	return nil
}

// Clone copies a project's settings under a new name, with a fresh empty
// project DB, status reset to "created" and last_run_at reset to null
// (spec §4.3). It does not copy the source project's data.
func (r *Registry) Clone(ctx context.Context, sourceName, newName string) (*Project, error) {
	source, err := r.Get(ctx, sourceName)
	if err != nil {
		return nil, err
	}
	return r.Create(ctx, newName, source.DocRoot, source.LLMProvider, source.LLMModel, source.LLMBaseURL)
}

// Delete removes only the registry row; the project DB file on disk is
// left untouched (spec §4.3 "Delete removes only the registry row, never
// the project DB file").
func (r *Registry) Delete(ctx context.Context, name string) error {
	return r.withDirLock(func() error {
		res, err := r.conn.DB.ExecContext(ctx, `DELETE FROM projects WHERE name = ?`, name)
		if err != nil {
			return fmt.Errorf("deleting project %q: %w", name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reading rows affected: %w", err)
		}
		if n == 0 {
			return apperr.NotFoundf("project %q not found", name)
		}
		return nil
	})
}

func scanProject(row *sql.Row) (*Project, error) {
	p := &Project{}
	if err := row.Scan(&p.ID, &p.Name, &p.DocRoot, &p.DBPath, &p.LLMProvider, &p.LLMModel, &p.LLMBaseURL, &p.Status, &p.CreatedAt, &p.UpdatedAt, &p.LastRunAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("project not found")
		}
		return nil, fmt.Errorf("reading project: %w", err)
	}
	return p, nil
}

// isUniqueViolation mirrors internal/repo's check against the ncruces
// driver's string-shaped constraint errors (internal/storage/sqlite/issues.go).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
