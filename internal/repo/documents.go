package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/genglossary/genglossary/internal/apperr"
	"github.com/genglossary/genglossary/internal/domain"
	"github.com/genglossary/genglossary/internal/store"
)

// Documents is the repository for the documents table.
type Documents struct{}

func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Create inserts a document, computing content_hash from content. A
// duplicate file_name surfaces as apperr.ConstraintViolation (spec §4.2).
func (Documents) Create(ctx context.Context, q store.Querier, fileName, content string) (*domain.Document, error) {
	hash := HashContent(content)
	res, err := q.ExecContext(ctx, `INSERT INTO documents (file_name, content, content_hash) VALUES (?, ?, ?)`, fileName, content, hash)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.ConstraintViolationf("document %q already exists", fileName)
		}
		return nil, fmt.Errorf("inserting document %q: %w", fileName, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading inserted document id: %w", err)
	}
	return &domain.Document{ID: id, FileName: fileName, Content: content, ContentHash: hash}, nil
}

func (Documents) Get(ctx context.Context, q store.Querier, fileName string) (*domain.Document, error) {
	row := q.QueryRowContext(ctx, `SELECT id, file_name, content, content_hash FROM documents WHERE file_name = ?`, fileName)
	doc := &domain.Document{}
	if err := row.Scan(&doc.ID, &doc.FileName, &doc.Content, &doc.ContentHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("document %q not found", fileName)
		}
		return nil, fmt.Errorf("reading document %q: %w", fileName, err)
	}
	return doc, nil
}

func (Documents) List(ctx context.Context, q store.Querier) ([]*domain.Document, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, file_name, content, content_hash FROM documents ORDER BY file_name`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var out []*domain.Document
	for rows.Next() {
		doc := &domain.Document{}
		if err := rows.Scan(&doc.ID, &doc.FileName, &doc.Content, &doc.ContentHash); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (Documents) DeleteAll(ctx context.Context, q store.Querier) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("clearing documents: %w", err)
	}
	return nil
}

// CreateBatch inserts many documents in a single statement via
// store.BatchInsert, used by the filesystem-loading path in
// internal/docloader (spec §4.6.1).
func (Documents) CreateBatch(ctx context.Context, q store.Querier, docs []domain.Document) error {
	rows := make([][]any, 0, len(docs))
	for _, d := range docs {
		rows = append(rows, []any{d.FileName, d.Content, HashContent(d.Content)})
	}
	return store.BatchInsert(ctx, q, batchInsertTables, "documents", []string{"file_name", "content", "content_hash"}, rows)
}

// isUniqueViolation mirrors the teacher's isUniqueConstraintError
// (internal/storage/sqlite/issues.go): the ncruces driver, like
// mattn/go-sqlite3, surfaces UNIQUE violations as a string-matchable
// error rather than a typed one.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
