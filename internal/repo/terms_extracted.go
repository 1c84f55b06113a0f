package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/genglossary/genglossary/internal/apperr"
	"github.com/genglossary/genglossary/internal/domain"
	"github.com/genglossary/genglossary/internal/store"
)

// TermsExtracted is the repository for terms_extracted.
type TermsExtracted struct{}

func (TermsExtracted) Create(ctx context.Context, q store.Querier, termText string, category *string) (*domain.TermExtracted, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO terms_extracted (term_text, category) VALUES (?, ?)`, termText, category)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.ConstraintViolationf("term %q already extracted", termText)
		}
		return nil, fmt.Errorf("inserting term %q: %w", termText, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading inserted term id: %w", err)
	}
	return &domain.TermExtracted{ID: id, TermText: termText, Category: category}, nil
}

// CreateBatch inserts many candidate terms, deduplicating by term_text
// first (spec §4.6 "Duplicate candidates from the LLM are deduplicated
// before insert").
func (TermsExtracted) CreateBatch(ctx context.Context, q store.Querier, terms []domain.TermExtracted) error {
	seen := make(map[string]bool, len(terms))
	rows := make([][]any, 0, len(terms))
	for _, t := range terms {
		if seen[t.TermText] {
			continue
		}
		seen[t.TermText] = true
		rows = append(rows, []any{t.TermText, t.Category})
	}
	return store.BatchInsert(ctx, q, batchInsertTables, "terms_extracted", []string{"term_text", "category"}, rows)
}

func (TermsExtracted) List(ctx context.Context, q store.Querier) ([]*domain.TermExtracted, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, term_text, category, user_notes FROM terms_extracted ORDER BY term_text`)
	if err != nil {
		return nil, fmt.Errorf("listing extracted terms: %w", err)
	}
	defer rows.Close()

	var out []*domain.TermExtracted
	for rows.Next() {
		t := &domain.TermExtracted{}
		if err := rows.Scan(&t.ID, &t.TermText, &t.Category, &t.UserNotes); err != nil {
			return nil, fmt.Errorf("scanning extracted term: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (TermsExtracted) UpdateNotes(ctx context.Context, q store.Querier, termText, notes string) error {
	res, err := q.ExecContext(ctx, `UPDATE terms_extracted SET user_notes = ? WHERE term_text = ?`, notes, termText)
	if err != nil {
		return fmt.Errorf("updating notes for %q: %w", termText, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFoundf("term %q not found", termText)
	}
	return nil
}

func (TermsExtracted) DeleteAll(ctx context.Context, q store.Querier) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM terms_extracted`); err != nil {
		return fmt.Errorf("clearing extracted terms: %w", err)
	}
	return nil
}

// BackupUserNotes returns {term_text -> user_notes} excluding empty
// notes, per spec §4.2. Extract calls this before its destructive reset.
func (TermsExtracted) BackupUserNotes(ctx context.Context, q store.Querier) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT term_text, user_notes FROM terms_extracted WHERE user_notes != ''`)
	if err != nil {
		return nil, fmt.Errorf("backing up user notes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var term, notes string
		if err := rows.Scan(&term, &notes); err != nil {
			return nil, fmt.Errorf("scanning user notes backup row: %w", err)
		}
		out[term] = notes
	}
	return out, rows.Err()
}

// RestoreUserNotes applies a backup map by matching term_text. Terms
// present in the backup but absent from the new extraction are silently
// dropped — the round-trip law (spec §8) only requires preservation for
// terms present in both old and new extractions.
func (TermsExtracted) RestoreUserNotes(ctx context.Context, q store.Querier, notes map[string]string) error {
	for term, note := range notes {
		if _, err := q.ExecContext(ctx, `UPDATE terms_extracted SET user_notes = ? WHERE term_text = ?`, note, term); err != nil {
			return fmt.Errorf("restoring notes for %q: %w", term, err)
		}
	}
	return nil
}

func (TermsExtracted) Get(ctx context.Context, q store.Querier, termText string) (*domain.TermExtracted, error) {
	row := q.QueryRowContext(ctx, `SELECT id, term_text, category, user_notes FROM terms_extracted WHERE term_text = ?`, termText)
	t := &domain.TermExtracted{}
	if err := row.Scan(&t.ID, &t.TermText, &t.Category, &t.UserNotes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("term %q not found", termText)
		}
		return nil, fmt.Errorf("reading term %q: %w", termText, err)
	}
	return t, nil
}
