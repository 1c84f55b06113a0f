package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/genglossary/genglossary/internal/apperr"
	"github.com/genglossary/genglossary/internal/domain"
	"github.com/genglossary/genglossary/internal/store"
)

// Glossary is the generic repository over the (glossary_provisional,
// glossary_refined) pair (spec §4.2).
type Glossary struct{}

func (Glossary) validate(table string) error {
	if !glossaryTables[table] {
		return apperr.New(apperr.KindInternal, fmt.Sprintf("glossary table %q is not whitelisted", table))
	}
	return nil
}

func (g Glossary) Clear(ctx context.Context, q store.Querier, table string) error {
	if err := g.validate(table); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
		return fmt.Errorf("clearing %s: %w", table, err)
	}
	return nil
}

func (g Glossary) Insert(ctx context.Context, q store.Querier, table string, entry domain.GlossaryEntry) error {
	if err := g.validate(table); err != nil {
		return err
	}
	occJSON, err := json.Marshal(entry.Occurrences)
	if err != nil {
		return fmt.Errorf("marshaling occurrences for %q: %w", entry.TermName, err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (term_name, definition, confidence, occurrences) VALUES (?, ?, ?, ?)`, table)
	if _, err := q.ExecContext(ctx, query, entry.TermName, entry.Definition, entry.Confidence, string(occJSON)); err != nil {
		if isUniqueViolation(err) {
			return apperr.ConstraintViolationf("%q already present in %s", entry.TermName, table)
		}
		return fmt.Errorf("inserting into %s: %w", table, err)
	}
	return nil
}

// InsertBatch is the bulk path used by Generate/Refine after clearing the
// table, avoiding one round trip per term.
func (g Glossary) InsertBatch(ctx context.Context, q store.Querier, table string, entries []domain.GlossaryEntry) error {
	if err := g.validate(table); err != nil {
		return err
	}
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		occJSON, err := json.Marshal(e.Occurrences)
		if err != nil {
			return fmt.Errorf("marshaling occurrences for %q: %w", e.TermName, err)
		}
		rows = append(rows, []any{e.TermName, e.Definition, e.Confidence, string(occJSON)})
	}
	return store.BatchInsert(ctx, q, batchInsertTables, table, []string{"term_name", "definition", "confidence", "occurrences"}, rows)
}

func (g Glossary) List(ctx context.Context, q store.Querier, table string) ([]domain.GlossaryEntry, error) {
	if err := g.validate(table); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, term_name, definition, confidence, occurrences FROM %s ORDER BY term_name`, table)
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", table, err)
	}
	defer rows.Close()

	var out []domain.GlossaryEntry
	for rows.Next() {
		var e domain.GlossaryEntry
		var occJSON string
		if err := rows.Scan(&e.ID, &e.TermName, &e.Definition, &e.Confidence, &occJSON); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		if err := json.Unmarshal([]byte(occJSON), &e.Occurrences); err != nil {
			return nil, fmt.Errorf("unmarshaling occurrences for %q: %w", e.TermName, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (g Glossary) Get(ctx context.Context, q store.Querier, table, termName string) (*domain.GlossaryEntry, error) {
	if err := g.validate(table); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, term_name, definition, confidence, occurrences FROM %s WHERE term_name = ?`, table)
	row := q.QueryRowContext(ctx, query, termName)
	var e domain.GlossaryEntry
	var occJSON string
	if err := row.Scan(&e.ID, &e.TermName, &e.Definition, &e.Confidence, &occJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("%q not found in %s", termName, table)
		}
		return nil, fmt.Errorf("reading %s row: %w", table, err)
	}
	if err := json.Unmarshal([]byte(occJSON), &e.Occurrences); err != nil {
		return nil, fmt.Errorf("unmarshaling occurrences for %q: %w", termName, err)
	}
	return &e, nil
}
