package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/genglossary/genglossary/internal/apperr"
	"github.com/genglossary/genglossary/internal/clock"
	"github.com/genglossary/genglossary/internal/domain"
	"github.com/genglossary/genglossary/internal/store"
)

// TermLists is the generic repository over the (terms_excluded,
// terms_required) pair (spec §4.2). table must be validated against
// termListTables before every call.
type TermLists struct{}

func (TermLists) validate(table string) error {
	if !termListTables[table] {
		return apperr.New(apperr.KindInternal, fmt.Sprintf("term list table %q is not whitelisted", table))
	}
	return nil
}

func (t TermLists) Add(ctx context.Context, q store.Querier, table, termText string, source domain.TermSource) (*domain.TermListItem, error) {
	if err := t.validate(table); err != nil {
		return nil, err
	}
	now := clock.MustFormat(clock.NowUTC())
	query := fmt.Sprintf(`INSERT INTO %s (term_text, source, created_at) VALUES (?, ?, ?)`, table)
	res, err := q.ExecContext(ctx, query, termText, string(source), now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.ConstraintViolationf("%q already present in %s", termText, table)
		}
		return nil, fmt.Errorf("inserting into %s: %w", table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading inserted id from %s: %w", table, err)
	}
	return &domain.TermListItem{ID: id, TermText: termText, Source: source, CreatedAt: now}, nil
}

func (t TermLists) Remove(ctx context.Context, q store.Querier, table, termText string) error {
	if err := t.validate(table); err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE term_text = ?`, table)
	res, err := q.ExecContext(ctx, query, termText)
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected on %s: %w", table, err)
	}
	if n == 0 {
		return apperr.NotFoundf("%q not present in %s", termText, table)
	}
	return nil
}

func (t TermLists) List(ctx context.Context, q store.Querier, table string) ([]*domain.TermListItem, error) {
	if err := t.validate(table); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, term_text, source, created_at FROM %s ORDER BY term_text`, table)
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", table, err)
	}
	defer rows.Close()

	var out []*domain.TermListItem
	for rows.Next() {
		item := &domain.TermListItem{}
		var source string
		if err := rows.Scan(&item.ID, &item.TermText, &source, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		item.Source = domain.TermSource(source)
		out = append(out, item)
	}
	return out, rows.Err()
}

func (t TermLists) Contains(ctx context.Context, q store.Querier, table, termText string) (bool, error) {
	if err := t.validate(table); err != nil {
		return false, err
	}
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE term_text = ?`, table)
	row := q.QueryRowContext(ctx, query, termText)
	var one int
	err := row.Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("checking %s membership: %w", table, err)
	}
	return true, nil
}

// ListAllTerms implements the unified term listing from spec §4.2 /
// testable property #6: union terms_extracted with terms_required, hide
// rows also in terms_excluded unless also required, assign required-only
// rows a negative synthetic id, sort by term_text. This is not a trivial
// SELECT — it is deliberately not delegated to the generic TermLists
// repository because it reads three tables at once.
func (TermLists) ListAllTerms(ctx context.Context, q store.Querier) ([]domain.UnifiedTerm, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT e.id, e.term_text, e.category, 0 AS required
		FROM terms_extracted e
		WHERE e.term_text NOT IN (
			SELECT term_text FROM terms_excluded
			WHERE term_text NOT IN (SELECT term_text FROM terms_required)
		)
		UNION
		SELECT -r.id, r.term_text, NULL, 1 AS required
		FROM terms_required r
		WHERE r.term_text NOT IN (SELECT term_text FROM terms_extracted)
		ORDER BY term_text
	`)
	if err != nil {
		return nil, fmt.Errorf("listing unified terms: %w", err)
	}
	defer rows.Close()

	var out []domain.UnifiedTerm
	for rows.Next() {
		var u domain.UnifiedTerm
		var required int
		if err := rows.Scan(&u.ID, &u.TermText, &u.Category, &required); err != nil {
			return nil, fmt.Errorf("scanning unified term row: %w", err)
		}
		u.Required = required == 1
		out = append(out, u)
	}
	return out, rows.Err()
}
