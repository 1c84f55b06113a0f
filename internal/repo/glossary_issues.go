package repo

import (
	"context"
	"fmt"

	"github.com/genglossary/genglossary/internal/domain"
	"github.com/genglossary/genglossary/internal/store"
)

// GlossaryIssues is the repository for glossary_issues.
type GlossaryIssues struct{}

func (GlossaryIssues) Clear(ctx context.Context, q store.Querier) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM glossary_issues`); err != nil {
		return fmt.Errorf("clearing glossary issues: %w", err)
	}
	return nil
}

// InsertBatch writes the full issue set for one review run in a single
// statement, per spec §4.6 "Writes the full issue set in a single
// transaction after all batches."
func (GlossaryIssues) InsertBatch(ctx context.Context, q store.Querier, issues []domain.GlossaryIssue) error {
	rows := make([][]any, 0, len(issues))
	for _, iss := range issues {
		rows = append(rows, []any{iss.TermName, string(iss.IssueType), iss.Description, boolToInt(iss.ShouldExclude), iss.ExclusionReason})
	}
	return store.BatchInsert(ctx, q, batchInsertTables, "glossary_issues",
		[]string{"term_name", "issue_type", "description", "should_exclude", "exclusion_reason"}, rows)
}

func (GlossaryIssues) List(ctx context.Context, q store.Querier) ([]domain.GlossaryIssue, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, term_name, issue_type, description, should_exclude, exclusion_reason FROM glossary_issues ORDER BY term_name`)
	if err != nil {
		return nil, fmt.Errorf("listing glossary issues: %w", err)
	}
	defer rows.Close()

	var out []domain.GlossaryIssue
	for rows.Next() {
		var iss domain.GlossaryIssue
		var issueType string
		var shouldExclude int
		if err := rows.Scan(&iss.ID, &iss.TermName, &issueType, &iss.Description, &shouldExclude, &iss.ExclusionReason); err != nil {
			return nil, fmt.Errorf("scanning glossary issue: %w", err)
		}
		iss.IssueType = domain.IssueType(issueType)
		iss.ShouldExclude = shouldExclude != 0
		out = append(out, iss)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
