package repo

import (
	"context"
	"fmt"

	"github.com/genglossary/genglossary/internal/apperr"
	"github.com/genglossary/genglossary/internal/domain"
	"github.com/genglossary/genglossary/internal/store"
)

// Synonyms is the repository for term_synonym_groups/term_synonym_members.
// A term belongs to at most one group, enforced by the UNIQUE constraint
// on term_synonym_members.term_text (spec §3); the primary term must also
// appear as a member.
type Synonyms struct{}

func (Synonyms) CreateGroup(ctx context.Context, q store.Querier, primaryTerm string, members []string) (*domain.SynonymGroup, error) {
	hasPrimary := false
	for _, m := range members {
		if m == primaryTerm {
			hasPrimary = true
			break
		}
	}
	if !hasPrimary {
		return nil, apperr.Validationf("primary term %q must also appear as a member", primaryTerm)
	}

	res, err := q.ExecContext(ctx, `INSERT INTO term_synonym_groups (primary_term_text) VALUES (?)`, primaryTerm)
	if err != nil {
		return nil, fmt.Errorf("inserting synonym group for %q: %w", primaryTerm, err)
	}
	groupID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading inserted group id: %w", err)
	}

	for _, m := range members {
		if _, err := q.ExecContext(ctx, `INSERT INTO term_synonym_members (group_id, term_text) VALUES (?, ?)`, groupID, m); err != nil {
			if isUniqueViolation(err) {
				return nil, apperr.ConstraintViolationf("term %q already belongs to a synonym group", m)
			}
			return nil, fmt.Errorf("adding member %q to group %d: %w", m, groupID, err)
		}
	}

	return &domain.SynonymGroup{ID: groupID, PrimaryTermText: primaryTerm, Members: members}, nil
}

func (Synonyms) ListGroups(ctx context.Context, q store.Querier) ([]domain.SynonymGroup, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, primary_term_text FROM term_synonym_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing synonym groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.SynonymGroup
	for rows.Next() {
		var g domain.SynonymGroup
		if err := rows.Scan(&g.ID, &g.PrimaryTermText); err != nil {
			return nil, fmt.Errorf("scanning synonym group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range groups {
		members, err := groupMembers(ctx, q, groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].Members = members
	}
	return groups, nil
}

func groupMembers(ctx context.Context, q store.Querier, groupID int64) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT term_text FROM term_synonym_members WHERE group_id = ? ORDER BY term_text`, groupID)
	if err != nil {
		return nil, fmt.Errorf("listing members of group %d: %w", groupID, err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (Synonyms) DeleteGroup(ctx context.Context, q store.Querier, groupID int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM term_synonym_groups WHERE id = ?`, groupID)
	if err != nil {
		return fmt.Errorf("deleting synonym group %d: %w", groupID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFoundf("synonym group %d not found", groupID)
	}
	return nil
}
