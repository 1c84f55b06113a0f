package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/genglossary/genglossary/internal/apperr"
	"github.com/genglossary/genglossary/internal/domain"
	"github.com/genglossary/genglossary/internal/promptsafety"
	"github.com/genglossary/genglossary/internal/repo"
	"github.com/genglossary/genglossary/internal/store"
)

// Review implements spec §4.6's Review stage contract: process the
// provisional glossary in batches, asking the LLM to flag issues per
// batch; a per-batch failure logs a warning and continues. Cancellation
// mid-stage returns apperr.Cancelled directly rather than writing a
// partial issue set — distinct from completing with zero issues found.
func Review(ctx context.Context, ec ExecutionContext) error {
	if err := checkCancelled(ec); err != nil {
		return err
	}

	glossary := repo.Glossary{}
	issuesRepo := repo.GlossaryIssues{}

	entries, err := glossary.List(ctx, ec.Conn.DB, "glossary_provisional")
	if err != nil {
		return err
	}

	batchSize := ec.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	var allIssues []domain.GlossaryIssue
	for i := 0; i < len(entries); i += batchSize {
		if err := checkCancelled(ec); err != nil {
			return err
		}
		end := i + batchSize
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[i:end]

		issues, err := reviewBatch(ctx, ec, batch)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindCancelled {
				return err
			}
			ec.logWarning(fmt.Sprintf("review batch %d-%d failed: %v", i, end, err))
			continue
		}
		allIssues = append(allIssues, issues...)
		ec.progress("review", end, len(entries), "")
	}

	if err := checkCancelled(ec); err != nil {
		return err
	}

	return store.Transaction(ctx, ec.Conn, func(txCtx context.Context) error {
		q := store.FromContext(txCtx, ec.Conn).Q()
		if err := issuesRepo.Clear(txCtx, q); err != nil {
			return err
		}
		return issuesRepo.InsertBatch(txCtx, q, allIssues)
	})
}

func reviewBatch(ctx context.Context, ec ExecutionContext, batch []domain.GlossaryEntry) ([]domain.GlossaryIssue, error) {
	if err := checkCancelled(ec); err != nil {
		return nil, err
	}

	var sb []byte
	for _, e := range batch {
		line := fmt.Sprintf("%s: %s\n", promptsafety.Escape(e.TermName), promptsafety.Escape(e.Definition))
		sb = append(sb, line...)
	}
	envelope := promptsafety.Wrap("glossary", string(sb))

	prompt := fmt.Sprintf(
		"%s\n\nReview the following glossary entries for clarity, contradiction with related entries, missing relations to other terms, and unnecessary/trivial entries that should be removed. %s\n\nRespond as a JSON array of objects with \"term_name\", \"issue_type\" (one of unclear, contradiction, missing_relation, unnecessary), \"description\", \"should_exclude\" (bool), and \"exclusion_reason\" (string or null). Return an empty array if there are no issues.",
		promptsafety.Instruction, envelope)

	raw, err := ec.LLM.GenerateStructured(ctx, prompt, reviewSchema)
	if err != nil {
		return nil, err
	}

	var parsed []struct {
		TermName        string  `json:"term_name"`
		IssueType       string  `json:"issue_type"`
		Description     string  `json:"description"`
		ShouldExclude   bool    `json:"should_exclude"`
		ExclusionReason *string `json:"exclusion_reason"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, apperr.LLMUnavailablef("malformed review response: %v", err)
	}

	issues := make([]domain.GlossaryIssue, 0, len(parsed))
	for _, p := range parsed {
		issues = append(issues, domain.GlossaryIssue{
			TermName:        p.TermName,
			IssueType:       domain.IssueType(p.IssueType),
			Description:     p.Description,
			ShouldExclude:   p.ShouldExclude,
			ExclusionReason: p.ExclusionReason,
		})
	}
	return issues, nil
}

var reviewSchema = map[string]any{
	"type": "array",
	"items": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"term_name":        map[string]any{"type": "string"},
			"issue_type":       map[string]any{"type": "string"},
			"description":      map[string]any{"type": "string"},
			"should_exclude":   map[string]any{"type": "boolean"},
			"exclusion_reason": map[string]any{"type": "string"},
		},
	},
}
