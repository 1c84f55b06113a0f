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

// Refine implements spec §4.6's Refine stage contract: if Review found no
// issues, copy glossary_provisional into glossary_refined verbatim;
// otherwise invoke the LLM per group of related issues (grouped by
// term_name here, the simplest grouping that keeps an issue's related
// entries together) and write the refined definitions.
func Refine(ctx context.Context, ec ExecutionContext) error {
	if err := checkCancelled(ec); err != nil {
		return err
	}

	glossary := repo.Glossary{}
	issuesRepo := repo.GlossaryIssues{}
	terms := repo.TermsExtracted{}

	provisional, err := glossary.List(ctx, ec.Conn.DB, "glossary_provisional")
	if err != nil {
		return err
	}
	issues, err := issuesRepo.List(ctx, ec.Conn.DB)
	if err != nil {
		return err
	}

	if len(issues) == 0 {
		return store.Transaction(ctx, ec.Conn, func(txCtx context.Context) error {
			q := store.FromContext(txCtx, ec.Conn).Q()
			if err := glossary.Clear(txCtx, q, "glossary_refined"); err != nil {
				return err
			}
			return glossary.InsertBatch(txCtx, q, "glossary_refined", provisional)
		})
	}

	notes := make(map[string]string)
	extracted, err := terms.List(ctx, ec.Conn.DB)
	if err != nil {
		return err
	}
	for _, t := range extracted {
		if t.UserNotes != "" {
			notes[t.TermText] = t.UserNotes
		}
	}

	byTerm := make(map[string][]domain.GlossaryIssue)
	for _, iss := range issues {
		byTerm[iss.TermName] = append(byTerm[iss.TermName], iss)
	}

	refined := make(map[string]domain.GlossaryEntry, len(provisional))
	for _, e := range provisional {
		refined[e.TermName] = e
	}

	for termName, termIssues := range byTerm {
		if err := checkCancelled(ec); err != nil {
			return err
		}
		entry, ok := refined[termName]
		if !ok {
			continue
		}

		updated, err := refineOne(ctx, ec, entry, termIssues, notes[termName], provisional)
		if err != nil {
			ec.logWarning(fmt.Sprintf("refine failed for %q: %v", termName, err))
			continue
		}
		refined[termName] = *updated
	}

	out := make([]domain.GlossaryEntry, 0, len(refined))
	for _, e := range refined {
		out = append(out, e)
	}

	return store.Transaction(ctx, ec.Conn, func(txCtx context.Context) error {
		q := store.FromContext(txCtx, ec.Conn).Q()
		if err := glossary.Clear(txCtx, q, "glossary_refined"); err != nil {
			return err
		}
		return glossary.InsertBatch(txCtx, q, "glossary_refined", out)
	})
}

func refineOne(ctx context.Context, ec ExecutionContext, entry domain.GlossaryEntry, issues []domain.GlossaryIssue, userNote string, fullGlossary []domain.GlossaryEntry) (*domain.GlossaryEntry, error) {
	var issueLines []byte
	for _, iss := range issues {
		issueLines = append(issueLines, fmt.Sprintf("- [%s] %s\n", iss.IssueType, promptsafety.Escape(iss.Description))...)
	}
	var glossaryLines []byte
	for _, g := range fullGlossary {
		glossaryLines = append(glossaryLines, fmt.Sprintf("%s: %s\n", promptsafety.Escape(g.TermName), promptsafety.Escape(g.Definition))...)
	}

	envelope := promptsafety.EscapeAndWrap("term", entry.TermName) +
		promptsafety.Wrap("issues", string(issueLines)) +
		promptsafety.Wrap("glossary", string(glossaryLines))
	noteBlock := ""
	if userNote != "" {
		noteBlock = promptsafety.EscapeAndWrap("user_notes", userNote)
	}

	prompt := fmt.Sprintf(
		"%s\n\nRewrite the definition for the term below to resolve the listed issues, using the full glossary as context for relationships to other terms. %s %s\n\nRespond as a JSON object with \"definition\" (string) and \"confidence\" (0.0-1.0 float).",
		promptsafety.Instruction, envelope, noteBlock)

	raw, err := ec.LLM.GenerateStructured(ctx, prompt, definitionSchema)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Definition string  `json:"definition"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, apperr.LLMUnavailablef("malformed refine response: %v", err)
	}

	return &domain.GlossaryEntry{
		TermName:    entry.TermName,
		Definition:  parsed.Definition,
		Confidence:  parsed.Confidence,
		Occurrences: entry.Occurrences,
	}, nil
}
