package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/genglossary/genglossary/internal/apperr"
	"github.com/genglossary/genglossary/internal/domain"
	"github.com/genglossary/genglossary/internal/promptsafety"
	"github.com/genglossary/genglossary/internal/repo"
	"github.com/genglossary/genglossary/internal/store"
)

// Generate implements spec §4.6's Generate stage contract: read active
// terms (extracted minus excluded plus required), compute a definition
// and confidence per term via the LLM, and write glossary_provisional
// after clearing it. Per-term failures are logged and do not abort the
// stage.
func Generate(ctx context.Context, ec ExecutionContext) error {
	if err := checkCancelled(ec); err != nil {
		return err
	}

	lists := repo.TermLists{}
	terms := repo.TermsExtracted{}
	glossary := repo.Glossary{}

	active, err := lists.ListAllTerms(ctx, ec.Conn.DB)
	if err != nil {
		return err
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

	entries := make([]domain.GlossaryEntry, 0, len(active))
	for i, term := range active {
		if err := checkCancelled(ec); err != nil {
			return err
		}

		entry, genErr := generateOne(ctx, ec, term.TermText, notes[term.TermText])
		if genErr != nil {
			ec.logWarning(fmt.Sprintf("generate failed for %q: %v", term.TermText, genErr))
			ec.progress("generate", i+1, len(active), term.TermText)
			continue
		}
		entries = append(entries, *entry)
		ec.progress("generate", i+1, len(active), term.TermText)
	}

	return store.Transaction(ctx, ec.Conn, func(txCtx context.Context) error {
		q := store.FromContext(txCtx, ec.Conn).Q()
		if err := glossary.Clear(txCtx, q, "glossary_provisional"); err != nil {
			return err
		}
		return glossary.InsertBatch(txCtx, q, "glossary_provisional", entries)
	})
}

func generateOne(ctx context.Context, ec ExecutionContext, term, userNote string) (*domain.GlossaryEntry, error) {
	envelope := promptsafety.EscapeAndWrap("term", term)
	noteBlock := ""
	if userNote != "" {
		noteBlock = promptsafety.EscapeAndWrap("user_notes", userNote)
	}

	prompt := fmt.Sprintf(
		"%s\n\nDefine the following technical term as it is used in this project's documentation. %s %s\n\nRespond as a JSON object with \"definition\" (string) and \"confidence\" (0.0-1.0 float).",
		promptsafety.Instruction, envelope, noteBlock)

	raw, err := ec.LLM.GenerateStructured(ctx, prompt, definitionSchema)
	if err != nil {
		return nil, err
	}

	def, confidence, err := parseDefinitionResponse(raw)
	if err != nil {
		return nil, err
	}
	return &domain.GlossaryEntry{
		TermName:    term,
		Definition:  def,
		Confidence:  confidence,
		Occurrences: nil,
	}, nil
}

var definitionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"definition": map[string]any{"type": "string"},
		"confidence": map[string]any{"type": "number"},
	},
}

// parseDefinitionResponse unmarshals the {"definition","confidence"}
// shape the LLM was asked for, rejecting a malformed response rather than
// silently writing a zero-value glossary entry.
func parseDefinitionResponse(raw string) (string, float64, error) {
	var parsed struct {
		Definition string  `json:"definition"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", 0, apperr.LLMUnavailablef("malformed generate response: %v", err)
	}
	if strings.TrimSpace(parsed.Definition) == "" {
		return "", 0, apperr.LLMUnavailablef("empty definition in generate response")
	}
	return parsed.Definition, parsed.Confidence, nil
}
