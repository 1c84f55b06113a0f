package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/genglossary/genglossary/internal/apperr"
	"github.com/genglossary/genglossary/internal/docloader"
	"github.com/genglossary/genglossary/internal/domain"
	"github.com/genglossary/genglossary/internal/promptsafety"
	"github.com/genglossary/genglossary/internal/repo"
)

// Extract implements spec §4.6's Extract stage contract: load documents,
// run morphological analysis for candidate nouns, batch-classify with the
// LLM, backup/restore user notes around the destructive reset, and
// auto-exclude COMMON_NOUN classifications.
func Extract(ctx context.Context, ec ExecutionContext) error {
	if err := checkCancelled(ec); err != nil {
		return err
	}

	metadata := repo.Metadata{}
	meta, err := metadata.Get(ctx, ec.Conn.DB)
	docRoot := ""
	if err == nil {
		docRoot = meta.InputPath
	} else if apperr.KindOf(err) != apperr.KindNotFound {
		return err
	}

	docs, err := docloader.Load(ctx, ec.Conn, docRoot)
	if err != nil {
		return err
	}
	ec.logInfo(fmt.Sprintf("loaded %d document(s)", len(docs)))

	candidateSet := make(map[string]bool)
	for _, doc := range docs {
		for _, cand := range ExtractCandidateNouns(doc.Content) {
			candidateSet[cand] = true
		}
	}
	candidates := make([]string, 0, len(candidateSet))
	for c := range candidateSet {
		candidates = append(candidates, c)
	}
	ec.logInfo(fmt.Sprintf("found %d candidate term(s)", len(candidates)))

	terms := repo.TermsExtracted{}
	lists := repo.TermLists{}

	backup, err := terms.BackupUserNotes(ctx, ec.Conn.DB)
	if err != nil {
		return err
	}

	batchSize := ec.BatchSize
	if batchSize <= 0 {
		batchSize = 10
	}

	var classified []classifiedTerm
	for i := 0; i < len(candidates); i += batchSize {
		if err := checkCancelled(ec); err != nil {
			return err
		}
		end := i + batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[i:end]

		results, err := classifyBatch(ctx, ec, batch)
		if err != nil {
			ec.logWarning(fmt.Sprintf("classification batch %d-%d failed: %v", i, end, err))
			continue
		}
		classified = append(classified, results...)
		ec.progress("extract", end, len(candidates), "")
	}

	if err := terms.DeleteAll(ctx, ec.Conn.DB); err != nil {
		return err
	}

	seen := make(map[string]bool)
	var toInsert []domain.TermExtracted
	for _, c := range classified {
		if seen[c.Term] {
			continue
		}
		seen[c.Term] = true
		category := c.Category
		toInsert = append(toInsert, domain.TermExtracted{TermText: c.Term, Category: &category})
	}
	if err := terms.CreateBatch(ctx, ec.Conn.DB, toInsert); err != nil {
		return err
	}

	if err := terms.RestoreUserNotes(ctx, ec.Conn.DB, backup); err != nil {
		return err
	}

	for _, c := range classified {
		if strings.EqualFold(c.Category, "COMMON_NOUN") {
			if _, err := lists.Add(ctx, ec.Conn.DB, "terms_excluded", c.Term, domain.SourceAuto); err != nil && apperr.KindOf(err) != apperr.KindConstraintViolation {
				return err
			}
		}
	}

	return nil
}

type classifiedTerm struct {
	Term     string `json:"term"`
	Category string `json:"category"`
}

// classifyBatch asks the configured LLM to classify a batch of candidate
// terms, escaping each before inclusion in the prompt (spec §4.6.2).
func classifyBatch(ctx context.Context, ec ExecutionContext, batch []string) ([]classifiedTerm, error) {
	if err := checkCancelled(ec); err != nil {
		return nil, err
	}

	var escaped []string
	for _, term := range batch {
		escaped = append(escaped, promptsafety.Escape(term))
	}
	envelope := promptsafety.Wrap("candidates", strings.Join(escaped, "\n"))

	prompt := fmt.Sprintf(
		"%s\n\nClassify each line in the candidates block as one of: TECHNICAL_TERM, COMMON_NOUN, PROPER_NOUN.\n%s\n\nRespond as a JSON array of objects with \"term\" and \"category\" keys.",
		promptsafety.Instruction, envelope)

	raw, err := ec.LLM.GenerateStructured(ctx, prompt, classifiedTermSchema)
	if err != nil {
		return nil, err
	}

	var results []classifiedTerm
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		return nil, fmt.Errorf("parsing classification response: %w", err)
	}
	return results, nil
}

var classifiedTermSchema = map[string]any{
	"type": "array",
	"items": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"term":     map[string]any{"type": "string"},
			"category": map[string]any{"type": "string"},
		},
	},
}
