// Package mdexport renders glossary_refined as Markdown (spec §4.12).
// It is deliberately thin: one "## term" section per row, with
// definition, confidence, and occurrences as a sub-list.
package mdexport

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/genglossary/genglossary/internal/domain"
)

// Render writes entries as Markdown to w, sorted alphabetically by term.
func Render(w io.Writer, entries []domain.GlossaryEntry) error {
	sorted := make([]domain.GlossaryEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].TermName) < strings.ToLower(sorted[j].TermName)
	})

	if _, err := fmt.Fprintln(w, "# Glossary"); err != nil {
		return err
	}
	for _, e := range sorted {
		if err := renderEntry(w, e); err != nil {
			return err
		}
	}
	return nil
}

func renderEntry(w io.Writer, e domain.GlossaryEntry) error {
	if _, err := fmt.Fprintf(w, "\n## %s\n\n%s\n\n*confidence: %.2f*\n", e.TermName, e.Definition, e.Confidence); err != nil {
		return err
	}
	if len(e.Occurrences) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "\nOccurrences:"); err != nil {
		return err
	}
	for _, occ := range e.Occurrences {
		line := fmt.Sprintf("- `%s:%d`", occ.DocumentPath, occ.LineNumber)
		if occ.Context != "" {
			line += fmt.Sprintf(" — %s", strings.TrimSpace(occ.Context))
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// String renders entries to a string, for callers (like --preview) that
// need the Markdown before deciding how to display it.
func String(entries []domain.GlossaryEntry) (string, error) {
	var sb strings.Builder
	if err := Render(&sb, entries); err != nil {
		return "", err
	}
	return sb.String(), nil
}
