package mdexport

import (
	"strings"
	"testing"

	"github.com/genglossary/genglossary/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestRenderSortsTermsCaseInsensitively(t *testing.T) {
	out, err := String([]domain.GlossaryEntry{
		{TermName: "zebra", Definition: "striped animal", Confidence: 0.9},
		{TermName: "Apple", Definition: "a fruit", Confidence: 0.8},
	})
	require.NoError(t, err)

	appleIdx := strings.Index(out, "## Apple")
	zebraIdx := strings.Index(out, "## zebra")
	require.Greater(t, appleIdx, 0)
	require.Greater(t, zebraIdx, appleIdx)
}

func TestRenderIncludesOccurrences(t *testing.T) {
	out, err := String([]domain.GlossaryEntry{
		{
			TermName:   "mutex",
			Definition: "a mutual exclusion lock",
			Confidence: 0.95,
			Occurrences: []domain.Occurrence{
				{DocumentPath: "concurrency.md", LineNumber: 12, Context: "guard the critical section"},
			},
		},
	})
	require.NoError(t, err)
	require.Contains(t, out, "concurrency.md:12")
	require.Contains(t, out, "guard the critical section")
}

func TestRenderOmitsOccurrencesSectionWhenEmpty(t *testing.T) {
	out, err := String([]domain.GlossaryEntry{
		{TermName: "kernel", Definition: "core of the OS", Confidence: 0.9},
	})
	require.NoError(t, err)
	require.NotContains(t, out, "Occurrences:")
}
