package executor

import (
	"regexp"
	"strings"
)

// candidatePatterns finds noun-like candidate terms in document text: the
// Extract stage's "morphological analysis" is a regexp-driven surface
// scan, the same style as internal/extractor/regex.go's entityPatterns,
// generalized from source-code identifiers to prose: capitalized
// multi-word phrases, CamelCase/PascalCase identifiers, and
// hyphen/underscore-joined compound words.
var candidatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[A-Z][a-z]+(?:\s[A-Z][a-z]+){0,2}\b`), // "Garbage Collector"
	regexp.MustCompile(`\b[A-Z][a-z]+(?:[A-Z][a-z]+)+\b`),       // "GarbageCollector"
	regexp.MustCompile(`\b[a-z]+(?:[_-][a-z]+)+\b`),             // "page-fault", "ref_count"
	regexp.MustCompile(`\b[a-z]{4,}\b`),                         // plain lowercase words, min length 4
}

// ExtractCandidateNouns returns the deduplicated, lowercased set of
// candidate terms found in text, in first-seen order.
func ExtractCandidateNouns(text string) []string {
	seen := make(map[string]bool)
	var out []string

	for _, pat := range candidatePatterns {
		for _, match := range pat.FindAllString(text, -1) {
			norm := strings.ToLower(strings.TrimSpace(match))
			if norm == "" || seen[norm] {
				continue
			}
			if stopwords[norm] {
				continue
			}
			seen[norm] = true
			out = append(out, norm)
		}
	}
	return out
}

// stopwords excludes common function words the lowercase-word pattern
// would otherwise surface as spurious candidates.
var stopwords = map[string]bool{
	"that": true, "this": true, "with": true, "from": true, "into": true,
	"such": true, "when": true, "then": true, "than": true, "what": true,
	"each": true, "they": true, "them": true, "were": true, "have": true,
	"been": true, "will": true, "your": true, "which": true, "about": true,
	"there": true, "these": true, "those": true, "would": true, "could": true,
	"should": true, "their": true,
}
