// Package domain holds the plain data types shared by the repo, executor,
// and httpapi layers — no behavior, just the shapes from spec §3.
package domain

// Document is one row of the documents table (spec §3).
type Document struct {
	ID          int64
	FileName    string
	Content     string
	ContentHash string
}

// TermExtracted is one row of terms_extracted.
type TermExtracted struct {
	ID        int64
	TermText  string
	Category  *string
	UserNotes string
}

// TermSource distinguishes how a terms_excluded/terms_required row was
// added, per spec §3.
type TermSource string

const (
	SourceAuto   TermSource = "auto"
	SourceManual TermSource = "manual"
)

// TermListItem is a row shape shared by terms_excluded and terms_required
// (spec §4.2 "two generic repositories").
type TermListItem struct {
	ID        int64
	TermText  string
	Source    TermSource
	CreatedAt string
}

// Occurrence records where a term appeared in the source documents.
type Occurrence struct {
	DocumentPath string `json:"document_path"`
	LineNumber   int    `json:"line_number"`
	Context      string `json:"context"`
}

// GlossaryEntry is a row shape shared by glossary_provisional and
// glossary_refined.
type GlossaryEntry struct {
	ID          int64
	TermName    string
	Definition  string
	Confidence  float64
	Occurrences []Occurrence
}

// IssueType enumerates glossary_issues.issue_type.
type IssueType string

const (
	IssueUnclear         IssueType = "unclear"
	IssueContradiction   IssueType = "contradiction"
	IssueMissingRelation IssueType = "missing_relation"
	IssueUnnecessary     IssueType = "unnecessary"
)

// GlossaryIssue is one row of glossary_issues.
type GlossaryIssue struct {
	ID              int64
	TermName        string
	IssueType       IssueType
	Description     string
	ShouldExclude   bool
	ExclusionReason *string
}

// SynonymGroup is one row of term_synonym_groups, with its members loaded.
type SynonymGroup struct {
	ID              int64
	PrimaryTermText string
	Members         []string
}

// UnifiedTerm is a row produced by ListAllTerms: the union of
// terms_extracted and terms_required minus terms_excluded (unless also
// required), per spec §4.2. Required-only rows carry a negative
// synthetic ID so callers can distinguish them from extracted rows.
type UnifiedTerm struct {
	ID       int64
	TermText string
	Category *string
	Required bool
}
