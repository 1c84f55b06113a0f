// Package repo implements per-table CRUD over a project DB. Every
// function takes a store.Querier (via store.FromContext) rather than
// opening its own transaction — callers provide the transaction boundary
// (spec §4.2, "no function commits or rolls back").
package repo

// termListTables whitelists the table-parameterized pair used by the
// generic excluded/required repository (spec §4.2).
var termListTables = map[string]bool{
	"terms_excluded": true,
	"terms_required": true,
}

// glossaryTables whitelists the table-parameterized pair used by the
// generic provisional/refined glossary repository.
var glossaryTables = map[string]bool{
	"glossary_provisional": true,
	"glossary_refined":     true,
}

// batchInsertTables is the full whitelist passed to store.BatchInsert by
// every repository in this package.
var batchInsertTables = map[string]bool{
	"documents":            true,
	"terms_extracted":      true,
	"terms_excluded":       true,
	"terms_required":       true,
	"glossary_provisional": true,
	"glossary_refined":     true,
	"glossary_issues":      true,
	"term_synonym_groups":  true,
	"term_synonym_members": true,
}
