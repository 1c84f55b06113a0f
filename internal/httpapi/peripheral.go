package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/genglossary/genglossary/internal/apperr"
	"github.com/genglossary/genglossary/internal/docloader"
	"github.com/genglossary/genglossary/internal/mdexport"
	"github.com/genglossary/genglossary/internal/repo"
)

var validGlossaryTables = map[string]bool{
	"glossary_provisional": true,
	"glossary_refined":     true,
}

// handleListFiles is the read-only peripheral endpoint over the
// documents table (spec §6).
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	project, err := s.reg.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	conn, err := openProjectConn(r, project)
	if err != nil {
		writeError(w, err)
		return
	}
	defer conn.Close()

	docs, err := (repo.Documents{}).List(r.Context(), conn.DB)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

type createFileRequest struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

// handleCreateFile ingests one document via the API, the write
// counterpart to handleListFiles (spec §3, §8 scenario 6). file_name is
// validated before anything touches the database: absolute paths, drive
// letters, backslashes, and ".." segments are rejected with 400 and no
// row is written.
func (s *Server) handleCreateFile(w http.ResponseWriter, r *http.Request) {
	var body createFileRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.Validationf("malformed request body: %v", err))
		return
	}

	cleanName, err := docloader.ValidateFileName(body.FileName)
	if err != nil {
		writeError(w, err)
		return
	}

	project, err := s.reg.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	conn, err := openProjectConn(r, project)
	if err != nil {
		writeError(w, err)
		return
	}
	defer conn.Close()

	doc, err := (repo.Documents{}).Create(r.Context(), conn.DB, cleanName, body.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// handleListTerms is the read-only peripheral endpoint over
// list_all_terms (spec §4.2/§4.6).
func (s *Server) handleListTerms(w http.ResponseWriter, r *http.Request) {
	project, err := s.reg.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	conn, err := openProjectConn(r, project)
	if err != nil {
		writeError(w, err)
		return
	}
	defer conn.Close()

	terms, err := (repo.TermLists{}).ListAllTerms(r.Context(), conn.DB)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, terms)
}

// handleListGlossary is the read-only peripheral endpoint over either
// glossary table, returned as JSON.
func (s *Server) handleListGlossary(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	if !validGlossaryTables[table] {
		writeError(w, apperr.Validationf("unknown glossary table %q", table))
		return
	}

	project, err := s.reg.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	conn, err := openProjectConn(r, project)
	if err != nil {
		writeError(w, err)
		return
	}
	defer conn.Close()

	entries, err := (repo.Glossary{}).List(r.Context(), conn.DB, table)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleExportGlossary is the one endpoint that returns Markdown instead
// of JSON (spec §6).
func (s *Server) handleExportGlossary(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")
	if !validGlossaryTables[table] {
		writeError(w, apperr.Validationf("unknown glossary table %q", table))
		return
	}

	project, err := s.reg.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	conn, err := openProjectConn(r, project)
	if err != nil {
		writeError(w, err)
		return
	}
	defer conn.Close()

	entries, err := (repo.Glossary{}).List(r.Context(), conn.DB, table)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := mdexport.Render(w, entries); err != nil {
		s.log.Error("writing markdown export", "error", err)
	}
}
