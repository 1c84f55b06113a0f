package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/genglossary/genglossary/internal/apperr"
)

type createProjectRequest struct {
	Name        string `json:"name"`
	DocRoot     string `json:"doc_root"`
	LLMProvider string `json:"llm_provider"`
	LLMModel    string `json:"llm_model"`
	LLMBaseURL  string `json:"llm_base_url"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validationf("malformed request body: %v", err))
		return
	}
	if req.Name == "" || req.DocRoot == "" {
		writeError(w, apperr.Validationf("name and doc_root are required"))
		return
	}

	project, err := s.reg.Create(r.Context(), req.Name, req.DocRoot, req.LLMProvider, req.LLMModel, req.LLMBaseURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.reg.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.reg.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.reg.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type cloneProjectRequest struct {
	NewName string `json:"new_name"`
}

func (s *Server) handleCloneProject(w http.ResponseWriter, r *http.Request) {
	var req cloneProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validationf("malformed request body: %v", err))
		return
	}
	if req.NewName == "" {
		writeError(w, apperr.Validationf("new_name is required"))
		return
	}

	project, err := s.reg.Clone(r.Context(), r.PathValue("id"), req.NewName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}
