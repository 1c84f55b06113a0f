// Package httpapi implements the narrow HTTP boundary from spec §4.8
// plus the read-only peripheral endpoints named in §6 (files, terms,
// glossary tables, project CRUD). It is built on net/http's ServeMux with
// method-aware patterns, matching the stdlib-first style of the teacher's
// examples/monitor-webui — no third-party router is introduced, since the
// Non-goals explicitly exclude deep HTTP-layer engineering.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/genglossary/genglossary/internal/apperr"
	"github.com/genglossary/genglossary/internal/llm"
	"github.com/genglossary/genglossary/internal/logbus"
	"github.com/genglossary/genglossary/internal/registry"
	"github.com/genglossary/genglossary/internal/runmanager"
)

// Server is the narrow HTTP boundary over one Registry. Each project gets
// its own lazily-created Run Manager and Log Bus, since a Manager owns
// the single-active-run invariant for exactly one project DB.
type Server struct {
	reg *registry.Registry
	log *slog.Logger

	mu       sync.Mutex
	managers map[string]*runmanager.Manager
	buses    map[string]*logbus.Bus

	logSink func(project string, event logbus.Event)
}

// New constructs a Server backed by reg.
func New(reg *registry.Registry, log *slog.Logger) *Server {
	return &Server{
		reg:      reg,
		log:      log,
		managers: make(map[string]*runmanager.Manager),
		buses:    make(map[string]*logbus.Bus),
	}
}

// SetLogSink installs fn to receive every Log Bus event across every
// project this Server serves, in addition to the per-run SSE fan-out.
// `genglossary serve` uses this to mirror events into one JSONL file
// independent of whether any SSE client is attached (spec §6).
func (s *Server) SetLogSink(fn func(project string, event logbus.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logSink = fn
}

// Handler builds the ServeMux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /projects", s.handleCreateProject)
	mux.HandleFunc("GET /projects", s.handleListProjects)
	mux.HandleFunc("GET /projects/{id}", s.handleGetProject)
	mux.HandleFunc("DELETE /projects/{id}", s.handleDeleteProject)
	mux.HandleFunc("POST /projects/{id}/clone", s.handleCloneProject)

	mux.HandleFunc("POST /projects/{id}/runs", s.handleStartRun)
	mux.HandleFunc("DELETE /projects/{id}/runs/{run_id}", s.handleCancelRun)
	mux.HandleFunc("GET /projects/{id}/runs/current", s.handleCurrentRun)
	mux.HandleFunc("GET /projects/{id}/runs/{run_id}/logs", s.handleRunLogs)

	mux.HandleFunc("GET /projects/{id}/files", s.handleListFiles)
	mux.HandleFunc("POST /projects/{id}/files", s.handleCreateFile)
	mux.HandleFunc("GET /projects/{id}/terms", s.handleListTerms)
	mux.HandleFunc("GET /projects/{id}/glossary/{table}", s.handleListGlossary)
	mux.HandleFunc("GET /projects/{id}/glossary/{table}/export", s.handleExportGlossary)

	return mux
}

// managerFor returns the Manager and Bus for project, creating them on
// first use. Safe for concurrent callers.
func (s *Server) managerFor(p *registry.Project) (*runmanager.Manager, *logbus.Bus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.managers[p.DBPath]; ok {
		return m, s.buses[p.DBPath]
	}

	bus := logbus.New()
	if s.logSink != nil {
		name := p.Name
		sink := s.logSink
		bus.SetSink(func(e logbus.Event) { sink(name, e) })
	}
	cfg := llm.Config{Provider: p.LLMProvider, Model: p.LLMModel, BaseURL: p.LLMBaseURL}
	m := runmanager.New(p.DBPath, bus, cfg)
	s.managers[p.DBPath] = m
	s.buses[p.DBPath] = bus
	return m, bus
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps an apperr.Kind to the REST status conventions of
// spec §6/§7: 404 not found, 409 conflict (constraint/already-running),
// 400 validation, 503 LLM unavailable, 500 otherwise. Cancelled never
// reaches this function — it is translated to a run status, not an HTTP
// error (spec §7).
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConstraintViolation, apperr.KindAlreadyRunning:
		status = http.StatusConflict
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindLLMUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
