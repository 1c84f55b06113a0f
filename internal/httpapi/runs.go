package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/genglossary/genglossary/internal/apperr"
	"github.com/genglossary/genglossary/internal/runs"
)

type startRunRequest struct {
	Scope       string `json:"scope"`
	TriggeredBy string `json:"triggered_by"`
}

// handleStartRun implements spec §4.8: POST /projects/{id}/runs {scope} →
// 201 with the run record, or 409 AlreadyRunning.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	project, err := s.reg.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validationf("malformed request body: %v", err))
		return
	}
	triggeredBy := req.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "api"
	}

	manager, _ := s.managerFor(project)
	run, err := manager.StartRun(r.Context(), runs.Scope(req.Scope), triggeredBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

// handleCancelRun implements DELETE /projects/{id}/runs/{run_id} → 200,
// idempotent: cancelling an already-terminal run is a success no-op
// (spec §4.8).
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	project, err := s.reg.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	runID, err := strconv.ParseInt(r.PathValue("run_id"), 10, 64)
	if err != nil {
		writeError(w, apperr.Validationf("invalid run_id %q", r.PathValue("run_id")))
		return
	}

	manager, _ := s.managerFor(project)
	if err := manager.Cancel(r.Context(), runID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleCurrentRun implements GET /projects/{id}/runs/current.
func (s *Server) handleCurrentRun(w http.ResponseWriter, r *http.Request) {
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

	run, err := (runs.Repo{}).GetCurrentOrLatest(r.Context(), conn.DB)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleRunLogs implements GET /projects/{id}/runs/{run_id}/logs as a
// Server-Sent Events stream, terminating with a "complete" event when the
// worker appends the terminal marker (spec §4.8). One goroutine per
// subscriber drains its logbus subscription, matching the "narrow
// adapter" framing — no router middleware stack.
func (s *Server) handleRunLogs(w http.ResponseWriter, r *http.Request) {
	project, err := s.reg.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	runID, err := strconv.ParseInt(r.PathValue("run_id"), 10, 64)
	if err != nil {
		writeError(w, apperr.Validationf("invalid run_id %q", r.PathValue("run_id")))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperr.Wrap(apperr.KindInternal, "streaming unsupported", nil))
		return
	}

	_, bus := s.managerFor(project)
	ch, unsubscribe := bus.Subscribe(runID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			eventName := "log"
			if event.Complete {
				eventName = "complete"
			}
			data, _ := json.Marshal(event)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName, data)
			flusher.Flush()
			if event.Complete {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
