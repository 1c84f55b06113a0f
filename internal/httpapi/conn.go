package httpapi

import (
	"net/http"

	"github.com/genglossary/genglossary/internal/registry"
	"github.com/genglossary/genglossary/internal/store"
)

// openProjectConn opens a fresh connection to project's DB for the
// lifetime of one request. API handlers never share a connection with
// the worker (spec §5 "Connections").
func openProjectConn(r *http.Request, project *registry.Project) (*store.Connection, error) {
	return store.Open(r.Context(), project.DBPath)
}
