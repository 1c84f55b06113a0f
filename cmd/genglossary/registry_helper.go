package main

import (
	"context"

	"github.com/genglossary/genglossary/internal/registry"
)

// openRegistry opens the Registry DB at the --registry-db / --projects-dir
// flags, bootstrapping both on first use (mirrors registry.Open's own
// idempotent bootstrap).
func openRegistry(ctx context.Context) (*registry.Registry, error) {
	return registry.Open(ctx, registryDBPath, projectsDir)
}
