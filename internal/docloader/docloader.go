// Package docloader implements the DB-first, filesystem-fallback document
// loading path from spec §4.6.1: GUI-uploaded documents in the `documents`
// table win if present; otherwise the configured doc_root is walked for
// allowed, safely-pathed files and ingested into that same table. The
// path-traversal and extension/size/denylist checks generalize the
// teacher's fsnotify watcher's own filtering (cmd/bd/daemon_watcher.go)
// and the cross-process directory discipline seen throughout cmd/bd.
package docloader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/genglossary/genglossary/internal/apperr"
	"github.com/genglossary/genglossary/internal/domain"
	"github.com/genglossary/genglossary/internal/repo"
	"github.com/genglossary/genglossary/internal/store"
)

// MaxFileSize is the default per-file cap (spec §6 "~5 MB by default").
const MaxFileSize = 5 * 1024 * 1024

var allowedExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// isDenylisted rejects credential-shaped file names regardless of
// extension: `.env`, `*.key`, `*.pem`, `credentials*`, `.git*` (spec §6).
func isDenylisted(name string) bool {
	lower := strings.ToLower(name)
	switch {
	case lower == ".env":
		return true
	case strings.HasSuffix(lower, ".key"):
		return true
	case strings.HasSuffix(lower, ".pem"):
		return true
	case strings.HasPrefix(lower, "credentials"):
		return true
	case strings.HasPrefix(lower, ".git"):
		return true
	default:
		return false
	}
}

// ValidateFileName enforces the documents.file_name invariant at the API
// boundary (spec §3): absolute paths, drive letters, backslashes, and
// ".." segments are rejected; a clean POSIX-relative path is returned.
// This is the boundary check the walk in loadFromDisk cannot stand in
// for, since WalkDir never produces a ".."-escaping path in the first
// place.
func ValidateFileName(name string) (string, error) {
	if name == "" {
		return "", apperr.Validationf("file_name is required")
	}
	if strings.ContainsRune(name, '\\') {
		return "", apperr.Validationf("file_name %q must use forward slashes", name)
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", apperr.Validationf("file_name %q must be a relative path", name)
	}
	if len(name) >= 2 && name[1] == ':' {
		return "", apperr.Validationf("file_name %q must not include a drive letter", name)
	}

	clean := path.Clean(name)
	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." {
			return "", apperr.Validationf("file_name %q must not contain \"..\" segments", name)
		}
	}
	if clean == "." || strings.HasPrefix(clean, "../") || clean == ".." {
		return "", apperr.Validationf("file_name %q must not escape doc_root", name)
	}
	return clean, nil
}

// Load implements spec §4.6.1's three-step procedure: DB rows win if
// present; otherwise walk docRoot and ingest matching files; otherwise
// fail. It returns the document set the executor should operate on.
func Load(ctx context.Context, conn *store.Connection, docRoot string) ([]*domain.Document, error) {
	docs := repo.Documents{}

	existing, err := docs.List(ctx, conn.DB)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	if docRoot == "" {
		return nil, apperr.Validationf("no documents in the project and no doc_root configured")
	}

	loaded, err := loadFromDisk(docRoot)
	if err != nil {
		return nil, err
	}
	if len(loaded) == 0 {
		return nil, apperr.Validationf("doc_root %q contains no eligible files", docRoot)
	}

	if err := docs.CreateBatch(ctx, conn.DB, loaded); err != nil {
		return nil, err
	}
	return docs.List(ctx, conn.DB)
}

// loadFromDisk walks docRoot, computing a POSIX-relative path for every
// eligible file and verifying the resolved path never escapes docRoot.
func loadFromDisk(docRoot string) ([]domain.Document, error) {
	absRoot, err := filepath.Abs(docRoot)
	if err != nil {
		return nil, apperr.Validationf("resolving doc_root %q: %v", docRoot, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil || !info.IsDir() {
		return nil, apperr.Validationf("doc_root %q is not a valid directory", docRoot)
	}

	var out []domain.Document
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return fmt.Errorf("computing relative path for %s: %w", path, err)
		}
		if strings.HasPrefix(relPath, "..") {
			// WalkDir never yields paths outside absRoot, but guard the
			// invariant explicitly rather than trusting that alone.
			return apperr.Validationf("resolved path %q escapes doc_root", path)
		}

		name := d.Name()
		if isDenylisted(name) {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(name))
		if !allowedExtensions[ext] {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat-ing %s: %w", path, err)
		}
		if fi.Size() > MaxFileSize {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		out = append(out, domain.Document{
			FileName: filepath.ToSlash(relPath),
			Content:  string(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
