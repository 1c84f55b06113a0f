package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/genglossary/genglossary/internal/apperr"
	"github.com/genglossary/genglossary/internal/clock"
	"github.com/genglossary/genglossary/internal/store"
)

// Metadata is the single-row (id=1) repository for the metadata table
// (spec §3: "never has more than one row").
type Metadata struct{}

type MetadataRow struct {
	InputPath   string
	LLMProvider string
	LLMModel    string
	LLMBaseURL  string
}

// Upsert overwrites the single metadata row, matching "created/overwritten
// on first generation".
func (Metadata) Upsert(ctx context.Context, q store.Querier, m MetadataRow) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO metadata (id, input_path, llm_provider, llm_model, llm_base_url, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			input_path = excluded.input_path,
			llm_provider = excluded.llm_provider,
			llm_model = excluded.llm_model,
			llm_base_url = excluded.llm_base_url,
			updated_at = excluded.updated_at
	`, m.InputPath, m.LLMProvider, m.LLMModel, m.LLMBaseURL, clock.MustFormat(clock.NowUTC()))
	if err != nil {
		return fmt.Errorf("upserting metadata: %w", err)
	}
	return nil
}

func (Metadata) Get(ctx context.Context, q store.Querier) (*MetadataRow, error) {
	row := q.QueryRowContext(ctx, `SELECT input_path, llm_provider, llm_model, llm_base_url FROM metadata WHERE id = 1`)
	m := &MetadataRow{}
	if err := row.Scan(&m.InputPath, &m.LLMProvider, &m.LLMModel, &m.LLMBaseURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFoundf("metadata not set")
		}
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	return m, nil
}
