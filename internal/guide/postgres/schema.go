package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlGuidePassages returns the passage table DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlGuidePassages(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS guide_passages (
    id          TEXT         PRIMARY KEY,
    game_id     TEXT         NOT NULL,
    section     TEXT         NOT NULL DEFAULT '',
    content     TEXT         NOT NULL,
    embedding   vector(%d),
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_guide_passages_game_id
    ON guide_passages (game_id);

CREATE INDEX IF NOT EXISTS idx_guide_passages_game_section
    ON guide_passages (game_id, section);

CREATE INDEX IF NOT EXISTS idx_guide_passages_embedding
    ON guide_passages USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures the passage table and pgvector extension exist.
// It is idempotent and safe to call on every application start.
//
// embeddingDimensions must match the vector model configured for your
// deployment (e.g., 1536 for OpenAI text-embedding-3-small, 768 for
// nomic-embed-text). Changing this value after the first migration requires a
// manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlGuidePassages(embeddingDimensions)); err != nil {
		return fmt.Errorf("guide migrate: %w", err)
	}
	return nil
}
