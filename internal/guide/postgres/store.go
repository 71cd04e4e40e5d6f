// Package postgres provides the PostgreSQL-backed guide.Store implementation.
//
// Passages live in a single table with a pgvector column; nearest-neighbour
// retrieval uses an HNSW index with cosine distance. The pgvector extension
// must be available in the target database; [Migrate] installs it via
// CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
//
//	svc := guide.NewService(store, embedder)
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/hmori/gamecoach/internal/guide"
)

// Compile-time interface check.
var _ guide.Store = (*Store)(nil)

// Store is the PostgreSQL-backed passage index. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and runs
// [Migrate] to ensure the passage table and extension exist.
//
// embeddingDimensions must match the output dimension of the embedding model
// used to produce [guide.Passage.Embedding] values (e.g., 1536 for OpenAI
// text-embedding-3-small). Changing this value after the first migration
// requires a manual schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("guide store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("guide store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("guide store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("guide store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// IndexPassage implements [guide.Store]. It upserts a pre-embedded passage;
// an existing passage with the same ID is completely replaced.
func (s *Store) IndexPassage(ctx context.Context, p guide.Passage) error {
	const q = `
		INSERT INTO guide_passages
		    (id, game_id, section, content, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
		    game_id    = EXCLUDED.game_id,
		    section    = EXCLUDED.section,
		    content    = EXCLUDED.content,
		    embedding  = EXCLUDED.embedding,
		    updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, q,
		p.ID,
		p.GameID,
		p.Section,
		p.Content,
		pgvector.NewVector(p.Embedding),
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("guide store: index passage: %w", err)
	}
	return nil
}

// Search implements [guide.Store]. It finds the topK passages whose
// embeddings are closest (cosine distance) to the supplied query embedding,
// optionally filtered by filter.
//
// Results are ordered by ascending cosine distance (most similar first).
func (s *Store) Search(ctx context.Context, embedding []float32, topK int, filter guide.Filter) ([]guide.PassageResult, error) {
	args := []any{pgvector.NewVector(embedding)} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if filter.GameID != "" {
		conditions = append(conditions, "game_id = "+next(filter.GameID))
	}
	if filter.Section != "" {
		conditions = append(conditions, "section = "+next(filter.Section))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, "\n  AND ")
	}

	args = append(args, topK)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT id, game_id, section, content, embedding, updated_at,
		       embedding <=> $1 AS distance
		FROM   guide_passages
		%s
		ORDER  BY distance
		LIMIT  %s`, whereClause, limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("guide store: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (guide.PassageResult, error) {
		var (
			pr  guide.PassageResult
			vec pgvector.Vector
		)
		if err := row.Scan(
			&pr.Passage.ID,
			&pr.Passage.GameID,
			&pr.Passage.Section,
			&pr.Passage.Content,
			&vec,
			&pr.Passage.UpdatedAt,
			&pr.Distance,
		); err != nil {
			return guide.PassageResult{}, err
		}
		pr.Passage.Embedding = vec.Slice()
		return pr, nil
	})
	if err != nil {
		return nil, fmt.Errorf("guide store: scan rows: %w", err)
	}
	if results == nil {
		results = []guide.PassageResult{}
	}
	return results, nil
}

// DeleteGame implements [guide.Store]. It removes every passage belonging to
// gameID.
func (s *Store) DeleteGame(ctx context.Context, gameID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM guide_passages WHERE game_id = $1`, gameID); err != nil {
		return fmt.Errorf("guide store: delete game %s: %w", gameID, err)
	}
	return nil
}
