// Package guide manages the strategy-guide knowledge base that grounds
// coaching replies.
//
// Guide content (map callouts, agent ability notes, economy rules, community
// strategy write-ups) is ingested as free text, split into passages, embedded,
// and stored in a vector index. At coaching time the player's question is
// embedded and the closest passages are retrieved and injected into the LLM
// prompt, so the coach answers from the actual guide instead of model
// folklore.
package guide

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hmori/gamecoach/pkg/provider/embeddings"
)

// indexConcurrency bounds parallel IndexPassage calls during an ingest.
const indexConcurrency = 4

// Passage is one indexed unit of guide content with its embedding.
type Passage struct {
	// ID uniquely identifies the passage. Ingest derives it from the content
	// hash so re-ingesting unchanged content is an idempotent upsert.
	ID string

	// GameID identifies which game's guide this passage belongs to.
	GameID string

	// Section is the guide section heading the passage came from (e.g.
	// "economy", "map/ascent").
	Section string

	// Content is the passage text.
	Content string

	// Embedding is the passage's embedding vector.
	Embedding []float32

	// UpdatedAt is when the passage was last (re-)indexed.
	UpdatedAt time.Time
}

// PassageResult pairs a retrieved passage with its distance from the query.
type PassageResult struct {
	Passage Passage

	// Distance is the cosine distance between the query and the passage
	// embedding. Lower is more similar.
	Distance float64
}

// Filter narrows a Search to a subset of the index.
type Filter struct {
	// GameID restricts results to one game's guide. Empty matches all games.
	GameID string

	// Section restricts results to one guide section. Empty matches all.
	Section string
}

// Store is the persistence layer for guide passages.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// IndexPassage upserts a pre-embedded passage.
	IndexPassage(ctx context.Context, p Passage) error

	// Search returns the topK passages closest to the query embedding,
	// ordered by ascending distance.
	Search(ctx context.Context, embedding []float32, topK int, filter Filter) ([]PassageResult, error)

	// DeleteGame removes every passage belonging to gameID, e.g. before a
	// full guide re-import.
	DeleteGame(ctx context.Context, gameID string) error
}

// Retriever is the read side of the guide, consumed by the coaching engine.
type Retriever interface {
	// Retrieve embeds query and returns the topK most relevant passages for
	// the given game.
	Retrieve(ctx context.Context, gameID, query string, topK int) ([]PassageResult, error)
}

// Service ties a Store and an embeddings provider together into the full
// ingest/retrieve API. It implements [Retriever].
type Service struct {
	store    Store
	embedder embeddings.Provider
	chunker  *Chunker
}

var _ Retriever = (*Service)(nil)

// NewService creates a guide Service over the given store and embedder.
func NewService(store Store, embedder embeddings.Provider) *Service {
	return &Service{
		store:    store,
		embedder: embedder,
		chunker:  NewChunker(),
	}
}

// Ingest splits text into passages, embeds them in one batch, and upserts
// them into the store. It returns the number of passages indexed.
func (s *Service) Ingest(ctx context.Context, gameID, section, text string) (int, error) {
	if gameID == "" {
		return 0, fmt.Errorf("guide: gameID must not be empty")
	}
	chunks := s.chunker.Split(text)
	if len(chunks) == 0 {
		return 0, nil
	}

	vectors, err := s.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("guide: embed %d passages: %w", len(chunks), err)
	}

	now := time.Now().UTC()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(indexConcurrency)
	for i, content := range chunks {
		p := Passage{
			ID:        passageID(gameID, section, content),
			GameID:    gameID,
			Section:   section,
			Content:   content,
			Embedding: vectors[i],
			UpdatedAt: now,
		}
		g.Go(func() error {
			if err := s.store.IndexPassage(ctx, p); err != nil {
				return fmt.Errorf("guide: index passage %s: %w", p.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// Retrieve implements [Retriever].
func (s *Service) Retrieve(ctx context.Context, gameID, query string, topK int) ([]PassageResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 4
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("guide: embed query: %w", err)
	}

	results, err := s.store.Search(ctx, vec, topK, Filter{GameID: gameID})
	if err != nil {
		return nil, fmt.Errorf("guide: search: %w", err)
	}
	return results, nil
}

// passageID derives a stable passage ID from the content hash, so that
// re-ingesting identical content overwrites rather than duplicates.
func passageID(gameID, section, content string) string {
	h := sha256.Sum256([]byte(gameID + "\x00" + section + "\x00" + content))
	return hex.EncodeToString(h[:16])
}
