// Package mock provides an in-memory test double for the guide.Store and
// guide.Retriever interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/hmori/gamecoach/internal/guide"
)

// Store is a mock implementation of guide.Store. Passages are held in memory;
// Search returns SearchResults verbatim rather than computing distances.
type Store struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// IndexErr, if non-nil, is returned as the error from IndexPassage.
	IndexErr error

	// SearchResults is returned by Search.
	SearchResults []guide.PassageResult

	// SearchErr, if non-nil, is returned as the error from Search.
	SearchErr error

	// DeleteGameErr, if non-nil, is returned as the error from DeleteGame.
	DeleteGameErr error

	// --- Call records ---

	// Indexed records every passage passed to IndexPassage in order.
	Indexed []guide.Passage

	// SearchCalls records the filter and topK of every Search call in order.
	SearchCalls []SearchCall

	// DeletedGames records every gameID passed to DeleteGame in order.
	DeletedGames []string
}

// SearchCall records a single invocation of Search.
type SearchCall struct {
	// Embedding is the query vector passed to Search.
	Embedding []float32
	// TopK is the result limit passed to Search.
	TopK int
	// Filter is the filter passed to Search.
	Filter guide.Filter
}

// IndexPassage records the passage and returns IndexErr.
func (s *Store) IndexPassage(_ context.Context, p guide.Passage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.IndexErr != nil {
		return s.IndexErr
	}
	s.Indexed = append(s.Indexed, p)
	return nil
}

// Search records the call and returns SearchResults, SearchErr.
func (s *Store) Search(_ context.Context, embedding []float32, topK int, filter guide.Filter) ([]guide.PassageResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	s.SearchCalls = append(s.SearchCalls, SearchCall{Embedding: vec, TopK: topK, Filter: filter})
	return s.SearchResults, s.SearchErr
}

// DeleteGame records the call and returns DeleteGameErr.
func (s *Store) DeleteGame(_ context.Context, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteGameErr != nil {
		return s.DeleteGameErr
	}
	s.DeletedGames = append(s.DeletedGames, gameID)
	return nil
}

// Ensure Store implements guide.Store at compile time.
var _ guide.Store = (*Store)(nil)

// Retriever is a mock implementation of guide.Retriever.
type Retriever struct {
	mu sync.Mutex

	// RetrieveResults is returned by Retrieve.
	RetrieveResults []guide.PassageResult

	// RetrieveErr, if non-nil, is returned as the error from Retrieve.
	RetrieveErr error

	// RetrieveCalls records every invocation of Retrieve in order.
	RetrieveCalls []RetrieveCall
}

// RetrieveCall records a single invocation of Retrieve.
type RetrieveCall struct {
	GameID string
	Query  string
	TopK   int
}

// Retrieve records the call and returns RetrieveResults, RetrieveErr.
func (r *Retriever) Retrieve(_ context.Context, gameID, query string, topK int) ([]guide.PassageResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.RetrieveCalls = append(r.RetrieveCalls, RetrieveCall{GameID: gameID, Query: query, TopK: topK})
	return r.RetrieveResults, r.RetrieveErr
}

// Ensure Retriever implements guide.Retriever at compile time.
var _ guide.Retriever = (*Retriever)(nil)
