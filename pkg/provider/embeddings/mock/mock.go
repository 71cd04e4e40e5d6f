// Package mock is a canned-response double for [embeddings.Provider]. Guide
// tests use it to hand the index fixed vectors and to check which passages
// were submitted for embedding, without a live model.
package mock

import (
	"context"
	"sync"

	"github.com/hmori/gamecoach/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// EmbedCall is one recorded Embed invocation.
type EmbedCall struct {
	Ctx  context.Context
	Text string
}

// EmbedBatchCall is one recorded EmbedBatch invocation. Texts is a copy, so
// later mutation by the caller does not corrupt the record.
type EmbedBatchCall struct {
	Ctx   context.Context
	Texts []string
}

// Provider implements [embeddings.Provider] with configurable results.
// Set the response fields before use; call records accumulate under an
// internal lock and are safe to read once the code under test is done.
type Provider struct {
	mu sync.Mutex

	EmbedResult []float32 // returned by Embed
	EmbedErr    error

	EmbedBatchResult [][]float32 // returned by EmbedBatch; nil means one nil vector per text
	EmbedBatchErr    error

	DimensionsValue int
	ModelIDValue    string

	EmbedCalls          []EmbedCall
	EmbedBatchCalls     []EmbedBatchCall
	DimensionsCallCount int
	ModelIDCallCount    int
}

// Embed records the call and returns EmbedResult, EmbedErr.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Ctx: ctx, Text: text})
	return p.EmbedResult, p.EmbedErr
}

// EmbedBatch records the call and returns EmbedBatchResult, EmbedBatchErr.
// With neither set, it returns len(texts) nil vectors so callers that only
// check lengths keep working.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]string, len(texts))
	copy(cp, texts)
	p.EmbedBatchCalls = append(p.EmbedBatchCalls, EmbedBatchCall{Ctx: ctx, Texts: cp})

	if p.EmbedBatchErr != nil {
		return nil, p.EmbedBatchErr
	}
	if p.EmbedBatchResult != nil {
		return p.EmbedBatchResult, nil
	}
	return make([][]float32, len(texts)), nil
}

// Dimensions records the call and returns DimensionsValue.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DimensionsCallCount++
	return p.DimensionsValue
}

// ModelID records the call and returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ModelIDCallCount++
	return p.ModelIDValue
}
