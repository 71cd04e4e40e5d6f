package resilience

import (
	"context"

	"github.com/hmori/gamecoach/pkg/provider/llm"
	"github.com/hmori/gamecoach/pkg/types"
)

var _ llm.Provider = (*LLMFallback)(nil)

// LLMFallback chains several coaching-model backends behind one
// [llm.Provider]. A typical chain is a hosted model first and a local Ollama
// model last, so advice keeps flowing when the cloud API is down. Each
// backend sits behind its own circuit breaker.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// NewLLMFallback builds a chain with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends another backend to the end of the chain.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete asks the first healthy backend for a full reply, cascading down
// the chain on failure.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion opens a reply stream on the first healthy backend.
// Failover covers stream setup only; once chunks are flowing, a mid-stream
// error ends that stream rather than restarting on the next backend, since
// the player may already have heard the first half of the answer.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// CountTokens delegates to the first healthy backend's estimator.
func (f *LLMFallback) CountTokens(messages []types.Message) (int, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (int, error) {
		return p.CountTokens(messages)
	})
}

// Capabilities reports the primary backend's limits. History trimming sizes
// itself against the primary; a fallback with a smaller window may still
// truncate on its own side.
func (f *LLMFallback) Capabilities() types.ModelCapabilities {
	return f.group.Primary().Capabilities()
}
