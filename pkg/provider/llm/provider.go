// Package llm defines the interface the coaching engine uses to talk to a
// language model, whatever is actually behind it — the OpenAI API, a hosted
// Anthropic or Gemini model through any-llm, or a local Ollama instance.
//
// Implementations must be safe for concurrent use; several players can be in
// a coaching session at once.
package llm

import (
	"context"

	"github.com/hmori/gamecoach/pkg/types"
)

// Usage is the token accounting a backend reports for one exchange. Counts
// are in the model's own token unit and are not comparable across providers.
type Usage struct {
	PromptTokens     int
	CompletionTokens int

	// TotalTokens is the sum of the other two; some backends report it
	// directly.
	TotalTokens int
}

// CompletionRequest is one coaching exchange to send to the model.
// Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the conversation so far, oldest first. The final entry is
	// the player's current question.
	Messages []types.Message

	// SystemPrompt carries the coach persona and the retrieved guide
	// passages. Providers with a dedicated system slot use it; the rest
	// prepend it as a system-role message.
	SystemPrompt string

	// Temperature in [0.0, 2.0]; zero asks for greedy decoding.
	Temperature float64

	// MaxTokens caps the reply length. Zero means the provider default.
	MaxTokens int
}

// Chunk is one fragment of a streaming reply.
type Chunk struct {
	// Text is the incremental reply text. Empty on a final chunk that only
	// carries a finish reason.
	Text string

	// FinishReason is empty on intermediate chunks. On the last chunk it is
	// "stop", "length" (MaxTokens hit), or "error" for a mid-stream failure.
	FinishReason string
}

// CompletionResponse is the blocking counterpart of a chunk stream.
type CompletionResponse struct {
	// Content is the model's full reply.
	Content string

	Usage Usage
}

// Provider abstracts one LLM backend.
//
// All methods must tolerate concurrent callers and honor context
// cancellation.
type Provider interface {
	// StreamCompletion starts a completion and returns a channel of reply
	// fragments. The implementation closes the channel when the reply is
	// complete or ctx is cancelled; callers must drain it. Failures before
	// the stream starts surface as the error return; mid-stream failures
	// arrive as a chunk with FinishReason "error".
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete runs the request to completion and returns the whole reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how many tokens messages occupy in this model's
	// context window. The estimate may be rough but must not undercount,
	// since the coaching engine trims history against it.
	CountTokens(messages []types.Message) (int, error)

	// Capabilities describes the underlying model. The result is constant
	// for the provider's lifetime.
	Capabilities() types.ModelCapabilities
}
