// Package types holds the small set of types shared across provider packages
// and the coaching engine. Keeping them here avoids import cycles between
// pkg/provider/llm and the packages that consume it.
package types

// Message is one turn of an LLM conversation.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// ModelCapabilities is static metadata about the model behind a provider.
// The coaching engine uses ContextWindow to budget how much conversation
// history it keeps per player.
type ModelCapabilities struct {
	// ContextWindow is the model's maximum combined input+output token count.
	ContextWindow int

	// MaxOutputTokens caps a single completion.
	MaxOutputTokens int

	// SupportsStreaming reports whether the backend can stream partial
	// completions. Providers without it buffer the full reply and emit it as
	// one chunk, which disables sentence-by-sentence voice synthesis.
	SupportsStreaming bool
}
