// Package embeddings defines the interface the strategy-guide index uses to
// turn text into vectors. Guide passages are embedded once at ingest and
// player questions at query time; pgvector ranks passages by cosine distance
// between the two.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider abstracts one embedding backend.
//
// Every vector a single Provider returns has the same length, reported by
// Dimensions. Vectors from different providers (or different models of the
// same provider) live in different spaces; the guide store records the model
// alongside its index and refuses to mix them.
type Provider interface {
	// Embed returns the vector for one text. The text is passed to the model
	// verbatim; any prompt prefix the model wants ("query: ", "passage: ")
	// is the caller's job.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in one backend call, result[i] matching
	// texts[i]. It is all-or-nothing: on error no partial vectors are
	// returned. Ingest uses this to push whole guide sections at once.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the length of every vector this provider produces,
	// constant for the provider's lifetime.
	Dimensions() int

	// ModelID names the underlying model, e.g. "text-embedding-3-small".
	// The guide store persists it next to the index.
	ModelID() string
}
