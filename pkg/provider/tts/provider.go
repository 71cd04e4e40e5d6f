// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., a local VOICEVOX
// engine) and presents both a batch and a streaming interface. The streaming
// entry point, SynthesizeStream, accepts a channel of text fragments and
// returns a channel of raw PCM audio bytes as they become available — enabling
// low-latency pipelining between streaming LLM output and audio playback in
// the client.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis requests
// may run in parallel (e.g., coaching replies for several players at once).
type Provider interface {
	// Synthesize renders the complete text as raw 16-bit little-endian mono PCM
	// and returns it in one slice. Use this for short utterances where the
	// caller needs the whole clip before playback starts.
	//
	// voice selects the voice to synthesise with. Providers should return an
	// error if the requested voice is not available.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)

	// SynthesizeStream consumes text fragments from the text channel and returns
	// a channel that emits raw PCM audio byte slices as they are synthesised.
	// This design allows the caller to pipe streaming LLM output directly into
	// synthesis without waiting for the full text to be available.
	//
	// The returned audio channel is closed by the implementation when all text
	// has been synthesised or when ctx is cancelled. The caller must drain the
	// audio channel to avoid blocking the provider's internal goroutines.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// encountered during synthesis are signalled by closing the audio channel
	// early; callers should check ctx.Err() to distinguish cancellation from
	// provider errors.
	SynthesizeStream(ctx context.Context, text <-chan string, voice VoiceProfile) (<-chan []byte, error)

	// ListVoices returns all voice profiles available from this provider. The
	// list reflects the provider's current catalogue and may change between
	// calls if the underlying service adds or removes voices.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
