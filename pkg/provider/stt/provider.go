// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription engine (a local whisper.cpp server,
// the in-process whisper.cpp bindings, or a hosted HTTP API) and exposes a
// uniform batch interface: one completed recording in, one [Result] out.
// Recordings in gamecoach are short voice clips captured in the browser, so
// there is no streaming session to manage — the caller accumulates PCM while
// the user holds the record button and submits the whole clip once.
//
// Results carry per-segment no-speech probabilities when the backend reports
// them. Downstream consumers use these to filter out hallucinated text the
// engine emits on silence; see the transcript package.
//
// Implementations must be safe for concurrent use. Multiple recordings may be
// in flight simultaneously (one per connected user).
package stt

import "context"

// Provider is the abstraction over any batch STT backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Transcribe submits a completed recording of raw 16-bit signed
	// little-endian PCM audio and blocks until the engine returns a full
	// transcription. The PCM format (sample rate, channel count) is fixed at
	// provider construction time.
	//
	// Transcribe is invoked exactly once per completed recording. It returns
	// a non-nil *Result on success; a Result with empty Text and no segments
	// means the engine heard nothing. Transient backend failures are retried
	// internally where the implementation supports it; the returned error is
	// terminal from the caller's point of view.
	Transcribe(ctx context.Context, pcm []byte) (*Result, error)
}
