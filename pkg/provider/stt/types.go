package stt

import "time"

// Result represents a complete batch transcription of one recording.
// It mirrors the verbose-JSON response shape of common transcription APIs:
// a full concatenated text plus the ordered segments it was assembled from.
type Result struct {
	// Text is the full transcribed text of the recording, as concatenated by
	// the engine. May differ from the join of Segments when the engine applies
	// its own spacing rules.
	Text string

	// Language is the detected or requested language code (e.g., "ja", "en").
	// Empty when the backend does not report it.
	Language string

	// Duration is the length of the transcribed audio. Zero when the backend
	// does not report it.
	Duration time.Duration

	// Segments is the ordered list of transcription segments, in chronological
	// emission order. May be empty for backends that only return full text.
	Segments []Segment
}

// Segment is one unit of a multi-segment transcription result, as chunked by
// the engine.
type Segment struct {
	// ID is the zero-based segment index assigned by the engine.
	ID int

	// Text is the transcribed text of this segment.
	Text string

	// Start and End delimit the segment within the recording.
	Start time.Duration
	End   time.Duration

	// NoSpeechProb is the engine's estimate of the probability that this
	// segment contains no actual speech (0.0–1.0). Zero when the backend does
	// not report it.
	NoSpeechProb float64

	// AvgLogProb is the mean log-probability of the segment's tokens. Values
	// near zero indicate high decoder confidence. Zero when not reported.
	AvgLogProb float64
}
