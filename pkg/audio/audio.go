// Package audio provides PCM audio frame types, format conversion, and Opus
// decoding for browser voice streams.
//
// All PCM data in this package is 16-bit signed little-endian. Recordings
// arrive from the browser as 48 kHz Opus packets over WebSocket and are
// decoded and downsampled to the 16 kHz mono format transcription engines
// expect.
package audio

import "time"

// AudioFrame is one chunk of PCM audio with its format attached.
type AudioFrame struct {
	// Data is raw 16-bit signed little-endian PCM.
	Data []byte

	// SampleRate is the sampling frequency in Hz (e.g., 48000).
	SampleRate int

	// Channels is the channel count: 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp is when the frame was captured. Zero when unknown.
	Timestamp time.Time
}
