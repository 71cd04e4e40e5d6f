package whisper

import "encoding/binary"

// floatSamples turns interleaved little-endian int16 PCM into the mono
// float32 stream the whisper bindings consume, normalised to [-1, 1].
// Multi-channel input is downmixed by averaging the channels of each frame;
// a trailing partial frame is dropped.
func floatSamples(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			s := int16(binary.LittleEndian.Uint16(pcm[(i*channels+ch)*2:]))
			sum += float32(s) / 32768.0
		}
		out[i] = sum / float32(channels)
	}
	return out
}
