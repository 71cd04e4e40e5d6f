package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	}
	return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
}

// FormatConverter rewrites AudioFrames into a target format, e.g. 48 kHz
// browser audio into the 16 kHz mono that whisper wants. Create one per
// stream; it is not safe for concurrent use.
type FormatConverter struct {
	Target Format

	mismatchOnce sync.Once
	corruptOnce  sync.Once
}

// Convert returns frame rewritten to the target format. A frame already in
// the target format is passed through untouched. Frames whose byte count is
// not a whole number of int16 samples are dropped (empty Data, target
// format), with a warning logged once per converter.
func (c *FormatConverter) Convert(frame AudioFrame) AudioFrame {
	if len(frame.Data)%2 != 0 {
		c.corruptOnce.Do(func() {
			slog.Warn("dropping PCM frame with partial sample",
				"bytes", len(frame.Data),
				"format", Format{frame.SampleRate, frame.Channels})
		})
		return AudioFrame{
			SampleRate: c.Target.SampleRate,
			Channels:   c.Target.Channels,
			Timestamp:  frame.Timestamp,
		}
	}

	src := Format{frame.SampleRate, frame.Channels}
	if src == c.Target {
		return frame
	}
	c.mismatchOnce.Do(func() {
		slog.Warn("converting audio format", "from", src, "to", c.Target)
	})

	// Resample before any channel change so an upmix never doubles the
	// resampling work.
	pcm := Resample16(frame.Data, src.Channels, src.SampleRate, c.Target.SampleRate)
	switch {
	case src.Channels == 1 && c.Target.Channels == 2:
		pcm = MonoToStereo(pcm)
	case src.Channels == 2 && c.Target.Channels == 1:
		pcm = StereoToMono(pcm)
	}

	return AudioFrame{
		Data:       pcm,
		SampleRate: c.Target.SampleRate,
		Channels:   c.Target.Channels,
		Timestamp:  frame.Timestamp,
	}
}

// Resample16 resamples interleaved little-endian int16 PCM from srcRate to
// dstRate by linear interpolation, preserving the channel layout. The input
// is returned unchanged when the rates already match or are not positive.
func Resample16(pcm []byte, channels, srcRate, dstRate int) []byte {
	if channels <= 0 {
		channels = 1
	}
	frameBytes := 2 * channels
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < frameBytes {
		return pcm
	}

	srcFrames := len(pcm) / frameBytes
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*frameBytes)
	step := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)

		next := idx + 1
		if next >= srcFrames {
			next = idx
		}
		for ch := range channels {
			a := sampleAt(pcm, idx*channels+ch)
			b := sampleAt(pcm, next*channels+ch)
			putSample(out, i*channels+ch, int16(float64(a)*(1-frac)+float64(b)*frac))
		}
	}
	return out
}

// MonoToStereo duplicates every mono sample into an L+R pair. A trailing
// partial sample is ignored.
func MonoToStereo(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n*4)
	for i := range n {
		s := sampleAt(pcm, i)
		putSample(out, i*2, s)
		putSample(out, i*2+1, s)
	}
	return out
}

// StereoToMono averages each L+R pair into one sample. The average of two
// int16 values always fits in int16, so no clamping is needed.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(sampleAt(pcm, i*2))
		r := int32(sampleAt(pcm, i*2+1))
		putSample(out, i, int16((l+r)/2))
	}
	return out
}

// sampleAt reads the i-th little-endian int16 sample from pcm.
func sampleAt(pcm []byte, i int) int16 {
	return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
}

// putSample writes s as the i-th little-endian int16 sample of pcm.
func putSample(pcm []byte, i int, s int16) {
	pcm[i*2] = byte(s)
	pcm[i*2+1] = byte(s >> 8)
}
