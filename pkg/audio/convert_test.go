package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/hmori/gamecoach/pkg/audio"
)

func pcmBytes(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func pcmSamples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func assertSamples(t *testing.T, got []byte, want ...int16) {
	t.Helper()
	gs := pcmSamples(got)
	if len(gs) != len(want) {
		t.Fatalf("got %d samples %v, want %d %v", len(gs), gs, len(want), want)
	}
	for i := range want {
		if gs[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, gs[i], want[i])
		}
	}
}

func TestMonoToStereo(t *testing.T) {
	t.Parallel()
	stereo := audio.MonoToStereo(pcmBytes(100, 200, 300))
	assertSamples(t, stereo, 100, 100, 200, 200, 300, 300)
}

func TestMonoToStereo_IgnoresPartialSample(t *testing.T) {
	t.Parallel()
	in := append(pcmBytes(100, 200), 0xff)
	assertSamples(t, audio.MonoToStereo(in), 100, 100, 200, 200)
}

func TestStereoToMono(t *testing.T) {
	t.Parallel()
	mono := audio.StereoToMono(pcmBytes(100, 200, -100, -200))
	assertSamples(t, mono, 150, -150)
}

func TestStereoToMono_FullScaleDoesNotOverflow(t *testing.T) {
	t.Parallel()
	assertSamples(t, audio.StereoToMono(pcmBytes(32767, 32767)), 32767)
	assertSamples(t, audio.StereoToMono(pcmBytes(-32768, -32768)), -32768)
}

func TestResample16_SameRatePassesThrough(t *testing.T) {
	t.Parallel()
	in := pcmBytes(100, 200, 300)
	out := audio.Resample16(in, 1, 48000, 48000)
	if &out[0] != &in[0] {
		t.Error("matching rates should return the input slice")
	}
}

func TestResample16_MonoUpsample(t *testing.T) {
	t.Parallel()
	out := pcmSamples(audio.Resample16(pcmBytes(1000, 2000), 1, 16000, 48000))
	if len(out) != 6 {
		t.Fatalf("got %d samples, want 6", len(out))
	}
	if out[0] != 1000 {
		t.Errorf("first sample = %d, want 1000 (interpolation anchors on the source)", out[0])
	}
	if last := out[len(out)-1]; last < 1800 || last > 2200 {
		t.Errorf("last sample = %d, want near 2000", last)
	}
}

func TestResample16_MonoDownsample(t *testing.T) {
	t.Parallel()
	out := audio.Resample16(pcmBytes(100, 200, 300, 400, 500, 600), 1, 48000, 16000)
	if n := len(out) / 2; n != 2 {
		t.Fatalf("got %d samples, want 2", n)
	}
}

func TestResample16_StereoKeepsInterleaving(t *testing.T) {
	t.Parallel()
	out := pcmSamples(audio.Resample16(pcmBytes(100, 200, 300, 400), 2, 16000, 48000))
	if len(out) != 12 {
		t.Fatalf("got %d samples, want 12 (6 stereo frames)", len(out))
	}
	if out[0] != 100 || out[1] != 200 {
		t.Errorf("first frame = (%d, %d), want (100, 200)", out[0], out[1])
	}
}

func TestResample16_BogusRatesPassThrough(t *testing.T) {
	t.Parallel()
	in := pcmBytes(100, 200)
	for _, rates := range [][2]int{{0, 48000}, {48000, 0}, {-1, 48000}} {
		out := audio.Resample16(in, 1, rates[0], rates[1])
		if len(out) != len(in) {
			t.Errorf("Resample16 rates %v changed length to %d", rates, len(out))
		}
	}
}

func TestFormatConverter_MatchingFormatIsZeroCopy(t *testing.T) {
	t.Parallel()
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 48000, Channels: 2}}
	frame := audio.AudioFrame{Data: pcmBytes(100, 200), SampleRate: 48000, Channels: 2}

	got := conv.Convert(frame)
	if &got.Data[0] != &frame.Data[0] {
		t.Error("matching format should pass the frame through unchanged")
	}
}

func TestFormatConverter_Upmix(t *testing.T) {
	t.Parallel()
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 48000, Channels: 2}}
	frame := audio.AudioFrame{Data: pcmBytes(100, 200, 300), SampleRate: 48000, Channels: 1}

	got := conv.Convert(frame)
	assertSamples(t, got.Data, 100, 100, 200, 200, 300, 300)
	if got.SampleRate != 48000 || got.Channels != 2 {
		t.Errorf("output format = %dHz %dch", got.SampleRate, got.Channels)
	}
}

func TestFormatConverter_BrowserToWhisper(t *testing.T) {
	t.Parallel()
	// The stream path: 48 kHz browser capture down to 16 kHz mono for STT.
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	frame := audio.AudioFrame{
		Data:       pcmBytes(100, 200, 300, 400, 500, 600),
		SampleRate: 48000,
		Channels:   1,
	}

	got := conv.Convert(frame)
	if got.SampleRate != 16000 || got.Channels != 1 {
		t.Fatalf("output format = %dHz %dch, want 16000Hz mono", got.SampleRate, got.Channels)
	}
	if len(got.Data) != 4 {
		t.Errorf("output = %d bytes, want 4 (2 samples)", len(got.Data))
	}
}

func TestFormatConverter_DropsPartialSampleFrames(t *testing.T) {
	t.Parallel()
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 48000, Channels: 1}}

	for _, frame := range []audio.AudioFrame{
		{Data: []byte{1, 2, 3}, SampleRate: 22050, Channels: 1},
		{Data: []byte{1, 2, 3}, SampleRate: 48000, Channels: 1}, // matches target
	} {
		got := conv.Convert(frame)
		if len(got.Data) != 0 {
			t.Errorf("partial-sample frame kept %d bytes, want dropped", len(got.Data))
		}
		if got.SampleRate != 48000 || got.Channels != 1 {
			t.Errorf("dropped frame format = %dHz %dch, want target format", got.SampleRate, got.Channels)
		}
	}
}
