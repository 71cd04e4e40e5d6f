//go:build whisper_native

// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. Build with -tags whisper_native; the whisper.cpp
// static library (libwhisper.a) and headers (whisper.h) must be available at
// link time via LIBRARY_PATH and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/hmori/gamecoach/pkg/provider/stt"
)

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once at
// startup and shared across all Transcribe calls.
//
// The Go bindings do not expose per-segment no-speech probabilities, so
// Segments in results from this provider carry NoSpeechProb == 0. The
// provider compensates with an energy gate: all-silent recordings are
// answered with an empty Result without running inference.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	channels int
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the BCP-47 language code for transcription
// (e.g., "ja", "en"). Defaults to "ja".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeChannels sets the channel count of PCM data passed to Transcribe.
// Multi-channel audio is down-mixed to mono before inference. Defaults to 1.
func WithNativeChannels(channels int) NativeOption {
	return func(p *NativeProvider) {
		if channels > 0 {
			p.channels = channels
		}
	}
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The model is loaded once and shared across all
// concurrent Transcribe calls. The caller must call Close when the provider
// is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
		channels: 1,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Must be called when the provider is no
// longer needed.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe converts pcm to float32 mono samples, runs whisper.cpp inference
// in a fresh context, and collects the resulting segments into a [stt.Result].
//
// Each call creates its own whisper.cpp context. Contexts are NOT thread-safe
// but the model can be shared across goroutines, so concurrent Transcribe
// calls are allowed.
func (p *NativeProvider) Transcribe(ctx context.Context, pcm []byte) (*stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	if len(pcm) == 0 || computeRMS(pcm) < silenceRMSThreshold {
		return &stt.Result{}, nil
	}

	samples := floatSamples(pcm, p.channels)

	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper: process audio: %w", err)
	}

	result := &stt.Result{Language: p.language}
	var parts []string
	for i := 0; ; i++ {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		result.Segments = append(result.Segments, stt.Segment{
			ID:    i,
			Text:  text,
			Start: segment.Start,
			End:   segment.End,
		})
		if segment.End > result.Duration {
			result.Duration = segment.End
		}
	}
	result.Text = strings.Join(parts, "")

	return result, nil
}
