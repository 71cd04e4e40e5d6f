package resilience

import (
	"context"

	"github.com/hmori/gamecoach/pkg/provider/tts"
)

var _ tts.Provider = (*TTSFallback)(nil)

// TTSFallback chains speech-synthesis backends behind one [tts.Provider].
// The usual chain is a local VOICEVOX engine first and a hosted voice as
// backup. Each backend sits behind its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// NewTTSFallback builds a chain with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends another backend to the end of the chain.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize renders the coach's reply through the first healthy backend.
// Voice identifiers are backend-specific, so after a failover the fallback's
// interpretation of voice decides what the player hears.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]byte, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// SynthesizeStream feeds reply fragments to the first healthy backend and
// returns its audio stream. Failover covers stream setup only; a mid-stream
// failure ends the utterance.
func (f *TTSFallback) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (<-chan []byte, error) {
		return p.SynthesizeStream(ctx, text, voice)
	})
}

// ListVoices reports the voices of the first healthy backend.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}
