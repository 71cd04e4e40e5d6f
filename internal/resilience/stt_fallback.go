package resilience

import (
	"context"

	"github.com/hmori/gamecoach/pkg/provider/stt"
)

var _ stt.Provider = (*STTFallback)(nil)

// STTFallback chains transcription backends behind one [stt.Provider], for
// example the hosted Whisper API first and the local whisper.cpp model as a
// last resort. Each backend sits behind its own circuit breaker, so a flaky
// API stops being retried for every recording once its breaker opens.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// NewSTTFallback builds a chain with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends another backend to the end of the chain.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe runs the recording through the first healthy backend. The same
// PCM is handed to each backend in turn, so a failover costs one extra
// inference pass but never loses the player's question.
func (f *STTFallback) Transcribe(ctx context.Context, pcm []byte) (*stt.Result, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (*stt.Result, error) {
		return p.Transcribe(ctx, pcm)
	})
}
