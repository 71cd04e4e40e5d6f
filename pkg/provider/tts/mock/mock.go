// Package mock is a canned-audio double for [tts.Provider]. Pipeline tests
// use it to feed known byte chunks downstream and to check which text and
// voice reached the synthesizer.
package mock

import (
	"bytes"
	"context"
	"sync"

	"github.com/hmori/gamecoach/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// SynthesizeCall is one recorded Synthesize invocation.
type SynthesizeCall struct {
	Ctx   context.Context
	Text  string
	Voice tts.VoiceProfile
}

// SynthesizeStreamCall is one recorded SynthesizeStream invocation.
type SynthesizeStreamCall struct {
	Ctx   context.Context
	Text  <-chan string
	Voice tts.VoiceProfile
}

// ListVoicesCall is one recorded ListVoices invocation.
type ListVoicesCall struct {
	Ctx context.Context
}

// Provider implements [tts.Provider] with configurable results. Set the
// response fields before use; call records accumulate under an internal
// lock.
type Provider struct {
	mu sync.Mutex

	SynthesizeChunks [][]byte // streamed one per chunk; Synthesize joins them
	SynthesizeErr    error    // fails both Synthesize and SynthesizeStream

	ListVoicesResult []tts.VoiceProfile
	ListVoicesErr    error

	SynthesizeCalls       []SynthesizeCall
	SynthesizeStreamCalls []SynthesizeStreamCall
	ListVoicesCalls       []ListVoicesCall
}

// Synthesize records the call and returns SynthesizeChunks joined into one
// buffer, or SynthesizeErr.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text, Voice: voice})
	if p.SynthesizeErr != nil {
		return nil, p.SynthesizeErr
	}
	return bytes.Join(p.SynthesizeChunks, nil), nil
}

// SynthesizeStream records the call and plays back SynthesizeChunks on a
// fresh channel. The incoming text channel is drained in the background so
// the producer never blocks, matching how a real synthesizer consumes its
// input.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	p.mu.Lock()
	p.SynthesizeStreamCalls = append(p.SynthesizeStreamCalls,
		SynthesizeStreamCall{Ctx: ctx, Text: text, Voice: voice})
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([][]byte, len(p.SynthesizeChunks))
	copy(chunks, p.SynthesizeChunks)
	p.mu.Unlock()

	ch := make(chan []byte, len(chunks))
	go func() {
		defer close(ch)
		go func() {
			for range text {
			}
		}()
		for _, audio := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- audio:
			}
		}
	}()
	return ch, nil
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCalls = append(p.ListVoicesCalls, ListVoicesCall{Ctx: ctx})
	return p.ListVoicesResult, p.ListVoicesErr
}
