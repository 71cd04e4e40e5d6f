// Package mock provides a test double for the stt package interfaces.
//
// Pre-populate Result (or Results for multi-call scripts) with the value the
// consumer should receive, then inspect TranscribeCalls to verify which audio
// was submitted.
//
// Example:
//
//	p := &mock.Provider{
//	    Result: &stt.Result{Text: "よし行くぞ"},
//	}
//	res, _ := p.Transcribe(ctx, pcm)
package mock

import (
	"context"
	"sync"

	"github.com/hmori/gamecoach/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// PCM is a copy of the audio bytes that were passed to Transcribe.
	PCM []byte
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned from every Transcribe call when Results is empty.
	// If both are nil/empty, Transcribe returns an empty Result.
	Result *stt.Result

	// Results, when non-empty, is consumed one element per Transcribe call in
	// order; the final element is repeated once exhausted.
	Results []*stt.Result

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall

	next int
}

// Transcribe records the call and returns the scripted result.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte) (*stt.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, PCM: cp})

	if p.TranscribeErr != nil {
		return nil, p.TranscribeErr
	}
	if len(p.Results) > 0 {
		i := p.next
		if i >= len(p.Results) {
			i = len(p.Results) - 1
		}
		p.next++
		return p.Results[i], nil
	}
	if p.Result != nil {
		return p.Result, nil
	}
	return &stt.Result{}, nil
}

// TranscribeCallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) TranscribeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls and the script cursor. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
	p.next = 0
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
