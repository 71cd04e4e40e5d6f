//go:build !whisper_native

package whisper

import (
	"context"
	"errors"

	"github.com/hmori/gamecoach/pkg/provider/stt"
)

var errNativeUnavailable = errors.New("whisper: native provider requires building with -tags whisper_native")

// NativeProvider is unavailable in builds without the whisper_native tag.
// Every construction attempt fails with a descriptive error so a config that
// selects whisper-native is rejected at startup rather than at first use.
type NativeProvider struct {
	language string
	channels int
}

var _ stt.Provider = (*NativeProvider)(nil)

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the BCP-47 language code for transcription.
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeChannels sets the channel count of PCM data passed to Transcribe.
func WithNativeChannels(channels int) NativeOption {
	return func(p *NativeProvider) {
		if channels > 0 {
			p.channels = channels
		}
	}
}

// NewNative always fails in builds without the whisper_native tag.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	return nil, errNativeUnavailable
}

func (p *NativeProvider) Close() error { return nil }

func (p *NativeProvider) Transcribe(context.Context, []byte) (*stt.Result, error) {
	return nil, errNativeUnavailable
}
