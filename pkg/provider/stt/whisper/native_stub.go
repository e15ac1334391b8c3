//go:build !whispercpp

// This file provides the NativeProvider API surface for builds without the
// whispercpp build tag, where the whisper.cpp CGO bindings (and the
// libwhisper.a static library they link against) are unavailable. NewNative
// returns an error telling the operator to rebuild with -tags whispercpp.

package whisper

import (
	"context"
	"errors"

	"github.com/foyerlabs/foyer/pkg/audio"
	"github.com/foyerlabs/foyer/pkg/provider/stt"
)

var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using the whisper.cpp Go bindings.
// This binary was built without the whispercpp build tag, so the bindings
// are absent and NewNative always fails.
type NativeProvider struct {
	modelID  string
	language string
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the language code for transcription (e.g. "fr",
// "en"). Defaults to "fr".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) {
		if lang != "" {
			p.language = lang
		}
	}
}

// WithNativeModelID overrides the model name reported by ModelID. Defaults
// to the model file path.
func WithNativeModelID(id string) NativeOption {
	return func(p *NativeProvider) {
		if id != "" {
			p.modelID = id
		}
	}
}

// NewNative reports that the native backend is unavailable: the binary must
// be rebuilt with -tags whispercpp (and the whisper.cpp library on the link
// path) to load models in-process.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	return nil, errors.New("whisper: native backend unavailable in this build; rebuild with -tags whispercpp")
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	return nil
}

// Transcribe implements stt.Provider.
func (p *NativeProvider) Transcribe(ctx context.Context, frame audio.Frame) (stt.Transcript, error) {
	return stt.Transcript{}, errors.New("whisper: native backend unavailable in this build; rebuild with -tags whispercpp")
}

// ModelID implements stt.Provider.
func (p *NativeProvider) ModelID() string {
	return p.modelID
}
