// Package stt defines the Provider interface for speech-to-text backends.
//
// The voice pipeline works on complete utterances: the household satellites
// record until silence and upload one clip per interaction, so providers
// transcribe a single audio.Frame per call rather than maintaining a
// streaming session.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/foyerlabs/foyer/pkg/audio"
)

// Transcript is the result of transcribing one utterance.
type Transcript struct {
	// Text is the transcribed speech content, whitespace-trimmed.
	Text string

	// Confidence is the overall confidence score (0.0 to 1.0). Zero if the
	// backend does not report confidence.
	Confidence float64

	// Language is the language the backend detected or was configured
	// with. Empty if not reported.
	Language string
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe converts one utterance to text. It blocks until the
	// backend responds, ctx is cancelled, or the request fails.
	Transcribe(ctx context.Context, frame audio.Frame) (Transcript, error)

	// ModelID reports the backend model name for health reporting.
	ModelID() string
}
