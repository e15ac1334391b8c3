// Package vad defines the Engine interface for voice activity detection.
//
// The voice pipeline runs VAD over each uploaded utterance before spending
// compute on speaker identification and transcription; clips with no speech
// short-circuit the rest of the pipeline.
//
// VAD is synchronous by design: Analyze returns immediately with a result,
// making it suitable as the first, cheapest stage of the pipeline.
// Implementations must be safe for concurrent use.
package vad

import "github.com/foyerlabs/foyer/pkg/audio"

// Result is the outcome of analyzing one utterance.
type Result struct {
	// HasSpeech reports whether the clip contains enough speech to be
	// worth processing further.
	HasSpeech bool

	// SpeechRatio is the fraction of analysis frames classified as
	// speech, in [0.0, 1.0].
	SpeechRatio float64
}

// Engine is the abstraction over any VAD backend.
type Engine interface {
	// Analyze classifies one complete utterance. It must not block.
	Analyze(frame audio.Frame) (Result, error)
}
